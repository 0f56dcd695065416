package core

import "time"

// Stage is a maximal set of tasks whose dependencies are all satisfied
// by prior stages. Tasks within a stage have no dependency relationship
// to each other and are eligible to run concurrently. Stages are
// immutable after planning.
type Stage struct {
	Index             int           `json:"index"`
	TaskIDs           []TaskID      `json:"task_ids"`
	CanRunInParallel  bool          `json:"can_run_in_parallel"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	DependsOnStages   []int         `json:"depends_on_stages,omitempty"`
}

// Size returns the number of tasks in the stage.
func (s Stage) Size() int {
	return len(s.TaskIDs)
}

// Plan is an ordered sequence of stages plus derived metrics. Plans are
// immutable once produced; re-optimization yields a new Plan.
type Plan struct {
	Stages            []Stage       `json:"stages"`
	CriticalPath      []TaskID      `json:"critical_path"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	EstimatedCost     float64       `json:"estimated_cost"`
	EstimatedTokens   int64         `json:"estimated_tokens"`

	// Resources maps each execution capability referenced by the task
	// set to its concurrency ceiling for dispatch bounding.
	Resources map[string]int `json:"resources,omitempty"`

	// Conforms is false when re-optimization could not satisfy the
	// requested constraints. Violations explains why; tasks are never
	// dropped to force conformance.
	Conforms   bool     `json:"conforms"`
	Violations []string `json:"violations,omitempty"`
}

// TotalTasks returns the number of tasks across all stages.
func (p *Plan) TotalTasks() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.TaskIDs)
	}
	return n
}

// StageOf returns the stage index containing the given task, or -1.
func (p *Plan) StageOf(id TaskID) int {
	for _, s := range p.Stages {
		for _, tid := range s.TaskIDs {
			if tid == id {
				return s.Index
			}
		}
	}
	return -1
}

// PlanConstraints bound re-optimization. Zero values mean unconstrained.
type PlanConstraints struct {
	MaxDuration    time.Duration `json:"max_duration,omitempty"`
	MaxCost        float64       `json:"max_cost,omitempty"`
	MaxParallelism int           `json:"max_parallelism,omitempty"`
	ByPriority     bool          `json:"by_priority,omitempty"`
}

// StageView is a read-only projection of one stage for rendering.
type StageView struct {
	Index    int           `json:"index"`
	Parallel bool          `json:"parallel"`
	Duration time.Duration `json:"duration"`
	Tasks    []TaskSummary `json:"tasks"`
}

// TaskSummary is the per-task slice of a plan projection.
type TaskSummary struct {
	ID             TaskID        `json:"id"`
	Title          string        `json:"title"`
	Provider       string        `json:"provider,omitempty"`
	Duration       time.Duration `json:"duration"`
	Cost           float64       `json:"cost"`
	OnCriticalPath bool          `json:"on_critical_path"`
}
