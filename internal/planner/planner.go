package planner

import (
	"time"

	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/logging"
)

// Planner builds and re-optimizes execution plans.
type Planner struct {
	ceilings map[string]int // capability -> concurrency ceiling
	defaults int            // ceiling for capabilities without explicit config
	logger   *logging.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithCeilings sets per-capability concurrency ceilings.
func WithCeilings(ceilings map[string]int) Option {
	return func(p *Planner) {
		p.ceilings = ceilings
	}
}

// WithDefaultCeiling sets the ceiling for capabilities not present in
// the configured map.
func WithDefaultCeiling(n int) Option {
	return func(p *Planner) {
		p.defaults = n
	}
}

// WithLogger sets the planner logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		ceilings: make(map[string]int),
		defaults: 4,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreatePlan builds the dependency graph, validates acyclicity, groups
// tasks into topological stages, computes the critical path, and
// derives cost/duration totals. Fails entirely on a cyclic graph; no
// partial plan is ever returned.
func (p *Planner) CreatePlan(tasks []*core.Task) (*core.Plan, error) {
	if len(tasks) == 0 {
		return nil, core.ErrValidation(core.CodeMissingTasks, "cannot plan an empty task set")
	}

	dag, err := NewDAG(tasks)
	if err != nil {
		return nil, err
	}

	groups, err := dag.StageGroups()
	if err != nil {
		return nil, err
	}

	plan := &core.Plan{
		Stages:    make([]core.Stage, 0, len(groups)),
		Resources: p.allocateResources(tasks),
		Conforms:  true,
	}

	prior := make([]int, 0)
	for i, group := range groups {
		stage := core.Stage{
			Index:             i,
			TaskIDs:           group,
			CanRunInParallel:  len(group) > 1,
			EstimatedDuration: stageDuration(dag, group, len(group) > 1),
			DependsOnStages:   stageDependencies(dag, plan, group, prior),
		}
		plan.Stages = append(plan.Stages, stage)
		plan.EstimatedDuration += stage.EstimatedDuration
		prior = append(prior, i)
	}

	for _, task := range tasks {
		plan.EstimatedCost += task.EstimatedCost
		plan.EstimatedTokens += task.EstimatedTokens
	}

	plan.CriticalPath = criticalPath(dag, groups)

	p.logger.Debug("plan created",
		"tasks", len(tasks),
		"stages", len(plan.Stages),
		"estimated_duration", plan.EstimatedDuration,
		"estimated_cost", plan.EstimatedCost,
	)

	return plan, nil
}

// stageDuration estimates a stage: max of member estimates when the
// stage runs in parallel, sum when serial.
func stageDuration(dag *DAG, group []core.TaskID, parallel bool) time.Duration {
	var total, max time.Duration
	for _, id := range group {
		task, _ := dag.Task(id)
		total += task.EstimatedDuration
		if task.EstimatedDuration > max {
			max = task.EstimatedDuration
		}
	}
	if parallel {
		return max
	}
	return total
}

// stageDependencies lists the prior stage indices holding at least one
// direct dependency of a member task.
func stageDependencies(dag *DAG, plan *core.Plan, group []core.TaskID, prior []int) []int {
	needed := make(map[int]bool)
	for _, id := range group {
		for _, dep := range dag.Dependencies(id) {
			if idx := plan.StageOf(dep); idx >= 0 {
				needed[idx] = true
			}
		}
	}
	out := make([]int, 0, len(needed))
	for _, idx := range prior {
		if needed[idx] {
			out = append(out, idx)
		}
	}
	return out
}

// allocateResources assigns each distinct capability its concurrency
// ceiling for later dispatch bounding.
func (p *Planner) allocateResources(tasks []*core.Task) map[string]int {
	resources := make(map[string]int)
	for _, task := range tasks {
		if task.Provider == "" {
			continue
		}
		if _, ok := resources[task.Provider]; ok {
			continue
		}
		if ceiling, ok := p.ceilings[task.Provider]; ok {
			resources[task.Provider] = ceiling
		} else {
			resources[task.Provider] = p.defaults
		}
	}
	return resources
}
