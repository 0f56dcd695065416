package planner

import (
	"fmt"
	"sort"

	"github.com/taskweave/taskweave/internal/core"
)

// OptimizePlan re-applies staging under constraints and returns a new
// Plan; the input plan is never mutated. When MaxParallelism is below a
// stage's natural size the stage is split into sequential sub-stages
// capped at the limit, highest-priority tasks first. When projected
// totals exceed MaxDuration or MaxCost the plan is flagged
// non-conforming; tasks are never dropped to force conformance.
func (p *Planner) OptimizePlan(plan *core.Plan, tasks []*core.Task, constraints core.PlanConstraints) (*core.Plan, error) {
	dag, err := NewDAG(tasks)
	if err != nil {
		return nil, err
	}

	optimized := &core.Plan{
		Stages:          make([]core.Stage, 0, len(plan.Stages)),
		Resources:       plan.Resources,
		EstimatedCost:   plan.EstimatedCost,
		EstimatedTokens: plan.EstimatedTokens,
		CriticalPath:    append([]core.TaskID(nil), plan.CriticalPath...),
		Conforms:        true,
	}

	prior := make([]int, 0)
	for _, stage := range plan.Stages {
		for _, group := range splitStage(dag, stage.TaskIDs, constraints) {
			sub := core.Stage{
				Index:             len(optimized.Stages),
				TaskIDs:           group,
				CanRunInParallel:  len(group) > 1,
				EstimatedDuration: stageDuration(dag, group, len(group) > 1),
				DependsOnStages:   stageDependencies(dag, optimized, group, prior),
			}
			optimized.Stages = append(optimized.Stages, sub)
			optimized.EstimatedDuration += sub.EstimatedDuration
			prior = append(prior, sub.Index)
		}
	}

	if constraints.MaxDuration > 0 && optimized.EstimatedDuration > constraints.MaxDuration {
		optimized.Conforms = false
		optimized.Violations = append(optimized.Violations,
			fmt.Sprintf("projected duration %s exceeds constraint %s", optimized.EstimatedDuration, constraints.MaxDuration))
	}
	if constraints.MaxCost > 0 && optimized.EstimatedCost > constraints.MaxCost {
		optimized.Conforms = false
		optimized.Violations = append(optimized.Violations,
			fmt.Sprintf("projected cost $%.4f exceeds constraint $%.2f", optimized.EstimatedCost, constraints.MaxCost))
	}

	return optimized, nil
}

// splitStage caps a stage at the parallelism limit, ordering members by
// descending priority so the highest-priority tasks land in the
// earliest sub-stage.
func splitStage(dag *DAG, ids []core.TaskID, constraints core.PlanConstraints) [][]core.TaskID {
	limit := constraints.MaxParallelism

	ordered := append([]core.TaskID(nil), ids...)
	if limit > 0 && len(ids) > limit || constraints.ByPriority {
		sort.SliceStable(ordered, func(i, j int) bool {
			a, _ := dag.Task(ordered[i])
			b, _ := dag.Task(ordered[j])
			return a.Priority > b.Priority
		})
	}

	if limit <= 0 || len(ordered) <= limit {
		return [][]core.TaskID{ordered}
	}

	groups := make([][]core.TaskID, 0, (len(ordered)+limit-1)/limit)
	for start := 0; start < len(ordered); start += limit {
		end := start + limit
		if end > len(ordered) {
			end = len(ordered)
		}
		groups = append(groups, ordered[start:end])
	}
	return groups
}
