package planner

import "github.com/taskweave/taskweave/internal/core"

// VisualizePlan produces a read-only projection of the plan (stage index
// to task summaries) for external rendering. Nothing is mutated.
func VisualizePlan(plan *core.Plan, tasks []*core.Task) []core.StageView {
	byID := make(map[core.TaskID]*core.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	onPath := make(map[core.TaskID]bool, len(plan.CriticalPath))
	for _, id := range plan.CriticalPath {
		onPath[id] = true
	}

	views := make([]core.StageView, 0, len(plan.Stages))
	for _, stage := range plan.Stages {
		view := core.StageView{
			Index:    stage.Index,
			Parallel: stage.CanRunInParallel,
			Duration: stage.EstimatedDuration,
			Tasks:    make([]core.TaskSummary, 0, len(stage.TaskIDs)),
		}
		for _, id := range stage.TaskIDs {
			summary := core.TaskSummary{ID: id, OnCriticalPath: onPath[id]}
			if t, ok := byID[id]; ok {
				summary.Title = t.Title
				summary.Provider = t.Provider
				summary.Duration = t.EstimatedDuration
				summary.Cost = t.EstimatedCost
			}
			view.Tasks = append(view.Tasks, summary)
		}
		views = append(views, view)
	}
	return views
}
