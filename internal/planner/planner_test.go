package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

func taskWithDeps(id string, duration time.Duration, deps ...core.TaskID) *core.Task {
	return core.NewTask(core.TaskID(id), "Task "+id).
		WithDependsOn(deps...).
		WithEstimates(duration, 1.0, 100)
}

func TestCreatePlan_EmptySet(t *testing.T) {
	p := New()
	if _, err := p.CreatePlan(nil); err == nil {
		t.Fatal("CreatePlan() should fail for an empty task set")
	}
}

func TestCreatePlan_SingleTask(t *testing.T) {
	p := New()
	plan, err := p.CreatePlan([]*core.Task{taskWithDeps("a", time.Minute)})
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if len(plan.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(plan.Stages))
	}
	if plan.Stages[0].CanRunInParallel {
		t.Error("singleton stage must not be flagged parallel")
	}
	if plan.EstimatedDuration != time.Minute {
		t.Errorf("EstimatedDuration = %s, want 1m", plan.EstimatedDuration)
	}
}

func TestCreatePlan_TopologicalCorrectness(t *testing.T) {
	// Diamond: a -> (b, c) -> d
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute),
		taskWithDeps("b", 2*time.Minute, "a"),
		taskWithDeps("c", 3*time.Minute, "a"),
		taskWithDeps("d", time.Minute, "b", "c"),
	}

	p := New()
	plan, err := p.CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}

	if len(plan.Stages) != 3 {
		t.Fatalf("stages = %d, want 3", len(plan.Stages))
	}

	// Every task appears in exactly one stage.
	seen := make(map[core.TaskID]int)
	for _, s := range plan.Stages {
		for _, id := range s.TaskIDs {
			seen[id]++
		}
	}
	for _, task := range tasks {
		if seen[task.ID] != 1 {
			t.Errorf("task %s appears %d times, want 1", task.ID, seen[task.ID])
		}
	}

	// Every dependency sits in a strictly earlier stage.
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if plan.StageOf(dep) >= plan.StageOf(task.ID) {
				t.Errorf("dependency %s of %s not in an earlier stage", dep, task.ID)
			}
		}
	}

	// Middle stage holds b and c, runs in parallel, duration is the max.
	mid := plan.Stages[1]
	if !mid.CanRunInParallel || mid.Size() != 2 {
		t.Errorf("middle stage = %+v", mid)
	}
	if mid.EstimatedDuration != 3*time.Minute {
		t.Errorf("parallel stage duration = %s, want max 3m", mid.EstimatedDuration)
	}
}

func TestCreatePlan_CycleFails(t *testing.T) {
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute, "c"),
		taskWithDeps("b", time.Minute, "a"),
		taskWithDeps("c", time.Minute, "b"),
	}

	p := New()
	_, err := p.CreatePlan(tasks)
	if err == nil {
		t.Fatal("CreatePlan() should fail for a cyclic graph")
	}

	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr.Code != core.CodeDAGCycle {
		t.Fatalf("error = %v, want DAG_CYCLE", err)
	}
	if _, ok := domErr.Details["task_id"]; !ok {
		t.Error("cycle error should name a task on the cycle")
	}
}

func TestCreatePlan_UnknownDependency(t *testing.T) {
	tasks := []*core.Task{taskWithDeps("a", time.Minute, "ghost")}
	p := New()
	_, err := p.CreatePlan(tasks)
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr.Code != core.CodeUnknownDependency {
		t.Fatalf("error = %v, want UNKNOWN_DEPENDENCY", err)
	}
}

func TestCreatePlan_CriticalPath(t *testing.T) {
	// Two chains from a: a->b->d (1+5+1) and a->c->d via c (1+2+1).
	// The critical path must follow the 5-minute branch.
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute),
		taskWithDeps("b", 5*time.Minute, "a"),
		taskWithDeps("c", 2*time.Minute, "a"),
		taskWithDeps("d", time.Minute, "b", "c"),
	}

	p := New()
	plan, err := p.CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}

	want := []core.TaskID{"a", "b", "d"}
	if len(plan.CriticalPath) != len(want) {
		t.Fatalf("CriticalPath = %v, want %v", plan.CriticalPath, want)
	}
	for i, id := range want {
		if plan.CriticalPath[i] != id {
			t.Fatalf("CriticalPath = %v, want %v", plan.CriticalPath, want)
		}
	}

	// Path duration equals the plan's estimated duration when stages are
	// serialized along the path (max-per-stage matches path members here).
	var pathDuration time.Duration
	byID := make(map[core.TaskID]*core.Task)
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for _, id := range plan.CriticalPath {
		pathDuration += byID[id].EstimatedDuration
	}
	if pathDuration != plan.EstimatedDuration {
		t.Errorf("critical path duration %s != plan duration %s", pathDuration, plan.EstimatedDuration)
	}
}

func TestCreatePlan_ResourceCeilings(t *testing.T) {
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute).WithProvider("openai"),
		taskWithDeps("b", time.Minute).WithProvider("google"),
	}

	p := New(WithCeilings(map[string]int{"openai": 2}), WithDefaultCeiling(8))
	plan, err := p.CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if plan.Resources["openai"] != 2 {
		t.Errorf("openai ceiling = %d, want 2", plan.Resources["openai"])
	}
	if plan.Resources["google"] != 8 {
		t.Errorf("google ceiling = %d, want default 8", plan.Resources["google"])
	}
}

func TestCreatePlan_CostTotals(t *testing.T) {
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute),
		taskWithDeps("b", time.Minute, "a"),
	}
	plan, err := New().CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if plan.EstimatedCost != 2.0 {
		t.Errorf("EstimatedCost = %v, want 2.0", plan.EstimatedCost)
	}
	if plan.EstimatedTokens != 200 {
		t.Errorf("EstimatedTokens = %v, want 200", plan.EstimatedTokens)
	}
}

func TestOptimizePlan_SplitsByParallelism(t *testing.T) {
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute).WithPriority(1),
		taskWithDeps("b", time.Minute).WithPriority(9),
		taskWithDeps("c", time.Minute).WithPriority(5),
	}

	p := New()
	plan, err := p.CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if len(plan.Stages) != 1 {
		t.Fatalf("natural stages = %d, want 1", len(plan.Stages))
	}

	optimized, err := p.OptimizePlan(plan, tasks, core.PlanConstraints{MaxParallelism: 2})
	if err != nil {
		t.Fatalf("OptimizePlan() error = %v", err)
	}
	if len(optimized.Stages) != 2 {
		t.Fatalf("optimized stages = %d, want 2", len(optimized.Stages))
	}

	// Highest priority first.
	first := optimized.Stages[0].TaskIDs
	if first[0] != "b" || first[1] != "c" {
		t.Errorf("first sub-stage = %v, want [b c]", first)
	}
	if optimized.Stages[1].TaskIDs[0] != "a" {
		t.Errorf("second sub-stage = %v, want [a]", optimized.Stages[1].TaskIDs)
	}

	// Original plan untouched.
	if len(plan.Stages) != 1 {
		t.Error("OptimizePlan() must not mutate the input plan")
	}
}

func TestOptimizePlan_FlagsNonConformance(t *testing.T) {
	tasks := []*core.Task{
		taskWithDeps("a", time.Hour),
		taskWithDeps("b", time.Hour, "a"),
	}

	p := New()
	plan, err := p.CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}

	optimized, err := p.OptimizePlan(plan, tasks, core.PlanConstraints{
		MaxDuration: time.Hour,
		MaxCost:     1.0,
	})
	if err != nil {
		t.Fatalf("OptimizePlan() error = %v", err)
	}
	if optimized.Conforms {
		t.Error("plan should be flagged non-conforming")
	}
	if len(optimized.Violations) != 2 {
		t.Errorf("violations = %v, want duration and cost", optimized.Violations)
	}
	// Tasks are never dropped.
	if optimized.TotalTasks() != 2 {
		t.Errorf("TotalTasks() = %d, want 2", optimized.TotalTasks())
	}
}

func TestVisualizePlan(t *testing.T) {
	tasks := []*core.Task{
		taskWithDeps("a", time.Minute),
		taskWithDeps("b", 2*time.Minute, "a"),
	}
	p := New()
	plan, err := p.CreatePlan(tasks)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}

	views := VisualizePlan(plan, tasks)
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[0].Tasks[0].ID != "a" || !views[0].Tasks[0].OnCriticalPath {
		t.Errorf("view[0] = %+v", views[0])
	}
	if views[1].Tasks[0].Title != "Task b" {
		t.Errorf("view[1] task title = %q", views[1].Tasks[0].Title)
	}
}
