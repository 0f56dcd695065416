package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/events"
	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/planner"
)

// FailurePolicy selects how a run reacts to a failed task.
type FailurePolicy string

const (
	// FailAbort stops dispatching after the failing stage completes and
	// marks every downstream task blocked.
	FailAbort FailurePolicy = "abort"

	// FailContinue blocks only the failed task's dependents and keeps
	// executing independent tasks.
	FailContinue FailurePolicy = "continue"
)

// ExecuteOptions configures one workflow run. The zero value is usable:
// abort on failure, no budget ceilings, no context passing.
type ExecuteOptions struct {
	// MaxParallel caps concurrent tasks within a stage. 0 means the
	// stage's natural width.
	MaxParallel int

	// ContextPassing exposes the most recently completed task's output
	// as the previous_result variable. Ordering across a concurrent
	// stage is last-writer-wins.
	ContextPassing bool

	// OnFailure selects the failure policy. Empty means FailAbort.
	OnFailure FailurePolicy

	// MaxCostUSD / MaxTokens set budget ceilings. 0 means unlimited.
	MaxCostUSD float64
	MaxTokens  int64

	// RunID overrides the generated run identifier, letting callers
	// correlate control calls and logs before Execute returns.
	RunID string

	// Variables seeds the run's named variables.
	Variables map[string]interface{}

	// OnProgress, when set, is called after every task completion.
	OnProgress func(core.Progress)

	// DisableCheckpoints turns off the per-stage checkpoint writes.
	DisableCheckpoints bool
}

// WorkflowExecutor drives a planned task set through its stages. One
// executor serves many runs; each run's ExecutionContext is owned by
// exactly one invocation of Execute.
type WorkflowExecutor struct {
	planner     *planner.Planner
	tasks       *TaskExecutor
	checkpoints core.CheckpointStore
	bus         *events.Bus
	logger      *logging.Logger

	mu   sync.Mutex
	runs map[string]*runControl
}

// WorkflowOption configures a WorkflowExecutor.
type WorkflowOption func(*WorkflowExecutor)

// WithCheckpointStore enables per-stage checkpoint persistence.
func WithCheckpointStore(store core.CheckpointStore) WorkflowOption {
	return func(w *WorkflowExecutor) {
		w.checkpoints = store
	}
}

// WithWorkflowBus sets the event bus for run lifecycle events.
func WithWorkflowBus(bus *events.Bus) WorkflowOption {
	return func(w *WorkflowExecutor) {
		w.bus = bus
	}
}

// WithWorkflowLogger sets the executor logger.
func WithWorkflowLogger(logger *logging.Logger) WorkflowOption {
	return func(w *WorkflowExecutor) {
		w.logger = logger
	}
}

// NewWorkflowExecutor creates a workflow executor.
func NewWorkflowExecutor(p *planner.Planner, tasks *TaskExecutor, opts ...WorkflowOption) *WorkflowExecutor {
	w := &WorkflowExecutor{
		planner: p,
		tasks:   tasks,
		logger:  logging.NewNop(),
		runs:    make(map[string]*runControl),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Execute plans and runs a task set to completion. The returned result
// enumerates every task with its final status; the error return is
// reserved for planning failures and cancellation.
func (w *WorkflowExecutor) Execute(ctx context.Context, tasks []*core.Task, opts ExecuteOptions) (*core.WorkflowResult, error) {
	plan, err := w.planner.CreatePlan(tasks)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	execCtx := core.NewExecutionContext(runID, core.NewBudgetTracker(opts.MaxCostUSD, opts.MaxTokens))
	for k, v := range opts.Variables {
		execCtx.SetVariable(k, v)
	}

	return w.run(ctx, runID, plan, tasks, execCtx, opts)
}

// ExecuteFromCheckpoint resumes a run from a saved checkpoint. Tasks
// recorded as completed in the checkpoint are never re-executed; their
// results carry over into the final aggregate.
func (w *WorkflowExecutor) ExecuteFromCheckpoint(ctx context.Context, tasks []*core.Task, cp core.Checkpoint, opts ExecuteOptions) (*core.WorkflowResult, error) {
	plan, err := w.planner.CreatePlan(tasks)
	if err != nil {
		return nil, err
	}

	execCtx := core.RestoreContext(cp)
	for _, res := range cp.Completed {
		if task := findTask(tasks, res.TaskID); task != nil {
			task.Status = res.Status
		}
	}

	w.logger.WithRun(cp.RunID).Info("resuming from checkpoint",
		"stage", cp.StageIndex,
		"completed_tasks", len(cp.Completed),
	)
	return w.run(ctx, cp.RunID, plan, tasks, execCtx, opts)
}

// Pause requests a pause at the next stage boundary of a running run.
func (w *WorkflowExecutor) Pause(runID string) error {
	ctl, err := w.control(runID)
	if err != nil {
		return err
	}
	ctl.Pause()
	return nil
}

// Resume releases a paused run.
func (w *WorkflowExecutor) Resume(runID string) error {
	ctl, err := w.control(runID)
	if err != nil {
		return err
	}
	ctl.Resume()
	return nil
}

// Cancel cooperatively cancels a run. In-flight tasks observe the
// context cancellation; nothing is forcibly killed.
func (w *WorkflowExecutor) Cancel(runID string) error {
	ctl, err := w.control(runID)
	if err != nil {
		return err
	}
	ctl.Cancel()
	return nil
}

func (w *WorkflowExecutor) control(runID string) (*runControl, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ctl, ok := w.runs[runID]
	if !ok {
		return nil, core.ErrNotFound("run", runID)
	}
	return ctl, nil
}

func (w *WorkflowExecutor) run(ctx context.Context, runID string, plan *core.Plan, tasks []*core.Task, execCtx *core.ExecutionContext, opts ExecuteOptions) (*core.WorkflowResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctl := newRunControl(cancel)
	w.mu.Lock()
	w.runs[runID] = ctl
	w.mu.Unlock()
	defer func() {
		ctl.finish()
		w.mu.Lock()
		delete(w.runs, runID)
		w.mu.Unlock()
	}()

	log := w.logger.WithRun(runID)
	started := time.Now()

	byID := make(map[core.TaskID]*core.Task, len(tasks))
	dependents := make(map[core.TaskID][]core.TaskID)
	for _, task := range tasks {
		byID[task.ID] = task
		for _, dep := range task.DependsOn {
			dependents[dep] = append(dependents[dep], task.ID)
		}
	}

	results := make(map[core.TaskID]*core.TaskResult, len(tasks))
	var resultsMu sync.Mutex

	// Seed results from already completed tasks (resume path).
	for _, res := range execCtx.CompletedResults() {
		r := res
		results[res.TaskID] = &r
	}

	sems := providerSemaphores(plan)
	failurePolicy := opts.OnFailure
	if failurePolicy == "" {
		failurePolicy = FailAbort
	}

	if w.bus != nil {
		w.bus.Publish(events.WorkflowStarted(runID, len(tasks)))
	}
	log.Info("workflow started", "tasks", len(tasks), "stages", len(plan.Stages))

	aborted := false
	cancelled := false

stageLoop:
	for _, stage := range plan.Stages {
		if err := ctl.waitIfPaused(ctx); err != nil {
			cancelled = true
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if aborted {
			break
		}

		pending := w.stagePending(stage, byID, execCtx, results, &resultsMu)
		if len(pending) == 0 {
			continue
		}

		g, stageCtx := errgroup.WithContext(ctx)
		if opts.MaxParallel > 0 {
			g.SetLimit(opts.MaxParallel)
		}

		for _, task := range pending {
			task := task
			g.Go(func() error {
				if sem := sems[task.Provider]; sem != nil {
					if err := sem.Acquire(stageCtx, 1); err != nil {
						return err
					}
					defer sem.Release(1)
				}

				res := w.tasks.Execute(stageCtx, task, execCtx)

				resultsMu.Lock()
				results[task.ID] = res
				completed := len(results)
				resultsMu.Unlock()
				execCtx.RecordResult(*res)

				if opts.ContextPassing && res.Status == core.TaskStatusSucceeded {
					execCtx.SetVariable(core.VarPreviousResult, res.Output)
				}
				if opts.OnProgress != nil {
					opts.OnProgress(progress(completed, len(tasks), stage.Index, len(plan.Stages)))
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			cancelled = true
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		// Propagate failures per policy before moving on.
		for _, id := range stage.TaskIDs {
			res, ok := results[id]
			if !ok || res.Status != core.TaskStatusFailed {
				continue
			}
			blockDependents(id, byID, dependents, results, execCtx, w.bus, runID)
			if failurePolicy == FailAbort {
				log.Warn("task failed, aborting remaining stages", "task_id", id)
				aborted = true
			}
		}
		if aborted {
			w.blockRemaining(plan, stage.Index, byID, results, execCtx, runID)
		}

		if !opts.DisableCheckpoints && w.checkpoints != nil {
			cp := execCtx.Checkpoint(stage.Index)
			if err := w.checkpoints.Save(ctx, cp); err != nil {
				log.Warn("failed to save checkpoint", "stage", stage.Index, "error", err)
			}
		}
		if w.bus != nil {
			w.bus.Publish(events.StageCompleted(runID, stage.Index, len(plan.Stages)))
		}

		select {
		case <-ctx.Done():
			cancelled = true
			break stageLoop
		default:
		}
	}

	result := aggregate(runID, tasks, results, execCtx, time.Since(started), cancelled)
	if w.bus != nil {
		w.bus.PublishPriority(events.WorkflowFinished(runID, result.Status, result.TotalCost, result.TotalDuration))
	}
	log.Info("workflow finished",
		"status", result.Status,
		"succeeded", result.SuccessCount,
		"failed", result.FailureCount,
		"cost", result.TotalCost,
	)

	if cancelled && ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// stagePending filters a stage down to the tasks that still need to
// run: completed tasks (resume path) are skipped, and tasks whose
// dependencies did not succeed are blocked up front.
func (w *WorkflowExecutor) stagePending(stage core.Stage, byID map[core.TaskID]*core.Task, execCtx *core.ExecutionContext, results map[core.TaskID]*core.TaskResult, mu *sync.Mutex) []*core.Task {
	pending := make([]*core.Task, 0, len(stage.TaskIDs))
	for _, id := range stage.TaskIDs {
		task := byID[id]
		mu.Lock()
		_, done := results[id]
		mu.Unlock()
		if done || task.IsTerminal() {
			continue
		}

		blockedBy := core.TaskID("")
		for _, dep := range task.DependsOn {
			mu.Lock()
			depRes, ok := results[dep]
			mu.Unlock()
			if !ok || (depRes.Status != core.TaskStatusSucceeded && depRes.Status != core.TaskStatusSkipped) {
				blockedBy = dep
				break
			}
		}
		if blockedBy != "" {
			_ = task.MarkBlocked(blockedBy)
			res := &core.TaskResult{
				TaskID: id,
				Status: core.TaskStatusBlocked,
				Error:  fmt.Sprintf("dependency %s did not succeed", blockedBy),
			}
			mu.Lock()
			results[id] = res
			mu.Unlock()
			execCtx.RecordResult(*res)
			continue
		}
		pending = append(pending, task)
	}
	return pending
}

// blockRemaining marks every still-pending task in later stages blocked
// after an abort.
func (w *WorkflowExecutor) blockRemaining(plan *core.Plan, afterStage int, byID map[core.TaskID]*core.Task, results map[core.TaskID]*core.TaskResult, execCtx *core.ExecutionContext, runID string) {
	for _, stage := range plan.Stages {
		if stage.Index <= afterStage {
			continue
		}
		for _, id := range stage.TaskIDs {
			if _, done := results[id]; done {
				continue
			}
			task := byID[id]
			if task.IsTerminal() {
				continue
			}
			_ = task.MarkBlocked("")
			res := &core.TaskResult{
				TaskID: id,
				Status: core.TaskStatusBlocked,
				Error:  "workflow aborted by earlier failure",
			}
			results[id] = res
			execCtx.RecordResult(*res)
			if w.bus != nil {
				w.bus.Publish(events.TaskStatusChanged(runID, id, core.TaskStatusPending, core.TaskStatusBlocked))
			}
		}
	}
}

// blockDependents transitively blocks every pending dependent of a
// failed task.
func blockDependents(failed core.TaskID, byID map[core.TaskID]*core.Task, dependents map[core.TaskID][]core.TaskID, results map[core.TaskID]*core.TaskResult, execCtx *core.ExecutionContext, bus *events.Bus, runID string) {
	queue := append([]core.TaskID(nil), dependents[failed]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, done := results[id]; done {
			continue
		}
		task := byID[id]
		if task == nil || task.IsTerminal() {
			continue
		}
		_ = task.MarkBlocked(failed)
		res := &core.TaskResult{
			TaskID: id,
			Status: core.TaskStatusBlocked,
			Error:  fmt.Sprintf("dependency %s did not succeed", failed),
		}
		results[id] = res
		execCtx.RecordResult(*res)
		if bus != nil {
			bus.Publish(events.TaskStatusChanged(runID, id, core.TaskStatusPending, core.TaskStatusBlocked))
		}
		queue = append(queue, dependents[id]...)
	}
}

// providerSemaphores builds one weighted semaphore per provider from
// the plan's concurrency ceilings. Ceiling 0 means unbounded.
func providerSemaphores(plan *core.Plan) map[string]*semaphore.Weighted {
	sems := make(map[string]*semaphore.Weighted, len(plan.Resources))
	for name, ceiling := range plan.Resources {
		if ceiling > 0 {
			sems[name] = semaphore.NewWeighted(int64(ceiling))
		}
	}
	return sems
}

func progress(completed, total, stage, stages int) core.Progress {
	p := core.Progress{
		CompletedTasks: completed,
		TotalTasks:     total,
		CurrentStage:   stage,
		TotalStages:    stages,
	}
	if total > 0 {
		p.Percentage = float64(completed) / float64(total) * 100
	}
	return p
}

// aggregate builds the final WorkflowResult. Every task appears with a
// terminal status; tasks never dispatched on a cancelled run are
// reported as pending.
func aggregate(runID string, tasks []*core.Task, results map[core.TaskID]*core.TaskResult, execCtx *core.ExecutionContext, elapsed time.Duration, cancelled bool) *core.WorkflowResult {
	out := &core.WorkflowResult{
		RunID:         runID,
		TaskResults:   make(map[core.TaskID]*core.TaskResult, len(tasks)),
		TotalDuration: elapsed,
	}

	for _, task := range tasks {
		res, ok := results[task.ID]
		if !ok {
			res = &core.TaskResult{TaskID: task.ID, Status: task.Status}
		}
		out.TaskResults[task.ID] = res

		switch res.Status {
		case core.TaskStatusSucceeded:
			out.SuccessCount++
		case core.TaskStatusFailed, core.TaskStatusBlocked:
			out.FailureCount++
		}
		out.TotalCost += res.CostUSD
		out.TotalTokens += res.Tokens
	}

	switch {
	case cancelled:
		out.Status = core.WorkflowStatusCancelled
	case out.FailureCount == 0:
		out.Status = core.WorkflowStatusCompleted
	case out.SuccessCount == 0:
		out.Status = core.WorkflowStatusFailed
	default:
		out.Status = core.WorkflowStatusPartial
	}
	return out
}

func findTask(tasks []*core.Task, id core.TaskID) *core.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
