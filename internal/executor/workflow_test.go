package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/checkpoint"
	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/planner"
)

func newWorkflowExecutor(registry core.ProviderRegistry, opts ...WorkflowOption) *WorkflowExecutor {
	tasks := NewTaskExecutor(registry, fastRetry())
	return NewWorkflowExecutor(planner.New(), tasks, opts...)
}

func chainTasks() []*core.Task {
	return []*core.Task{
		core.NewTask("a", "First").WithPrompt("step one").WithProvider("fake"),
		core.NewTask("b", "Second").WithPrompt("after ${previous_result}").WithProvider("fake").WithDependsOn("a"),
		core.NewTask("c", "Third").WithPrompt("after ${previous_result}").WithProvider("fake").WithDependsOn("b"),
	}
}

func TestWorkflowExecute_AllSucceed(t *testing.T) {
	registry := fakeRegistry{"fake": okProvider("fake", "output", 0.1, 10)}
	exec := newWorkflowExecutor(registry)

	result, err := exec.Execute(context.Background(), chainTasks(), ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != core.WorkflowStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	if result.SuccessCount != 3 || result.FailureCount != 0 {
		t.Errorf("counts = %d/%d, want 3/0", result.SuccessCount, result.FailureCount)
	}
	if len(result.TaskResults) != 3 {
		t.Errorf("TaskResults = %d entries, want 3", len(result.TaskResults))
	}
	if result.TotalCost < 0.29 || result.TotalCost > 0.31 {
		t.Errorf("TotalCost = %v, want 0.3", result.TotalCost)
	}
}

func TestWorkflowExecute_ContextPassing(t *testing.T) {
	var mu sync.Mutex
	prompts := make(map[string]string)
	registry := fakeRegistry{"fake": &fakeProvider{
		name: "fake",
		invoke: func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
			mu.Lock()
			prompts[req.Prompt] = req.Prompt
			mu.Unlock()
			return &core.InvokeResult{Output: "out:" + req.Prompt[:4]}, nil
		},
	}}
	exec := newWorkflowExecutor(registry)

	result, err := exec.Execute(context.Background(), chainTasks(), ExecuteOptions{ContextPassing: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != core.WorkflowStatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}

	// Task b sees a's output in place of the reserved variable.
	if _, ok := prompts["after out:step"]; !ok {
		t.Errorf("prompts = %v, want previous_result substituted for b", prompts)
	}
}

func TestWorkflowExecute_AbortBlocksDownstream(t *testing.T) {
	registry := fakeRegistry{"fake": &fakeProvider{
		name: "fake",
		invoke: func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
			if strings.Contains(req.Prompt, "step one") {
				return nil, core.ErrValidation("BAD", "rejected")
			}
			return &core.InvokeResult{Output: "ok"}, nil
		},
	}}
	exec := newWorkflowExecutor(registry)

	result, err := exec.Execute(context.Background(), chainTasks(), ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != core.WorkflowStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.TaskResults["a"].Status != core.TaskStatusFailed {
		t.Errorf("a = %s, want failed", result.TaskResults["a"].Status)
	}
	for _, id := range []core.TaskID{"b", "c"} {
		if result.TaskResults[id].Status != core.TaskStatusBlocked {
			t.Errorf("%s = %s, want blocked", id, result.TaskResults[id].Status)
		}
	}
}

func TestWorkflowExecute_ContinuePolicyRunsIndependentTasks(t *testing.T) {
	// a fails; b depends on a (blocked); c is independent and must run.
	tasks := []*core.Task{
		core.NewTask("a", "Fails").WithPrompt("fail me").WithProvider("fake"),
		core.NewTask("b", "Dependent").WithPrompt("p").WithProvider("fake").WithDependsOn("a"),
		core.NewTask("c", "Independent").WithPrompt("p").WithProvider("fake"),
	}
	registry := fakeRegistry{"fake": &fakeProvider{
		name: "fake",
		invoke: func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
			if req.Prompt == "fail me" {
				return nil, core.ErrValidation("BAD", "rejected")
			}
			return &core.InvokeResult{Output: "ok"}, nil
		},
	}}
	exec := newWorkflowExecutor(registry)

	result, err := exec.Execute(context.Background(), tasks, ExecuteOptions{OnFailure: FailContinue})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != core.WorkflowStatusPartial {
		t.Fatalf("status = %s, want partial", result.Status)
	}
	if result.TaskResults["c"].Status != core.TaskStatusSucceeded {
		t.Errorf("c = %s, want succeeded", result.TaskResults["c"].Status)
	}
	if result.TaskResults["b"].Status != core.TaskStatusBlocked {
		t.Errorf("b = %s, want blocked", result.TaskResults["b"].Status)
	}
}

func TestWorkflowExecute_ProgressCallback(t *testing.T) {
	registry := fakeRegistry{"fake": okProvider("fake", "out", 0, 0)}
	exec := newWorkflowExecutor(registry)

	var mu sync.Mutex
	var calls []core.Progress
	_, err := exec.Execute(context.Background(), chainTasks(), ExecuteOptions{
		OnProgress: func(p core.Progress) {
			mu.Lock()
			calls = append(calls, p)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("progress calls = %d, want 3", len(calls))
	}
	last := calls[len(calls)-1]
	if last.CompletedTasks != 3 || last.Percentage != 100 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestWorkflowExecute_CheckpointsPerStage(t *testing.T) {
	registry := fakeRegistry{"fake": okProvider("fake", "out", 0.1, 10)}
	store := checkpoint.NewMemoryStore()
	exec := newWorkflowExecutor(registry, WithCheckpointStore(store))

	result, err := exec.Execute(context.Background(), chainTasks(), ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	cps, err := store.List(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cps) != 3 {
		t.Fatalf("checkpoints = %d, want one per stage", len(cps))
	}
	last := cps[len(cps)-1]
	if len(last.Completed) != 3 {
		t.Errorf("final checkpoint completed = %d, want 3", len(last.Completed))
	}
	if last.Budget.Cost < 0.29 {
		t.Errorf("final checkpoint cost = %v, want accumulated spend", last.Budget.Cost)
	}
}

func TestWorkflowExecute_ResumeNeverReExecutes(t *testing.T) {
	var invocations int64
	registry := fakeRegistry{"fake": &fakeProvider{
		name: "fake",
		invoke: func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
			atomic.AddInt64(&invocations, 1)
			return &core.InvokeResult{Output: "out", CostUSD: 0.1}, nil
		},
	}}
	store := checkpoint.NewMemoryStore()
	exec := newWorkflowExecutor(registry, WithCheckpointStore(store))

	tasks := chainTasks()
	result, err := exec.Execute(context.Background(), tasks, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Resume from the checkpoint written after stage 1 (tasks a and b done).
	cps, _ := store.List(context.Background(), result.RunID)
	cp := cps[1]

	atomic.StoreInt64(&invocations, 0)
	fresh := chainTasks()
	resumed, err := exec.ExecuteFromCheckpoint(context.Background(), fresh, cp, ExecuteOptions{})
	if err != nil {
		t.Fatalf("ExecuteFromCheckpoint() error = %v", err)
	}
	if resumed.Status != core.WorkflowStatusCompleted {
		t.Fatalf("status = %s, want completed", resumed.Status)
	}
	if n := atomic.LoadInt64(&invocations); n != 1 {
		t.Errorf("invocations after resume = %d, want 1 (only task c)", n)
	}
	if resumed.RunID != result.RunID {
		t.Errorf("resumed run ID = %s, want %s", resumed.RunID, result.RunID)
	}
	if resumed.SuccessCount != 3 {
		t.Errorf("SuccessCount = %d, want 3 including checkpointed tasks", resumed.SuccessCount)
	}
}

func TestWorkflowExecute_Cancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	registry := fakeRegistry{"fake": &fakeProvider{
		name: "fake",
		invoke: func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
			once.Do(func() { close(started) })
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
				return &core.InvokeResult{Output: "out"}, nil
			}
		},
	}}
	exec := newWorkflowExecutor(registry)

	type outcome struct {
		result *core.WorkflowResult
		err    error
	}
	done := make(chan outcome, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		r, err := exec.Execute(ctx, chainTasks(), ExecuteOptions{})
		done <- outcome{r, err}
	}()

	<-started
	cancel()
	close(release)

	select {
	case out := <-done:
		if out.result == nil {
			t.Fatalf("Execute() returned nil result, err = %v", out.err)
		}
		if out.result.Status != core.WorkflowStatusCancelled {
			t.Errorf("status = %s, want cancelled", out.result.Status)
		}
		if out.err != nil && !errors.Is(out.err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", out.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute() did not return after cancellation")
	}
}

func TestWorkflowExecute_PauseAtStageBoundary(t *testing.T) {
	registry := fakeRegistry{"fake": okProvider("fake", "out", 0, 0)}
	exec := newWorkflowExecutor(registry)

	const runID = "run-pause"
	pauseRequested := make(chan struct{})

	done := make(chan *core.WorkflowResult, 1)
	go func() {
		r, _ := exec.Execute(context.Background(), chainTasks(), ExecuteOptions{
			RunID: runID,
			OnProgress: func(p core.Progress) {
				// Request the pause while the first stage is still
				// in flight; it takes effect at the next boundary.
				if p.CompletedTasks == 1 {
					if err := exec.Pause(runID); err != nil {
						t.Errorf("Pause() error = %v", err)
					}
					close(pauseRequested)
				}
			},
		})
		done <- r
	}()

	<-pauseRequested
	select {
	case <-done:
		t.Fatal("Execute() finished while the run was paused")
	case <-time.After(100 * time.Millisecond):
	}

	if err := exec.Resume(runID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	select {
	case result := <-done:
		if result.Status != core.WorkflowStatusCompleted {
			t.Errorf("status = %s, want completed", result.Status)
		}
		if result.SuccessCount != 3 {
			t.Errorf("SuccessCount = %d, want 3", result.SuccessCount)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute() did not finish after Resume")
	}
}

func TestRunControl_PauseResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newRunControl(cancel)

	ctl.Pause()
	if !ctl.Paused() {
		t.Fatal("control should report paused")
	}

	released := make(chan error, 1)
	go func() {
		released <- ctl.waitIfPaused(ctx)
	}()

	select {
	case <-released:
		t.Fatal("waitIfPaused returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	ctl.Resume()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("waitIfPaused() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waitIfPaused did not release after Resume")
	}
}

func TestRunControl_CancelReleasesPausedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctl := newRunControl(cancel)

	ctl.Pause()
	released := make(chan error, 1)
	go func() {
		released <- ctl.waitIfPaused(ctx)
	}()

	ctl.Cancel()
	select {
	case err := <-released:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("waitIfPaused() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waitIfPaused did not release after Cancel")
	}
}

func TestWorkflowExecutor_ControlUnknownRun(t *testing.T) {
	exec := newWorkflowExecutor(fakeRegistry{})
	if err := exec.Pause("missing"); err == nil {
		t.Error("Pause() should fail for an unknown run")
	}
	if err := exec.Cancel("missing"); err == nil {
		t.Error("Cancel() should fail for an unknown run")
	}
}
