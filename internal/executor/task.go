package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/internal/automation"
	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/events"
	"github.com/taskweave/taskweave/internal/logging"
)

// TaskExecutor runs a single task: condition gate, prompt substitution,
// budget pre-check, provider invocation with retry, fallback chain, and
// post-hoc budget commit. It never persists anything; the workflow
// executor owns checkpointing.
type TaskExecutor struct {
	registry        core.ProviderRegistry
	bus             *events.Bus
	logger          *logging.Logger
	retry           *RetryPolicy
	fallbacks       map[string][]string
	defaultProvider string
	invokeTimeout   time.Duration
}

// TaskExecutorOption configures a TaskExecutor.
type TaskExecutorOption func(*TaskExecutor)

// WithBus sets the event bus for task status events.
func WithBus(bus *events.Bus) TaskExecutorOption {
	return func(e *TaskExecutor) {
		e.bus = bus
	}
}

// WithTaskLogger sets the executor logger.
func WithTaskLogger(logger *logging.Logger) TaskExecutorOption {
	return func(e *TaskExecutor) {
		e.logger = logger
	}
}

// WithRetryPolicy overrides the per-provider retry policy.
func WithRetryPolicy(policy *RetryPolicy) TaskExecutorOption {
	return func(e *TaskExecutor) {
		e.retry = policy
	}
}

// WithFallbacks sets the ordered fallback chain per provider.
func WithFallbacks(fallbacks map[string][]string) TaskExecutorOption {
	return func(e *TaskExecutor) {
		e.fallbacks = fallbacks
	}
}

// WithDefaultProvider sets the provider used by tasks that do not name
// one.
func WithDefaultProvider(name string) TaskExecutorOption {
	return func(e *TaskExecutor) {
		e.defaultProvider = name
	}
}

// WithInvokeTimeout bounds each individual provider invocation.
func WithInvokeTimeout(d time.Duration) TaskExecutorOption {
	return func(e *TaskExecutor) {
		e.invokeTimeout = d
	}
}

// NewTaskExecutor creates a task executor backed by the given registry.
func NewTaskExecutor(registry core.ProviderRegistry, opts ...TaskExecutorOption) *TaskExecutor {
	e := &TaskExecutor{
		registry:      registry,
		logger:        logging.NewNop(),
		retry:         DefaultRetryPolicy(),
		invokeTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one task to a terminal state and returns its result. The
// result always carries a terminal status; the caller inspects it
// rather than an error return. Side effects are limited to the budget
// tracker and the event bus.
func (e *TaskExecutor) Execute(ctx context.Context, task *core.Task, execCtx *core.ExecutionContext) *core.TaskResult {
	started := time.Now()
	log := e.logger.WithRun(execCtx.RunID).WithTask(string(task.ID))

	result := &core.TaskResult{TaskID: task.ID}

	// Condition gate. A false outcome skips the task; a malformed
	// condition is logged and treated as unmet, so it skips too.
	if len(task.Conditions) > 0 {
		cost, _ := execCtx.Budget.Totals()
		scope := automation.Scope{
			Variables: execCtx.Variables(),
			Task:      task,
			Cost:      cost,
			Now:       time.Now(),
		}
		ok, err := automation.EvaluateAll(task.Conditions, scope)
		if err != nil {
			log.Warn("task condition evaluation failed, treating as unmet", "error", err)
			ok = false
		}
		if !ok {
			reason := "conditions not met"
			if err != nil {
				reason = "condition evaluation failed"
				result.Warnings = append(result.Warnings, err.Error())
			}
			_ = task.MarkSkipped(reason)
			e.publishStatus(execCtx.RunID, task.ID, core.TaskStatusPending, core.TaskStatusSkipped)
			result.Status = core.TaskStatusSkipped
			result.Duration = time.Since(started)
			log.Info("task skipped", "reason", reason)
			return result
		}
	}

	prompt, warnings := substitutePrompt(task.Prompt, task, execCtx)
	result.Warnings = warnings
	for _, w := range warnings {
		log.Warn("prompt substitution", "warning", w)
	}

	// Fail fast before spending anything.
	if err := execCtx.Budget.CheckProjected(task.ID, task.EstimatedCost, task.EstimatedTokens); err != nil {
		log.Warn("projected budget exceeded", "error", err)
		return e.fail(execCtx.RunID, task, result, started, err)
	}

	if err := task.MarkRunning(); err != nil {
		return e.fail(execCtx.RunID, task, result, started, core.ErrState(core.CodeInvalidState, err.Error()))
	}
	e.publishStatus(execCtx.RunID, task.ID, core.TaskStatusPending, core.TaskStatusRunning)

	invoke, err := e.invokeWithFallback(ctx, task, prompt, result, log)
	if err != nil {
		// A cancelled invocation surfaces as-is; everything else is the
		// terminal failure after the retry and fallback chain ran dry.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = core.ErrTaskExecution(task.ID, err)
		}
		return e.fail(execCtx.RunID, task, result, started, err)
	}

	exceeded := execCtx.Budget.Commit(invoke.CostUSD, invoke.Tokens)
	if exceeded {
		result.BudgetExceededAfterCompletion = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("budget exceeded after task %s completed", task.ID))
		if e.bus != nil {
			cost, _ := execCtx.Budget.Totals()
			maxCost, _ := execCtx.Budget.Limits()
			e.bus.Publish(events.CostExceeded(execCtx.RunID, cost, maxCost))
		}
	}

	_ = task.MarkSucceeded(invoke.CostUSD, invoke.Tokens)
	e.publishStatus(execCtx.RunID, task.ID, core.TaskStatusRunning, core.TaskStatusSucceeded)

	result.Status = core.TaskStatusSucceeded
	result.Output = invoke.Output
	result.CostUSD = invoke.CostUSD
	result.Tokens = invoke.Tokens
	result.Duration = time.Since(started)

	log.Info("task succeeded",
		"provider", result.ProviderUsed,
		"attempts", result.Attempts,
		"cost", invoke.CostUSD,
		"tokens", invoke.Tokens,
	)
	return result
}

// invokeWithFallback walks the provider chain. The retry budget resets
// on each provider switch; only fallback-eligible failures advance the
// chain.
func (e *TaskExecutor) invokeWithFallback(ctx context.Context, task *core.Task, prompt string, result *core.TaskResult, log *logging.Logger) (*core.InvokeResult, error) {
	chain := e.providerChain(task)
	if len(chain) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "task has no provider and no default is configured")
	}

	var lastErr error
	for i, name := range chain {
		provider, err := e.registry.Get(name)
		if err != nil {
			lastErr = err
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("provider %s unavailable: %v", name, err))
			continue
		}

		var invoke *core.InvokeResult
		attempt := func(ctx context.Context) error {
			result.Attempts++
			r, err := provider.Invoke(ctx, core.InvokeRequest{
				Prompt:  prompt,
				Model:   task.Model,
				Timeout: e.invokeTimeout,
			})
			if err != nil {
				return err
			}
			invoke = r
			return nil
		}

		err = e.retry.Execute(ctx, attempt, func(n int, err error, delay time.Duration) {
			log.Warn("task attempt failed, retrying",
				"provider", name,
				"attempt", n,
				"delay", delay,
				"error", err,
			)
		})
		if err == nil {
			result.ProviderUsed = name
			return invoke, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		lastErr = err
		if !core.IsFallbackEligible(err) {
			return nil, err
		}
		if i < len(chain)-1 {
			log.Warn("provider exhausted, falling back",
				"provider", name,
				"next", chain[i+1],
				"error", err,
			)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("provider %s failed, falling back to %s", name, chain[i+1]))
		}
	}

	return nil, lastErr
}

// providerChain returns the preferred provider followed by its
// configured fallbacks, deduplicated.
func (e *TaskExecutor) providerChain(task *core.Task) []string {
	primary := task.Provider
	if primary == "" {
		primary = e.defaultProvider
	}
	if primary == "" {
		return nil
	}

	chain := []string{primary}
	seen := map[string]bool{primary: true}
	for _, name := range e.fallbacks[primary] {
		if !seen[name] {
			chain = append(chain, name)
			seen[name] = true
		}
	}
	return chain
}

func (e *TaskExecutor) fail(runID string, task *core.Task, result *core.TaskResult, started time.Time, err error) *core.TaskResult {
	from := task.Status
	_ = task.MarkFailed(err)
	if from == core.TaskStatusPending || from == core.TaskStatusRunning {
		e.publishStatus(runID, task.ID, from, core.TaskStatusFailed)
	}
	result.Status = core.TaskStatusFailed
	result.Error = err.Error()
	result.Duration = time.Since(started)
	return result
}

func (e *TaskExecutor) publishStatus(runID string, taskID core.TaskID, from, to core.TaskStatus) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.TaskStatusChanged(runID, taskID, from, to))
}
