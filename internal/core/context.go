package core

import (
	"sync"
	"time"
)

// Reserved variable names resolvable during prompt substitution.
const (
	VarPreviousResult = "previous_result"
	VarTaskID         = "task_id"
	VarTaskTitle      = "task_title"
)

// BudgetTracker holds the running cost/token totals enforced against
// configured ceilings. Increments are mutex-guarded so two concurrent
// tasks cannot both pass a stale under-budget check unnoticed: the
// commit reports whether it pushed the total over the ceiling.
type BudgetTracker struct {
	mu       sync.Mutex
	maxCost  float64
	maxToken int64
	cost     float64
	tokens   int64
}

// NewBudgetTracker creates a tracker with the given ceilings. Zero
// ceilings mean unlimited.
func NewBudgetTracker(maxCost float64, maxTokens int64) *BudgetTracker {
	return &BudgetTracker{maxCost: maxCost, maxToken: maxTokens}
}

// CheckProjected fails fast when adding the projected spend would cross
// a ceiling. Read-only; nothing is reserved.
func (b *BudgetTracker) CheckProjected(taskID TaskID, cost float64, tokens int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxCost > 0 && b.cost+cost > b.maxCost {
		return ErrBudgetExceeded(taskID, b.cost+cost, b.maxCost)
	}
	if b.maxToken > 0 && b.tokens+tokens > b.maxToken {
		return ErrTokenBudgetExceeded(taskID, b.tokens+tokens, b.maxToken)
	}
	return nil
}

// Commit adds actual spend and reports whether the committed total now
// exceeds a ceiling. The spend is recorded either way: the provider
// side effect already happened.
func (b *BudgetTracker) Commit(cost float64, tokens int64) (exceeded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cost += cost
	b.tokens += tokens
	if b.maxCost > 0 && b.cost > b.maxCost {
		exceeded = true
	}
	if b.maxToken > 0 && b.tokens > b.maxToken {
		exceeded = true
	}
	return exceeded
}

// Totals returns the current committed cost and tokens.
func (b *BudgetTracker) Totals() (cost float64, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cost, b.tokens
}

// Limits returns the configured ceilings.
func (b *BudgetTracker) Limits() (maxCost float64, maxTokens int64) {
	return b.maxCost, b.maxToken
}

// Snapshot captures the tracker for checkpointing.
func (b *BudgetTracker) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetSnapshot{
		MaxCost:   b.maxCost,
		MaxTokens: b.maxToken,
		Cost:      b.cost,
		Tokens:    b.tokens,
	}
}

// RestoreBudget rebuilds a tracker from a snapshot.
func RestoreBudget(s BudgetSnapshot) *BudgetTracker {
	return &BudgetTracker{
		maxCost:  s.MaxCost,
		maxToken: s.MaxTokens,
		cost:     s.Cost,
		tokens:   s.Tokens,
	}
}

// BudgetSnapshot is the serializable form of a BudgetTracker.
type BudgetSnapshot struct {
	MaxCost   float64 `json:"max_cost"`
	MaxTokens int64   `json:"max_tokens"`
	Cost      float64 `json:"cost"`
	Tokens    int64   `json:"tokens"`
}

// ExecutionContext is the ephemeral per-run state: named variables, the
// budget tracker, and the ordered list of completed results. Owned
// exclusively by one workflow executor for the duration of one run.
// Variable sets are last-writer-wins; the budget tracker is the only
// field needing true mutual exclusion across a concurrent stage.
type ExecutionContext struct {
	RunID  string
	Budget *BudgetTracker

	mu        sync.RWMutex
	variables map[string]interface{}
	completed []TaskResult
}

// NewExecutionContext creates a fresh context for one workflow run.
func NewExecutionContext(runID string, budget *BudgetTracker) *ExecutionContext {
	if budget == nil {
		budget = NewBudgetTracker(0, 0)
	}
	return &ExecutionContext{
		RunID:     runID,
		Budget:    budget,
		variables: make(map[string]interface{}),
	}
}

// SetVariable sets a named variable. Last writer wins.
func (c *ExecutionContext) SetVariable(name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = value
}

// Variable returns a named variable.
func (c *ExecutionContext) Variable(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[name]
	return v, ok
}

// Variables returns a copy of all variables.
func (c *ExecutionContext) Variables() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// RecordResult appends a completed task result in completion order.
func (c *ExecutionContext) RecordResult(result TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, result)
}

// CompletedResults returns a copy of the recorded results.
func (c *ExecutionContext) CompletedResults() []TaskResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TaskResult, len(c.completed))
	copy(out, c.completed)
	return out
}

// HasCompleted reports whether a task already contributed a result.
func (c *ExecutionContext) HasCompleted(id TaskID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.completed {
		if r.TaskID == id {
			return true
		}
	}
	return false
}

// Checkpoint captures the context after a stage completes, sufficient to
// resume without re-executing completed tasks.
func (c *ExecutionContext) Checkpoint(stageIndex int) Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	completed := make([]TaskResult, len(c.completed))
	copy(completed, c.completed)
	vars := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		vars[k] = v
	}
	return Checkpoint{
		RunID:      c.RunID,
		StageIndex: stageIndex,
		Completed:  completed,
		Variables:  vars,
		Budget:     c.Budget.Snapshot(),
		CreatedAt:  time.Now(),
	}
}

// RestoreContext rebuilds an execution context from a checkpoint.
func RestoreContext(cp Checkpoint) *ExecutionContext {
	ctx := &ExecutionContext{
		RunID:     cp.RunID,
		Budget:    RestoreBudget(cp.Budget),
		variables: make(map[string]interface{}, len(cp.Variables)),
	}
	for k, v := range cp.Variables {
		ctx.variables[k] = v
	}
	ctx.completed = make([]TaskResult, len(cp.Completed))
	copy(ctx.completed, cp.Completed)
	return ctx
}

// Checkpoint is a serializable snapshot of an ExecutionContext plus the
// index of the last fully resolved stage.
type Checkpoint struct {
	RunID      string                 `json:"run_id"`
	StageIndex int                    `json:"stage_index"`
	Completed  []TaskResult           `json:"completed"`
	Variables  map[string]interface{} `json:"variables,omitempty"`
	Budget     BudgetSnapshot         `json:"budget"`
	CreatedAt  time.Time              `json:"created_at"`
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	TaskID       TaskID        `json:"task_id"`
	Status       TaskStatus    `json:"status"`
	Output       string        `json:"output,omitempty"`
	CostUSD      float64       `json:"cost_usd"`
	Tokens       int64         `json:"tokens"`
	Duration     time.Duration `json:"duration"`
	Attempts     int           `json:"attempts"`
	ProviderUsed string        `json:"provider_used,omitempty"`
	Error        string        `json:"error,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`

	// BudgetExceededAfterCompletion flags a successful task whose
	// post-hoc budget commit crossed the ceiling (concurrent tasks may
	// have consumed budget meanwhile).
	BudgetExceededAfterCompletion bool `json:"budget_exceeded_after_completion,omitempty"`
}

// WorkflowStatus represents the final state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusPartial   WorkflowStatus = "partial"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// WorkflowResult aggregates a run. TaskResults always enumerates every
// task with its final status.
type WorkflowResult struct {
	RunID         string                 `json:"run_id"`
	Status        WorkflowStatus         `json:"status"`
	SuccessCount  int                    `json:"success_count"`
	FailureCount  int                    `json:"failure_count"`
	TotalCost     float64                `json:"total_cost"`
	TotalTokens   int64                  `json:"total_tokens"`
	TotalDuration time.Duration          `json:"total_duration"`
	TaskResults   map[TaskID]*TaskResult `json:"task_results"`
}

// Progress is delivered to the caller's progress callback on each task
// completion.
type Progress struct {
	CompletedTasks int     `json:"completed_tasks"`
	TotalTasks     int     `json:"total_tasks"`
	CurrentStage   int     `json:"current_stage"`
	TotalStages    int     `json:"total_stages"`
	Percentage     float64 `json:"percentage"`
}
