package core

import (
	"fmt"
	"time"
)

// TaskID uniquely identifies a task within a workflow run.
type TaskID string

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusBlocked   TaskStatus = "blocked"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// Task represents a unit of work in a workflow run. Tasks are created by
// the caller before planning; after that only the executors mutate
// status, cost and timestamps, and never two executors for the same ID.
type Task struct {
	ID                TaskID        `json:"id"`
	Title             string        `json:"title"`
	Prompt            string        `json:"prompt"`
	DependsOn         []TaskID      `json:"depends_on,omitempty"`
	Status            TaskStatus    `json:"status"`
	Priority          int           `json:"priority"`
	Provider          string        `json:"provider,omitempty"` // Preferred execution capability
	Model             string        `json:"model,omitempty"`
	Conditions        []Condition   `json:"conditions,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	EstimatedCost     float64       `json:"estimated_cost"`
	EstimatedTokens   int64         `json:"estimated_tokens"`
	CostUSD           float64       `json:"cost_usd"`
	Tokens            int64         `json:"tokens"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	Error             string        `json:"error,omitempty"`
}

// NewTask creates a new task with required fields.
func NewTask(id TaskID, title string) *Task {
	return &Task{
		ID:     id,
		Title:  title,
		Status: TaskStatusPending,
	}
}

// WithPrompt sets the instruction text.
func (t *Task) WithPrompt(prompt string) *Task {
	t.Prompt = prompt
	return t
}

// WithDependsOn sets the task dependencies.
func (t *Task) WithDependsOn(deps ...TaskID) *Task {
	t.DependsOn = deps
	return t
}

// WithProvider sets the preferred execution capability.
func (t *Task) WithProvider(provider string) *Task {
	t.Provider = provider
	return t
}

// WithPriority sets the scheduling priority. Higher runs first when a
// stage is split under a parallelism constraint.
func (t *Task) WithPriority(priority int) *Task {
	t.Priority = priority
	return t
}

// WithEstimates sets the planning estimates.
func (t *Task) WithEstimates(duration time.Duration, cost float64, tokens int64) *Task {
	t.EstimatedDuration = duration
	t.EstimatedCost = cost
	t.EstimatedTokens = tokens
	return t
}

// WithConditions sets the condition specifications gating execution.
func (t *Task) WithConditions(conds ...Condition) *Task {
	t.Conditions = conds
	return t
}

// MarkRunning transitions the task to running state.
func (t *Task) MarkRunning() error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("cannot start task in %s state", t.Status)
	}
	t.Status = TaskStatusRunning
	now := time.Now()
	t.StartedAt = &now
	return nil
}

// MarkSucceeded transitions the task to succeeded state.
func (t *Task) MarkSucceeded(cost float64, tokens int64) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot complete task in %s state", t.Status)
	}
	t.Status = TaskStatusSucceeded
	t.CostUSD = cost
	t.Tokens = tokens
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions the task to failed state.
func (t *Task) MarkFailed(err error) error {
	if t.Status != TaskStatusRunning && t.Status != TaskStatusPending {
		return fmt.Errorf("cannot fail task in %s state", t.Status)
	}
	t.Status = TaskStatusFailed
	t.Error = err.Error()
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkBlocked marks the task as blocked by a failed dependency.
func (t *Task) MarkBlocked(dep TaskID) error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("cannot block task in %s state", t.Status)
	}
	t.Status = TaskStatusBlocked
	t.Error = fmt.Sprintf("dependency %s did not succeed", dep)
	return nil
}

// MarkSkipped transitions the task to skipped state.
func (t *Task) MarkSkipped(reason string) error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("cannot skip task in %s state", t.Status)
	}
	t.Status = TaskStatusSkipped
	t.Error = reason
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// Validate checks task invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrValidation("TASK_ID_REQUIRED", "task ID cannot be empty")
	}
	if t.Title == "" {
		return ErrValidation("TASK_TITLE_REQUIRED", "task title cannot be empty")
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return ErrValidation("TASK_SELF_DEPENDENCY", fmt.Sprintf("task %s depends on itself", t.ID))
		}
	}
	return nil
}

// Duration returns the task execution duration.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusBlocked, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the task completed successfully.
func (t *Task) IsSuccess() bool {
	return t.Status == TaskStatusSucceeded
}
