package core

import (
	"context"
	"time"
)

// Provider is the pluggable execution capability. The core never
// performs inference itself; it delegates here. Implementations fail
// with a DomainError carrying a retryability classification.
type Provider interface {
	// Name returns the capability identifier (e.g. "openai", "google").
	Name() string

	// Invoke runs one prompt through the capability.
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

// InvokeRequest configures one capability invocation.
type InvokeRequest struct {
	Prompt  string
	Model   string
	Timeout time.Duration
}

// InvokeResult is the capability's answer plus its actual spend.
type InvokeResult struct {
	Output   string
	CostUSD  float64
	Tokens   int64
	Duration time.Duration
}

// ProviderRegistry resolves named capabilities and their concurrency
// ceilings. Ceiling 0 means unbounded.
type ProviderRegistry interface {
	Get(name string) (Provider, error)
	List() []string
	Ceiling(name string) int
}

// TaskStore persists task status/result transitions. The core never
// assumes a particular storage engine.
type TaskStore interface {
	Get(ctx context.Context, id TaskID) (*Task, error)
	Update(ctx context.Context, id TaskID, patch TaskPatch) error
	List(ctx context.Context) ([]*Task, error)
}

// TaskPatch carries the mutable fields a store update may touch. Nil
// pointers leave the field unchanged.
type TaskPatch struct {
	Status  *TaskStatus
	Output  *string
	Error   *string
	CostUSD *float64
	Tokens  *int64
}

// CheckpointStore persists run checkpoints so a resumed run never
// re-executes completed work. Implementations may be memory or durable.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	List(ctx context.Context, runID string) ([]Checkpoint, error)
}

// WebhookCaller posts a JSON body to an external URL with a
// caller-supplied timeout.
type WebhookCaller interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*WebhookResponse, error)
}

// WebhookResponse is the outcome of a webhook call.
type WebhookResponse struct {
	StatusCode int
	Body       []byte
}

// Notifier delivers human-facing notifications raised by automation
// actions.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// EventSink receives events; the automation engine implements it, and
// upstream producers (webhook ingress, schedulers) depend only on the
// interface.
type EventSink interface {
	HandleEvent(ctx context.Context, event Event)
}
