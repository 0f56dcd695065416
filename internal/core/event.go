package core

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants. Trigger kinds match against these.
const (
	EventTaskStatusChanged = "task.status_changed"
	EventTaskAssigned      = "task.assigned"
	EventTaskCreated       = "task.created"
	EventCommentCreated    = "comment.created"
	EventTimeElapsed       = "time.elapsed"
	EventTimeScheduled     = "time.scheduled"
	EventWebhookReceived   = "webhook.received"
	EventCostExceeded      = "cost.exceeded"
	EventManual            = "manual"

	EventWorkflowStarted   = "workflow.started"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventWorkflowCancelled = "workflow.cancelled"
	EventStageCompleted    = "workflow.stage_completed"
)

// Event is an immutable runtime occurrence consumed by zero or more
// automation rules. Payload is free-form per type.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source,omitempty"`
}

// NewEvent creates an event with a fresh identifier and timestamp.
func NewEvent(eventType, source string, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// PayloadString extracts a string payload field, or "".
func (e Event) PayloadString(key string) string {
	if v, ok := e.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// PayloadFloat extracts a numeric payload field, or 0.
func (e Event) PayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
