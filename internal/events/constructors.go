package events

import (
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

// TaskStatusChanged builds the event emitted on every task status
// transition. from/to use the task status vocabulary.
func TaskStatusChanged(runID string, taskID core.TaskID, from, to core.TaskStatus) core.Event {
	return core.NewEvent(core.EventTaskStatusChanged, runID, map[string]interface{}{
		"task_id": string(taskID),
		"from":    string(from),
		"to":      string(to),
	})
}

// TaskCreated builds the event emitted when an automation action
// creates a task.
func TaskCreated(runID string, taskID core.TaskID, title string) core.Event {
	return core.NewEvent(core.EventTaskCreated, runID, map[string]interface{}{
		"task_id": string(taskID),
		"title":   title,
	})
}

// CostExceeded builds the event emitted when committed spend crosses a
// configured alert threshold.
func CostExceeded(runID string, total, limit float64) core.Event {
	return core.NewEvent(core.EventCostExceeded, runID, map[string]interface{}{
		"total_cost": total,
		"limit":      limit,
	})
}

// WorkflowStarted builds the run start event.
func WorkflowStarted(runID string, totalTasks int) core.Event {
	return core.NewEvent(core.EventWorkflowStarted, runID, map[string]interface{}{
		"total_tasks": totalTasks,
	})
}

// WorkflowFinished builds the terminal run event for the given status.
func WorkflowFinished(runID string, status core.WorkflowStatus, totalCost float64, duration time.Duration) core.Event {
	eventType := core.EventWorkflowCompleted
	switch status {
	case core.WorkflowStatusFailed, core.WorkflowStatusPartial:
		eventType = core.EventWorkflowFailed
	case core.WorkflowStatusCancelled:
		eventType = core.EventWorkflowCancelled
	}
	return core.NewEvent(eventType, runID, map[string]interface{}{
		"status":      string(status),
		"total_cost":  totalCost,
		"duration_ms": duration.Milliseconds(),
	})
}

// StageCompleted builds the per-stage boundary event.
func StageCompleted(runID string, stageIndex, totalStages int) core.Event {
	return core.NewEvent(core.EventStageCompleted, runID, map[string]interface{}{
		"stage":        stageIndex,
		"total_stages": totalStages,
	})
}

// WebhookReceived builds the ingress event for an inbound webhook.
func WebhookReceived(source string, payload map[string]interface{}) core.Event {
	return core.NewEvent(core.EventWebhookReceived, source, payload)
}
