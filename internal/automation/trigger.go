package automation

import (
	"github.com/taskweave/taskweave/internal/core"
)

// matchTrigger reports whether an event satisfies a rule's trigger. The
// kind must equal the event type; the kind-specific discriminators
// narrow further, with empty meaning "any".
func matchTrigger(trigger core.Trigger, event core.Event) bool {
	if string(trigger.Kind) != event.Type {
		return false
	}

	switch trigger.Kind {
	case core.TriggerTaskStatusChanged:
		if trigger.TaskID != "" && string(trigger.TaskID) != event.PayloadString("task_id") {
			return false
		}
		if trigger.FromStatus != "" && trigger.FromStatus != event.PayloadString("from") {
			return false
		}
		if trigger.ToStatus != "" && trigger.ToStatus != event.PayloadString("to") {
			return false
		}
		return true

	case core.TriggerTaskAssigned, core.TriggerTaskCreated, core.TriggerCommentCreated:
		if trigger.TaskID != "" && string(trigger.TaskID) != event.PayloadString("task_id") {
			return false
		}
		return true

	case core.TriggerWebhookReceived:
		if trigger.Source != "" && trigger.Source != event.Source {
			return false
		}
		return true

	case core.TriggerCostExceeded:
		if trigger.Threshold > 0 && event.PayloadFloat("total_cost") < trigger.Threshold {
			return false
		}
		return true

	case core.TriggerTimeElapsed, core.TriggerTimeScheduled, core.TriggerManual:
		// Discriminators for these kinds (schedules, intervals) are
		// evaluated by the producer that emits the event.
		return true

	default:
		return false
	}
}
