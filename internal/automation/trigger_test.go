package automation

import (
	"testing"

	"github.com/taskweave/taskweave/internal/core"
)

func TestMatchTrigger_KindMustMatch(t *testing.T) {
	trigger := core.Trigger{Kind: core.TriggerTaskCreated}
	event := core.NewEvent(core.EventTaskStatusChanged, "run-1", nil)
	if matchTrigger(trigger, event) {
		t.Error("different kinds must not match")
	}
}

func TestMatchTrigger_StatusChangedDiscriminators(t *testing.T) {
	event := core.NewEvent(core.EventTaskStatusChanged, "run-1", map[string]interface{}{
		"task_id": "t1", "from": "running", "to": "failed",
	})

	cases := []struct {
		name    string
		trigger core.Trigger
		want    bool
	}{
		{"any", core.Trigger{Kind: core.TriggerTaskStatusChanged}, true},
		{"to matches", core.Trigger{Kind: core.TriggerTaskStatusChanged, ToStatus: "failed"}, true},
		{"to differs", core.Trigger{Kind: core.TriggerTaskStatusChanged, ToStatus: "succeeded"}, false},
		{"from matches", core.Trigger{Kind: core.TriggerTaskStatusChanged, FromStatus: "running"}, true},
		{"from differs", core.Trigger{Kind: core.TriggerTaskStatusChanged, FromStatus: "pending"}, false},
		{"task matches", core.Trigger{Kind: core.TriggerTaskStatusChanged, TaskID: "t1"}, true},
		{"task differs", core.Trigger{Kind: core.TriggerTaskStatusChanged, TaskID: "t9"}, false},
		{"all match", core.Trigger{Kind: core.TriggerTaskStatusChanged, TaskID: "t1", FromStatus: "running", ToStatus: "failed"}, true},
	}
	for _, tc := range cases {
		if got := matchTrigger(tc.trigger, event); got != tc.want {
			t.Errorf("%s: match = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMatchTrigger_WebhookSource(t *testing.T) {
	event := core.NewEvent(core.EventWebhookReceived, "github", map[string]interface{}{"ref": "main"})

	if !matchTrigger(core.Trigger{Kind: core.TriggerWebhookReceived}, event) {
		t.Error("source-less webhook trigger should match any source")
	}
	if !matchTrigger(core.Trigger{Kind: core.TriggerWebhookReceived, Source: "github"}, event) {
		t.Error("matching source should match")
	}
	if matchTrigger(core.Trigger{Kind: core.TriggerWebhookReceived, Source: "gitlab"}, event) {
		t.Error("different source must not match")
	}
}

func TestMatchTrigger_CostThreshold(t *testing.T) {
	event := core.NewEvent(core.EventCostExceeded, "run-1", map[string]interface{}{
		"total_cost": 15.0, "limit": 10.0,
	})

	if !matchTrigger(core.Trigger{Kind: core.TriggerCostExceeded, Threshold: 12}, event) {
		t.Error("cost above threshold should match")
	}
	if matchTrigger(core.Trigger{Kind: core.TriggerCostExceeded, Threshold: 20}, event) {
		t.Error("cost below threshold must not match")
	}
}

func TestMatchTrigger_UnknownKind(t *testing.T) {
	event := core.Event{Type: "bogus.kind"}
	if matchTrigger(core.Trigger{Kind: "bogus.kind"}, event) {
		t.Error("unknown kinds must not match")
	}
}
