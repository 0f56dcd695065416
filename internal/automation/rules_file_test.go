package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskweave/taskweave/internal/core"
)

const sampleRulesYAML = `
rules:
  - id: notify-on-failure
    label: Notify on task failure
    enabled: true
    trigger:
      kind: task.status_changed
      to_status: failed
    conditions:
      - type: variable
        field: env
        operator: "=="
        value: production
    actions:
      - kind: notify
        params:
          subject: Task failed
          message: A production task failed
  - id: webhook-on-completion
    label: Webhook on completion
    enabled: true
    trigger:
      kind: task.status_changed
      to_status: succeeded
    actions:
      - kind: call_webhook
        params:
          url: https://hooks.example.com/done
          secret: topsecret
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(sampleRulesYAML))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}

	first := rules[0]
	if first.ID != "notify-on-failure" || !first.Enabled {
		t.Errorf("first rule = %+v", first)
	}
	if first.Trigger.Kind != core.TriggerTaskStatusChanged || first.Trigger.ToStatus != "failed" {
		t.Errorf("trigger = %+v", first.Trigger)
	}
	if len(first.Conditions) != 1 || first.Conditions[0].Field != "env" {
		t.Errorf("conditions = %+v", first.Conditions)
	}
	if len(first.Actions) != 1 || first.Actions[0].Kind != core.ActionNotify {
		t.Errorf("actions = %+v", first.Actions)
	}

	second := rules[1]
	if second.Actions[0].Params["secret"] != "topsecret" {
		t.Errorf("second rule params = %v", second.Actions[0].Params)
	}
}

func TestParseRules_InvalidRuleRejected(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - label: incomplete\n"))
	if err == nil {
		t.Fatal("ParseRules() should reject a rule without trigger and actions")
	}
}

func TestParseRules_BadYAML(t *testing.T) {
	_, err := ParseRules([]byte("rules: ["))
	if err == nil {
		t.Fatal("ParseRules() should fail on malformed YAML")
	}
}

func TestLoadInto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleRulesYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := NewEngine(Runtime{})
	n, err := LoadInto(engine, path)
	if err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if n != 2 {
		t.Errorf("loaded = %d, want 2", n)
	}
	if len(engine.List()) != 2 {
		t.Errorf("registered = %d, want 2", len(engine.List()))
	}

	// Reload keeps stats and replaces in place.
	rule, _ := engine.Get("notify-on-failure")
	rule.Stats.ExecutionCount = 7
	if _, err := LoadInto(engine, path); err != nil {
		t.Fatalf("LoadInto() reload error = %v", err)
	}
	reloaded, _ := engine.Get("notify-on-failure")
	if reloaded.Stats.ExecutionCount != 7 {
		t.Errorf("ExecutionCount = %d, want preserved 7", reloaded.Stats.ExecutionCount)
	}
	if len(engine.List()) != 2 {
		t.Errorf("registered after reload = %d, want 2", len(engine.List()))
	}
}
