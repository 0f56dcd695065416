package automation

import (
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

func leaf(condType core.ConditionType, field string, op core.ConditionOperator, value interface{}) core.Condition {
	return core.Condition{Type: condType, Field: field, Operator: op, Value: value}
}

func TestEvaluate_VariableEquality(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{"projectId": 1}}
	cond := leaf(core.ConditionVariable, "projectId", core.OpEqual, 1)

	ok, err := Evaluate(cond, scope)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("projectId == 1 should match when projectId is 1")
	}

	scope.Variables["projectId"] = 2
	ok, err = Evaluate(cond, scope)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Error("projectId == 1 must not match when projectId is 2")
	}
}

func TestEvaluate_NumericCoercion(t *testing.T) {
	// YAML and JSON payloads deliver numbers in different Go types.
	scope := Scope{Variables: map[string]interface{}{"count": float64(5)}}

	cases := []struct {
		op    core.ConditionOperator
		value interface{}
		want  bool
	}{
		{core.OpEqual, 5, true},
		{core.OpEqual, "5", true},
		{core.OpNotEqual, 6, true},
		{core.OpGreater, 4, true},
		{core.OpGreaterEqual, 5, true},
		{core.OpLess, 4, false},
		{core.OpLessEqual, 5, true},
	}
	for _, tc := range cases {
		ok, err := Evaluate(leaf(core.ConditionVariable, "count", tc.op, tc.value), scope)
		if err != nil {
			t.Fatalf("Evaluate(%s %v) error = %v", tc.op, tc.value, err)
		}
		if ok != tc.want {
			t.Errorf("count %s %v = %v, want %v", tc.op, tc.value, ok, tc.want)
		}
	}
}

func TestEvaluate_ContainsAndMatches(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{"branch": "feature/retry-backoff"}}

	ok, err := Evaluate(leaf(core.ConditionVariable, "branch", core.OpContains, "retry"), scope)
	if err != nil || !ok {
		t.Errorf("contains: ok=%v err=%v", ok, err)
	}

	ok, err = Evaluate(leaf(core.ConditionVariable, "branch", core.OpMatches, `^feature/`), scope)
	if err != nil || !ok {
		t.Errorf("matches: ok=%v err=%v", ok, err)
	}

	_, err = Evaluate(leaf(core.ConditionVariable, "branch", core.OpMatches, `([`), scope)
	if err == nil {
		t.Error("invalid regexp should fail evaluation")
	}
}

func TestEvaluate_NestedGroups(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{
		"env":   "production",
		"cost":  12.5,
		"owner": "core-team",
	}}

	// env == production AND (cost > 100 OR owner == core-team)
	cond := core.Condition{
		Logic: core.LogicAND,
		Children: []core.Condition{
			leaf(core.ConditionVariable, "env", core.OpEqual, "production"),
			{
				Logic: core.LogicOR,
				Children: []core.Condition{
					leaf(core.ConditionVariable, "cost", core.OpGreater, 100),
					leaf(core.ConditionVariable, "owner", core.OpEqual, "core-team"),
				},
			},
		},
	}

	ok, err := Evaluate(cond, scope)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("nested AND/OR group should match")
	}

	scope.Variables["owner"] = "other-team"
	ok, err = Evaluate(cond, scope)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Error("group must not match when both OR branches are false")
	}
}

func TestEvaluate_GroupDefaultsToAND(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{"a": 1, "b": 2}}
	cond := core.Condition{
		Children: []core.Condition{
			leaf(core.ConditionVariable, "a", core.OpEqual, 1),
			leaf(core.ConditionVariable, "b", core.OpEqual, 3),
		},
	}
	ok, err := Evaluate(cond, scope)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Error("unset logic must behave as AND")
	}
}

func TestEvaluateAll_EmptyListAlwaysMatches(t *testing.T) {
	ok, err := EvaluateAll(nil, Scope{})
	if err != nil || !ok {
		t.Errorf("empty condition list: ok=%v err=%v", ok, err)
	}
}

func TestEvaluateAll_ImplicitAND(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{"x": 1, "y": 2}}
	conds := []core.Condition{
		leaf(core.ConditionVariable, "x", core.OpEqual, 1),
		leaf(core.ConditionVariable, "y", core.OpEqual, 99),
	}
	ok, err := EvaluateAll(conds, scope)
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v", err)
	}
	if ok {
		t.Error("rule-level list must AND its members")
	}
}

func TestEvaluate_TaskStatus(t *testing.T) {
	task := core.NewTask("t1", "Task")
	task.Status = core.TaskStatusFailed
	scope := Scope{Task: task}

	ok, err := Evaluate(leaf(core.ConditionTaskStatus, "", core.OpEqual, "failed"), scope)
	if err != nil || !ok {
		t.Errorf("task_status: ok=%v err=%v", ok, err)
	}
}

func TestEvaluate_TaskStatusFromEventPayload(t *testing.T) {
	event := core.NewEvent(core.EventTaskStatusChanged, "run-1", map[string]interface{}{
		"to_status": "succeeded",
	})
	scope := Scope{Event: &event}

	ok, err := Evaluate(leaf(core.ConditionTaskStatus, "", core.OpEqual, "succeeded"), scope)
	if err != nil || !ok {
		t.Errorf("task_status from payload: ok=%v err=%v", ok, err)
	}
}

func TestEvaluate_CostThreshold(t *testing.T) {
	scope := Scope{Cost: 42.0}
	ok, err := Evaluate(leaf(core.ConditionCost, "", core.OpGreaterEqual, 40), scope)
	if err != nil || !ok {
		t.Errorf("cost: ok=%v err=%v", ok, err)
	}
}

func TestEvaluate_TimeFields(t *testing.T) {
	scope := Scope{Now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}

	ok, err := Evaluate(leaf(core.ConditionTime, "hour", core.OpGreaterEqual, 9), scope)
	if err != nil || !ok {
		t.Errorf("time hour: ok=%v err=%v", ok, err)
	}

	ok, err = Evaluate(leaf(core.ConditionTime, "weekday", core.OpEqual, "Saturday"), scope)
	if err != nil || !ok {
		t.Errorf("time weekday: ok=%v err=%v", ok, err)
	}
}

func TestEvaluate_MalformedConditionFails(t *testing.T) {
	cases := []core.Condition{
		leaf("bogus", "f", core.OpEqual, 1),
		leaf(core.ConditionVariable, "", core.OpEqual, 1),
		leaf(core.ConditionVariable, "x", "~=", 1),
		leaf(core.ConditionVariable, "x", core.OpGreater, "not-a-number"),
	}
	scope := Scope{Variables: map[string]interface{}{"x": "text"}}
	for i, cond := range cases {
		if _, err := Evaluate(cond, scope); err == nil {
			t.Errorf("case %d: malformed condition should fail", i)
		}
	}
}
