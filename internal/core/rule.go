package core

import "time"

// TriggerKind enumerates the closed set of event kinds a rule can fire
// on. Adding a kind is a compile-time extension: every dispatch switch
// over TriggerKind handles all values exhaustively.
type TriggerKind string

const (
	TriggerTaskStatusChanged TriggerKind = "task.status_changed"
	TriggerTaskAssigned      TriggerKind = "task.assigned"
	TriggerTaskCreated       TriggerKind = "task.created"
	TriggerCommentCreated    TriggerKind = "comment.created"
	TriggerTimeElapsed       TriggerKind = "time.elapsed"
	TriggerTimeScheduled     TriggerKind = "time.scheduled"
	TriggerWebhookReceived   TriggerKind = "webhook.received"
	TriggerCostExceeded      TriggerKind = "cost.exceeded"
	TriggerManual            TriggerKind = "manual"
)

// Trigger is a tagged variant over event kinds. Discriminating fields
// apply only to the kinds that use them; empty means "any".
type Trigger struct {
	Kind       TriggerKind `json:"kind" yaml:"kind"`
	TaskID     TaskID      `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	FromStatus string      `json:"from_status,omitempty" yaml:"from_status,omitempty"`
	ToStatus   string      `json:"to_status,omitempty" yaml:"to_status,omitempty"`
	Source     string      `json:"source,omitempty" yaml:"source,omitempty"`   // webhook.received
	Schedule   string      `json:"schedule,omitempty" yaml:"schedule,omitempty"` // time.scheduled, evaluated upstream
	Threshold  float64     `json:"threshold,omitempty" yaml:"threshold,omitempty"` // cost.exceeded
}

// ConditionType selects the value a leaf condition extracts.
type ConditionType string

const (
	ConditionTaskStatus ConditionType = "task_status"
	ConditionVariable   ConditionType = "variable"
	ConditionCost       ConditionType = "cost"
	ConditionTime       ConditionType = "time"
	ConditionCustom     ConditionType = "custom"
)

// ConditionLogic joins a group's children.
type ConditionLogic string

const (
	LogicAND ConditionLogic = "AND"
	LogicOR  ConditionLogic = "OR"
)

// ConditionOperator compares the extracted value to the expected one.
type ConditionOperator string

const (
	OpEqual        ConditionOperator = "=="
	OpNotEqual     ConditionOperator = "!="
	OpGreater      ConditionOperator = ">"
	OpLess         ConditionOperator = "<"
	OpGreaterEqual ConditionOperator = ">="
	OpLessEqual    ConditionOperator = "<="
	OpContains     ConditionOperator = "contains"
	OpMatches      ConditionOperator = "matches"
)

// Condition is either a leaf comparison (Type/Field/Operator/Value) or a
// nested group (Logic/Children). Groups nest arbitrarily; a rule's
// top-level condition list is implicitly AND-ed.
type Condition struct {
	Type     ConditionType     `json:"type,omitempty" yaml:"type,omitempty"`
	Field    string            `json:"field,omitempty" yaml:"field,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    interface{}       `json:"value,omitempty" yaml:"value,omitempty"`
	Logic    ConditionLogic    `json:"logic,omitempty" yaml:"logic,omitempty"`
	Children []Condition       `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsGroup reports whether the condition is a nested group.
func (c Condition) IsGroup() bool {
	return len(c.Children) > 0
}

// ActionKind enumerates the closed set of automation actions.
type ActionKind string

const (
	ActionCreateTask     ActionKind = "create_task"
	ActionUpdateTask     ActionKind = "update_task"
	ActionExecuteTask    ActionKind = "execute_task"
	ActionNotify         ActionKind = "notify"
	ActionCallWebhook    ActionKind = "call_webhook"
	ActionInvokeProvider ActionKind = "invoke_provider"
	ActionStartWorkflow  ActionKind = "start_workflow"
	ActionStopWorkflow   ActionKind = "stop_workflow"
	ActionSetVariable    ActionKind = "set_variable"
	ActionDelay          ActionKind = "delay"
)

// Action is a tagged variant executed by the automation engine. Params
// carries kind-specific settings (url, message, variable name, etc.).
type Action struct {
	Kind   ActionKind             `json:"kind" yaml:"kind"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// ActionResult records the outcome of a single action.
type ActionResult struct {
	Kind     ActionKind    `json:"kind"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RuleStats tracks per-rule execution statistics.
type RuleStats struct {
	ExecutionCount int64      `json:"execution_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// AutomationRule is a Trigger + Conditions + Actions tuple managed by
// the automation engine. Rules are registered explicitly, deleted
// explicitly, and never auto-expire.
type AutomationRule struct {
	ID         string      `json:"id" yaml:"id"`
	Label      string      `json:"label" yaml:"label"`
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Trigger    Trigger     `json:"trigger" yaml:"trigger"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions    []Action    `json:"actions" yaml:"actions"`
	Stats      RuleStats   `json:"stats"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Validate checks rule invariants.
func (r *AutomationRule) Validate() error {
	if r.Label == "" {
		return ErrValidation("RULE_LABEL_REQUIRED", "rule label cannot be empty")
	}
	if r.Trigger.Kind == "" {
		return ErrValidation("RULE_TRIGGER_REQUIRED", "rule trigger kind cannot be empty")
	}
	if len(r.Actions) == 0 {
		return ErrValidation("RULE_ACTIONS_REQUIRED", "rule must declare at least one action")
	}
	for _, a := range r.Actions {
		if a.Kind == "" {
			return ErrValidation("RULE_ACTION_KIND_REQUIRED", "rule action kind cannot be empty")
		}
	}
	return nil
}
