package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

// Scope is the value space a condition evaluates against: the
// triggering event's payload, the run's named variables, and the task
// the event concerns (may be nil).
type Scope struct {
	Event     *core.Event
	Variables map[string]interface{}
	Task      *core.Task
	Cost      float64
	Now       time.Time
}

// ScopeFromEvent builds a scope for rule evaluation.
func ScopeFromEvent(event *core.Event, variables map[string]interface{}) Scope {
	return Scope{
		Event:     event,
		Variables: variables,
		Now:       time.Now(),
	}
}

// EvaluateAll evaluates a condition list with implicit AND semantics.
// An empty list always matches. A malformed condition fails the whole
// evaluation with a DomainError.
func EvaluateAll(conditions []core.Condition, scope Scope) (bool, error) {
	for _, cond := range conditions {
		ok, err := Evaluate(cond, scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate evaluates one condition, recursing into groups. Group logic
// defaults to AND when unset.
func Evaluate(cond core.Condition, scope Scope) (bool, error) {
	if cond.IsGroup() {
		return evaluateGroup(cond, scope)
	}
	return evaluateLeaf(cond, scope)
}

func evaluateGroup(cond core.Condition, scope Scope) (bool, error) {
	logic := cond.Logic
	if logic == "" {
		logic = core.LogicAND
	}

	switch logic {
	case core.LogicAND:
		for _, child := range cond.Children {
			ok, err := Evaluate(child, scope)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case core.LogicOR:
		for _, child := range cond.Children {
			ok, err := Evaluate(child, scope)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, core.ErrConditionEvaluation(fmt.Sprintf("unknown condition logic %q", logic))
	}
}

func evaluateLeaf(cond core.Condition, scope Scope) (bool, error) {
	actual, err := extract(cond, scope)
	if err != nil {
		return false, err
	}
	return compare(cond.Operator, actual, cond.Value)
}

// extract resolves the left-hand value by condition type and field.
func extract(cond core.Condition, scope Scope) (interface{}, error) {
	switch cond.Type {
	case core.ConditionTaskStatus:
		if scope.Task != nil {
			return string(scope.Task.Status), nil
		}
		if scope.Event != nil {
			if v, ok := scope.Event.Payload["to_status"]; ok {
				return v, nil
			}
			if v, ok := scope.Event.Payload["status"]; ok {
				return v, nil
			}
		}
		return nil, core.ErrConditionEvaluation("task_status condition has no task or status payload in scope")

	case core.ConditionVariable:
		if cond.Field == "" {
			return nil, core.ErrConditionEvaluation("variable condition requires a field")
		}
		if v, ok := scope.Variables[cond.Field]; ok {
			return v, nil
		}
		if scope.Event != nil {
			if v, ok := scope.Event.Payload[cond.Field]; ok {
				return v, nil
			}
		}
		return nil, nil

	case core.ConditionCost:
		if scope.Event != nil {
			if v, ok := scope.Event.Payload["cost"]; ok {
				return v, nil
			}
		}
		return scope.Cost, nil

	case core.ConditionTime:
		now := scope.Now
		if now.IsZero() {
			now = time.Now()
		}
		switch cond.Field {
		case "hour":
			return now.Hour(), nil
		case "weekday":
			return now.Weekday().String(), nil
		case "", "unix":
			return now.Unix(), nil
		default:
			return nil, core.ErrConditionEvaluation(fmt.Sprintf("unknown time field %q", cond.Field))
		}

	case core.ConditionCustom:
		if cond.Field == "" {
			return nil, core.ErrConditionEvaluation("custom condition requires a field")
		}
		if scope.Event != nil {
			if v, ok := scope.Event.Payload[cond.Field]; ok {
				return v, nil
			}
		}
		if v, ok := scope.Variables[cond.Field]; ok {
			return v, nil
		}
		return nil, nil

	default:
		return nil, core.ErrConditionEvaluation(fmt.Sprintf("unknown condition type %q", cond.Type))
	}
}

// compare applies the operator. Numeric comparisons coerce both sides
// to float64; equality falls back to string form when the sides are not
// both numeric.
func compare(op core.ConditionOperator, actual, expected interface{}) (bool, error) {
	switch op {
	case core.OpEqual:
		return looseEqual(actual, expected), nil
	case core.OpNotEqual:
		return !looseEqual(actual, expected), nil
	case core.OpGreater, core.OpLess, core.OpGreaterEqual, core.OpLessEqual:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false, core.ErrConditionEvaluation(
				fmt.Sprintf("operator %s requires numeric operands, got %v and %v", op, actual, expected))
		}
		switch op {
		case core.OpGreater:
			return a > b, nil
		case core.OpLess:
			return a < b, nil
		case core.OpGreaterEqual:
			return a >= b, nil
		default:
			return a <= b, nil
		}
	case core.OpContains:
		return strings.Contains(toString(actual), toString(expected)), nil
	case core.OpMatches:
		pattern, err := regexp.Compile(toString(expected))
		if err != nil {
			return false, core.ErrConditionEvaluation(fmt.Sprintf("invalid match pattern: %v", err))
		}
		return pattern.MatchString(toString(actual)), nil
	default:
		return false, core.ErrConditionEvaluation(fmt.Sprintf("unknown operator %q", op))
	}
}

func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
