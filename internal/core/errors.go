package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Provider rate limited
	ErrCatNetwork    ErrorCategory = "network"    // Network connectivity
	ErrCatState      ErrorCategory = "state"      // State corruption/conflict
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatBudget     ErrorCategory = "budget"     // Cost/token budget exceeded
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrNetwork creates a network connectivity error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      "NETWORK_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrCyclicDependency creates the planning-time cycle error, naming one
// task known to sit on the cycle.
func ErrCyclicDependency(taskID TaskID) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeDAGCycle,
		Message:   fmt.Sprintf("task dependency graph contains a cycle through %s", taskID),
		Retryable: false,
		Details: map[string]interface{}{
			"task_id": string(taskID),
		},
	}
}

// ErrBudgetExceeded creates an error when a projected or committed spend
// crosses a configured ceiling. Fatal to the task, never retried.
func ErrBudgetExceeded(taskID TaskID, current, limit float64) *DomainError {
	return &DomainError{
		Category:  ErrCatBudget,
		Code:      CodeBudgetExceeded,
		Message:   fmt.Sprintf("task %s would bring spend to $%.4f, over limit $%.2f", taskID, current, limit),
		Retryable: false,
		Details: map[string]interface{}{
			"task_id": string(taskID),
			"current": current,
			"limit":   limit,
		},
	}
}

// ErrTokenBudgetExceeded creates an error when a projected token spend
// crosses the configured token ceiling.
func ErrTokenBudgetExceeded(taskID TaskID, current, limit int64) *DomainError {
	return &DomainError{
		Category:  ErrCatBudget,
		Code:      CodeBudgetExceeded,
		Message:   fmt.Sprintf("task %s would bring token usage to %d, over limit %d", taskID, current, limit),
		Retryable: false,
		Details: map[string]interface{}{
			"task_id": string(taskID),
			"current": current,
			"limit":   limit,
		},
	}
}

// ErrTaskExecution wraps the last failure after retries and fallbacks
// are exhausted.
func ErrTaskExecution(taskID TaskID, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeTaskExecutionFailed,
		Message:   fmt.Sprintf("task %s failed after exhausting retries and fallbacks", taskID),
		Retryable: false,
		Cause:     cause,
	}
}

// ErrConditionEvaluation marks a malformed condition. Callers log it and
// treat the condition as false.
func ErrConditionEvaluation(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeConditionInvalid,
		Message:   message,
		Retryable: false,
	}
}

// ErrActionExecution marks a single automation action failure. It never
// propagates to sibling actions.
func ErrActionExecution(kind string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeActionFailed,
		Message:   fmt.Sprintf("action %s failed", kind),
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// IsFallbackEligible reports whether a failure should move execution to
// the next provider in the fallback chain. Provider-side failures
// qualify; validation and budget failures do not.
func IsFallbackEligible(err error) bool {
	switch GetCategory(err) {
	case ErrCatExecution, ErrCatTimeout, ErrCatRateLimit, ErrCatNetwork:
		return true
	default:
		return false
	}
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeDAGCycle            = "DAG_CYCLE"
	CodeBudgetExceeded      = "BUDGET_EXCEEDED"
	CodeTaskExecutionFailed = "TASK_EXECUTION_FAILED"
	CodeConditionInvalid    = "CONDITION_INVALID"
	CodeActionFailed        = "ACTION_FAILED"
	CodeTaskNotFound        = "TASK_NOT_FOUND"
	CodeRunNotFound         = "RUN_NOT_FOUND"
	CodeRuleNotFound        = "RULE_NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeExecutionStuck      = "EXECUTION_STUCK"
	CodeMissingTasks        = "MISSING_TASKS"
	CodeCancelled           = "CANCELLED"
	CodeUnknownDependency   = "UNKNOWN_DEPENDENCY"
	CodeInvalidConfig       = "INVALID_CONFIG"
)
