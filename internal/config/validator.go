package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateExecution(&cfg.Execution)
	v.validateRetry(&cfg.Retry)
	v.validateBudget(&cfg.Budget)
	v.validateProviders(&cfg.Providers)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// ValidateConfig is a convenience wrapper around a fresh Validator.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "listen address required")
	}
}

func (v *Validator) validateExecution(cfg *ExecutionConfig) {
	if cfg.MaxParallel < 0 {
		v.addError("execution.max_parallel", cfg.MaxParallel, "must be zero or positive")
	}
	if cfg.OnFailure != "abort" && cfg.OnFailure != "continue" {
		v.addError("execution.on_failure", cfg.OnFailure, "must be one of: abort, continue")
	}
	if cfg.InvokeTimeout < 0 {
		v.addError("execution.invoke_timeout", cfg.InvokeTimeout, "must not be negative")
	}
}

func (v *Validator) validateRetry(cfg *RetryConfig) {
	if cfg.MaxRetries < 0 {
		v.addError("retry.max_retries", cfg.MaxRetries, "must be zero or positive")
	}
	if cfg.InitialDelay < 0 {
		v.addError("retry.initial_delay", cfg.InitialDelay, "must not be negative")
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		v.addError("retry.max_delay", cfg.MaxDelay, "must be at least retry.initial_delay")
	}
	if cfg.Multiplier < 1 {
		v.addError("retry.multiplier", cfg.Multiplier, "must be at least 1")
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		v.addError("retry.jitter", cfg.Jitter, "must be within [0, 1]")
	}
}

func (v *Validator) validateBudget(cfg *BudgetConfig) {
	if cfg.MaxCostUSD < 0 {
		v.addError("budget.max_cost_usd", cfg.MaxCostUSD, "must not be negative")
	}
	if cfg.MaxTokens < 0 {
		v.addError("budget.max_tokens", cfg.MaxTokens, "must not be negative")
	}
}

func (v *Validator) validateProviders(cfg *ProvidersConfig) {
	if cfg.DefaultCeiling <= 0 {
		v.addError("providers.default_ceiling", cfg.DefaultCeiling, "must be positive")
	}
	for name, ceiling := range cfg.Ceilings {
		if ceiling <= 0 {
			v.addError("providers.ceilings."+name, ceiling, "must be positive")
		}
	}
	for name, chain := range cfg.Fallbacks {
		for _, fb := range chain {
			if fb == name {
				v.addError("providers.fallbacks."+name, fb, "provider cannot fall back to itself")
			}
		}
	}
}
