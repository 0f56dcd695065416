// Package config defines the taskweave configuration model and its
// loader. Sources are merged in the usual precedence order: CLI flags,
// TASKWEAVE_* environment variables, config file, then defaults.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Rules      RulesConfig      `mapstructure:"rules"`
	State      StateConfig      `mapstructure:"state"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, text, json
}

// ServerConfig controls the webhook ingress server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Secrets maps webhook source names to shared HMAC secrets.
	// Sources without an entry accept unsigned deliveries.
	Secrets map[string]string `mapstructure:"secrets"`
}

// CheckpointConfig controls run checkpointing.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// ExecutionConfig controls workflow execution.
type ExecutionConfig struct {
	// MaxParallel caps concurrent tasks per stage. Zero means pick a
	// default from the host CPU count.
	MaxParallel    int           `mapstructure:"max_parallel"`
	ContextPassing bool          `mapstructure:"context_passing"`
	OnFailure      string        `mapstructure:"on_failure"` // abort, continue
	InvokeTimeout  time.Duration `mapstructure:"invoke_timeout"`
}

// RetryConfig controls per-provider retry behavior.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Jitter       float64       `mapstructure:"jitter"`
}

// BudgetConfig sets run-level spending limits. Zero means unlimited.
type BudgetConfig struct {
	MaxCostUSD float64 `mapstructure:"max_cost_usd"`
	MaxTokens  int64   `mapstructure:"max_tokens"`
}

// ProvidersConfig controls provider selection and concurrency.
type ProvidersConfig struct {
	Default        string              `mapstructure:"default"`
	Fallbacks      map[string][]string `mapstructure:"fallbacks"`
	Ceilings       map[string]int      `mapstructure:"ceilings"`
	DefaultCeiling int                 `mapstructure:"default_ceiling"`
}

// RulesConfig points at the automation rules file.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig controls the task store.
type StateConfig struct {
	// Path to the SQLite database. Empty selects the in-memory store.
	Path string `mapstructure:"path"`
}
