package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Checkpoint.Enabled)
	assert.Equal(t, ".taskweave/checkpoints", cfg.Checkpoint.Dir)
	assert.Equal(t, 0, cfg.Execution.MaxParallel)
	assert.True(t, cfg.Execution.ContextPassing)
	assert.Equal(t, "abort", cfg.Execution.OnFailure)
	assert.Equal(t, 5*time.Minute, cfg.Execution.InvokeTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 4, cfg.Providers.DefaultCeiling)

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	src := `
log:
  level: debug
  format: json
execution:
  max_parallel: 8
  on_failure: continue
retry:
  initial_delay: 250ms
budget:
  max_cost_usd: 12.5
providers:
  default: openai
  fallbacks:
    openai: [anthropic, google]
  ceilings:
    openai: 2
server:
  secrets:
    github: hushhush
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Execution.MaxParallel)
	assert.Equal(t, "continue", cfg.Execution.OnFailure)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 12.5, cfg.Budget.MaxCostUSD)
	assert.Equal(t, "openai", cfg.Providers.Default)
	assert.Equal(t, []string{"anthropic", "google"}, cfg.Providers.Fallbacks["openai"])
	assert.Equal(t, 2, cfg.Providers.Ceilings["openai"])
	assert.Equal(t, "hushhush", cfg.Server.Secrets["github"])

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("TASKWEAVE_LOG_LEVEL", "warn")
	t.Setenv("TASKWEAVE_EXECUTION_MAX_PARALLEL", "3")
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Execution.MaxParallel)
}

func TestValidator_CollectsErrors(t *testing.T) {
	cfg := &Config{
		Log:       LogConfig{Level: "loud", Format: "auto"},
		Server:    ServerConfig{Addr: ":8080"},
		Execution: ExecutionConfig{MaxParallel: -1, OnFailure: "panic"},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     time.Millisecond, // below initial
			Multiplier:   0.5,
		},
		Budget: BudgetConfig{MaxCostUSD: -1},
		Providers: ProvidersConfig{
			DefaultCeiling: 4,
			Fallbacks:      map[string][]string{"openai": {"openai"}},
		},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)

	fields := make(map[string]bool)
	for _, verr := range verrs {
		fields[verr.Field] = true
	}
	for _, want := range []string{
		"log.level",
		"execution.max_parallel",
		"execution.on_failure",
		"retry.max_delay",
		"retry.multiplier",
		"budget.max_cost_usd",
		"providers.fallbacks.openai",
	} {
		assert.True(t, fields[want], "missing validation error for %s", want)
	}
}
