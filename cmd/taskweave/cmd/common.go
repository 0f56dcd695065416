package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/taskweave/taskweave/internal/adapters/provider"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/diagnostics"
	"github.com/taskweave/taskweave/internal/events"
	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/planner"
)

// loadConfig loads and validates configuration, with CLI flags bound
// through the shared viper instance taking precedence.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Log.Level
	if quiet {
		level = "warn"
	}
	secrets := make([]string, 0, len(cfg.Server.Secrets))
	for _, s := range cfg.Server.Secrets {
		secrets = append(secrets, s)
	}
	return logging.New(logging.Config{
		Level:   level,
		Format:  cfg.Log.Format,
		Secrets: secrets,
	})
}

// buildRegistry assembles the provider registry. Providers named by the
// tasks or the fallback chains get a scripted implementation; a real
// deployment swaps these for API-backed ones.
func buildRegistry(cfg *config.Config, tasks []*core.Task) *provider.Registry {
	names := make(map[string]bool)
	if cfg.Providers.Default != "" {
		names[cfg.Providers.Default] = true
	}
	for _, task := range tasks {
		if task.Provider != "" {
			names[task.Provider] = true
		}
	}
	for primary, chain := range cfg.Providers.Fallbacks {
		names[primary] = true
		for _, fb := range chain {
			names[fb] = true
		}
	}
	for name := range cfg.Providers.Ceilings {
		names[name] = true
	}

	providers := make([]core.Provider, 0, len(names))
	for name := range names {
		providers = append(providers, provider.NewScripted(name))
	}
	return provider.NewRegistry(providers,
		provider.WithCeilings(cfg.Providers.Ceilings),
		provider.WithDefaultCeiling(cfg.Providers.DefaultCeiling),
	)
}

func buildPlanner(cfg *config.Config, logger *logging.Logger) *planner.Planner {
	return planner.New(
		planner.WithCeilings(cfg.Providers.Ceilings),
		planner.WithDefaultCeiling(cfg.Providers.DefaultCeiling),
		planner.WithLogger(logger),
	)
}

func buildTaskExecutor(cfg *config.Config, registry core.ProviderRegistry, bus *events.Bus, logger *logging.Logger) *executor.TaskExecutor {
	policy := executor.NewRetryPolicy(
		executor.WithMaxRetries(cfg.Retry.MaxRetries),
		executor.WithInitialDelay(cfg.Retry.InitialDelay),
		executor.WithMaxDelay(cfg.Retry.MaxDelay),
		executor.WithMultiplier(cfg.Retry.Multiplier),
		executor.WithJitter(cfg.Retry.Jitter),
	)
	opts := []executor.TaskExecutorOption{
		executor.WithRetryPolicy(policy),
		executor.WithFallbacks(cfg.Providers.Fallbacks),
		executor.WithDefaultProvider(cfg.Providers.Default),
		executor.WithTaskLogger(logger),
	}
	if cfg.Execution.InvokeTimeout > 0 {
		opts = append(opts, executor.WithInvokeTimeout(cfg.Execution.InvokeTimeout))
	}
	if bus != nil {
		opts = append(opts, executor.WithBus(bus))
	}
	return executor.NewTaskExecutor(registry, opts...)
}

// maxParallel resolves the configured stage concurrency, falling back
// to a host-derived default.
func maxParallel(cfg *config.Config) int {
	if cfg.Execution.MaxParallel > 0 {
		return cfg.Execution.MaxParallel
	}
	return diagnostics.DefaultParallelism()
}

func failurePolicy(cfg *config.Config) executor.FailurePolicy {
	if cfg.Execution.OnFailure == "continue" {
		return executor.FailContinue
	}
	return executor.FailAbort
}

func printf(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format, args...)
	}
}
