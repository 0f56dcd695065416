package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "TASKWEAVE",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance
// so CLI flag bindings participate in precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "TASKWEAVE",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (TASKWEAVE_*)
// 3. Project config (.taskweave.yaml in current directory)
// 4. User config (~/.config/taskweave/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".taskweave")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config.
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "taskweave"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("server.addr", ":8080")

	l.v.SetDefault("checkpoint.enabled", true)
	l.v.SetDefault("checkpoint.dir", ".taskweave/checkpoints")

	l.v.SetDefault("execution.max_parallel", 0)
	l.v.SetDefault("execution.context_passing", true)
	l.v.SetDefault("execution.on_failure", "abort")
	l.v.SetDefault("execution.invoke_timeout", "5m")

	l.v.SetDefault("retry.max_retries", 3)
	l.v.SetDefault("retry.initial_delay", "1s")
	l.v.SetDefault("retry.max_delay", "30s")
	l.v.SetDefault("retry.multiplier", 2.0)
	l.v.SetDefault("retry.jitter", 0.0)

	l.v.SetDefault("budget.max_cost_usd", 0.0)
	l.v.SetDefault("budget.max_tokens", 0)

	l.v.SetDefault("providers.default", "")
	l.v.SetDefault("providers.default_ceiling", 4)

	l.v.SetDefault("rules.path", ".taskweave/rules.yaml")

	l.v.SetDefault("state.path", "")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
