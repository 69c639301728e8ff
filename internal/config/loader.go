package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// FLOWGATE_ENGINE_MAX_RETRIES=5 or FLOWGATE_STORE_DRIVER=redis.
const EnvPrefix = "FLOWGATE"

// ConfigPathEnv names an explicit config file.
const ConfigPathEnv = EnvPrefix + "_CONFIG_PATH"

// Loader reads configuration with viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment binding set up.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// Load reads the file named by FLOWGATE_CONFIG_PATH, or flowgate.yaml from
// the working directory or the user config directory. A missing file is
// not an error: defaults and environment overrides still apply.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return l.LoadFromFile(path)
	}

	l.v.SetConfigName("flowgate")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(dir, "flowgate"))
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadFromFile reads the given YAML file.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

// BindFlag lets a command-line flag override key when it is set. Flags
// take precedence over the environment and the file.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

// ConfigFileUsed returns the file the last load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	e := d.Engine
	v.SetDefault("engine.enable_atomic_operations", e.EnableAtomicOperations)
	v.SetDefault("engine.enable_locking", e.EnableLocking)
	v.SetDefault("engine.enable_version_control", e.EnableVersionControl)
	v.SetDefault("engine.enable_conflict_detection", e.EnableConflictDetection)
	v.SetDefault("engine.enable_rollback", e.EnableRollback)
	v.SetDefault("engine.enable_audit_log", e.EnableAuditLog)
	v.SetDefault("engine.lock_timeout", e.LockTimeout)
	v.SetDefault("engine.operation_timeout", e.OperationTimeout)
	v.SetDefault("engine.max_retries", e.MaxRetries)
	v.SetDefault("engine.retry_backoff", e.RetryBackoff)
	v.SetDefault("engine.backoff_strategy", string(e.BackoffStrategy))
	v.SetDefault("engine.operation_sweep_interval", e.OperationSweepInterval)
	v.SetDefault("engine.lock_sweep_interval", e.LockSweepInterval)
	v.SetDefault("engine.operation_retention", e.OperationRetention)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.prefix", d.Store.Prefix)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("store.collection", d.Store.Collection)

	v.SetDefault("graph_file", d.GraphFile)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}
