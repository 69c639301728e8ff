// Package config loads flowgate settings from a YAML file and FLOWGATE_*
// environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/petrijr/flowgate/internal/graph"
	"github.com/petrijr/flowgate/pkg/api"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config is the full flowgate configuration.
type Config struct {
	// Engine holds the runtime engine settings.
	Engine api.Config `mapstructure:"engine" yaml:"engine"`

	// Store selects the persistence backend.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// GraphFile is an optional YAML transition graph. Empty means the
	// built-in reconciliation graph.
	GraphFile string `mapstructure:"graph_file" yaml:"graph_file"`

	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// StoreConfig describes the persistence backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres, redis, mongo.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// DSN is a file path for sqlite, a connection string for postgres, an
	// address for redis and a URI for mongo.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// Prefix namespaces redis keys.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`

	// Database and Collection name the mongo location.
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Engine: api.DefaultConfig(),
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    "flowgate.db",
			Prefix: "flowgate:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks settings that cannot be used.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverRedis, DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store: %s driver needs a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Graph loads the configured transition graph.
func (c *Config) Graph() (*graph.Graph, error) {
	if c.GraphFile == "" {
		return graph.Default(), nil
	}
	return graph.LoadFile(c.GraphFile)
}

// Logger builds a slog.Logger writing to w.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid level %q", s)
	}
	return level, nil
}
