package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/flowgate/pkg/api"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, api.DefaultConfig(), cfg.Engine)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.v)
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_retries: 5
  lock_timeout: 90s
  backoff_strategy: exponential
  enable_audit_log: false
store:
  driver: redis
  dsn: localhost:6379
graph_file: graphs/reconciliation.yaml
log:
  level: debug
  format: json
`)

	cfg, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Engine.LockTimeout)
	assert.Equal(t, api.BackoffExponential, cfg.Engine.BackoffStrategy)
	assert.False(t, cfg.Engine.EnableAuditLog)
	// Unset keys keep their defaults.
	assert.True(t, cfg.Engine.EnableLocking)
	assert.Equal(t, 30*time.Second, cfg.Engine.OperationTimeout)

	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.DSN)
	assert.Equal(t, "flowgate:", cfg.Store.Prefix)
	assert.Equal(t, "graphs/reconciliation.yaml", cfg.GraphFile)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_EnvOverridesTakePrecedence(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_retries: 5
store:
  driver: memory
`)
	t.Setenv("FLOWGATE_ENGINE_MAX_RETRIES", "7")
	t.Setenv("FLOWGATE_ENGINE_LOCK_TIMEOUT", "2m")
	t.Setenv("FLOWGATE_ENGINE_ENABLE_ROLLBACK", "false")

	cfg, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Engine.LockTimeout)
	assert.False(t, cfg.Engine.EnableRollback)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoader_Load_WithConfigPathEnv(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: postgres
  dsn: postgres://localhost/flowgate
`)
	t.Setenv(ConfigPathEnv, path)

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, path, loader.ConfigFileUsed())
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "invalid yaml",
			content: "engine: [unclosed",
			want:    "error reading config file",
		},
		{
			name:    "unknown driver",
			content: "store:\n  driver: cassandra\n",
			want:    "unknown driver",
		},
		{
			name:    "bad retries",
			content: "engine:\n  max_retries: 0\n",
			want:    "max retries",
		},
		{
			name:    "bad duration",
			content: "engine:\n  lock_timeout: soon\n",
			want:    "error decoding config",
		},
		{
			name:    "bad log level",
			content: "log:\n  level: loud\n",
			want:    "invalid level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFromFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	_, err := NewLoader().LoadFromFile("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfig_Graph(t *testing.T) {
	cfg := DefaultConfig()
	g, err := cfg.Graph()
	require.NoError(t, err)
	assert.Equal(t, "reconciliation", g.Name())

	cfg.GraphFile = "/nonexistent/graph.yaml"
	_, err = cfg.Graph()
	require.Error(t, err)
}

func TestLogConfig_Logger(t *testing.T) {
	var buf writerBuffer
	LogConfig{Level: "warn", Format: "json"}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	LogConfig{Level: "debug", Format: "json"}.Logger(&buf).Debug("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

type writerBuffer struct{ b []byte }

func (w *writerBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *writerBuffer) String() string { return string(w.b) }

func TestLoader_BindFlag(t *testing.T) {
	t.Setenv("FLOWGATE_STORE_DRIVER", "redis")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("store", DriverSQLite, "")
	fs.String("dsn", "", "")
	require.NoError(t, fs.Parse([]string{"--store", "memory"}))

	l := NewLoader()
	require.NoError(t, l.BindFlag("store.driver", fs.Lookup("store")))
	require.NoError(t, l.BindFlag("store.dsn", fs.Lookup("dsn")))
	require.Error(t, l.BindFlag("store.prefix", fs.Lookup("prefix")))

	cfg, err := l.LoadFromFile(writeConfig(t, "store:\n  dsn: from-file.db\n"))
	require.NoError(t, err)
	// A changed flag beats the environment; an unchanged one does not
	// shadow the file.
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "from-file.db", cfg.Store.DSN)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.LockTimeout = 90 * time.Second
	cfg.Store.Driver = DriverMemory

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "lock_timeout: 1m30s")

	loaded, err := NewLoader().LoadFromFile(writeConfig(t, string(out)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
