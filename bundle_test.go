package flowgate_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowgate"
	"github.com/petrijr/flowgate/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := flowgate.DefaultFileConfig()
	cfg.Store.Driver = "memory"

	b, err := flowgate.Open(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })

	_, err = b.Engine.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)
	_, err = flowgate.AdvanceAndWait(ctx, b.Engine, "wf1", "mapping", "alice", nil, flowgate.AdvanceOptions{})
	require.NoError(t, err)

	snap := b.Stats.Snapshot()
	assert.Equal(t, int64(1), snap.WorkflowsCreated)
	assert.Equal(t, int64(1), snap.OperationsCompleted)

	srv := httptest.NewServer(b.MetricsHandler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `flowgate_stage_transitions_total{from="ingestion",to="mapping"} 1`)
}

func TestOpen_SQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := flowgate.DefaultFileConfig()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "flowgate.db")

	b, err := flowgate.Open(ctx, cfg, quietLogger())
	require.NoError(t, err)
	_, err = b.Engine.CreateWorkflow(ctx, "wf1", "ingestion", "alice", map[string]any{"batch": "b-7"})
	require.NoError(t, err)
	_, err = flowgate.AdvanceAndWait(ctx, b.Engine, "wf1", "mapping", "alice", nil, flowgate.AdvanceOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = flowgate.Open(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	wf, err := b.Engine.GetWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "b-7", wf.Data["batch"])
	assert.Equal(t, "mapping", wf.Stage)

	// alice's lock came back from the database and is counted as held.
	assert.Contains(t, scrape(t, b), "flowgate_locks_held 1")

	locks, err := b.Engine.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.NoError(t, b.Engine.ReleaseLock(ctx, locks[0].ID))
	assert.Contains(t, scrape(t, b), "flowgate_locks_held 0")
}

func scrape(t *testing.T, b *flowgate.Bundle) string {
	t.Helper()
	srv := httptest.NewServer(b.MetricsHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestOpen_GraphFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: two\npath: [open, closed]\nedges:\n  open: [closed]\n"), 0o600))

	cfg := flowgate.DefaultFileConfig()
	cfg.Store.Driver = "memory"
	cfg.GraphFile = path

	b, err := flowgate.Open(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, err = b.Engine.CreateWorkflow(ctx, "t1", "open", "alice", nil)
	require.NoError(t, err)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := flowgate.DefaultFileConfig()
	cfg.Store.Driver = "etcd"

	_, err := flowgate.Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_Redis(t *testing.T) {
	ctx := context.Background()
	cfg := flowgate.DefaultFileConfig()
	cfg.Store.Driver = "redis"
	cfg.Store.DSN = testutil.GetRedisAddress(t)
	cfg.Store.Prefix = "flowgate:bundle:"

	b, err := flowgate.Open(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, err = b.Engine.CreateWorkflow(ctx, "wf-redis", "ingestion", "alice", nil)
	require.NoError(t, err)

	reopened, err := flowgate.Open(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	wf, err := reopened.Engine.GetWorkflow(ctx, "wf-redis")
	require.NoError(t, err)
	assert.Equal(t, "ingestion", wf.Stage)
}
