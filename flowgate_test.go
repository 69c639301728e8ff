package flowgate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowgate"
)

// fastRetries returns settings that finish a retry sequence in a few
// milliseconds of wall time.
func fastRetries(maxRetries int) flowgate.Config {
	cfg := flowgate.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = time.Millisecond
	cfg.BackoffStrategy = flowgate.BackoffConstant
	cfg.OperationSweepInterval = 5 * time.Millisecond
	cfg.EnableAuditLog = false
	return cfg
}

func startEngine(t *testing.T, eng flowgate.Engine) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		eng.Stop()
		cancel()
	})
	return ctx
}

func TestAdvanceAndWait_Completed(t *testing.T) {
	eng := flowgate.NewInMemoryEngine()
	ctx := context.Background()

	_, err := eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	op, err := flowgate.AdvanceAndWait(ctx, eng, "wf1", "mapping", "alice", map[string]any{"file": "a.csv"}, flowgate.AdvanceOptions{})
	require.NoError(t, err)
	assert.Equal(t, flowgate.OperationCompleted, op.Status)

	wf, err := flowgate.GetWorkflow(ctx, eng, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "mapping", wf.Stage)
	assert.Equal(t, int64(2), wf.Metadata.Version)
	assert.Equal(t, 20, wf.Progress)
}

func TestAdvanceAndWait_Conflict(t *testing.T) {
	eng := flowgate.NewInMemoryEngine()
	ctx := context.Background()

	_, err := eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)
	_, err = flowgate.AdvanceAndWait(ctx, eng, "wf1", "mapping", "alice", nil, flowgate.AdvanceOptions{})
	require.NoError(t, err)

	op, err := flowgate.AdvanceAndWait(ctx, eng, "wf1", "mapping", "bob", nil, flowgate.AdvanceOptions{})
	require.Nil(t, op)
	require.ErrorIs(t, err, flowgate.ErrConflict)

	var conflict *flowgate.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "alice", conflict.Conflict.Holder.UserID)
	assert.Contains(t, err.Error(), "locked by alice")
}

func TestAdvanceAndWait_VersionConflictMessage(t *testing.T) {
	eng := flowgate.NewInMemoryEngine()
	ctx := context.Background()

	_, err := eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	_, err = flowgate.AdvanceAndWait(ctx, eng, "wf1", "mapping", "alice", nil, flowgate.AdvanceOptions{ExpectedVersion: 3})
	require.ErrorIs(t, err, flowgate.ErrConflict)
	assert.Contains(t, err.Error(), "expected version 3, have 1")
}

func TestAdvanceAndWait_InvalidTransitionRollsBack(t *testing.T) {
	eng, err := flowgate.NewBuilder().WithSettings(fastRetries(2)).Build()
	require.NoError(t, err)
	ctx := startEngine(t, eng)

	_, err = eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", map[string]any{"rows": "10"})
	require.NoError(t, err)

	op, err := flowgate.AdvanceAndWait(ctx, eng, "wf1", "completed", "alice", map[string]any{"rows": "0"}, flowgate.AdvanceOptions{})
	require.ErrorIs(t, err, flowgate.ErrOperationRolledBack)
	require.NotNil(t, op)
	assert.Equal(t, flowgate.OperationRolledBack, op.Status)
	assert.Equal(t, 2, op.RetryCount)

	wf, err := eng.GetWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "ingestion", wf.Stage)
	assert.Equal(t, "10", wf.Data["rows"])
	assert.Empty(t, wf.Transitions)
}

func TestAdvanceAndWait_ContextDone(t *testing.T) {
	settings := fastRetries(3)
	settings.RetryBackoff = time.Hour
	eng, err := flowgate.NewBuilder().
		WithSettings(settings).
		WithGuard(func(context.Context, *flowgate.WorkflowState, *flowgate.AtomicOperation) error {
			return errors.New("approval missing")
		}).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	_, err = eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = flowgate.AdvanceAndWait(waitCtx, eng, "wf1", "mapping", "alice", nil, flowgate.AdvanceOptions{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ops, err := eng.ListOperations(ctx, flowgate.OperationFilter{Status: flowgate.OperationPending})
	require.NoError(t, err)
	require.Len(t, ops, 1)
}

func TestListWorkflows(t *testing.T) {
	eng := flowgate.NewInMemoryEngine()
	ctx := context.Background()

	for _, id := range []string{"wf1", "wf2"} {
		_, err := eng.CreateWorkflow(ctx, id, "ingestion", "alice", nil)
		require.NoError(t, err)
	}
	_, err := flowgate.Advance(ctx, eng, "wf2", "mapping", "alice", nil, flowgate.AdvanceOptions{})
	require.NoError(t, err)

	got, err := flowgate.ListWorkflows(ctx, eng, flowgate.WorkflowFilter{Stage: "mapping"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wf2", got[0].WorkflowID)
}
