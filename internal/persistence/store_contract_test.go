package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowgate/pkg/api"
)

// testStoreContract exercises the behaviour every Store must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing collection reads as nil", func(t *testing.T) {
		payload, err := store.ReadCollection(ctx, Collection("never-written"))
		require.NoError(t, err)
		require.Nil(t, payload)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, store.WriteCollection(ctx, CollectionWorkflows, []byte(`{"a":1}`)))

		payload, err := store.ReadCollection(ctx, CollectionWorkflows)
		require.NoError(t, err)
		require.JSONEq(t, `{"a":1}`, string(payload))
	})

	t.Run("write replaces previous payload", func(t *testing.T) {
		require.NoError(t, store.WriteCollection(ctx, CollectionOperations, []byte(`[1]`)))
		require.NoError(t, store.WriteCollection(ctx, CollectionOperations, []byte(`[1,2]`)))

		payload, err := store.ReadCollection(ctx, CollectionOperations)
		require.NoError(t, err)
		require.Equal(t, `[1,2]`, string(payload))
	})

	t.Run("typed round trip", func(t *testing.T) {
		p := New(store)
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		wf := &api.WorkflowState{
			ID:         "state-1",
			WorkflowID: "wf-contract",
			Stage:      "matching",
			Status:     api.StatusActive,
			Progress:   20,
			Data:       map[string]any{"note": "hello", "count": 2},
			Metadata: api.Metadata{
				CreatedBy: "alice", CreatedAt: now,
				LastModifiedBy: "alice", LastModifiedAt: now,
				Version: 2, Checksum: "abc",
			},
			Transitions: []api.Transition{{
				ID: "t-1", FromStage: "ingestion", ToStage: "matching",
				TriggeredBy: "alice", TriggeredAt: now,
			}},
			Locks: []api.Lock{},
		}
		require.NoError(t, p.SaveWorkflows(ctx, []*api.WorkflowState{wf}))

		got, err := p.LoadWorkflows(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "matching", got[0].Stage)
		require.Equal(t, int64(2), got[0].Metadata.Version)
		require.True(t, now.Equal(got[0].Metadata.CreatedAt))
		// JSON numbers come back as float64.
		require.Equal(t, float64(2), got[0].Data["count"])
		require.Len(t, got[0].Transitions, 1)

		op := &api.AtomicOperation{
			ID: "op-1", WorkflowID: "wf-contract", OperationType: api.OperationAdvance,
			UserID: "alice", Timestamp: now, TargetStage: "analysis",
			Status: api.OperationPending, RetryCount: 1, MaxRetries: 3,
			RollbackData:  api.RollbackData{Stage: "matching", Data: map[string]any{}},
			NextAttemptAt: now.Add(time.Second),
		}
		require.NoError(t, p.SaveOperations(ctx, []*api.AtomicOperation{op}))

		ops, err := p.LoadOperations(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		require.Equal(t, api.OperationPending, ops[0].Status)
		require.Equal(t, 1, ops[0].RetryCount)
		require.Equal(t, "matching", ops[0].RollbackData.Stage)
	})
}
