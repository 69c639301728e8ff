package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, NewInMemoryStore())
}

func TestInMemoryStore_CopiesPayload(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	payload := []byte("abc")
	require.NoError(t, store.WriteCollection(ctx, CollectionWorkflows, payload))
	payload[0] = 'x'

	got, err := store.ReadCollection(ctx, CollectionWorkflows)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))

	got[1] = 'x'
	again, err := store.ReadCollection(ctx, CollectionWorkflows)
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewInMemoryStore()
	require.ErrorIs(t, store.WriteCollection(ctx, CollectionWorkflows, nil), context.Canceled)
	_, err := store.ReadCollection(ctx, CollectionWorkflows)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPersistence_EmptyStoreLoadsNothing(t *testing.T) {
	p := New(nil)

	wfs, err := p.LoadWorkflows(context.Background())
	require.NoError(t, err)
	require.Empty(t, wfs)

	ops, err := p.LoadOperations(context.Background())
	require.NoError(t, err)
	require.Empty(t, ops)
}
