package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowgate/pkg/api"
)

func TestAdvance_ConcurrentDifferentUsers(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	users := []string{"alice", "bob"}
	results := make([]*api.AdvanceResult, len(users))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, u := range users {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			<-start
			res, err := e.Advance(ctx, "wf1", "mapping", user, map[string]any{"by": user}, api.AdvanceOptions{})
			assert.NoError(t, err)
			results[i] = res
		}(i, u)
	}
	close(start)
	wg.Wait()

	successes, conflicts := 0, 0
	var winner string
	for i, res := range results {
		require.NotNil(t, res)
		switch {
		case res.Success:
			successes++
			winner = users[i]
		case res.Conflict != nil:
			conflicts++
			assert.Equal(t, api.ConflictLocked, res.Conflict.Reason)
			assert.Nil(t, res.Operation)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)

	wf, err := e.GetWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), wf.Metadata.Version)
	assert.Equal(t, winner, wf.Data["by"])
	assert.Len(t, wf.Transitions, 1)
}

func TestAdvance_ConflictIsNotRetried(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	res, err := e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)

	conflict, err := e.Advance(ctx, "wf1", "mapping", "bob", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.False(t, conflict.Success)
	require.NotNil(t, conflict.Conflict)
	require.Equal(t, "alice", conflict.Conflict.Holder.UserID)
	require.Nil(t, conflict.Handle)

	clock.Advance(10 * time.Second)
	n, err := e.SweepOperations(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	ops, err := e.ListOperations(ctx, api.OperationFilter{})
	require.NoError(t, err)
	require.Len(t, ops, 1)
}

func TestAdvance_SameUserIsReentrant(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	res, err := e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)

	locks, err := e.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	first := locks[0]

	clock.Advance(time.Minute)
	res, err = e.Advance(ctx, "wf1", "ingestion", "alice", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)

	clock.Advance(time.Minute)
	res, err = e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.Nil(t, res.Conflict)
	require.True(t, res.Success)

	locks, err = e.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 2)
	for _, l := range locks {
		if l.Stage == "mapping" {
			assert.Equal(t, first.ID, l.ID)
			assert.True(t, l.ExpiresAt.After(first.ExpiresAt), "renewal extends expiry")
		}
	}
}

func TestAdvance_ExpiredLockIsAcquirableByOtherUser(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)
	rec := record(e)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	for _, stage := range []string{"mapping", "ingestion"} {
		res, err := e.Advance(ctx, "wf1", stage, "alice", nil, api.AdvanceOptions{})
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	res, err := e.Advance(ctx, "wf1", "mapping", "bob", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)

	clock.Advance(e.Config().LockTimeout)

	res, err = e.Advance(ctx, "wf1", "mapping", "bob", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.Nil(t, res.Conflict)
	require.True(t, res.Success)
	require.Equal(t, 1, rec.count(api.EventLockExpired))

	wf, err := e.GetWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "bob", wf.Metadata.LastModifiedBy)
}

func TestAdvance_ForceSkipsConflictCheck(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)
	// alice reserves "mapping" without moving there.
	lockRes := e.locks.Acquire("wf1", "mapping", "alice", api.LockExclusive)
	require.Nil(t, lockRes.Conflict)

	res, err := e.Advance(ctx, "wf1", "mapping", "bob", nil, api.AdvanceOptions{ForceAdvance: true})
	require.NoError(t, err)
	require.Nil(t, res.Conflict)
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, api.ErrLockUnavailable)
	require.Equal(t, api.OperationPending, res.Operation.Status)

	wf, err := e.GetWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "ingestion", wf.Stage)
}

func TestAdvance_LockingDisabled(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, withSettings(func(c *api.Config) { c.EnableLocking = false }))

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	res, err := e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)

	locks, err := e.ListLocks(ctx)
	require.NoError(t, err)
	require.Empty(t, locks)

	res, err = e.Advance(ctx, "wf1", "reconciliation", "bob", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestAdvance_ExpectedVersion(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	res, err := e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{ExpectedVersion: 7})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, api.ConflictVersion, res.Conflict.Reason)
	assert.Equal(t, int64(7), res.Conflict.ExpectedVersion)
	assert.Equal(t, int64(1), res.Conflict.ActualVersion)

	ops, err := e.ListOperations(ctx, api.OperationFilter{})
	require.NoError(t, err)
	require.Empty(t, ops)

	res, err = e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{ExpectedVersion: 1})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestAdvance_ExpectedVersionIgnoredWithoutConflictDetection(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, withSettings(func(c *api.Config) { c.EnableConflictDetection = false }))

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)

	res, err := e.Advance(ctx, "wf1", "mapping", "alice", nil, api.AdvanceOptions{ExpectedVersion: 7})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestReleaseLock(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	rec := record(e)

	_, err := e.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	require.NoError(t, err)
	held := e.locks.Acquire("wf1", "mapping", "alice", api.LockExclusive).Lock

	res, err := e.Advance(ctx, "wf1", "mapping", "bob", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)
	require.Equal(t, held.ID, res.Conflict.Holder.ID)

	require.NoError(t, e.ReleaseLock(ctx, held.ID))
	require.NoError(t, e.ReleaseLock(ctx, held.ID))
	require.NoError(t, e.ReleaseLock(ctx, "unknown"))
	require.Equal(t, 1, rec.count(api.EventLockReleased))

	res, err = e.Advance(ctx, "wf1", "mapping", "bob", nil, api.AdvanceOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
}
