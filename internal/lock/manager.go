// Package lock implements the lock manager: per-(workflow, stage) exclusive
// reservations with expiry.
package lock

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/petrijr/flowgate/pkg/api"
)

// DefaultTimeout is how long a lock stays valid unless renewed.
const DefaultTimeout = 5 * time.Minute

type key struct {
	workflowID string
	stage      string
}

// Manager owns every lock. At most one non-expired lock exists per
// (workflow, stage) pair. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	timeout time.Duration

	locks map[key]api.Lock
	byID  map[string]key
}

// AcquireResult describes the outcome of Acquire.
type AcquireResult struct {
	// Lock is the held lock; zero when Conflict is set.
	Lock api.Lock
	// Renewed is true when the caller already held the lock.
	Renewed bool
	// Evicted is an expired lock that was removed to make room.
	Evicted *api.Lock
	// Conflict is set when another user holds a valid lock.
	Conflict *api.LockConflict
}

// NewManager creates a Manager. A nil clock uses the real clock and a
// non-positive timeout uses DefaultTimeout.
func NewManager(clock clockwork.Clock, timeout time.Duration) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		clock:   clock,
		timeout: timeout,
		locks:   make(map[key]api.Lock),
		byID:    make(map[string]key),
	}
}

// SetTimeout changes the expiry used for new and renewed locks.
func (m *Manager) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// Acquire takes or renews the lock on (workflowID, stage) for userID.
//
// A lock held by the same user is renewed. A lock held by another user
// that has not expired yields a conflict. An expired lock is evicted and
// replaced.
func (m *Manager) Acquire(workflowID, stage, userID string, lockType api.LockType) AcquireResult {
	if lockType == "" {
		lockType = api.LockExclusive
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	k := key{workflowID: workflowID, stage: stage}

	var res AcquireResult
	if existing, ok := m.locks[k]; ok {
		switch {
		case existing.Expired(now):
			evicted := existing
			res.Evicted = &evicted
			m.removeLocked(existing)
		case existing.UserID == userID:
			existing.ExpiresAt = now.Add(m.timeout)
			m.locks[k] = existing
			res.Lock = existing
			res.Renewed = true
			return res
		default:
			holder := existing
			res.Conflict = &api.LockConflict{
				Reason:     api.ConflictLocked,
				WorkflowID: workflowID,
				Stage:      stage,
				Holder:     &holder,
			}
			return res
		}
	}

	l := api.Lock{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		UserID:     userID,
		Stage:      stage,
		LockedAt:   now,
		ExpiresAt:  now.Add(m.timeout),
		LockType:   lockType,
	}
	m.locks[k] = l
	m.byID[l.ID] = k
	res.Lock = l
	return res
}

// Conflict reports the conflict Acquire would return for userID, without
// taking or renewing anything.
func (m *Manager) Conflict(workflowID, stage, userID string) *api.LockConflict {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[key{workflowID: workflowID, stage: stage}]
	if !ok || existing.UserID == userID || existing.Expired(m.clock.Now()) {
		return nil
	}
	holder := existing
	return &api.LockConflict{
		Reason:     api.ConflictLocked,
		WorkflowID: workflowID,
		Stage:      stage,
		Holder:     &holder,
	}
}

// Release removes a lock by ID. It returns the removed lock and true, or
// false when the lock was unknown. Releasing twice is harmless.
func (m *Manager) Release(lockID string) (api.Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.byID[lockID]
	if !ok {
		return api.Lock{}, false
	}
	l := m.locks[k]
	m.removeLocked(l)
	return l, true
}

// Sweep evicts every lock whose expiry has passed and returns them.
func (m *Manager) Sweep() []api.Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var expired []api.Lock
	for _, l := range m.locks {
		if l.Expired(now) {
			expired = append(expired, l)
		}
	}
	for _, l := range expired {
		m.removeLocked(l)
	}
	sortLocks(expired)
	return expired
}

// Restore loads previously persisted locks, skipping expired ones and any
// pair that already has a lock.
func (m *Manager) Restore(locks []api.Lock) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	n := 0
	for _, l := range locks {
		if l.ID == "" || l.Expired(now) {
			continue
		}
		k := key{workflowID: l.WorkflowID, stage: l.Stage}
		if _, taken := m.locks[k]; taken {
			continue
		}
		m.locks[k] = l
		m.byID[l.ID] = k
		n++
	}
	return n
}

// List returns all locks, including expired ones not yet swept, ordered by
// LockedAt.
func (m *Manager) List() []api.Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]api.Lock, 0, len(m.locks))
	for _, l := range m.locks {
		out = append(out, l)
	}
	sortLocks(out)
	return out
}

// ForWorkflow returns the locks held on any stage of workflowID.
func (m *Manager) ForWorkflow(workflowID string) []api.Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []api.Lock{}
	for k, l := range m.locks {
		if k.workflowID == workflowID {
			out = append(out, l)
		}
	}
	sortLocks(out)
	return out
}

func (m *Manager) removeLocked(l api.Lock) {
	delete(m.locks, key{workflowID: l.WorkflowID, stage: l.Stage})
	delete(m.byID, l.ID)
}

func sortLocks(locks []api.Lock) {
	sort.Slice(locks, func(i, j int) bool {
		if locks[i].LockedAt.Equal(locks[j].LockedAt) {
			return locks[i].ID < locks[j].ID
		}
		return locks[i].LockedAt.Before(locks[j].LockedAt)
	})
}
