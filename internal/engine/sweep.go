package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/petrijr/flowgate/pkg/api"
)

// SweepOperations drains due retry tasks, then re-drives any pending
// operation that is due but was never queued.
func (e *engineImpl) SweepOperations(ctx context.Context) (int, error) {
	if !e.Config().EnableAtomicOperations {
		return 0, nil
	}

	now := e.clock.Now()
	attempts := 0
	for {
		task, err := e.queue.Dequeue(ctx, now)
		if err != nil {
			return attempts, fmt.Errorf("dequeue retry task: %w", err)
		}
		if task == nil {
			break
		}
		if e.redrive(ctx, task.OperationID) {
			attempts++
		}
	}

	e.mu.Lock()
	var stray []string
	for id, op := range e.ops {
		if op.Status == api.OperationPending && !op.NextAttemptAt.After(now) && !e.queue.Contains(id) {
			stray = append(stray, id)
		}
	}
	e.mu.Unlock()

	for _, id := range stray {
		if e.redrive(ctx, id) {
			attempts++
		}
	}
	return attempts, nil
}

// redrive runs the next attempt of a pending operation. It reports whether
// an attempt was made.
func (e *engineImpl) redrive(ctx context.Context, operationID string) bool {
	cfg := e.Config()

	e.mu.Lock()
	op, ok := e.ops[operationID]
	if !ok || op.Status != api.OperationPending {
		e.mu.Unlock()
		return false
	}

	fx := &effects{persist: true}
	if deadline, ok := e.deadline(op, cfg); ok && e.clock.Now().After(deadline) {
		cause := fmt.Errorf("%w: deadline %s passed", api.ErrOperationTimeout, deadline.Format("15:04:05.000"))
		e.finishLocked(ctx, op, cause, cfg, fx)
		e.commit(ctx, fx)
		return false
	}

	_ = e.attemptLocked(ctx, op, cfg, fx)
	e.commit(ctx, fx)
	return true
}

// SweepLocks evicts expired locks and purges completed or rolled back
// operations older than the retention window.
func (e *engineImpl) SweepLocks(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	cfg := e.Config()

	e.mu.Lock()
	now := e.clock.Now()
	expired := e.locks.Sweep()

	purged := 0
	if cfg.OperationRetention > 0 {
		cutoff := now.Add(-cfg.OperationRetention)
		for id, op := range e.ops {
			if op.Status != api.OperationCompleted && op.Status != api.OperationRolledBack {
				continue
			}
			if op.CompletedAt.Before(cutoff) {
				delete(e.ops, id)
				purged++
			}
		}
	}

	fx := &effects{persist: len(expired) > 0 || purged > 0}
	for i := range expired {
		l := expired[i]
		fx.publish(api.Event{Type: api.EventLockExpired, At: now, WorkflowID: l.WorkflowID, Lock: &l})
	}
	e.commit(ctx, fx)

	if len(expired) > 0 || purged > 0 {
		e.logger.Debug("lock_sweep",
			slog.Int("expired_locks", len(expired)),
			slog.Int("purged_operations", purged),
		)
	}
	return len(expired), purged, nil
}

func (e *engineImpl) ReleaseLock(ctx context.Context, lockID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	l, ok := e.locks.Release(lockID)
	fx := &effects{persist: ok}
	if ok {
		fx.publish(api.Event{Type: api.EventLockReleased, At: e.clock.Now(), WorkflowID: l.WorkflowID, Lock: &l})
	}
	e.commit(ctx, fx)
	return nil
}
