package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/petrijr/flowgate/pkg/api"
)

// persistTimeout bounds one full-collection write.
const persistTimeout = 5 * time.Second

// effects collects what a critical section decided to announce. They are
// applied by commit after the state mutex is released.
type effects struct {
	persist  bool
	events   []api.Event
	notify   []func()
	resolved []*api.AtomicOperation
}

func (fx *effects) publish(ev api.Event) {
	fx.events = append(fx.events, ev)
}

func (fx *effects) observe(fn func()) {
	fx.notify = append(fx.notify, fn)
}

func (fx *effects) resolve(op *api.AtomicOperation) {
	fx.resolved = append(fx.resolved, op.Clone())
}

type snapshot struct {
	workflows  []*api.WorkflowState
	operations []*api.AtomicOperation
}

// commit releases e.mu and applies fx. It must be called with e.mu held.
//
// When fx needs persisting, the collections are copied under e.mu and
// persistMu is taken before e.mu is released, so concurrent commits write
// in the order they mutated.
func (e *engineImpl) commit(ctx context.Context, fx *effects) {
	var snap *snapshot
	if fx.persist {
		snap = e.snapshotLocked()
		e.persistMu.Lock()
	}

	handles := make([]*api.OperationHandle, len(fx.resolved))
	for i, op := range fx.resolved {
		handles[i] = e.handles[op.ID]
		delete(e.handles, op.ID)
	}
	e.mu.Unlock()

	if snap != nil {
		e.write(ctx, snap)
		e.persistMu.Unlock()
	}

	for _, fn := range fx.notify {
		fn()
	}
	for _, ev := range fx.events {
		e.bus.Publish(ev)
	}
	for i, h := range handles {
		if h != nil {
			h.Resolve(fx.resolved[i])
		}
	}
}

func (e *engineImpl) snapshotLocked() *snapshot {
	wfs := e.states.Snapshot()
	for _, wf := range wfs {
		wf.Locks = e.locks.ForWorkflow(wf.WorkflowID)
	}
	ops := make([]*api.AtomicOperation, 0, len(e.ops))
	for _, op := range e.ops {
		ops = append(ops, op.Clone())
	}
	sortOperations(ops)
	return &snapshot{workflows: wfs, operations: ops}
}

// write stores both collections. Failures are logged and swallowed: the
// in-memory state stays authoritative.
func (e *engineImpl) write(ctx context.Context, snap *snapshot) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := e.store.SaveWorkflows(ctx, snap.workflows); err != nil {
		e.logger.Warn("persistence_unavailable",
			slog.String("phase", "save"),
			slog.Any("error", err),
		)
		return
	}
	if err := e.store.SaveOperations(ctx, snap.operations); err != nil {
		e.logger.Warn("persistence_unavailable",
			slog.String("phase", "save"),
			slog.Any("error", err),
		)
	}
}
