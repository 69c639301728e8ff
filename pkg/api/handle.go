package api

import (
	"context"
	"fmt"
	"sync"
)

// OperationHandle represents the eventual outcome of an operation. It is
// resolved exactly once, when the operation reaches a terminal status.
type OperationHandle struct {
	id   string
	done chan struct{}
	once sync.Once

	mu sync.Mutex
	op *AtomicOperation
}

// NewOperationHandle creates an unresolved handle for the given operation ID.
func NewOperationHandle(id string) *OperationHandle {
	return &OperationHandle{id: id, done: make(chan struct{})}
}

// ID returns the operation ID this handle tracks.
func (h *OperationHandle) ID() string { return h.id }

// Done is closed once the operation is terminal.
func (h *OperationHandle) Done() <-chan struct{} { return h.done }

// Resolve records the terminal operation and releases waiters. Later calls
// are ignored.
func (h *OperationHandle) Resolve(op *AtomicOperation) {
	h.once.Do(func() {
		h.mu.Lock()
		h.op = op.Clone()
		h.mu.Unlock()
		close(h.done)
	})
}

// Operation returns the terminal operation, or nil if not yet resolved.
func (h *OperationHandle) Operation() *AtomicOperation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.op.Clone()
}

// Wait blocks until the operation is terminal or ctx is done.
//
// It returns the terminal operation together with a nil error when the
// operation completed, or an error wrapping ErrOperationRolledBack /
// ErrOperationFailed otherwise.
func (h *OperationHandle) Wait(ctx context.Context) (*AtomicOperation, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}

	op := h.Operation()
	switch op.Status {
	case OperationCompleted:
		return op, nil
	case OperationRolledBack:
		return op, fmt.Errorf("%w: operation %s: %s", ErrOperationRolledBack, op.ID, op.LastError)
	default:
		return op, fmt.Errorf("%w: operation %s: %s", ErrOperationFailed, op.ID, op.LastError)
	}
}
