package api

import "context"

// Guard is a domain check run right before a stage move commits, after the
// target stage lock is held. A non-nil error fails the attempt, which is
// then retried like any other execution failure.
//
// Guards receive copies and run without the engine's internal lock, so they
// may read from the Engine. If the workflow is written while a guard runs,
// the attempt fails with ErrVersionMismatch and is retried.
type Guard func(ctx context.Context, wf *WorkflowState, op *AtomicOperation) error

// Engine is the public API of the workflow advancement engine.
//
// Every returned *WorkflowState, *AtomicOperation and Lock is a copy; mutating
// it has no effect on the engine.
type Engine interface {
	// CreateWorkflow creates a workflow at initialStage with Version 1 and
	// StatusActive.
	CreateWorkflow(ctx context.Context, workflowID, initialStage, userID string, data map[string]any) (*WorkflowState, error)

	// Advance attempts to move the workflow to targetStage on behalf of
	// userID, merging data into the workflow payload.
	//
	// A missing workflow is reported as ErrWorkflowNotFound. A lock held by
	// another user is reported as a Conflict in the result, not as an error.
	// Otherwise the result describes the first execution attempt; failed
	// attempts are retried in the background and the final outcome is
	// available through AdvanceResult.Handle and the event bus.
	Advance(ctx context.Context, workflowID, targetStage, userID string, data map[string]any, opts AdvanceOptions) (*AdvanceResult, error)

	// UpdateStatus sets the workflow status through an "update" operation.
	UpdateStatus(ctx context.Context, workflowID string, status Status, userID string) (*WorkflowState, error)

	GetWorkflow(ctx context.Context, workflowID string) (*WorkflowState, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowState, error)

	GetOperation(ctx context.Context, operationID string) (*AtomicOperation, error)
	ListOperations(ctx context.Context, filter OperationFilter) ([]*AtomicOperation, error)

	// CancelOperation stops a pending retry and rolls the operation back.
	CancelOperation(ctx context.Context, operationID string) (*AtomicOperation, error)

	ListLocks(ctx context.Context) ([]Lock, error)

	// ReleaseLock releases a lock by ID. Releasing an unknown or already
	// released lock is not an error.
	ReleaseLock(ctx context.Context, lockID string) error

	UpdateConfig(ctx context.Context, update ConfigUpdate) (Config, error)
	Config() Config

	Subscribe(event EventType, h Handler) SubscriptionID
	SubscribeAll(h Handler) SubscriptionID
	Unsubscribe(event EventType, id SubscriptionID) bool

	// SweepOperations re-drives pending operations that are due. It returns
	// the number of attempts made.
	SweepOperations(ctx context.Context) (int, error)

	// SweepLocks evicts expired locks and purges old terminal operations.
	// It returns the number of evicted locks and purged operations.
	SweepLocks(ctx context.Context) (locks int, operations int, err error)

	// Start launches the periodic sweeps; Stop halts them and waits.
	Start(ctx context.Context) error
	Stop()
}
