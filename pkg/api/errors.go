package api

import "errors"

var (
	// ErrWorkflowNotFound is returned when the target workflow does not exist.
	// Retrying does not help.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists is returned by CreateWorkflow for a duplicate ID.
	ErrWorkflowExists = errors.New("workflow already exists")

	// ErrOperationNotFound is returned when an operation ID is unknown.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrInvalidTransition is returned when the move is not an edge of the
	// transition graph.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownStage is returned when a stage is not part of the graph.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrLockUnavailable is returned when the exclusive lock could not be
	// taken during execution. Unlike an up-front conflict, it is retried.
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrVersionMismatch is returned when the workflow moved past the
	// version the caller expected.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrEngineDisabled is returned when atomic operations are switched off.
	ErrEngineDisabled = errors.New("atomic operations disabled")

	// ErrOperationTimeout marks an operation whose retry window ran out.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrOperationRolledBack and ErrOperationFailed describe terminal
	// outcomes reported through OperationHandle.Wait.
	ErrOperationRolledBack = errors.New("operation rolled back")
	ErrOperationFailed     = errors.New("operation failed")

	// ErrOperationCancelled is recorded when a caller cancels a pending retry.
	ErrOperationCancelled = errors.New("operation cancelled")
)
