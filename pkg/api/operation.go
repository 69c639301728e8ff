package api

import (
	"slices"
	"time"
)

// OperationType identifies what an AtomicOperation does.
type OperationType string

const (
	OperationAdvance  OperationType = "advance"
	OperationRollback OperationType = "rollback"
	OperationUpdate   OperationType = "update"
	OperationLock     OperationType = "lock"
	OperationUnlock   OperationType = "unlock"
)

// OperationStatus is the lifecycle state of an AtomicOperation.
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationExecuting  OperationStatus = "executing"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
	OperationRolledBack OperationStatus = "rolled_back"
)

// Terminal reports whether no further attempt will be made.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed || s == OperationRolledBack
}

// RollbackData is the (stage, data) snapshot captured before the first
// mutation attempt of an operation.
type RollbackData struct {
	Stage string         `json:"stage"`
	Data  map[string]any `json:"data"`
}

// AtomicOperation is a single logical attempt to change a workflow, with its
// own retry counter and rollback snapshot.
type AtomicOperation struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflowId"`
	OperationType OperationType   `json:"operationType"`
	UserID        string          `json:"userId"`
	Timestamp     time.Time       `json:"timestamp"`
	TargetStage   string          `json:"targetStage,omitempty"`
	TargetStatus  Status          `json:"targetStatus,omitempty"`
	Data          map[string]any  `json:"data"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	RollbackData  RollbackData    `json:"rollbackData"`
	Status        OperationStatus `json:"status"`
	RetryCount    int             `json:"retryCount"`
	MaxRetries    int             `json:"maxRetries"`
	Options       AdvanceOptions  `json:"options"`

	// NextAttemptAt is when a pending operation becomes due.
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	// LastError is the message of the most recent failed attempt.
	LastError   string    `json:"lastError,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep-enough copy of op for handing out to callers.
func (op *AtomicOperation) Clone() *AtomicOperation {
	if op == nil {
		return nil
	}
	c := *op
	c.Data = CloneData(op.Data)
	c.Dependencies = slices.Clone(op.Dependencies)
	c.RollbackData.Data = CloneData(op.RollbackData.Data)
	return &c
}

// AdvanceOptions tune a single Advance call.
type AdvanceOptions struct {
	// ForceAdvance skips the up-front lock conflict check. The exclusive lock is
	// still taken during execution.
	ForceAdvance bool `json:"forceAdvance,omitempty"`

	// LockType defaults to LockExclusive.
	LockType LockType `json:"lockType,omitempty"`

	// Timeout bounds the whole retry sequence. Zero uses
	// Config.OperationTimeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ExpectedVersion, when > 0 and conflict detection is enabled, must
	// equal the workflow version both up front and at commit.
	ExpectedVersion int64 `json:"expectedVersion,omitempty"`
}

// AdvanceResult is the immediate outcome of Advance.
//
// Success and Operation describe the first execution attempt only. When that
// attempt failed and a retry was scheduled, Handle resolves once the
// operation reaches a terminal status.
type AdvanceResult struct {
	Success   bool
	Operation *AtomicOperation
	Conflict  *LockConflict
	Err       error
	Handle    *OperationHandle
}

// OperationFilter selects operations in ListOperations.
type OperationFilter struct {
	WorkflowID string
	Status     OperationStatus
}
