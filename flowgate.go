package flowgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowgate/internal/engine"
	"github.com/petrijr/flowgate/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Config               = api.Config
	ConfigUpdate         = api.ConfigUpdate
	BackoffStrategy      = api.BackoffStrategy
	WorkflowState        = api.WorkflowState
	WorkflowFilter       = api.WorkflowFilter
	Metadata             = api.Metadata
	Transition           = api.Transition
	Status               = api.Status
	AtomicOperation      = api.AtomicOperation
	OperationType        = api.OperationType
	OperationStatus      = api.OperationStatus
	OperationFilter      = api.OperationFilter
	OperationHandle      = api.OperationHandle
	AdvanceOptions       = api.AdvanceOptions
	AdvanceResult        = api.AdvanceResult
	Lock                 = api.Lock
	LockType             = api.LockType
	LockConflict         = api.LockConflict
	Guard                = api.Guard
	Event                = api.Event
	EventType            = api.EventType
	Handler              = api.Handler
	SubscriptionID       = api.SubscriptionID
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultConfig        = api.DefaultConfig
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusActive    = api.StatusActive
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled

	OperationPending    = api.OperationPending
	OperationExecuting  = api.OperationExecuting
	OperationCompleted  = api.OperationCompleted
	OperationFailed     = api.OperationFailed
	OperationRolledBack = api.OperationRolledBack

	LockExclusive = api.LockExclusive
	LockShared    = api.LockShared
	LockReadOnly  = api.LockReadOnly

	BackoffLinear      = api.BackoffLinear
	BackoffExponential = api.BackoffExponential
	BackoffConstant    = api.BackoffConstant

	EventWorkflowCreated     = api.EventWorkflowCreated
	EventWorkflowAdvanced    = api.EventWorkflowAdvanced
	EventWorkflowUpdated     = api.EventWorkflowUpdated
	EventOperationCompleted  = api.EventOperationCompleted
	EventOperationFailed     = api.EventOperationFailed
	EventOperationRolledBack = api.EventOperationRolledBack
	EventLockAcquired        = api.EventLockAcquired
	EventLockReleased        = api.EventLockReleased
	EventLockExpired         = api.EventLockExpired
	EventConfigUpdated       = api.EventConfigUpdated
)

// Re-export sentinel errors so callers can match with errors.Is.

var (
	ErrWorkflowNotFound    = api.ErrWorkflowNotFound
	ErrWorkflowExists      = api.ErrWorkflowExists
	ErrOperationNotFound   = api.ErrOperationNotFound
	ErrInvalidTransition   = api.ErrInvalidTransition
	ErrUnknownStage        = api.ErrUnknownStage
	ErrLockUnavailable     = api.ErrLockUnavailable
	ErrVersionMismatch     = api.ErrVersionMismatch
	ErrEngineDisabled      = api.ErrEngineDisabled
	ErrOperationTimeout    = api.ErrOperationTimeout
	ErrOperationRolledBack = api.ErrOperationRolledBack
	ErrOperationFailed     = api.ErrOperationFailed
	ErrOperationCancelled  = api.ErrOperationCancelled
)

// ErrConflict is returned by AdvanceAndWait when the advance was refused up
// front. The *ConflictError carries the details.
var ErrConflict = errors.New("advance conflict")

// ConflictError wraps a LockConflict so it can travel as an error.
type ConflictError struct {
	Conflict *LockConflict
}

func (e *ConflictError) Error() string {
	c := e.Conflict
	if c.Reason == api.ConflictVersion {
		return fmt.Sprintf("advance conflict on %s: expected version %d, have %d",
			c.WorkflowID, c.ExpectedVersion, c.ActualVersion)
	}
	return fmt.Sprintf("advance conflict on %s/%s: locked by %s until %s",
		c.WorkflowID, c.Stage, c.Holder.UserID, c.Holder.ExpiresAt.Format("15:04:05"))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages. Use NewBuilder for anything
// beyond the defaults.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewSQLiteEngine returns an Engine that persists workflows and operations
// in a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewPostgresEngine returns an Engine that persists to PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewRedisEngine returns an Engine that persists to Redis.
func NewRedisEngine(client *redis.Client) (Engine, error) {
	return engine.NewRedisEngine(client)
}

// NewMongoEngine returns an Engine that persists to MongoDB.
func NewMongoEngine(client *mongo.Client) (Engine, error) {
	return engine.NewMongoEngine(client)
}

// Convenience helpers that forward to the underlying Engine.

// Advance delegates to eng.Advance.
func Advance(ctx context.Context, eng Engine, workflowID, targetStage, userID string, data map[string]any, opts AdvanceOptions) (*AdvanceResult, error) {
	return eng.Advance(ctx, workflowID, targetStage, userID, data, opts)
}

// AdvanceAndWait advances the workflow and blocks until the operation is
// terminal, including any background retries.
//
// An up-front refusal is returned as a *ConflictError. A rolled back or
// failed operation is returned together with an error wrapping
// ErrOperationRolledBack or ErrOperationFailed.
func AdvanceAndWait(ctx context.Context, eng Engine, workflowID, targetStage, userID string, data map[string]any, opts AdvanceOptions) (*AtomicOperation, error) {
	res, err := eng.Advance(ctx, workflowID, targetStage, userID, data, opts)
	if err != nil {
		return nil, err
	}
	if res.Conflict != nil {
		return nil, &ConflictError{Conflict: res.Conflict}
	}
	return res.Handle.Wait(ctx)
}

// GetWorkflow fetches a workflow by ID.
func GetWorkflow(ctx context.Context, eng Engine, workflowID string) (*WorkflowState, error) {
	return eng.GetWorkflow(ctx, workflowID)
}

// ListWorkflows lists workflows matching filter.
func ListWorkflows(ctx context.Context, eng Engine, filter WorkflowFilter) ([]*WorkflowState, error) {
	return eng.ListWorkflows(ctx, filter)
}
