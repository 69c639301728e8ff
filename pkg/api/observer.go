package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; callbacks run on the
// goroutine executing the operation.
type Observer interface {
	// OnWorkflowCreated is called once per successful CreateWorkflow.
	OnWorkflowCreated(ctx context.Context, wf *WorkflowState)

	// OnAttemptStart is called before each execution attempt of an operation.
	OnAttemptStart(ctx context.Context, op *AtomicOperation)

	// OnAttemptCompleted is called after each attempt, for both successes
	// and failures (err != nil).
	OnAttemptCompleted(ctx context.Context, op *AtomicOperation, err error, duration time.Duration)

	// OnOperationCompleted is called when an operation commits.
	OnOperationCompleted(ctx context.Context, op *AtomicOperation)

	// OnOperationRolledBack is called when retries ran out and the snapshot
	// was restored. err is the last attempt error.
	OnOperationRolledBack(ctx context.Context, op *AtomicOperation, err error)

	// OnOperationFailed is called when an operation ends without committing.
	OnOperationFailed(ctx context.Context, op *AtomicOperation, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowCreated(ctx context.Context, wf *WorkflowState) {}
func (NoopObserver) OnAttemptStart(ctx context.Context, op *AtomicOperation)  {}
func (NoopObserver) OnAttemptCompleted(ctx context.Context, op *AtomicOperation, err error, d time.Duration) {
}
func (NoopObserver) OnOperationCompleted(ctx context.Context, op *AtomicOperation) {}
func (NoopObserver) OnOperationRolledBack(ctx context.Context, op *AtomicOperation, err error) {
}
func (NoopObserver) OnOperationFailed(ctx context.Context, op *AtomicOperation, err error) {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowCreated(ctx context.Context, wf *WorkflowState) {
	for _, o := range c.observers {
		o.OnWorkflowCreated(ctx, wf)
	}
}

func (c *CompositeObserver) OnAttemptStart(ctx context.Context, op *AtomicOperation) {
	for _, o := range c.observers {
		o.OnAttemptStart(ctx, op)
	}
}

func (c *CompositeObserver) OnAttemptCompleted(ctx context.Context, op *AtomicOperation, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnAttemptCompleted(ctx, op, err, d)
	}
}

func (c *CompositeObserver) OnOperationCompleted(ctx context.Context, op *AtomicOperation) {
	for _, o := range c.observers {
		o.OnOperationCompleted(ctx, op)
	}
}

func (c *CompositeObserver) OnOperationRolledBack(ctx context.Context, op *AtomicOperation, err error) {
	for _, o := range c.observers {
		o.OnOperationRolledBack(ctx, op, err)
	}
}

func (c *CompositeObserver) OnOperationFailed(ctx context.Context, op *AtomicOperation, err error) {
	for _, o := range c.observers {
		o.OnOperationFailed(ctx, op, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow and operation
// lifecycle callbacks using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowCreated(ctx context.Context, wf *WorkflowState) {
	o.Logger.InfoContext(ctx, "workflow_created",
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("stage", wf.Stage),
		slog.String("created_by", wf.Metadata.CreatedBy),
	)
}

func (o *LoggingObserver) OnAttemptStart(ctx context.Context, op *AtomicOperation) {
	o.Logger.DebugContext(ctx, "attempt_start",
		slog.String("workflow_id", op.WorkflowID),
		slog.String("operation_id", op.ID),
		slog.String("target_stage", op.TargetStage),
		slog.Int("retry_count", op.RetryCount),
	)
}

func (o *LoggingObserver) OnAttemptCompleted(ctx context.Context, op *AtomicOperation, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "attempt_completed",
		slog.String("workflow_id", op.WorkflowID),
		slog.String("operation_id", op.ID),
		slog.String("target_stage", op.TargetStage),
		slog.Int("retry_count", op.RetryCount),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnOperationCompleted(ctx context.Context, op *AtomicOperation) {
	o.Logger.InfoContext(ctx, "operation_completed",
		slog.String("workflow_id", op.WorkflowID),
		slog.String("operation_id", op.ID),
		slog.String("user_id", op.UserID),
	)
}

func (o *LoggingObserver) OnOperationRolledBack(ctx context.Context, op *AtomicOperation, err error) {
	o.Logger.WarnContext(ctx, "operation_rolled_back",
		slog.String("workflow_id", op.WorkflowID),
		slog.String("operation_id", op.ID),
		slog.String("restored_stage", op.RollbackData.Stage),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnOperationFailed(ctx context.Context, op *AtomicOperation, err error) {
	o.Logger.ErrorContext(ctx, "operation_failed",
		slog.String("workflow_id", op.WorkflowID),
		slog.String("operation_id", op.ID),
		slog.Int("retry_count", op.RetryCount),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate attempt durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsCreated     atomic.Int64
	attempts             atomic.Int64
	failedAttempts       atomic.Int64
	operationsCompleted  atomic.Int64
	operationsRolledBack atomic.Int64
	operationsFailed     atomic.Int64
	totalAttemptDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsCreated     int64
	Attempts             int64
	FailedAttempts       int64
	OperationsCompleted  int64
	OperationsRolledBack int64
	OperationsFailed     int64
	AvgAttemptDuration   time.Duration
}

func (m *BasicMetrics) OnWorkflowCreated(ctx context.Context, wf *WorkflowState) {
	m.workflowsCreated.Add(1)
}

func (m *BasicMetrics) OnAttemptCompleted(ctx context.Context, op *AtomicOperation, err error, d time.Duration) {
	m.attempts.Add(1)
	m.totalAttemptDuration.Add(d.Nanoseconds())
	if err != nil {
		m.failedAttempts.Add(1)
	}
}

func (m *BasicMetrics) OnOperationCompleted(ctx context.Context, op *AtomicOperation) {
	m.operationsCompleted.Add(1)
}

func (m *BasicMetrics) OnOperationRolledBack(ctx context.Context, op *AtomicOperation, err error) {
	m.operationsRolledBack.Add(1)
}

func (m *BasicMetrics) OnOperationFailed(ctx context.Context, op *AtomicOperation, err error) {
	m.operationsFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	attempts := m.attempts.Load()
	totalNs := m.totalAttemptDuration.Load()

	var avg time.Duration
	if attempts > 0 {
		avg = time.Duration(totalNs / attempts)
	}

	return BasicMetricsSnapshot{
		WorkflowsCreated:     m.workflowsCreated.Load(),
		Attempts:             attempts,
		FailedAttempts:       m.failedAttempts.Load(),
		OperationsCompleted:  m.operationsCompleted.Load(),
		OperationsRolledBack: m.operationsRolledBack.Load(),
		OperationsFailed:     m.operationsFailed.Load(),
		AvgAttemptDuration:   avg,
	}
}
