package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/flowgate/internal/backoff"
	"github.com/petrijr/flowgate/internal/state"
	"github.com/petrijr/flowgate/pkg/api"
)

func (e *engineImpl) CreateWorkflow(ctx context.Context, workflowID, initialStage, userID string, data map[string]any) (*api.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workflowID == "" {
		return nil, errors.New("workflow id is required")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if !e.graph.HasStage(initialStage) {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownStage, initialStage)
	}

	now := e.clock.Now()
	payload := api.CloneData(data)
	wf := &api.WorkflowState{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Stage:      initialStage,
		Status:     api.StatusActive,
		Progress:   e.graph.Progress(initialStage),
		Data:       payload,
		Metadata: api.Metadata{
			CreatedBy:      userID,
			CreatedAt:      now,
			LastModifiedBy: userID,
			LastModifiedAt: now,
			Version:        1,
			Checksum:       state.Checksum(payload),
		},
		Transitions: []api.Transition{},
		Locks:       []api.Lock{},
	}

	e.mu.Lock()
	if err := e.states.Create(wf); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	fx := &effects{persist: true}
	created := wf.Clone()
	fx.observe(func() { e.observer.OnWorkflowCreated(ctx, created) })
	fx.publish(api.Event{Type: api.EventWorkflowCreated, At: now, WorkflowID: workflowID, Workflow: wf.Clone()})
	e.commit(ctx, fx)

	if e.Config().EnableAuditLog {
		e.logger.Info("audit",
			slog.String("action", "create"),
			slog.String("workflow_id", workflowID),
			slog.String("user_id", userID),
			slog.String("stage", initialStage),
		)
	}
	return wf.Clone(), nil
}

func (e *engineImpl) Advance(ctx context.Context, workflowID, targetStage, userID string, data map[string]any, opts api.AdvanceOptions) (*api.AdvanceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := e.Config()
	if !cfg.EnableAtomicOperations {
		return nil, api.ErrEngineDisabled
	}
	if opts.LockType == "" {
		opts.LockType = api.LockExclusive
	}

	e.mu.Lock()

	wf, ok := e.states.Get(workflowID)
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, workflowID)
	}

	if cfg.EnableLocking && !opts.ForceAdvance {
		if conflict := e.locks.Conflict(workflowID, targetStage, userID); conflict != nil {
			e.mu.Unlock()
			return &api.AdvanceResult{Conflict: conflict}, nil
		}
	}
	if cfg.EnableConflictDetection && opts.ExpectedVersion > 0 && wf.Metadata.Version != opts.ExpectedVersion {
		e.mu.Unlock()
		return &api.AdvanceResult{Conflict: &api.LockConflict{
			Reason:          api.ConflictVersion,
			WorkflowID:      workflowID,
			Stage:           targetStage,
			ExpectedVersion: opts.ExpectedVersion,
			ActualVersion:   wf.Metadata.Version,
		}}, nil
	}

	now := e.clock.Now()
	op := &api.AtomicOperation{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		OperationType: api.OperationAdvance,
		UserID:        userID,
		Timestamp:     now,
		TargetStage:   targetStage,
		Data:          api.CloneData(data),
		RollbackData:  api.RollbackData{Stage: wf.Stage, Data: api.CloneData(wf.Data)},
		Status:        api.OperationPending,
		MaxRetries:    cfg.MaxRetries,
		Options:       opts,
		NextAttemptAt: now,
	}
	e.ops[op.ID] = op
	handle := api.NewOperationHandle(op.ID)
	e.handles[op.ID] = handle

	fx := &effects{persist: true}
	attemptErr := e.attemptLocked(ctx, op, cfg, fx)
	result := &api.AdvanceResult{
		Success:   attemptErr == nil,
		Operation: op.Clone(),
		Err:       attemptErr,
		Handle:    handle,
	}
	e.commit(ctx, fx)

	return result, nil
}

func (e *engineImpl) UpdateStatus(ctx context.Context, workflowID string, status api.Status, userID string) (*api.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid workflow status %q", status)
	}
	cfg := e.Config()

	e.mu.Lock()

	wf, ok := e.states.Get(workflowID)
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, workflowID)
	}

	now := e.clock.Now()
	op := &api.AtomicOperation{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		OperationType: api.OperationUpdate,
		UserID:        userID,
		Timestamp:     now,
		TargetStatus:  status,
		Data:          map[string]any{},
		RollbackData:  api.RollbackData{Stage: wf.Stage, Data: api.CloneData(wf.Data)},
		Status:        api.OperationExecuting,
		MaxRetries:    1,
	}
	e.ops[op.ID] = op

	fx := &effects{persist: true}
	updated, err := e.states.Update(workflowID, func(wf *api.WorkflowState) error {
		wf.Status = status
		e.touch(wf, userID, now, cfg)
		return nil
	})
	if err != nil {
		op.Status = api.OperationFailed
		op.LastError = err.Error()
		op.CompletedAt = now
		e.commit(ctx, fx)
		return nil, err
	}

	op.Status = api.OperationCompleted
	op.CompletedAt = now
	e.audit(cfg, op, wf.Stage, updated)

	done := op.Clone()
	fx.observe(func() { e.observer.OnOperationCompleted(ctx, done) })
	fx.publish(api.Event{Type: api.EventWorkflowUpdated, At: now, WorkflowID: workflowID, Workflow: updated.Clone(), Operation: op.Clone()})
	fx.publish(api.Event{Type: api.EventOperationCompleted, At: now, WorkflowID: workflowID, Operation: op.Clone()})
	e.commit(ctx, fx)

	return updated, nil
}

// attemptLocked runs one execution attempt of op. It returns the attempt
// error; the retry or the terminal outcome is already recorded in op and
// fx when it returns. Callers hold e.mu.
func (e *engineImpl) attemptLocked(ctx context.Context, op *api.AtomicOperation, cfg api.Config, fx *effects) error {
	op.Status = api.OperationExecuting
	started := e.clock.Now()
	starting := op.Clone()
	fx.observe(func() { e.observer.OnAttemptStart(ctx, starting) })

	err := e.applyLocked(ctx, op, cfg, fx)

	attempt := op.Clone()
	took := e.clock.Since(started)
	fx.observe(func() { e.observer.OnAttemptCompleted(ctx, attempt, err, took) })

	if err == nil {
		now := e.clock.Now()
		op.Status = api.OperationCompleted
		op.CompletedAt = now
		op.LastError = ""
		e.dropTaskLocked(ctx, op.ID)

		done := op.Clone()
		fx.observe(func() { e.observer.OnOperationCompleted(ctx, done) })
		fx.publish(api.Event{Type: api.EventOperationCompleted, At: now, WorkflowID: op.WorkflowID, Operation: op.Clone()})
		fx.resolve(op)
		return nil
	}

	e.failAttemptLocked(ctx, op, err, cfg, fx)
	return err
}

// applyLocked is the mutation step: lock, validate, guard, commit.
func (e *engineImpl) applyLocked(ctx context.Context, op *api.AtomicOperation, cfg api.Config, fx *effects) error {
	current, ok := e.states.Get(op.WorkflowID)
	if !ok {
		return fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, op.WorkflowID)
	}

	if cfg.EnableLocking {
		res := e.locks.Acquire(op.WorkflowID, op.TargetStage, op.UserID, op.Options.LockType)
		if res.Evicted != nil {
			fx.publish(api.Event{Type: api.EventLockExpired, At: e.clock.Now(), WorkflowID: op.WorkflowID, Lock: res.Evicted})
		}
		if res.Conflict != nil {
			return fmt.Errorf("%w: %s/%s held by %s", api.ErrLockUnavailable, op.WorkflowID, op.TargetStage, res.Conflict.Holder.UserID)
		}
		if !res.Renewed {
			l := res.Lock
			fx.publish(api.Event{Type: api.EventLockAcquired, At: e.clock.Now(), WorkflowID: op.WorkflowID, Lock: &l})
		}
	}

	if !e.graph.IsValidTransition(current.Stage, op.TargetStage) {
		return fmt.Errorf("%w: %s -> %s", api.ErrInvalidTransition, current.Stage, op.TargetStage)
	}

	if len(e.guards) > 0 {
		rev := e.states.Revision(op.WorkflowID)
		if err := e.runGuards(ctx, current, op); err != nil {
			return err
		}
		if e.states.Revision(op.WorkflowID) != rev {
			return fmt.Errorf("%w: %s changed while guards ran", api.ErrVersionMismatch, op.WorkflowID)
		}
	}

	now := e.clock.Now()
	updated, err := e.states.Update(op.WorkflowID, func(wf *api.WorkflowState) error {
		if cfg.EnableConflictDetection && op.Options.ExpectedVersion > 0 && wf.Metadata.Version != op.Options.ExpectedVersion {
			return fmt.Errorf("%w: expected %d, have %d", api.ErrVersionMismatch, op.Options.ExpectedVersion, wf.Metadata.Version)
		}
		from := wf.Stage
		wf.Data = state.Merge(wf.Data, op.Data)
		wf.Stage = op.TargetStage
		wf.Progress = e.graph.Progress(op.TargetStage)
		wf.Transitions = append(wf.Transitions, api.Transition{
			ID:          uuid.NewString(),
			FromStage:   from,
			ToStage:     op.TargetStage,
			TriggeredBy: op.UserID,
			TriggeredAt: now,
			Data:        api.CloneData(op.Data),
			Metadata: map[string]any{
				"operationId": op.ID,
				"retryCount":  op.RetryCount,
			},
		})
		e.touch(wf, op.UserID, now, cfg)
		return nil
	})
	if err != nil {
		return err
	}

	e.audit(cfg, op, current.Stage, updated)
	fx.publish(api.Event{Type: api.EventWorkflowAdvanced, At: now, WorkflowID: op.WorkflowID, Workflow: updated, Operation: op.Clone()})
	return nil
}

// runGuards evaluates the guards on copies with e.mu released, so a guard
// may call back into the engine. Callers hold e.mu; it is held again when
// runGuards returns.
func (e *engineImpl) runGuards(ctx context.Context, wf *api.WorkflowState, op *api.AtomicOperation) error {
	guardWF := wf.Clone()
	guardOp := op.Clone()

	e.mu.Unlock()
	defer e.mu.Lock()

	for _, g := range e.guards {
		if err := g(ctx, guardWF, guardOp); err != nil {
			return fmt.Errorf("guard rejected %s -> %s: %w", guardWF.Stage, guardOp.TargetStage, err)
		}
	}
	return nil
}

// touch records a committed mutation on wf.
func (e *engineImpl) touch(wf *api.WorkflowState, userID string, now time.Time, cfg api.Config) {
	wf.Metadata.LastModifiedBy = userID
	wf.Metadata.LastModifiedAt = now
	if cfg.EnableVersionControl {
		wf.Metadata.Version++
		wf.Metadata.Checksum = state.Checksum(wf.Data)
	}
}

// failAttemptLocked counts a failed attempt and either schedules the next
// one or ends the operation.
func (e *engineImpl) failAttemptLocked(ctx context.Context, op *api.AtomicOperation, cause error, cfg api.Config, fx *effects) {
	now := e.clock.Now()
	op.RetryCount++
	op.LastError = cause.Error()

	if op.RetryCount >= op.MaxRetries {
		e.finishLocked(ctx, op, cause, cfg, fx)
		return
	}

	next := now.Add(backoff.ForConfig(cfg).Delay(op.RetryCount))
	if deadline, ok := e.deadline(op, cfg); ok && next.After(deadline) {
		e.finishLocked(ctx, op, fmt.Errorf("%w: retry due after deadline: %w", api.ErrOperationTimeout, cause), cfg, fx)
		return
	}

	op.Status = api.OperationPending
	op.NextAttemptAt = next
	if err := e.enqueueLocked(ctx, op); err != nil {
		// The operation sweep also re-drives pending operations that are not
		// queued, so a failed enqueue only delays the retry.
		e.logger.Warn("enqueue_failed", slog.String("operation_id", op.ID), slog.Any("error", err))
	}
	e.logger.Debug("retry_scheduled",
		slog.String("operation_id", op.ID),
		slog.Int("retry_count", op.RetryCount),
		slog.Time("next_attempt_at", next),
	)
}

// deadline is the instant after which no further attempt starts.
func (e *engineImpl) deadline(op *api.AtomicOperation, cfg api.Config) (time.Time, bool) {
	timeout := op.Options.Timeout
	if timeout <= 0 {
		timeout = cfg.OperationTimeout
	}
	if timeout <= 0 {
		return time.Time{}, false
	}
	return op.Timestamp.Add(timeout), true
}

// finishLocked ends an operation that will not be attempted again: it is
// rolled back when rollback is enabled and marked failed otherwise.
// operationFailed is published in both cases.
func (e *engineImpl) finishLocked(ctx context.Context, op *api.AtomicOperation, cause error, cfg api.Config, fx *effects) {
	now := e.clock.Now()
	op.LastError = cause.Error()
	op.CompletedAt = now
	e.dropTaskLocked(ctx, op.ID)

	if cfg.EnableRollback {
		if err := e.rollbackLocked(op, cfg, fx); err != nil {
			e.logger.Error("rollback_failed",
				slog.String("workflow_id", op.WorkflowID),
				slog.String("operation_id", op.ID),
				slog.Any("error", err),
			)
			cause = fmt.Errorf("rollback failed: %w (after: %w)", err, cause)
			op.LastError = cause.Error()
			op.Status = api.OperationFailed
		} else {
			op.Status = api.OperationRolledBack
			rolled := op.Clone()
			fx.observe(func() { e.observer.OnOperationRolledBack(ctx, rolled, cause) })
			fx.publish(api.Event{Type: api.EventOperationRolledBack, At: now, WorkflowID: op.WorkflowID, Operation: op.Clone(), Err: cause})
		}
	} else {
		op.Status = api.OperationFailed
	}

	failed := op.Clone()
	fx.observe(func() { e.observer.OnOperationFailed(ctx, failed, cause) })
	fx.publish(api.Event{Type: api.EventOperationFailed, At: now, WorkflowID: op.WorkflowID, Operation: op.Clone(), Err: cause})
	fx.resolve(op)
}

// rollbackLocked restores the pre-attempt snapshot of op. It never
// re-validates the transition graph. The restore is recorded as its own
// completed rollback operation.
func (e *engineImpl) rollbackLocked(op *api.AtomicOperation, cfg api.Config, fx *effects) error {
	now := e.clock.Now()
	restored, err := e.states.Update(op.WorkflowID, func(wf *api.WorkflowState) error {
		wf.Stage = op.RollbackData.Stage
		wf.Data = api.CloneData(op.RollbackData.Data)
		wf.Progress = e.graph.Progress(wf.Stage)
		e.touch(wf, op.UserID, now, cfg)
		return nil
	})
	if err != nil {
		return err
	}

	rb := &api.AtomicOperation{
		ID:            uuid.NewString(),
		WorkflowID:    op.WorkflowID,
		OperationType: api.OperationRollback,
		UserID:        op.UserID,
		Timestamp:     now,
		TargetStage:   op.RollbackData.Stage,
		Data:          map[string]any{},
		Dependencies:  []string{op.ID},
		RollbackData:  op.RollbackData,
		Status:        api.OperationCompleted,
		MaxRetries:    1,
		CompletedAt:   now,
	}
	rb.RollbackData.Data = api.CloneData(op.RollbackData.Data)
	e.ops[rb.ID] = rb

	e.audit(cfg, rb, op.TargetStage, restored)
	fx.publish(api.Event{Type: api.EventWorkflowUpdated, At: now, WorkflowID: op.WorkflowID, Workflow: restored, Operation: rb.Clone()})
	return nil
}

func (e *engineImpl) dropTaskLocked(ctx context.Context, operationID string) {
	if _, err := e.queue.Remove(context.WithoutCancel(ctx), operationID); err != nil {
		e.logger.Warn("dequeue_failed", slog.String("operation_id", operationID), slog.Any("error", err))
	}
}

func (e *engineImpl) audit(cfg api.Config, op *api.AtomicOperation, from string, wf *api.WorkflowState) {
	if !cfg.EnableAuditLog {
		return
	}
	e.logger.Info("audit",
		slog.String("action", string(op.OperationType)),
		slog.String("workflow_id", op.WorkflowID),
		slog.String("operation_id", op.ID),
		slog.String("user_id", op.UserID),
		slog.String("from_stage", from),
		slog.String("to_stage", wf.Stage),
		slog.String("status", string(wf.Status)),
		slog.Int64("version", wf.Metadata.Version),
		slog.String("checksum", wf.Metadata.Checksum),
	)
}

// CancelOperation rolls back a pending operation before its next attempt.
func (e *engineImpl) CancelOperation(ctx context.Context, operationID string) (*api.AtomicOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := e.Config()

	e.mu.Lock()
	op, ok := e.ops[operationID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", api.ErrOperationNotFound, operationID)
	}
	if op.Status != api.OperationPending {
		e.mu.Unlock()
		return nil, fmt.Errorf("cannot cancel operation %s in status %s", operationID, op.Status)
	}

	fx := &effects{persist: true}
	e.finishLocked(ctx, op, api.ErrOperationCancelled, cfg, fx)
	out := op.Clone()
	e.commit(ctx, fx)
	return out, nil
}
