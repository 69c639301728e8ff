// Package taskqueue holds scheduled execution attempts for atomic
// operations: a failed attempt is re-enqueued with a NotBefore equal to the
// retry backoff, and the operation sweep drains whatever is due.
package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the sweep should do with a task.
type TaskType string

const (
	// TaskTypeAttempt runs the next execution attempt of an operation.
	TaskTypeAttempt TaskType = "attempt"
)

// Task is one scheduled attempt.
type Task struct {
	ID          string
	Type        TaskType
	OperationID string
	WorkflowID  string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task is eligible for processing.
	// Zero value means "immediately".
	NotBefore time.Time
}

// Queue is a delay queue of tasks.
type Queue interface {
	// Enqueue adds a task. A task for an operation that is already queued
	// replaces the earlier one.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the earliest task whose NotBefore is not
	// after now, or nil when nothing is due. It never blocks.
	Dequeue(ctx context.Context, now time.Time) (*Task, error)

	// Remove drops the queued task of an operation, if any.
	Remove(ctx context.Context, operationID string) (bool, error)

	// Contains reports whether an operation has a queued task.
	Contains(operationID string) bool

	// Len returns the number of queued tasks.
	Len() int
}
