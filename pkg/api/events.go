package api

import "time"

// EventType identifies an engine notification on the event bus.
type EventType string

const (
	EventWorkflowCreated     EventType = "workflowCreated"
	EventWorkflowAdvanced    EventType = "workflowAdvanced"
	EventWorkflowUpdated     EventType = "workflowUpdated"
	EventOperationCompleted  EventType = "operationCompleted"
	EventOperationFailed     EventType = "operationFailed"
	EventOperationRolledBack EventType = "operationRolledBack"
	EventLockAcquired        EventType = "lockAcquired"
	EventLockReleased        EventType = "lockReleased"
	EventLockExpired         EventType = "lockExpired"
	EventConfigUpdated       EventType = "configUpdated"
)

// AllEventTypes lists every event the engine publishes.
var AllEventTypes = []EventType{
	EventWorkflowCreated,
	EventWorkflowAdvanced,
	EventWorkflowUpdated,
	EventOperationCompleted,
	EventOperationFailed,
	EventOperationRolledBack,
	EventLockAcquired,
	EventLockReleased,
	EventLockExpired,
	EventConfigUpdated,
}

// Event is a single bus notification. Only the fields relevant to Type are
// set; Workflow, Operation and Lock are copies owned by the receiver.
type Event struct {
	Type EventType
	At   time.Time

	WorkflowID string
	Workflow   *WorkflowState
	Operation  *AtomicOperation
	Lock       *Lock
	Config     *Config

	// Err is set on operationFailed and on the failed attempt that led to a
	// rollback.
	Err error
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine and should return quickly.
type Handler func(Event)

// SubscriptionID identifies a registered handler for Unsubscribe.
type SubscriptionID uint64
