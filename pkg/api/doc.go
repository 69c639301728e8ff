// Package api contains the public types of the flowgate engine: workflow
// state, atomic operations, locks, configuration, events and the Engine
// interface itself.
//
// Most users interact with the higher-level flowgate package, which
// re-exports the types from here together with engine constructors. The api
// package is intended for integrations that implement Observers, Guards or
// event handlers, and for contributors extending the engine.
//
// # Workflow State
//
// A WorkflowState is created once, at Version 1 and StatusActive, and from
// then on changes only through AtomicOperations executed by an Engine. Each
// committed stage move appends one Transition; the list is append-only and is
// the audit trail of the workflow.
//
// # Operations
//
// Engine.Advance creates an AtomicOperation that captures a RollbackData
// snapshot before anything is mutated. The first attempt runs immediately;
// failed attempts are retried with backoff until MaxRetries is reached, after
// which the snapshot is restored and the operation ends as rolled_back.
//
// The AdvanceResult reports the first attempt. The OperationHandle in the
// result resolves with the terminal operation, so callers can wait for the
// eventual outcome without subscribing to events:
//
//	res, err := eng.Advance(ctx, "wf1", "mapping", "alice", data, api.AdvanceOptions{})
//	if err != nil {
//		return err
//	}
//	if res.Conflict != nil {
//		// someone else holds the stage
//	}
//	op, err := res.Handle.Wait(ctx)
//
// # Observability
//
// Observer receives synchronous callbacks for every attempt and terminal
// outcome. LoggingObserver, BasicMetrics and CompositeObserver are ready-made
// implementations. The event bus (Engine.Subscribe) carries the same outcomes
// as Event values for external collaborators.
package api
