// Package flowgate provides an embeddable engine that advances multi-stage
// workflows atomically.
//
// A workflow is a record that moves through a fixed graph of stages
// (ingestion, mapping, reconciliation, review, export, completed by
// default). Several users may try to move the same workflow at once;
// flowgate makes each move all-or-nothing, keeps other users off a stage
// while it is reserved, retries failed moves with backoff and restores the
// previous stage and data when retries run out.
//
// # Engine
//
// The Engine owns workflow state, locks and the operation table:
//
//	eng := flowgate.NewInMemoryEngine()
//	wf, _ := eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
//	res, _ := eng.Advance(ctx, "wf1", "mapping", "alice", data, flowgate.AdvanceOptions{})
//
// Advance returns after the first attempt. A lock held by another user is
// reported as res.Conflict, not as an error. When the first attempt fails
// a retry is scheduled and res.Handle resolves once the operation is
// completed, rolled back or failed. AdvanceAndWait blocks on that handle.
//
// Retries are driven by the engine's own scheduler (Engine.Start) or by
// calling SweepOperations and SweepLocks directly.
//
// # Persistence
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// Workflows and operations are written after every commit. When the store
// is unreachable the engine logs a warning and keeps working in memory.
//
// # Observing
//
// Every commit publishes events (workflowAdvanced, lockAcquired,
// operationRolledBack, ...) that can be consumed with Subscribe. Observers
// such as LoggingObserver and BasicMetrics receive per-attempt callbacks,
// and Bundle exports Prometheus metrics fed from the event bus.
//
// For a runnable tour, see the /examples directory or cmd/flowgate.
package flowgate
