// Package engine implements the atomic operation executor: it owns the
// workflow state store, the lock manager and the operation table, and is
// the only code path that mutates them.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowgate/internal/eventbus"
	"github.com/petrijr/flowgate/internal/graph"
	"github.com/petrijr/flowgate/internal/lock"
	"github.com/petrijr/flowgate/internal/persistence"
	"github.com/petrijr/flowgate/internal/scheduler"
	"github.com/petrijr/flowgate/internal/state"
	"github.com/petrijr/flowgate/internal/taskqueue"
	"github.com/petrijr/flowgate/pkg/api"
)

// loadTimeout bounds the startup read of the persisted collections.
const loadTimeout = 5 * time.Second

// Config describes how to construct an engine. Zero fields get defaults:
// in-memory persistence, no-op observer, real clock, slog.Default, the
// default reconciliation graph and api.DefaultConfig settings.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Graph       *graph.Graph

	// Settings are the initial runtime settings. A nil pointer means
	// api.DefaultConfig.
	Settings *api.Config

	// Guards run, in order, before every stage move commits.
	Guards []api.Guard

	// Queue holds scheduled retries. Defaults to an in-memory queue.
	Queue taskqueue.Queue
}

type engineImpl struct {
	clock    clockwork.Clock
	logger   *slog.Logger
	observer api.Observer
	graph    *graph.Graph
	guards   []api.Guard
	store    persistence.Persistence
	queue    taskqueue.Queue
	bus      *eventbus.Bus
	sched    *scheduler.Scheduler

	cfgMu    sync.RWMutex
	settings api.Config

	// mu guards the critical section: states, locks, ops and handles are
	// only changed while it is held.
	mu      sync.Mutex
	states  *state.Store
	locks   *lock.Manager
	ops     map[string]*api.AtomicOperation
	handles map[string]*api.OperationHandle

	// persistMu orders full-collection writes. It is taken before mu is
	// released so writes land in commit order.
	persistMu sync.Mutex
}

// Ensure engineImpl implements api.Engine.
var _ api.Engine = (*engineImpl)(nil)

// NewEngineWithConfig creates a new Engine using the given configuration.
// Previously persisted workflows and operations are loaded; when the store
// cannot be read the engine logs a warning and starts empty.
func NewEngineWithConfig(cfg Config) (api.Engine, error) {
	return newEngine(cfg)
}

func newEngine(cfg Config) (*engineImpl, error) {
	settings := api.DefaultConfig()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine settings: %w", err)
	}

	e := &engineImpl{
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		graph:    cfg.Graph,
		guards:   cfg.Guards,
		store:    cfg.Persistence,
		queue:    cfg.Queue,
		settings: settings,
		states:   state.NewStore(),
		ops:      make(map[string]*api.AtomicOperation),
		handles:  make(map[string]*api.OperationHandle),
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.graph == nil {
		e.graph = graph.Default()
	}
	if e.store.Store == nil {
		e.store = persistence.New(nil)
	}
	if e.queue == nil {
		e.queue = taskqueue.NewInMemoryQueue()
	}
	e.bus = eventbus.New(e.logger)
	e.locks = lock.NewManager(e.clock, settings.LockTimeout)
	e.sched = scheduler.New(e.clock, e.logger,
		scheduler.Job{
			Name:     "operation_sweep",
			Interval: settings.OperationSweepInterval,
			Run: func(ctx context.Context) error {
				_, err := e.SweepOperations(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "lock_sweep",
			Interval: settings.LockSweepInterval,
			Run: func(ctx context.Context) error {
				_, _, err := e.SweepLocks(ctx)
				return err
			},
		},
	)

	e.load()
	return e, nil
}

// NewInMemoryEngine returns an Engine with default settings that keeps all
// state in memory.
func NewInMemoryEngine() api.Engine {
	e, err := newEngine(Config{})
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return e
}

// NewSQLiteEngine returns an Engine persisting to SQLite. The caller imports
// the driver, e.g. _ "modernc.org/sqlite".
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Persistence: persistence.New(store)})
}

// NewPostgresEngine returns an Engine persisting to PostgreSQL. The caller
// imports the driver, e.g. _ "github.com/jackc/pgx/v5/stdlib".
func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Persistence: persistence.New(store)})
}

// NewRedisEngine returns an Engine persisting to Redis under "flowgate:".
func NewRedisEngine(client *redis.Client) (api.Engine, error) {
	store := persistence.NewRedisStore(client, "flowgate:")
	return NewEngineWithConfig(Config{Persistence: persistence.New(store)})
}

// NewMongoEngine returns an Engine persisting to MongoDB.
func NewMongoEngine(client *mongo.Client) (api.Engine, error) {
	store := persistence.NewMongoStore(client, "", "")
	return NewEngineWithConfig(Config{Persistence: persistence.New(store)})
}

// load restores persisted state. Pending operations are re-queued with
// their recorded due time; one caught mid-attempt is treated as pending.
func (e *engineImpl) load() {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	wfs, err := e.store.LoadWorkflows(ctx)
	if err != nil {
		e.logger.Warn("persistence_unavailable",
			slog.String("phase", "load"),
			slog.Any("error", err),
		)
		return
	}
	ops, err := e.store.LoadOperations(ctx)
	if err != nil {
		e.logger.Warn("persistence_unavailable",
			slog.String("phase", "load"),
			slog.Any("error", err),
		)
		ops = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.states.Replace(wfs)
	restored := 0
	for _, wf := range wfs {
		if wf != nil {
			restored += e.locks.Restore(wf.Locks)
		}
	}

	requeued := 0
	for _, op := range ops {
		if op == nil || op.ID == "" {
			continue
		}
		if op.Status == api.OperationExecuting {
			op.Status = api.OperationPending
		}
		e.ops[op.ID] = op
		if op.Status != api.OperationPending {
			continue
		}
		e.handles[op.ID] = api.NewOperationHandle(op.ID)
		if err := e.enqueueLocked(ctx, op); err != nil {
			e.logger.Warn("requeue_failed", slog.String("operation_id", op.ID), slog.Any("error", err))
			continue
		}
		requeued++
	}

	e.logger.Info("engine_loaded",
		slog.Int("workflows", e.states.Len()),
		slog.Int("operations", len(e.ops)),
		slog.Int("requeued", requeued),
		slog.Int("locks", restored),
	)
}

func (e *engineImpl) enqueueLocked(ctx context.Context, op *api.AtomicOperation) error {
	return e.queue.Enqueue(ctx, taskqueue.Task{
		ID:          op.ID + "/" + fmt.Sprint(op.RetryCount),
		Type:        taskqueue.TaskTypeAttempt,
		OperationID: op.ID,
		WorkflowID:  op.WorkflowID,
		EnqueuedAt:  e.clock.Now(),
		NotBefore:   op.NextAttemptAt,
	})
}

func (e *engineImpl) Start(ctx context.Context) error {
	return e.sched.Start(ctx)
}

func (e *engineImpl) Stop() {
	e.sched.Stop()
}

func (e *engineImpl) Config() api.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.settings
}

func (e *engineImpl) UpdateConfig(ctx context.Context, update api.ConfigUpdate) (api.Config, error) {
	if err := ctx.Err(); err != nil {
		return api.Config{}, err
	}

	e.cfgMu.Lock()
	next := update.Apply(e.settings)
	if err := next.Validate(); err != nil {
		e.cfgMu.Unlock()
		return api.Config{}, fmt.Errorf("invalid config update: %w", err)
	}
	e.settings = next
	e.cfgMu.Unlock()

	e.locks.SetTimeout(next.LockTimeout)
	e.logger.Info("config_updated",
		slog.Bool("atomic_operations", next.EnableAtomicOperations),
		slog.Bool("locking", next.EnableLocking),
		slog.Duration("lock_timeout", next.LockTimeout),
		slog.Int("max_retries", next.MaxRetries),
	)

	cfg := next
	e.bus.Publish(api.Event{Type: api.EventConfigUpdated, At: e.clock.Now(), Config: &cfg})
	return next, nil
}

func (e *engineImpl) Subscribe(event api.EventType, h api.Handler) api.SubscriptionID {
	return e.bus.Subscribe(event, h)
}

func (e *engineImpl) SubscribeAll(h api.Handler) api.SubscriptionID {
	return e.bus.SubscribeAll(h)
}

func (e *engineImpl) Unsubscribe(event api.EventType, id api.SubscriptionID) bool {
	return e.bus.Unsubscribe(event, id)
}

func (e *engineImpl) GetWorkflow(ctx context.Context, workflowID string) (*api.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.states.Get(workflowID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, workflowID)
	}
	wf.Locks = e.locks.ForWorkflow(workflowID)
	return wf, nil
}

func (e *engineImpl) ListWorkflows(ctx context.Context, filter api.WorkflowFilter) ([]*api.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	wfs := e.states.List(filter)
	for _, wf := range wfs {
		wf.Locks = e.locks.ForWorkflow(wf.WorkflowID)
	}
	return wfs, nil
}

func (e *engineImpl) GetOperation(ctx context.Context, operationID string) (*api.AtomicOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	op, ok := e.ops[operationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrOperationNotFound, operationID)
	}
	return op.Clone(), nil
}

func (e *engineImpl) ListOperations(ctx context.Context, filter api.OperationFilter) ([]*api.AtomicOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*api.AtomicOperation, 0, len(e.ops))
	for _, op := range e.ops {
		if filter.WorkflowID != "" && op.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && op.Status != filter.Status {
			continue
		}
		out = append(out, op.Clone())
	}
	sortOperations(out)
	return out, nil
}

func (e *engineImpl) ListLocks(ctx context.Context) ([]api.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.locks.List(), nil
}

func sortOperations(ops []*api.AtomicOperation) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Timestamp.Equal(ops[j].Timestamp) {
			return ops[i].ID < ops[j].ID
		}
		return ops[i].Timestamp.Before(ops[j].Timestamp)
	})
}
