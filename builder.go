package flowgate

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowgate/internal/engine"
	"github.com/petrijr/flowgate/internal/graph"
	"github.com/petrijr/flowgate/internal/persistence"
)

// EngineBuilder provides a fluent API for assembling an Engine:
//
//	eng, err := flowgate.NewBuilder().
//	    WithSQLite(db).
//	    WithSettings(cfg).
//	    WithObserver(flowgate.NewLoggingObserver(logger)).
//	    WithGuard(requireApproval).
//	    Build()
//
// Problems found along the way are reported by Build.
type EngineBuilder struct {
	cfg  engine.Config
	open func() (persistence.Store, error)
	errs []error
}

// NewBuilder creates a builder for an in-memory engine with default settings.
func NewBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithSettings sets the initial runtime settings.
func (b *EngineBuilder) WithSettings(cfg Config) *EngineBuilder {
	b.cfg.Settings = &cfg
	return b
}

// WithObserver sets the lifecycle observer. Combine several with
// NewCompositeObserver.
func (b *EngineBuilder) WithObserver(obs Observer) *EngineBuilder {
	b.cfg.Observer = obs
	return b
}

// WithLogger sets the logger used for engine and audit lines.
func (b *EngineBuilder) WithLogger(logger *slog.Logger) *EngineBuilder {
	b.cfg.Logger = logger
	return b
}

// WithClock replaces the wall clock, typically with clockwork.NewFakeClock
// in tests.
func (b *EngineBuilder) WithClock(clock clockwork.Clock) *EngineBuilder {
	b.cfg.Clock = clock
	return b
}

// WithGuard appends a guard run before every stage move commits.
func (b *EngineBuilder) WithGuard(g Guard) *EngineBuilder {
	if g == nil {
		panic("flowgate: guard must not be nil")
	}
	b.cfg.Guards = append(b.cfg.Guards, g)
	return b
}

// WithGraph replaces the default transition graph. path is the canonical
// forward path used for progress; edges lists the allowed moves.
func (b *EngineBuilder) WithGraph(name string, path []string, edges map[string][]string) *EngineBuilder {
	g, err := graph.New(name, path, edges)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.cfg.Graph = g
	return b
}

// WithGraphFile loads the transition graph from a YAML file.
func (b *EngineBuilder) WithGraphFile(path string) *EngineBuilder {
	g, err := graph.LoadFile(path)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.cfg.Graph = g
	return b
}

// WithSQLite persists to db. The caller imports the driver.
func (b *EngineBuilder) WithSQLite(db *sql.DB) *EngineBuilder {
	b.open = func() (persistence.Store, error) { return persistence.NewSQLiteStore(db) }
	return b
}

// WithPostgres persists to db through the pgx stdlib driver.
func (b *EngineBuilder) WithPostgres(db *sql.DB) *EngineBuilder {
	b.open = func() (persistence.Store, error) { return persistence.NewPostgresStore(db) }
	return b
}

// WithRedis persists to Redis under keys starting with prefix. An empty
// prefix selects "flowgate:".
func (b *EngineBuilder) WithRedis(client *redis.Client, prefix string) *EngineBuilder {
	b.open = func() (persistence.Store, error) { return persistence.NewRedisStore(client, prefix), nil }
	return b
}

// WithMongo persists to one MongoDB collection. Empty names select
// "flowgate" and "collections".
func (b *EngineBuilder) WithMongo(client *mongo.Client, database, collection string) *EngineBuilder {
	b.open = func() (persistence.Store, error) {
		return persistence.NewMongoStore(client, database, collection), nil
	}
	return b
}

// Build constructs the Engine. It does not start the background sweeps;
// call Engine.Start for that.
func (b *EngineBuilder) Build() (Engine, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	cfg := b.cfg
	if b.open != nil {
		store, err := b.open()
		if err != nil {
			return nil, err
		}
		cfg.Persistence = persistence.New(store)
	}
	return engine.NewEngineWithConfig(cfg)
}
