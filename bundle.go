package flowgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flowgate/internal/config"
	"github.com/petrijr/flowgate/internal/engine"
	"github.com/petrijr/flowgate/internal/metrics"
	"github.com/petrijr/flowgate/internal/persistence"
)

// FileConfig is the full configuration read from flowgate.yaml and the
// FLOWGATE_* environment.
type FileConfig = config.Config

// DefaultFileConfig returns the configuration used when nothing is set.
var DefaultFileConfig = config.DefaultConfig

// LoadConfig reads configuration from path, or from the default search
// locations when path is empty.
func LoadConfig(path string) (*FileConfig, error) {
	l := config.NewLoader()
	if path != "" {
		return l.LoadFromFile(path)
	}
	return l.Load()
}

// Bundle wires together an Engine, its backing store connection and the
// telemetry attached to it, all built from one FileConfig.
//
// Typical usage:
//
//	cfg, _ := flowgate.LoadConfig("")
//	b, err := flowgate.Open(ctx, cfg, logger)
//	defer b.Close()
//	_ = b.Engine.Start(ctx)
type Bundle struct {
	Engine Engine

	// Stats counts lifecycle callbacks in process.
	Stats *BasicMetrics

	// Registry holds the Prometheus collectors fed from the event bus.
	Registry *prometheus.Registry

	closers []func() error
}

// Open builds a Bundle from cfg. The store connection is opened eagerly;
// an unreachable store still yields a working engine that keeps its state
// in memory and logs the failure.
func Open(ctx context.Context, cfg *FileConfig, logger *slog.Logger) (*Bundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	g, err := cfg.Graph()
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Stats:    &BasicMetrics{},
		Registry: prometheus.NewRegistry(),
	}
	store, err := b.openStore(ctx, cfg.Store)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	settings := cfg.Engine
	eng, err := engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.New(store),
		Observer:    NewCompositeObserver(NewLoggingObserver(logger), b.Stats),
		Logger:      logger,
		Graph:       g,
		Settings:    &settings,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Engine = eng

	col, err := metrics.NewCollector(b.Registry)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	col.Attach(eng)
	return b, nil
}

// MetricsHandler serves the bundle's Prometheus registry.
func (b *Bundle) MetricsHandler() http.Handler {
	return metrics.Handler(b.Registry)
}

// Close stops the engine sweeps and closes the store connection.
func (b *Bundle) Close() error {
	if b.Engine != nil {
		b.Engine.Stop()
	}
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Bundle) openStore(ctx context.Context, sc config.StoreConfig) (persistence.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return persistence.NewInMemoryStore(), nil

	case config.DriverSQLite:
		db, err := sql.Open("sqlite", sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", sc.DSN, err)
		}
		// One writer at a time; SQLite serializes anyway.
		db.SetMaxOpenConns(1)
		b.closers = append(b.closers, db.Close)
		return persistence.NewSQLiteStore(db)

	case config.DriverPostgres:
		db, err := sql.Open("pgx", sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		return persistence.NewPostgresStore(db)

	case config.DriverRedis:
		opts := &redis.Options{Addr: sc.DSN}
		if strings.Contains(sc.DSN, "://") {
			parsed, err := redis.ParseURL(sc.DSN)
			if err != nil {
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			opts = parsed
		}
		client := redis.NewClient(opts)
		b.closers = append(b.closers, client.Close)
		return persistence.NewRedisStore(client, sc.Prefix), nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(sc.DSN))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() error {
			return client.Disconnect(context.Background())
		})
		return persistence.NewMongoStore(client, sc.Database, sc.Collection), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}
