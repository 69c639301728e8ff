package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flowgate_collections (
			name       TEXT PRIMARY KEY,
			payload    BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) ReadCollection(ctx context.Context, c Collection) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM flowgate_collections
		WHERE name = $1
	`, string(c))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

func (s *PostgresStore) WriteCollection(ctx context.Context, c Collection, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flowgate_collections (name, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET payload    = EXCLUDED.payload,
		    updated_at = EXCLUDED.updated_at
	`,
		string(c),
		payload,
		time.Now().UTC(),
	)
	return err
}
