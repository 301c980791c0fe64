package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const createSnapshotTableSQL = `
CREATE TABLE IF NOT EXISTS edge_snapshots (
	id SERIAL PRIMARY KEY,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresAdapter persists the snapshot as the most recent row in a single
// table, keyed by insertion order rather than a fixed single-row id so
// Save never needs a read-modify-write round trip.
type PostgresAdapter struct {
	db *sqlx.DB
}

// NewPostgresAdapter opens dsn and ensures the snapshot table exists.
func NewPostgresAdapter(dsn string) (*PostgresAdapter, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: connect postgres: %w", err)
	}
	if _, err := db.Exec(createSnapshotTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ensure snapshot table: %w", err)
	}
	return &PostgresAdapter{db: db}, nil
}

// RunMigrations applies any versioned migration files at migrationsPath,
// for deployments that prefer schema-managed rollout over the adapter's
// own ensure-table call.
func RunMigrations(dsn, migrationsPath string) error {
	driverDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("persistence: open for migration: %w", err)
	}
	defer driverDB.Close()

	driver, err := postgres.WithInstance(driverDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("persistence: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("persistence: migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("persistence: apply migrations: %w", err)
	}
	return nil
}

// Load fetches the most recently saved snapshot row. An empty table is not
// an error; it returns (nil, nil).
func (p *PostgresAdapter) Load(ctx context.Context) (*Snapshot, error) {
	var payload []byte
	err := p.db.GetContext(ctx, &payload,
		`SELECT payload FROM edge_snapshots ORDER BY id DESC LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: query snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("persistence: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save inserts snap as a new row. Older rows are left in place for
// diagnostics; callers that care about table growth can prune externally.
func (p *PostgresAdapter) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO edge_snapshots (payload) VALUES ($1)`, payload)
	if err != nil {
		return fmt.Errorf("persistence: insert snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *PostgresAdapter) Close() error {
	return p.db.Close()
}
