package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tally/internal/platform/metrics"
	"tally/pkg/platform/sentinel"
)

// Schema creates the snapshots table.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	run_id     UUID PRIMARY KEY,
	version    INTEGER NOT NULL,
	built_at   TIMESTAMPTZ NOT NULL,
	digest     TEXT NOT NULL,
	payload    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_built_at_idx ON snapshots (built_at DESC);
`

// pgxDB is the subset of *pgxpool.Pool the store uses.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps every published dataset as a JSONB row; Latest is the
// most recently built one.
type PostgresStore struct {
	db      pgxDB
	metrics *metrics.Metrics
}

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(db pgxDB, m *metrics.Metrics) *PostgresStore {
	return &PostgresStore{db: db, metrics: m}
}

// EnsureSchema creates the snapshots table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create snapshots schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, ds *Dataset) error {
	start := time.Now()
	defer func() { s.metrics.ObserveStore("postgres", "save", time.Since(start)) }()

	raw, err := encode(ds)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO snapshots (run_id, version, built_at, digest, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			version = EXCLUDED.version,
			built_at = EXCLUDED.built_at,
			digest = EXCLUDED.digest,
			payload = EXCLUDED.payload`,
		ds.RunID, ds.Version, ds.BuiltAt, ds.Digest, raw,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", ds.RunID, err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context) (*Dataset, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStore("postgres", "latest", time.Since(start)) }()

	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM snapshots ORDER BY built_at DESC LIMIT 1`,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return decode(raw)
}
