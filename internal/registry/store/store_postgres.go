// Package store persists registry records so entity ids survive between runs
// and can be joined against by downstream tooling.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tally/internal/registry"
	"tally/pkg/domain"
	"tally/pkg/platform/tx"
)

// Schema creates the registry table.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_entities (
	kind       TEXT      NOT NULL,
	id         BIGINT    NOT NULL,
	keys       TEXT[]    NOT NULL,
	fields     JSONB     NOT NULL DEFAULT '{}',
	alternates JSONB     NOT NULL DEFAULT '{}',
	counters   JSONB     NOT NULL DEFAULT '{}',
	related_to TEXT[]    NOT NULL DEFAULT '{}',
	PRIMARY KEY (kind, id)
)`

const upsertEntity = `INSERT INTO registry_entities (kind, id, keys, fields, alternates, counters, related_to)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (kind, id) DO UPDATE SET
	keys = EXCLUDED.keys,
	fields = EXCLUDED.fields,
	alternates = EXCLUDED.alternates,
	counters = EXCLUDED.counters,
	related_to = EXCLUDED.related_to`

const selectByKind = `SELECT kind, id, keys, fields, alternates, counters, related_to
FROM registry_entities WHERE kind = $1 ORDER BY id`

// PostgresStore writes registry records to PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the registry table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create registry schema: %w", err)
	}
	return nil
}

// SaveAll upserts every record in one transaction.
func (s *PostgresStore) SaveAll(ctx context.Context, records []registry.Record) error {
	return tx.Run(ctx, s.db, func(ctx context.Context, t *sqlx.Tx) error {
		stmt, err := t.PreparexContext(ctx, upsertEntity)
		if err != nil {
			return fmt.Errorf("prepare registry upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			args, err := toArgs(rec)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("save %s %d: %w", rec.Kind, rec.ID, err)
			}
		}
		return nil
	})
}

type entityRow struct {
	Kind       string         `db:"kind"`
	ID         int64          `db:"id"`
	Keys       pq.StringArray `db:"keys"`
	Fields     []byte         `db:"fields"`
	Alternates []byte         `db:"alternates"`
	Counters   []byte         `db:"counters"`
	RelatedTo  pq.StringArray `db:"related_to"`
}

// Load returns the stored records of kind sorted by id.
func (s *PostgresStore) Load(ctx context.Context, kind registry.Kind) ([]registry.Record, error) {
	var rows []entityRow
	if err := s.db.SelectContext(ctx, &rows, selectByKind, string(kind)); err != nil {
		return nil, fmt.Errorf("load %s records: %w", kind, err)
	}
	out := make([]registry.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func toArgs(rec registry.Record) ([]any, error) {
	fields, err := jsonOrEmpty(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields of %s %d: %w", rec.Kind, rec.ID, err)
	}
	alternates, err := jsonOrEmpty(rec.Alternates)
	if err != nil {
		return nil, fmt.Errorf("encode alternates of %s %d: %w", rec.Kind, rec.ID, err)
	}
	counters, err := jsonOrEmpty(rec.Counters)
	if err != nil {
		return nil, fmt.Errorf("encode counters of %s %d: %w", rec.Kind, rec.ID, err)
	}
	venues := make([]string, len(rec.RelatedTo))
	for i, v := range rec.RelatedTo {
		venues[i] = v.String()
	}
	return []any{string(rec.Kind), int64(rec.ID), pq.Array(rec.Keys), fields, alternates, counters, pq.Array(venues)}, nil
}

func fromRow(row entityRow) (registry.Record, error) {
	rec := registry.Record{
		ID:   domain.EntityID(row.ID),
		Kind: registry.Kind(row.Kind),
		Keys: []string(row.Keys),
	}
	if err := decodeJSON(row.Fields, &rec.Fields); err != nil {
		return registry.Record{}, fmt.Errorf("decode fields of %s %d: %w", row.Kind, row.ID, err)
	}
	if err := decodeJSON(row.Alternates, &rec.Alternates); err != nil {
		return registry.Record{}, fmt.Errorf("decode alternates of %s %d: %w", row.Kind, row.ID, err)
	}
	if err := decodeJSON(row.Counters, &rec.Counters); err != nil {
		return registry.Record{}, fmt.Errorf("decode counters of %s %d: %w", row.Kind, row.ID, err)
	}
	for _, s := range row.RelatedTo {
		v, err := domain.ParseVenue(s)
		if err != nil {
			return registry.Record{}, fmt.Errorf("decode venue of %s %d: %w", row.Kind, row.ID, err)
		}
		rec.RelatedTo = append(rec.RelatedTo, v)
	}
	return rec, nil
}

func jsonOrEmpty[T any](m map[string]T) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeJSON[T any](data []byte, dst *map[string]T) error {
	if len(data) == 0 || string(data) == "{}" {
		return nil
	}
	return json.Unmarshal(data, dst)
}
