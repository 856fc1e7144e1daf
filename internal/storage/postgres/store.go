// Package postgres persists datasets as JSONB rows.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for dataset rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NameIDs derives stable row IDs from dataset names.
type NameIDs interface {
	NameID(name string) string
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes datasets into Postgres.
type Store struct {
	pool   pool
	table  string
	ids    NameIDs
	hasher crawler.Hasher
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, ids NameIDs, hasher crawler.Hasher) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, ids, hasher)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, ids NameIDs, hasher crawler.Hasher) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil || hasher == nil {
		return nil, fmt.Errorf("id generator and hasher are required")
	}
	if table == "" {
		table = "datasets"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table, ids: ids, hasher: hasher}, nil
}

// EnsureSchema creates the dataset table and its key index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           UUID PRIMARY KEY,
	dataset_key  TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	mode         TEXT NOT NULL,
	sport        TEXT NOT NULL,
	region       TEXT,
	competition  TEXT,
	team         TEXT,
	team_id      TEXT,
	season       TEXT,
	bookmaker    TEXT NOT NULL,
	run_id       TEXT,
	events       INTEGER NOT NULL,
	checksum     TEXT NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL,
	payload      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_key_idx ON %[1]s (dataset_key, mode)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Exists reports whether a historical dataset row for key is present.
func (s *Store) Exists(ctx context.Context, key crawler.DatasetKey) (bool, error) {
	if key.Mode == crawler.ModeUpcoming {
		return false, nil
	}
	fragment := storage.Fragment(key)
	if fragment == "" {
		return false, nil
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE dataset_key = $1 AND mode = $2)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, fragment, string(key.Mode)).Scan(&exists); err != nil {
		return false, fmt.Errorf("query dataset: %w", err)
	}
	return exists, nil
}

// Save upserts d and returns a postgres://table/id location.
func (s *Store) Save(ctx context.Context, d crawler.Dataset) (string, error) {
	payload, err := storage.Encode(d)
	if err != nil {
		return "", err
	}
	checksum, err := s.hasher.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("hash dataset: %w", err)
	}
	name := storage.FileName(d)
	id := s.ids.NameID(name)
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, dataset_key, file_name, kind, mode, sport, region, competition, team, team_id,
	season, bookmaker, run_id, events, checksum, collected_at, payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
ON CONFLICT (id) DO UPDATE SET
	events = EXCLUDED.events,
	checksum = EXCLUDED.checksum,
	run_id = EXCLUDED.run_id,
	payload = EXCLUDED.payload`, s.table)

	args := []any{
		id,
		storage.Fragment(d.Key()),
		name,
		string(d.Kind),
		string(d.Mode),
		d.Sport,
		d.Region,
		d.Competition,
		d.Team,
		d.TeamID,
		d.Season,
		d.Bookmaker,
		d.RunID,
		len(d.Events),
		checksum,
		d.CollectedAt,
		string(payload),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert dataset: %w", err)
	}
	return fmt.Sprintf("postgres://%s/%s", s.table, id), nil
}
