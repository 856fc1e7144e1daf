// Package sqlite persists datasets in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/storage"
)

// Store keeps one row per dataset. SQLite allows a single writer, so the pool holds one
// connection.
type Store struct {
	db     *sql.DB
	path   string
	hasher crawler.Hasher
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string, hasher crawler.Hasher) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite.path is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path, hasher: hasher}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		file_name TEXT PRIMARY KEY,
		dataset_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		mode TEXT NOT NULL,
		sport TEXT NOT NULL,
		region TEXT,
		competition TEXT,
		team TEXT,
		season TEXT,
		bookmaker TEXT NOT NULL,
		run_id TEXT,
		events INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		collected_at DATETIME NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_key ON datasets(dataset_key, mode);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
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
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM datasets WHERE dataset_key = ? AND mode = ?`,
		fragment, string(key.Mode),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query dataset: %w", err)
	}
	return n > 0, nil
}

// Save upserts d and returns a sqlite://path#file_name location.
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
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO datasets (
		file_name, dataset_key, kind, mode, sport, region, competition, team, season,
		bookmaker, run_id, events, checksum, collected_at, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(file_name) DO UPDATE SET
		events = excluded.events,
		checksum = excluded.checksum,
		run_id = excluded.run_id,
		payload = excluded.payload`,
		name, storage.Fragment(d.Key()), string(d.Kind), string(d.Mode), d.Sport, d.Region,
		d.Competition, d.Team, d.Season, d.Bookmaker, d.RunID, len(d.Events), checksum,
		d.CollectedAt.UTC(), string(payload),
	)
	if err != nil {
		return "", fmt.Errorf("insert dataset: %w", err)
	}
	return fmt.Sprintf("sqlite://%s#%s", s.path, name), nil
}

// Load returns the dataset stored under name.
func (s *Store) Load(ctx context.Context, name string) (crawler.Dataset, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE file_name = ?`, name).Scan(&payload)
	if err != nil {
		return crawler.Dataset{}, fmt.Errorf("load dataset %s: %w", name, err)
	}
	return storage.Decode([]byte(payload))
}
