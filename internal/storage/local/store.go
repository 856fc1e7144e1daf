// Package local persists datasets as JSON files in a directory.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/storage"
)

const lockName = ".odds-history.lock"

// Config captures the parameters for the local dataset store.
type Config struct {
	// BaseDir is the root directory where datasets are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// MinBytes rejects encoded datasets smaller than this many bytes.
	MinBytes int `mapstructure:"min_bytes" yaml:"min_bytes"`
	// LockTimeout bounds how long Save waits for another process holding the directory.
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

// Store writes datasets to the local filesystem. Writers in other processes are
// serialized through a lock file in BaseDir.
type Store struct {
	cfg    Config
	lock   *flock.Flock
	logger *zap.Logger
}

// New creates a local dataset store, creating BaseDir when missing.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if cfg.MinBytes < 0 {
		return nil, fmt.Errorf("min_bytes must be >= 0")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{
		cfg:    cfg,
		lock:   flock.New(filepath.Join(cfg.BaseDir, lockName)),
		logger: logger,
	}, nil
}

// Exists reports whether a dataset file for key is already present.
func (s *Store) Exists(_ context.Context, key crawler.DatasetKey) (bool, error) {
	if key.Mode == crawler.ModeUpcoming {
		return false, nil
	}
	entries, err := os.ReadDir(s.cfg.BaseDir)
	if err != nil {
		return false, fmt.Errorf("list datasets: %w", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && storage.Matches(entry.Name(), key) {
			return true, nil
		}
	}
	return false, nil
}

// Save encodes d and writes it atomically, returning a file:// URI.
func (s *Store) Save(ctx context.Context, d crawler.Dataset) (string, error) {
	data, err := storage.Encode(d)
	if err != nil {
		return "", err
	}
	if len(data) < s.cfg.MinBytes {
		return "", fmt.Errorf("%w: %d bytes, need %d", crawler.ErrDatasetTooSmall, len(data), s.cfg.MinBytes)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("lock dataset directory: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("lock dataset directory: not acquired")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release dataset lock", zap.Error(err))
		}
	}()

	fullPath := filepath.Join(s.cfg.BaseDir, storage.FileName(d))
	tmp, err := os.CreateTemp(s.cfg.BaseDir, ".dataset-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Debug("dataset written", zap.String("path", fullPath), zap.Int("bytes", len(data)))
	return fmt.Sprintf("file://%s", fullPath), nil
}
