package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/app"
	"github.com/JakeFAU/odds-history-crawler/internal/config"
	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/local"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/memory"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/sqlite"
)

type downRenderer struct{}

func (downRenderer) Open(context.Context) (crawler.Session, error) {
	return nil, errors.New("browser unavailable")
}

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = backend
	cfg.Storage.Local.BaseDir = filepath.Join(t.TempDir(), "datasets")
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "datasets.db")
	cfg.Renderer.Kind = "static"
	cfg.Crawl.BatchDelayMinMs = 0
	cfg.Crawl.BatchDelayMaxMs = 0
	return cfg
}

func TestNewWiresSelectedStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		check   func(t *testing.T, store crawler.Store)
	}{
		{backend: "memory", check: func(t *testing.T, store crawler.Store) {
			assert.IsType(t, &memory.Store{}, store)
		}},
		{backend: "local", check: func(t *testing.T, store crawler.Store) {
			assert.IsType(t, &local.Store{}, store)
		}},
		{backend: "sqlite", check: func(t *testing.T, store crawler.Store) {
			assert.IsType(t, &sqlite.Store{}, store)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()
			a, err := app.New(context.Background(), testConfig(t, tt.backend), zap.NewNop())
			require.NoError(t, err)
			defer a.Close()

			tt.check(t, a.Store())
			assert.NotNil(t, a.Orchestrator())
			assert.NotNil(t, a.Runner())
			assert.NotNil(t, a.Runs())
		})
	}
}

func TestNewRejectsBadPostgresDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "postgres")
	cfg.Storage.Postgres.DSN = "::not a dsn::"
	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "postgres")
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "memory")
	cfg.Storage.Backend = "s3"
	_, err := app.New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown storage backend")
}

func TestRunnerRecordsFailedRun(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t, "memory"), zap.NewNop(), app.WithRenderer(downRenderer{}))
	require.NoError(t, err)
	defer a.Close()

	id, req, err := a.Runner().Submit(context.Background(), crawler.Request{
		Region:      "england",
		Competition: "premier league",
		Season:      "2024/2025",
	})
	require.NoError(t, err)
	require.Equal(t, "football", req.Sport)
	require.Equal(t, "bet365", req.Bookmaker)

	res := a.Runner().Execute(context.Background(), id, "epl", req)
	require.False(t, res.Passed())

	run, err := a.Runs().GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, crawler.RunFailed, run.Status)
	require.Len(t, run.Targets, 1)
	require.Contains(t, run.Targets[0].Error, "browser unavailable")
}

func TestStartStatusServerDisabledWithoutAddr(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t, "memory"), nil)
	require.NoError(t, err)
	a.StartStatusServer()
	a.Close()
}
