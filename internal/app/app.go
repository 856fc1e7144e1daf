// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/api"
	"github.com/JakeFAU/odds-history-crawler/internal/clock/system"
	"github.com/JakeFAU/odds-history-crawler/internal/config"
	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/datenorm"
	"github.com/JakeFAU/odds-history-crawler/internal/extractor/oddsportal"
	"github.com/JakeFAU/odds-history-crawler/internal/hash/sha256"
	"github.com/JakeFAU/odds-history-crawler/internal/id/uuid"
	"github.com/JakeFAU/odds-history-crawler/internal/metrics"
	"github.com/JakeFAU/odds-history-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/odds-history-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/odds-history-crawler/internal/renderer/headless"
	"github.com/JakeFAU/odds-history-crawler/internal/renderer/static"
	"github.com/JakeFAU/odds-history-crawler/internal/runner"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/gcs"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/local"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/memory"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/postgres"
	"github.com/JakeFAU/odds-history-crawler/internal/storage/sqlite"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and closed by the CLI after the command finishes.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        crawler.Store
	publisher    crawler.Publisher
	runs         *memory.RunStore
	orchestrator *crawler.Orchestrator
	runner       *runner.Runner

	api     *api.Server
	status  *http.Server
	closers []func() error
}

// Option customizes New. Tests use them to avoid launching browsers.
type Option func(*options)

type options struct {
	renderer crawler.Renderer
}

// WithRenderer overrides the renderer selected by renderer.kind.
func WithRenderer(r crawler.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// New creates and initializes an App from cfg. It fails fast if any service cannot be built.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger.Info("Initializing application services...")
	metrics.Init()

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}
	clock := system.New(loc)
	ids := uuid.New()
	hasher := sha256.New()

	a := &App{cfg: cfg, logger: logger, runs: memory.NewRunStore()}

	store, err := a.buildStore(ctx, ids, hasher)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	if cfg.PubSub.Enabled {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		logger.Info("Publishing dataset notifications", zap.String("topic", cfg.PubSub.Topic))
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	renderer := o.renderer
	if renderer == nil {
		renderer = a.buildRenderer()
	}

	pauser := crawler.TimerPauser{}
	nav := crawler.NewNavigator(
		crawler.NewLinearRetryPolicy(cfg.Navigation.MaxAttempts, cfg.BackoffUnit()),
		crawler.NewLinearRetryPolicy(cfg.Navigation.WaitAttempts, cfg.BackoffUnit()),
		pauser,
		crawler.NavigatorConfig{Timeout: cfg.NavigationTimeout(), WaitTimeout: cfg.WaitTimeout()},
		logger,
	)
	oddsForward, oddsBackward := cfg.OddsThresholds()
	genericForward, genericBackward := cfg.GenericThresholds()
	extractor := oddsportal.NewExtractor(oddsportal.ExtractorConfig{
		BaseURL:      cfg.Crawl.BaseURL,
		Kickoffs:     datenorm.New(datenorm.Thresholds{Forward: genericForward, Backward: genericBackward}),
		Ticks:        datenorm.New(datenorm.Thresholds{Forward: oddsForward, Backward: oddsBackward}),
		ClickTimeout: cfg.ClickTimeout(),
	}, clock, logger)
	lister := oddsportal.NewLister(oddsportal.ListerConfig{
		BaseURL:      cfg.Crawl.BaseURL,
		ClickTimeout: cfg.ClickTimeout(),
	})

	delayMin, delayMax := cfg.BatchDelays()
	scanner := crawler.NewScanner(nav, lister, cfg.Crawl.MaxPages, logger)
	executor := crawler.NewExecutor(nav, extractor, pauser, crawler.ExecutorConfig{
		BatchSize:   cfg.Crawl.BatchSize,
		Concurrency: cfg.Crawl.Concurrency,
		DelayMin:    delayMin,
		DelayMax:    delayMax,
	}, logger)

	warmupURL := cfg.Crawl.WarmupURL
	if warmupURL == "" {
		warmupURL = strings.TrimRight(cfg.Crawl.BaseURL, "/") + "/"
	}
	a.orchestrator = crawler.NewOrchestrator(renderer, scanner, executor, a.store, a.publisher, clock, ids, crawler.Options{
		BaseURL:       cfg.Crawl.BaseURL,
		Boundary:      cfg.Crawl.SeasonBoundary,
		SessionBudget: cfg.SessionBudget(),
		Warmup: crawler.Warmup{
			HomeURL:         warmupURL,
			ConsentSelector: cfg.Crawl.ConsentSelector,
			Timeout:         cfg.NavigationTimeout(),
		},
		Topic: cfg.PubSub.Topic,
	}, logger)

	a.runner = runner.New(a.orchestrator, a.runs, ids, clock, runner.Config{
		Parallel: cfg.Runner.Parallel,
		Defaults: crawler.Request{
			Sport:     cfg.Crawl.Sport,
			Bookmaker: cfg.Crawl.Bookmaker,
			Mode:      crawler.ModeHistorical,
		},
	}, logger)

	logger.Info("Application services initialized successfully.",
		zap.String("renderer", cfg.Renderer.Kind),
		zap.String("storage", cfg.Storage.Backend),
	)
	return a, nil
}

func (a *App) buildStore(ctx context.Context, ids *uuid.Generator, hasher *sha256.Hasher) (crawler.Store, error) {
	cfg := a.cfg.Storage
	l := a.logger
	switch cfg.Backend {
	case "local":
		l.Info("Using local dataset store", zap.String("dir", cfg.Local.BaseDir))
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir, MinBytes: cfg.Local.MinBytes}, l)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return store, nil
	case "memory":
		l.Info("Using in-memory dataset store. Datasets are discarded on exit.")
		return memory.NewStore(), nil
	case "postgres":
		l.Info("Connecting to PostgreSQL...", zap.String("table", cfg.Postgres.Table))
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		}, ids, hasher)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare postgres schema: %w", err)
		}
		return store, nil
	case "sqlite":
		l.Info("Using SQLite dataset store", zap.String("path", cfg.SQLite.Path))
		store, err := sqlite.Open(ctx, cfg.SQLite.Path, hasher)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "gcs":
		l.Info("Using GCS dataset store", zap.String("bucket", cfg.GCS.Bucket))
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix}, hasher)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func (a *App) buildRenderer() crawler.Renderer {
	cfg := a.cfg.Renderer
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.DomainQPS, DefaultBurst: 1})
	if cfg.Kind == "static" {
		return static.New(static.Config{UserAgents: cfg.UserAgents, RespectRobots: cfg.RespectRobots}, limiter, a.logger)
	}
	return headless.New(headless.Config{
		Headless:    cfg.Headless,
		UserAgents:  cfg.UserAgents,
		HTMLTimeout: a.cfg.WaitTimeout(),
	}, limiter, a.logger)
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Store returns the configured dataset store.
func (a *App) Store() crawler.Store { return a.store }

// Orchestrator returns the crawl orchestrator.
func (a *App) Orchestrator() *crawler.Orchestrator { return a.orchestrator }

// Runner returns the job runner backed by the in-memory run store.
func (a *App) Runner() *runner.Runner { return a.runner }

// Runs returns the run store shared by the runner and the status server.
func (a *App) Runs() crawler.RunStore { return a.runs }

// StartStatusServer serves health, metrics and run endpoints on metrics.addr.
// It is a no-op when the address is empty.
func (a *App) StartStatusServer() {
	if a.cfg.Metrics.Addr == "" || a.status != nil {
		return
	}
	a.api = api.NewServer(a.runs, a.runner, a.logger)
	a.status = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("Starting status server", zap.String("addr", a.cfg.Metrics.Addr))
		if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.status.Shutdown(ctx); err != nil {
			a.logger.Warn("Error stopping status server", zap.Error(err))
		}
		cancel()
		a.api.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	// Best-effort flush.
	_ = a.logger.Sync()
}
