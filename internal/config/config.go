// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/odds-history-crawler/internal/season"
)

// AppName names the XDG data directory.
const AppName = "odds-history-crawler"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Dates      DatesConfig      `mapstructure:"dates"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Runner     RunnerConfig     `mapstructure:"runner"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig governs targets, batching and session handling.
type CrawlConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Sport           string `mapstructure:"sport"`
	Bookmaker       string `mapstructure:"bookmaker"`
	SeasonBoundary  string `mapstructure:"season_boundary"`
	Timezone        string `mapstructure:"timezone"`
	BatchSize       int    `mapstructure:"batch_size"`
	Concurrency     int    `mapstructure:"concurrency"`
	SessionBudget   int    `mapstructure:"session_budget"`
	BatchDelayMinMs int    `mapstructure:"batch_delay_min_ms"`
	BatchDelayMaxMs int    `mapstructure:"batch_delay_max_ms"`
	MaxPages        int    `mapstructure:"max_pages"`
	WarmupURL       string `mapstructure:"warmup_url"`
	ConsentSelector string `mapstructure:"consent_selector"`
}

// NavigationConfig configures retries of page loads and selector waits.
type NavigationConfig struct {
	MaxAttempts        int `mapstructure:"max_attempts"`
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
	BackoffUnitMs      int `mapstructure:"backoff_unit_ms"`
	WaitAttempts       int `mapstructure:"wait_attempts"`
	WaitTimeoutSeconds int `mapstructure:"wait_timeout_seconds"`
	ClickTimeoutSecond int `mapstructure:"click_timeout_seconds"`
}

// DatesConfig holds the year-inference thresholds in days.
type DatesConfig struct {
	OddsForwardDays     int `mapstructure:"odds_forward_days"`
	OddsBackwardDays    int `mapstructure:"odds_backward_days"`
	GenericForwardDays  int `mapstructure:"generic_forward_days"`
	GenericBackwardDays int `mapstructure:"generic_backward_days"`
}

// RendererConfig selects and tunes the page renderer.
type RendererConfig struct {
	Kind          string   `mapstructure:"kind"`
	Headless      bool     `mapstructure:"headless"`
	UserAgents    []string `mapstructure:"user_agents"`
	DomainQPS     float64  `mapstructure:"domain_qps"`
	RespectRobots bool     `mapstructure:"respect_robots"`
}

// StorageConfig selects the dataset store.
type StorageConfig struct {
	Backend  string                `mapstructure:"backend"`
	Local    LocalStorageConfig    `mapstructure:"local"`
	Postgres PostgresStorageConfig `mapstructure:"postgres"`
	SQLite   SQLiteStorageConfig   `mapstructure:"sqlite"`
	GCS      GCSStorageConfig      `mapstructure:"gcs"`
}

// LocalStorageConfig configures the JSON file store.
type LocalStorageConfig struct {
	BaseDir  string `mapstructure:"base_dir"`
	MinBytes int    `mapstructure:"min_bytes"`
}

// PostgresStorageConfig configures the Postgres store.
type PostgresStorageConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SQLiteStorageConfig configures the SQLite store.
type SQLiteStorageConfig struct {
	Path string `mapstructure:"path"`
}

// GCSStorageConfig configures the bucket store.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for dataset-saved notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the status server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// RunnerConfig governs batch execution of jobs files.
type RunnerConfig struct {
	Parallel   int    `mapstructure:"parallel"`
	ReportPath string `mapstructure:"report_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ODDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultUserAgents are desktop browser agents sessions pick from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

func setDefaults(v *viper.Viper) {
	dataDir := filepath.Join(xdg.DataHome, AppName)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawl.base_url", "https://www.oddsportal.com")
	v.SetDefault("crawl.sport", "football")
	v.SetDefault("crawl.bookmaker", "bet365")
	v.SetDefault("crawl.season_boundary", season.DefaultBoundary)
	v.SetDefault("crawl.timezone", "UTC")
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.session_budget", 0)
	v.SetDefault("crawl.batch_delay_min_ms", 2000)
	v.SetDefault("crawl.batch_delay_max_ms", 5000)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.warmup_url", "")
	v.SetDefault("crawl.consent_selector", "#onetrust-accept-btn-handler")
	v.SetDefault("navigation.max_attempts", 3)
	v.SetDefault("navigation.timeout_seconds", 30)
	v.SetDefault("navigation.backoff_unit_ms", 1000)
	v.SetDefault("navigation.wait_attempts", 3)
	v.SetDefault("navigation.wait_timeout_seconds", 15)
	v.SetDefault("navigation.click_timeout_seconds", 10)
	v.SetDefault("dates.odds_forward_days", 30)
	v.SetDefault("dates.odds_backward_days", 330)
	v.SetDefault("dates.generic_forward_days", 180)
	v.SetDefault("dates.generic_backward_days", 180)
	v.SetDefault("renderer.kind", "chromedp")
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.user_agents", DefaultUserAgents)
	v.SetDefault("renderer.domain_qps", 0)
	v.SetDefault("renderer.respect_robots", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_dir", filepath.Join(dataDir, "datasets"))
	v.SetDefault("storage.local.min_bytes", 1024)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "datasets")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.sqlite.path", filepath.Join(dataDir, "datasets.db"))
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "datasets")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "odds-datasets")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("runner.parallel", 3)
	v.SetDefault("runner.report_path", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.BaseURL == "" {
		return fmt.Errorf("crawl.base_url must be set")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.SessionBudget < 0 {
		return fmt.Errorf("crawl.session_budget must be >= 0")
	}
	if c.Crawl.BatchDelayMinMs < 0 || c.Crawl.BatchDelayMaxMs < c.Crawl.BatchDelayMinMs {
		return fmt.Errorf("crawl.batch_delay_max_ms must be >= crawl.batch_delay_min_ms >= 0")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if _, _, err := season.ParseBoundary(c.Crawl.SeasonBoundary); err != nil {
		return fmt.Errorf("crawl.season_boundary must be MM-DD: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("crawl.timezone must be a known location: %w", err)
	}
	if c.Navigation.MaxAttempts <= 0 {
		return fmt.Errorf("navigation.max_attempts must be > 0")
	}
	if c.Navigation.TimeoutSeconds <= 0 {
		return fmt.Errorf("navigation.timeout_seconds must be > 0")
	}
	if c.Navigation.WaitAttempts <= 0 {
		return fmt.Errorf("navigation.wait_attempts must be > 0")
	}
	if c.Navigation.WaitTimeoutSeconds <= 0 {
		return fmt.Errorf("navigation.wait_timeout_seconds must be > 0")
	}
	if c.Navigation.BackoffUnitMs < 0 {
		return fmt.Errorf("navigation.backoff_unit_ms must be >= 0")
	}
	switch c.Renderer.Kind {
	case "chromedp", "static":
	default:
		return fmt.Errorf("renderer.kind must be chromedp or static, got %q", c.Renderer.Kind)
	}
	if c.Renderer.DomainQPS < 0 {
		return fmt.Errorf("renderer.domain_qps must be >= 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set")
		}
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set when storage.backend is postgres")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path must be set")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be local, memory, postgres, sqlite or gcs, got %q", c.Storage.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set when pubsub is enabled")
	}
	if c.Runner.Parallel <= 0 {
		return fmt.Errorf("runner.parallel must be > 0")
	}
	return nil
}

// Location resolves crawl.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Crawl.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Crawl.Timezone)
}

// BatchDelays converts the inter-batch delay bounds.
func (c Config) BatchDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Crawl.BatchDelayMinMs) * time.Millisecond,
		time.Duration(c.Crawl.BatchDelayMaxMs) * time.Millisecond
}

// SessionBudget returns the number of items a session serves before it is recycled.
// Zero falls back to one session per batch.
func (c Config) SessionBudget() int {
	if c.Crawl.SessionBudget > 0 {
		return c.Crawl.SessionBudget
	}
	return c.Crawl.BatchSize
}

// NavigationTimeout is the per-attempt load budget.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Navigation.TimeoutSeconds) * time.Second
}

// WaitTimeout is the per-attempt selector wait budget.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Navigation.WaitTimeoutSeconds) * time.Second
}

// ClickTimeout bounds a single click.
func (c Config) ClickTimeout() time.Duration {
	if c.Navigation.ClickTimeoutSecond <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Navigation.ClickTimeoutSecond) * time.Second
}

// BackoffUnit is the linear backoff step between attempts.
func (c Config) BackoffUnit() time.Duration {
	return time.Duration(c.Navigation.BackoffUnitMs) * time.Millisecond
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// OddsThresholds returns the odds-movement year-inference window.
func (c Config) OddsThresholds() (time.Duration, time.Duration) {
	return days(c.Dates.OddsForwardDays), days(c.Dates.OddsBackwardDays)
}

// GenericThresholds returns the kickoff year-inference window.
func (c Config) GenericThresholds() (time.Duration, time.Duration) {
	return days(c.Dates.GenericForwardDays), days(c.Dates.GenericBackwardDays)
}
