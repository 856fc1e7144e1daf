// Package cmd defines and implements the CLI commands for the odds-history-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/app"
	"github.com/JakeFAU/odds-history-crawler/internal/config"
	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/logging"
	"github.com/JakeFAU/odds-history-crawler/internal/runner"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// ErrJobsFailed is returned when a command finished but at least one job failed.
var ErrJobsFailed = errors.New("one or more jobs failed")

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Runner() *runner.Runner
	Runs() crawler.RunStore
	StartStatusServer()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	configPath string
	envFile    string
	app        App
}

// close shuts the application down, including after a failed RunE.
func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "odds-history",
		Short: "Collects historical and upcoming odds datasets.",
		Long: `odds-history crawls results listings season by season, extracts match
headers and bookmaker odds movements, and stores one dataset per
competition-season or team-season.`,
		SilenceUsage: true,

		// This hook runs BEFORE the subcommand's RunE and injects the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = appInstance
			appInstance.StartStatusServer()

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before the config (default .env when present)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newBatchCmd())

	return cmd, opts
}

// loadEnvFile loads path, or ./.env when path is empty and the file exists.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	opts.close()
	if err != nil {
		if !errors.Is(err, ErrJobsFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
