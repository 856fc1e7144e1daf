package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/report"
	"github.com/JakeFAU/odds-history-crawler/internal/runner"
)

// newBatchCmd creates the 'batch' subcommand, which runs a YAML jobs file in parallel.
func newBatchCmd() *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "batch <jobs.yaml>",
		Short: "Run a jobs file in parallel",
		Long: `Runs every job of a YAML jobs file, at most runner.parallel at a time,
and prints a Markdown summary. The command exits non-zero if any job failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := runner.LoadJobs(args[0])
			if err != nil {
				return err
			}

			summary := appInstance.Runner().RunJobs(cmd.Context(), jobs)
			if err := report.Write(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if reportPath == "" {
				reportPath = appInstance.Config().Runner.ReportPath
			}
			if reportPath != "" {
				if err := report.WriteFile(reportPath, summary); err != nil {
					return err
				}
				appInstance.Logger().Info("Report written", zap.String("path", reportPath))
			}
			if failed := summary.Failed(); failed > 0 {
				appInstance.Logger().Warn("Batch finished with failures",
					zap.Int("failed", failed), zap.Int("jobs", len(jobs)))
				return fmt.Errorf("%w: %d of %d", ErrJobsFailed, failed, len(jobs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "also write the Markdown report to this path (default runner.report_path)")
	return cmd
}
