package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one request built from flags.
func newCrawlCmd() *cobra.Command {
	var req crawler.Request
	var mode, spread string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one competition or team season",
		Long: `Crawls a single competition-season (--region and --competition) or
team-season (--team and --team-id). Historical runs skip datasets that
already exist; upcoming runs snapshot the competition's fixture list.`,
		Example: `  odds-history crawl --region england --competition "premier league" --season 2024/2025 --spread team
  odds-history crawl --team arsenal --team-id hA8WlHsL --season 2023-2024
  odds-history crawl --region spain --competition laliga --mode upcoming`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req.Mode = crawler.Mode(mode)
			req.Spread = crawler.Spread(spread)

			r := appInstance.Runner()
			id, prepared, err := r.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			res := r.Execute(cmd.Context(), id, "crawl", prepared)
			if res.Err != nil {
				return fmt.Errorf("crawl %s: %w", prepared, res.Err)
			}
			for _, t := range res.Report.Summaries() {
				line := fmt.Sprintf("%-11s %-40s %-9s %5d events", t.Kind, t.Target, t.Status, t.Events)
				if t.Location != "" {
					line += "  " + t.Location
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if !res.Passed() {
				appInstance.Logger().Warn("Crawl finished with failed targets", zap.String("run_id", id))
				return ErrJobsFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Sport, "sport", "", "sport slug (default crawl.sport)")
	f.StringVar(&req.Region, "region", "", "competition region, e.g. england")
	f.StringVar(&req.Competition, "competition", "", "competition name, e.g. \"premier league\"")
	f.StringVar(&req.Team, "team", "", "team name")
	f.StringVar(&req.TeamID, "team-id", "", "team identifier from the team URL")
	f.StringVar(&req.Season, "season", "", "season, e.g. 2024/2025 or 2024-2025")
	f.StringVar(&req.Bookmaker, "bookmaker", "", "bookmaker name (default crawl.bookmaker)")
	f.StringVar(&mode, "mode", string(crawler.ModeHistorical), "historical or upcoming")
	f.StringVar(&spread, "spread", string(crawler.SpreadNone), "none, team or all")
	return cmd
}
