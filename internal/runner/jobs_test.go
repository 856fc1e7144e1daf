package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
)

const jobsYAML = `
defaults:
  sport: football
  bookmaker: bet365
  mode: historical
  season: 2024/2025
jobs:
  - name: epl
    region: england
    competition: premier league
    spread: team
  - region: spain
    competition: laliga
    season: 2023/2024
    bookmaker: pinnacle
  - name: arsenal
    team: arsenal
    team_id: hA8WlHsL
`

func TestLoadJobsAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(jobsYAML), 0o600))

	jobs, err := LoadJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	require.Equal(t, "epl", jobs[0].Name)
	require.Equal(t, crawler.Request{
		Sport:       "football",
		Region:      "england",
		Competition: "premier league",
		Season:      "2024/2025",
		Bookmaker:   "bet365",
		Mode:        crawler.ModeHistorical,
		Spread:      crawler.SpreadTeam,
	}, jobs[0].Request)

	require.Equal(t, "job-2", jobs[1].Name)
	require.Equal(t, "2023/2024", jobs[1].Season)
	require.Equal(t, "pinnacle", jobs[1].Bookmaker)

	require.Equal(t, "hA8WlHsL", jobs[2].TeamID)
	_, err = jobs[2].Target()
	require.NoError(t, err)
}

func TestParseJobsErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseJobs([]byte("jobs: []"))
	require.ErrorIs(t, err, ErrNoJobs)

	_, err = ParseJobs([]byte("jobs: [unterminated"))
	require.Error(t, err)

	_, err = LoadJobs(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
