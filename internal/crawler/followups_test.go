package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/odds-history-crawler/internal/links"
)

func TestNextTargetsGatesAndDeduplicates(t *testing.T) {
	t.Parallel()

	set := links.NewSet()
	set.AddTeam(links.Team{Name: "arsenal", ID: "a1"})
	set.AddTeam(links.Team{Name: "chelsea", ID: "c1"})
	set.AddTeam(links.Team{Name: "fulham", ID: "f1"})
	set.AddTeam(links.Team{Path: "/football/team/nameless/"})
	set.AddCompetition(links.Competition{Region: "England", Competition: "Premier League"})
	set.AddCompetition(links.Competition{Region: "england", Competition: "fa cup"})
	set.AddCompetition(links.Competition{Region: "europe", Competition: "champions league"})

	store := newFakeStore(
		KeyFor(TeamSeason{TeamName: "Chelsea", SeasonName: "2024-2025"}, "football", ModeHistorical),
		KeyFor(CompetitionSeason{Region: "England", Competition: "FA Cup", SeasonName: "2024/2025"}, "football", ModeHistorical),
	)
	processed := Processed{}
	processed.Mark(KeyFor(TeamSeason{TeamName: "Fulham", SeasonName: "2024/2025"}, "football", ModeHistorical))

	targets := NextTargets(context.Background(), set, FollowUp{
		Sport:        "football",
		Season:       "2024/2025",
		Teams:        true,
		Competitions: true,
		Exclude:      []links.Competition{{Region: "ENGLAND", Competition: "premier-league"}},
	}, processed, store, nil)

	require.Equal(t, []Target{
		TeamSeason{TeamID: "a1", TeamName: "arsenal", SeasonName: "2024/2025"},
		CompetitionSeason{Region: "europe", Competition: "champions league", SeasonName: "2024/2025"},
	}, targets)
	require.True(t, processed.Has(KeyFor(TeamSeason{TeamName: "ARSENAL", SeasonName: "2024-2025"}, "football", ModeHistorical)))

	again := NextTargets(context.Background(), set, FollowUp{Sport: "football", Season: "2024/2025", Teams: true}, processed, store, nil)
	require.Empty(t, again, "targets are scheduled once per run")
}

func TestNextTargetsKeepsTargetWhenIndexFails(t *testing.T) {
	t.Parallel()

	set := links.NewSet()
	set.AddCompetition(links.Competition{Region: "spain", Competition: "laliga"})
	store := newFakeStore()
	store.existsErr = errors.New("connection refused")

	targets := NextTargets(context.Background(), set, FollowUp{Sport: "football", Season: "2024/2025", Competitions: true}, Processed{}, store, nil)
	require.Len(t, targets, 1)
	require.Nil(t, NextTargets(context.Background(), nil, FollowUp{Teams: true}, Processed{}, store, nil))
}
