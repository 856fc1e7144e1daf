package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/odds-history-crawler/internal/links"
)

type orchestratorFixture struct {
	site      *fakeSite
	renderer  *fakeRenderer
	pauser    *recordingPauser
	store     *fakeStore
	publisher *fakePublisher
	orch      *Orchestrator
}

func newOrchestratorFixture(store *fakeStore, batchSize, concurrency int) *orchestratorFixture {
	site := newFakeSite()
	renderer := &fakeRenderer{site: site}
	pauser := &recordingPauser{}
	nav := testNavigator(pauser)
	publisher := &fakePublisher{}
	orch := NewOrchestrator(
		renderer,
		NewScanner(nav, fakeLister{site: site}, 0, nil),
		NewExecutor(nav, fakeExtractor{site: site}, pauser, ExecutorConfig{BatchSize: batchSize, Concurrency: concurrency}, nil),
		store,
		publisher,
		fixedClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)},
		staticIDs{id: "run-1"},
		Options{BaseURL: testBase, SessionBudget: batchSize, Topic: "odds-datasets"},
		nil,
	)
	return &orchestratorFixture{site: site, renderer: renderer, pauser: pauser, store: store, publisher: publisher, orch: orch}
}

// addMatch registers a match whose team links derive their IDs from the team names.
func (f *orchestratorFixture) addMatch(locator string, kickoff time.Time, home, away, competitionPath string) {
	f.site.matches[locator] = MatchRecord{HomeTeam: home, AwayTeam: away, Score: "2:1", Kickoff: kickoff}
	f.site.teamLinks[locator] = [2]string{
		fmt.Sprintf("/football/team/%s/%s-id/", links.Slug(home), links.Slug(home)),
		fmt.Sprintf("/football/team/%s/%s-id/", links.Slug(away), links.Slug(away)),
	}
	f.site.compLinks[locator] = competitionPath
}

func premierLeagueRequest() Request {
	return Request{
		Sport:       "football",
		Region:      "england",
		Competition: "premier league",
		Season:      "2024/2025",
		Bookmaker:   "bet365",
		Mode:        ModeHistorical,
	}
}

func TestOrchestratorEndToEnd(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	listing := links.CompetitionResultsURL(testBase, "football", "england", "premier league", "2024/2025")
	var page1, page2 []string
	for i := 1; i <= 5; i++ {
		ref := matchRef("2024-2025", i)
		page1 = append(page1, ref)
		f.addMatch(ref, inSeason(20-i), "Arsenal", "Chelsea", "/football/england/premier-league-2024-2025/")
	}
	for i := 6; i <= 7; i++ {
		ref := matchRef("2024-2025", i)
		page2 = append(page2, ref)
		f.addMatch(ref, inSeason(20-i), "Arsenal", "Chelsea", "/football/ENGLAND/Premier-League-2024-2025/")
	}
	before := matchRef("2023-2024", 8)
	page2 = append(page2, before)
	f.addMatch(before, time.Date(2024, time.April, 1, 15, 0, 0, 0, time.UTC), "Arsenal", "Chelsea", "/football/england/premier-league-2023-2024/")
	f.site.listings[listing] = [][]string{page1, page2}

	report, err := f.orch.Run(context.Background(), premierLeagueRequest())
	require.NoError(t, err)
	require.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Targets, 1)
	require.False(t, report.Failed())

	primary := report.Targets[0]
	require.Equal(t, StatusSaved, primary.Status)
	require.Equal(t, ScanBoundary, primary.Scan)
	require.Equal(t, 7, primary.Events)
	require.Equal(t, 2, primary.Stats.Batches, "no batch after the boundary")
	require.Zero(t, f.site.loadCount(before))

	require.Len(t, f.store.saved, 1)
	ds := f.store.saved[0]
	require.Len(t, ds.Events, 7)
	require.Equal(t, KindCompetition, ds.Kind)
	require.Equal(t, "2024/2025", ds.Season)
	require.Equal(t, Market, ds.Market)
	require.Equal(t, "run-1", ds.RunID)

	require.Len(t, f.publisher.messages, 1)
	msg, ok := f.publisher.messages[0].(DatasetSaved)
	require.True(t, ok)
	require.Equal(t, 7, msg.Events)
	require.Equal(t, primary.Location, msg.Location)
}

func TestOrchestratorEndToEndLinksHaveNoDuplicatePairs(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	var refs []string
	comps := []string{
		"/football/england/premier-league-2024-2025/",
		"/football/England/Premier-League-2024-2025/",
		"/football/england/fa-cup-2024-2025/",
	}
	for i := 1; i <= 6; i++ {
		ref := matchRef("2024-2025", i)
		refs = append(refs, ref)
		f.addMatch(ref, inSeason(i), "Arsenal", "Chelsea", comps[i%len(comps)])
	}
	scope := NewSessionScope(f.renderer, 0, Warmup{}, nil)
	defer scope.Close()
	items := make([]ItemRef, len(refs))
	for i, ref := range refs {
		items[i] = ItemRef{Locator: ref}
	}
	acc, err := f.orch.executor.Run(context.Background(), scope, items, WorkSpec{}, NewAccumulator())
	require.NoError(t, err)

	pairs := acc.Links.Competitions()
	require.Len(t, pairs, 2)
	seen := map[string]bool{}
	for _, p := range pairs {
		require.False(t, seen[p.Key()], "duplicate pair %v", p)
		seen[p.Key()] = true
	}
	require.Len(t, acc.Links.Teams(), 2)
}

func TestOrchestratorIdempotencyGateSkipsNavigation(t *testing.T) {
	t.Parallel()

	persisted := KeyFor(CompetitionSeason{Region: "England", Competition: "Premier League", SeasonName: "2024/2025"}, "football", ModeHistorical)
	f := newOrchestratorFixture(newFakeStore(persisted), 4, 2)

	report, err := f.orch.Run(context.Background(), premierLeagueRequest())
	require.NoError(t, err)
	require.Len(t, report.Targets, 1)
	require.Equal(t, StatusExists, report.Targets[0].Status)
	require.Zero(t, f.site.totalLoads())
	require.Zero(t, f.renderer.opened(), "the session is never opened")
	require.Empty(t, f.store.saved)
}

func TestOrchestratorRejectsInvalidRequestBeforeNetwork(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	req := premierLeagueRequest()
	req.Team = "Arsenal"

	_, err := f.orch.Run(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Zero(t, f.renderer.opened())
	require.Zero(t, f.store.checks)
}

func TestOrchestratorFallsBackToYearListings(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	req := Request{Sport: "football", Region: "world", Competition: "world cup", Season: "2022/2023", Bookmaker: "pinnacle", Mode: ModeHistorical}
	seasonListing := links.CompetitionResultsURL(testBase, "football", "world", "world cup", "2022/2023")
	startYear, endYear, err := links.YearLinks(seasonListing, "2022/2023")
	require.NoError(t, err)

	ref := testBase + "/football/world/world-cup-2022/final/"
	f.site.listings[endYear] = [][]string{}
	f.site.listings[startYear] = [][]string{{ref}}
	f.addMatch(ref, time.Date(2022, time.December, 18, 15, 0, 0, 0, time.UTC), "Argentina", "France", "/football/world/world-cup-2022/")

	report, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSaved, report.Targets[0].Status)
	require.Equal(t, 1, report.Targets[0].Events)
	require.Equal(t, 3, f.site.loadCount(seasonListing), "season listing is retried before falling back")
	require.Positive(t, f.site.loadCount(endYear), "end year is tried first")
}

func TestOrchestratorSpreadFollowsTeamsAndCompetitions(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 10, 2)
	primary := links.CompetitionResultsURL(testBase, "football", "england", "premier league", "2024/2025")
	first := matchRef("2024-2025", 1)
	f.site.listings[primary] = [][]string{{first}}
	f.addMatch(first, inSeason(5), "Arsenal", "Chelsea", "/football/england/premier-league-2024-2025/")

	arsenal := links.TeamResultsURL(testBase, "arsenal-id")
	cup := testBase + "/football/england/fa-cup-2024-2025/cup-final/"
	f.site.listings[arsenal] = [][]string{{cup}}
	f.addMatch(cup, inSeason(6), "Arsenal", "Chelsea", "/football/england/fa-cup-2024-2025/")

	faCup := links.CompetitionResultsURL(testBase, "football", "england", "fa cup", "2024/2025")
	f.site.listings[faCup] = [][]string{{cup}}

	req := premierLeagueRequest()
	req.Spread = SpreadAll
	report, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	var got []string
	for _, r := range report.Targets {
		got = append(got, fmt.Sprintf("%s:%s", r.Target.Kind(), r.Status))
	}
	require.Equal(t, []string{
		"competition:saved",
		"team:saved",
		"team:empty",
		"competition:saved",
	}, got)
	require.Equal(t, TeamSeason{TeamID: "arsenal-id", TeamName: "arsenal", SeasonName: "2024/2025"}, report.Targets[1].Target)
	require.Equal(t, CompetitionSeason{Region: "england", Competition: "fa cup", SeasonName: "2024/2025"}, report.Targets[3].Target)
	require.Equal(t, 1, f.renderer.opened(), "one session for the whole run")
}

func TestOrchestratorUpcomingSkipsGate(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	req := Request{Sport: "football", Region: "england", Competition: "premier league", Bookmaker: "bet365", Mode: ModeUpcoming}
	listing := links.UpcomingURL(testBase, "football", "england", "premier league")
	ref := testBase + "/football/england/premier-league/arsenal-chelsea/"
	f.site.listings[listing] = [][]string{{ref}}
	f.addMatch(ref, time.Date(2025, time.March, 8, 17, 30, 0, 0, time.UTC), "Arsenal", "Chelsea", "/football/england/premier-league/")

	report, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSaved, report.Targets[0].Status)
	require.Zero(t, f.store.checks)
	require.Equal(t, ModeUpcoming, f.store.saved[0].Mode)
	require.Empty(t, f.store.saved[0].Season)
}

func TestOrchestratorReportsStoreOutcomes(t *testing.T) {
	t.Parallel()

	build := func(saveErr error) *orchestratorFixture {
		f := newOrchestratorFixture(newFakeStore(), 4, 2)
		f.store.saveErr = saveErr
		listing := links.CompetitionResultsURL(testBase, "football", "england", "premier league", "2024/2025")
		ref := matchRef("2024-2025", 1)
		f.site.listings[listing] = [][]string{{ref}}
		f.addMatch(ref, inSeason(1), "Arsenal", "Chelsea", "/football/england/premier-league-2024-2025/")
		return f
	}

	small := build(fmt.Errorf("write: %w", ErrDatasetTooSmall))
	report, err := small.orch.Run(context.Background(), premierLeagueRequest())
	require.NoError(t, err)
	require.Equal(t, StatusNotSaved, report.Targets[0].Status)
	require.False(t, report.Failed())
	require.Empty(t, small.publisher.messages)

	broken := build(errors.New("disk full"))
	report, err = broken.orch.Run(context.Background(), premierLeagueRequest())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Targets[0].Status)
	require.True(t, report.Failed())
	require.ErrorContains(t, report.Targets[0].Err, "disk full")
}

func TestOrchestratorEmptyListing(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	req := Request{Sport: "football", TeamID: "xyz", Team: "Nobody", Season: "2024/2025", Bookmaker: "bet365", Mode: ModeHistorical}

	report, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusEmpty, report.Targets[0].Status)
	require.Equal(t, ScanEmpty, report.Targets[0].Scan)
	require.Empty(t, f.store.saved)
}

// fourMatchSeason lists four in-window matches on one listing page.
func (f *orchestratorFixture) fourMatchSeason() {
	listing := links.CompetitionResultsURL(testBase, "football", "england", "premier league", "2024/2025")
	var refs []string
	for i := 1; i <= 4; i++ {
		ref := matchRef("2024-2025", i)
		refs = append(refs, ref)
		f.addMatch(ref, inSeason(20-i), "Arsenal", "Chelsea", "/football/england/premier-league-2024-2025/")
	}
	f.site.listings[listing] = [][]string{refs}
}

func TestOrchestratorSavesCollectedRecordsWhenRelaunchFails(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 2, 2)
	f.renderer.failFrom = 2
	f.fourMatchSeason()

	report, err := f.orch.Run(context.Background(), premierLeagueRequest())
	require.NoError(t, err)
	require.True(t, report.Failed())

	primary := report.Targets[0]
	require.Equal(t, StatusPartial, primary.Status)
	require.ErrorContains(t, primary.Err, "browser crashed on relaunch")
	require.Equal(t, 2, primary.Events)
	require.Equal(t, 1, primary.Stats.Batches)
	require.NotEmpty(t, primary.Location)

	require.Len(t, f.store.saved, 1)
	require.Len(t, f.store.saved[0].Events, 2)
	require.Len(t, f.publisher.messages, 1)
}

func TestOrchestratorSavesCollectedRecordsWhenCanceled(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 2, 2)
	f.fourMatchSeason()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pauser.onPause = cancel

	report, err := f.orch.Run(ctx, premierLeagueRequest())
	require.ErrorIs(t, err, context.Canceled)

	primary := report.Targets[0]
	require.Equal(t, StatusPartial, primary.Status)
	require.ErrorIs(t, primary.Err, context.Canceled)
	require.Len(t, f.store.saved, 1)
	require.Len(t, f.store.saved[0].Events, 2)
	require.Equal(t, []error{nil}, f.store.saveCtxs, "the save outlives the canceled run")
}

func TestOrchestratorFallsBackWhenSeasonListingIsUnreachable(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	req := Request{Sport: "football", Region: "world", Competition: "world cup", Season: "2022/2023", Bookmaker: "pinnacle", Mode: ModeHistorical}
	seasonListing := links.CompetitionResultsURL(testBase, "football", "world", "world cup", "2022/2023")
	startYear, endYear, err := links.YearLinks(seasonListing, "2022/2023")
	require.NoError(t, err)

	f.site.alwaysFail(seasonListing)
	ref := testBase + "/football/world/world-cup-2022/final/"
	f.site.listings[endYear] = [][]string{}
	f.site.listings[startYear] = [][]string{{ref}}
	f.addMatch(ref, time.Date(2022, time.December, 18, 15, 0, 0, 0, time.UTC), "Argentina", "France", "/football/world/world-cup-2022/")

	report, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSaved, report.Targets[0].Status)
	require.NoError(t, report.Targets[0].Err)
	require.Equal(t, 1, report.Targets[0].Events)
	require.Equal(t, 3, f.site.loadCount(seasonListing))
	require.Positive(t, f.site.loadCount(endYear))
	require.Positive(t, f.site.loadCount(startYear))
}

func TestOrchestratorKeepsNavigationErrorWhenYearListingsAreEmpty(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(newFakeStore(), 4, 2)
	seasonListing := links.CompetitionResultsURL(testBase, "football", "england", "premier league", "2024/2025")
	startYear, endYear, err := links.YearLinks(seasonListing, "2024/2025")
	require.NoError(t, err)
	f.site.alwaysFail(seasonListing)

	report, err := f.orch.Run(context.Background(), premierLeagueRequest())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Targets[0].Status)
	require.ErrorIs(t, report.Targets[0].Err, ErrNavigation)
	require.Positive(t, f.site.loadCount(endYear))
	require.Positive(t, f.site.loadCount(startYear))
}
