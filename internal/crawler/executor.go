package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/odds-history-crawler/internal/links"
	"github.com/JakeFAU/odds-history-crawler/internal/metrics"
	"github.com/JakeFAU/odds-history-crawler/internal/season"
)

// RunStats counts what happened to the items of one target.
type RunStats struct {
	Dispatched  int `json:"dispatched"`
	Succeeded   int `json:"succeeded"`
	Skipped     int `json:"skipped"`
	OutOfWindow int `json:"out_of_window"`
	Batches     int `json:"batches"`
	Recycles    int `json:"recycles"`
}

// Accumulator is the running result of an executor run. Each batch returns a new
// value that the next batch builds on; earlier values, including their link sets, are
// left untouched.
type Accumulator struct {
	Events  []MatchRecord
	Links   *links.Set
	Stats   RunStats
	Stopped bool
}

// NewAccumulator returns an empty accumulator with its own link set.
func NewAccumulator() Accumulator {
	return Accumulator{Links: links.NewSet()}
}

// WorkSpec describes how each item of a run is processed.
type WorkSpec struct {
	// Window enables the per-item kickoff check. Nil disables it.
	Window    *season.Window
	Bookmaker string
}

// ExecutorConfig tunes batching and pacing.
type ExecutorConfig struct {
	BatchSize   int
	Concurrency int
	DelayMin    time.Duration
	DelayMax    time.Duration
}

// Executor fetches items in bounded concurrent batches.
type Executor struct {
	nav       *Navigator
	extractor Extractor
	pauser    Pauser
	cfg       ExecutorConfig
	logger    *zap.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(nav *Navigator, extractor Extractor, pauser Pauser, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{nav: nav, extractor: extractor, pauser: pauser, cfg: cfg, logger: logger}
}

type itemResult struct {
	ref         ItemRef
	record      *MatchRecord
	teams       []links.Team
	competition *links.Competition
	verdict     Verdict
	reason      string
}

// Run processes items batch by batch and returns acc extended with their results.
// Once any item reports a kickoff before the window, the batch in flight finishes and
// no further batch starts. Single-item failures are counted as skipped.
func (e *Executor) Run(
	ctx context.Context,
	scope *SessionScope,
	items []ItemRef,
	spec WorkSpec,
	acc Accumulator,
) (Accumulator, error) {
	if acc.Links == nil {
		acc.Links = links.NewSet()
	}
	for start := 0; start < len(items); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(items))
		batch := items[start:end]

		session, err := scope.Acquire(ctx)
		if err != nil {
			return acc, err
		}

		results := e.runBatch(ctx, session, batch, spec)
		scope.Use(len(batch))
		metrics.ObserveBatch()

		acc = absorb(acc, results)
		acc.Stats.Batches++
		e.logger.Info("batch finished",
			zap.Int("batch", acc.Stats.Batches),
			zap.Int("items", len(batch)),
			zap.Int("events", len(acc.Events)),
			zap.Int("skipped", acc.Stats.Skipped),
		)

		if err := ctx.Err(); err != nil {
			return acc, err
		}
		if acc.Stopped {
			e.logger.Info("season boundary reached, no further batches", zap.Int("remaining", len(items)-end))
			return acc, nil
		}
		if end >= len(items) {
			break
		}

		if err := e.pauser.Pause(ctx, RandomDelay(e.cfg.DelayMin, e.cfg.DelayMax)); err != nil {
			return acc, err
		}
		if scope.Due() {
			if err := scope.Recycle(ctx); err != nil {
				return acc, err
			}
			acc.Stats.Recycles++
		}
	}
	return acc, nil
}

// runBatch fetches one batch and closes every page it opened.
func (e *Executor) runBatch(ctx context.Context, session Session, batch []ItemRef, spec WorkSpec) []itemResult {
	results := make([]itemResult, len(batch))

	var (
		mu    sync.Mutex
		pages []Page
	)
	track := func(p Page) {
		mu.Lock()
		pages = append(pages, p)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, ref := range batch {
		g.Go(func() error {
			results[i] = e.process(ctx, session, ref, spec, track)
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range pages {
		if err := p.Close(); err != nil {
			e.logger.Debug("closing page failed", zap.Error(err))
		}
	}
	return results
}

// process runs the navigate, wait, extract, classify and link steps for one item.
func (e *Executor) process(
	ctx context.Context,
	session Session,
	ref ItemRef,
	spec WorkSpec,
	track func(Page),
) itemResult {
	started := time.Now()
	metrics.IncInflight()
	defer metrics.DecInflight()

	res := e.fetch(ctx, session, ref, spec, track)
	res.ref = ref

	outcome := "ok"
	switch res.verdict {
	case StopScan:
		outcome = "boundary"
	case SkipItem:
		outcome = res.reason
	}
	metrics.ObserveItem(outcome, time.Since(started))
	return res
}

func (e *Executor) fetch(
	ctx context.Context,
	session Session,
	ref ItemRef,
	spec WorkSpec,
	track func(Page),
) itemResult {
	page, err := session.NewPage(ctx)
	if err != nil {
		return e.fail(ctx, ref, "page", err)
	}
	track(page)

	if err := e.nav.Navigate(ctx, page, ref.Locator); err != nil {
		return e.fail(ctx, ref, "navigation", err)
	}
	if err := e.nav.WaitFor(ctx, page, e.extractor.ReadySelector(), ref.Locator); err != nil {
		return e.fail(ctx, ref, "not_ready", err)
	}
	record, err := e.extractor.Extract(ctx, page, spec.Bookmaker)
	if err != nil {
		return e.fail(ctx, ref, "extraction", err)
	}
	record.Locator = ref.Locator

	if spec.Window != nil {
		switch spec.Window.Classify(record.Kickoff) {
		case season.Before:
			e.logger.Debug("match before season window", zap.String("item", ref.Locator), zap.Time("kickoff", record.Kickoff))
			return itemResult{verdict: StopScan, reason: "boundary"}
		case season.After:
			return itemResult{verdict: SkipItem, reason: "out_of_window"}
		}
	}

	res := itemResult{verdict: Proceed}
	home, away, err := e.extractor.TeamLinks(ctx, page)
	if err != nil {
		e.logger.Debug("team links missing", zap.String("item", ref.Locator), zap.Error(err))
	}
	for _, href := range []string{home, away} {
		if href == "" {
			continue
		}
		team, perr := links.ParseTeamURL(href)
		if perr != nil {
			e.logger.Debug("unusable team link", zap.String("href", href), zap.Error(perr))
			continue
		}
		res.teams = append(res.teams, team)
	}

	href, err := e.extractor.CompetitionLink(ctx, page)
	if err == nil && href != "" {
		comp, perr := links.ParseCompetitionURL(href)
		if perr == nil {
			record.Region = comp.Region
			record.Competition = comp.Competition
			res.competition = &comp
		}
	}

	res.record = &record
	return res
}

func (e *Executor) fail(ctx context.Context, ref ItemRef, step string, err error) itemResult {
	verdict := VerdictFor(ctx, err)
	if verdict != StopScan {
		verdict = SkipItem
	}
	reason := "skipped"
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		reason = "navigation_failed"
	}
	e.logger.Warn("item skipped",
		zap.String("item", ref.Locator),
		zap.String("step", step),
		zap.Stringer("verdict", verdict),
		zap.Error(err),
	)
	return itemResult{verdict: verdict, reason: reason}
}

// absorb folds one batch's results into acc and returns the extended accumulator.
func absorb(acc Accumulator, results []itemResult) Accumulator {
	next := acc
	next.Events = append(make([]MatchRecord, 0, len(acc.Events)+len(results)), acc.Events...)
	next.Links = links.NewSet()
	next.Links.Merge(acc.Links)
	for _, r := range results {
		next.Stats.Dispatched++
		switch r.verdict {
		case Proceed:
			next.Stats.Succeeded++
			next.Events = append(next.Events, *r.record)
			for _, t := range r.teams {
				next.Links.AddTeam(t)
			}
			if r.competition != nil {
				next.Links.AddCompetition(*r.competition)
			}
		case StopScan:
			next.Stopped = true
		default:
			if r.reason == "out_of_window" {
				next.Stats.OutOfWindow++
			} else {
				next.Stats.Skipped++
			}
		}
	}
	return next
}
