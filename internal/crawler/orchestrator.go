package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/links"
	"github.com/JakeFAU/odds-history-crawler/internal/metrics"
	"github.com/JakeFAU/odds-history-crawler/internal/season"
)

// TargetStatus is the final state of one crawl target.
type TargetStatus string

// Target statuses.
const (
	StatusSaved    TargetStatus = "saved"
	StatusExists   TargetStatus = "exists"
	StatusEmpty    TargetStatus = "empty"
	StatusNotSaved TargetStatus = "not_saved"
	StatusFailed   TargetStatus = "failed"
	// StatusPartial marks a target whose run was interrupted after some records were
	// collected. Those records are saved and the interruption is kept in Err.
	StatusPartial TargetStatus = "partial"
)

// TargetResult summarizes the work done for one target.
type TargetResult struct {
	Target   Target
	Status   TargetStatus
	Scan     ScanStatus
	Events   int
	Stats    RunStats
	Location string
	Err      error
}

// RunReport is the outcome of one request, primary target first.
type RunReport struct {
	RunID    string
	Request  Request
	Started  time.Time
	Finished time.Time
	Targets  []TargetResult
}

// Failed reports whether any target failed or finished only partially.
func (r RunReport) Failed() bool {
	for _, t := range r.Targets {
		if t.Status == StatusFailed || t.Status == StatusPartial {
			return true
		}
	}
	return false
}

// Events returns the number of records collected across all targets.
func (r RunReport) Events() int {
	total := 0
	for _, t := range r.Targets {
		total += t.Events
	}
	return total
}

// DatasetSaved is the notification published after a dataset is stored.
type DatasetSaved struct {
	RunID       string     `json:"run_id"`
	Kind        TargetKind `json:"kind"`
	Mode        Mode       `json:"mode"`
	Sport       string     `json:"sport"`
	Region      string     `json:"region,omitempty"`
	Competition string     `json:"competition,omitempty"`
	Team        string     `json:"team,omitempty"`
	Season      string     `json:"season,omitempty"`
	Bookmaker   string     `json:"bookmaker"`
	Events      int        `json:"events"`
	Location    string     `json:"location"`
	CollectedAt time.Time  `json:"collected_at"`
}

// MessageAttributes returns the attributes set on published notifications.
func (d DatasetSaved) MessageAttributes() map[string]string {
	return map[string]string{
		"run_id": d.RunID,
		"kind":   string(d.Kind),
		"mode":   string(d.Mode),
		"sport":  d.Sport,
	}
}

// Options configures an Orchestrator.
type Options struct {
	BaseURL       string
	Boundary      string
	SessionBudget int
	Warmup        Warmup
	// Topic receives DatasetSaved notifications when a Publisher is set.
	Topic string
}

// Orchestrator turns crawl requests into stored datasets.
type Orchestrator struct {
	renderer  Renderer
	scanner   *Scanner
	executor  *Executor
	store     Store
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	opts      Options
	logger    *zap.Logger
}

// NewOrchestrator wires an Orchestrator. publisher may be nil.
func NewOrchestrator(
	renderer Renderer,
	scanner *Scanner,
	executor *Executor,
	store Store,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.Boundary == "" {
		opts.Boundary = season.DefaultBoundary
	}
	if opts.BaseURL == "" {
		opts.BaseURL = links.DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		renderer:  renderer,
		scanner:   scanner,
		executor:  executor,
		store:     store,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes req: the primary target first, then any follow-ups its spread allows.
// Invalid requests fail with ErrInvalidRequest before any network activity. Target
// failures are reported in the RunReport; the returned error is non-nil only for an
// invalid request or a canceled context.
func (o *Orchestrator) Run(ctx context.Context, req Request) (RunReport, error) {
	primary, err := req.Target()
	if err != nil {
		return RunReport{}, err
	}
	runID, ok := RunIDFrom(ctx)
	if !ok {
		if runID, err = o.ids.NewID(); err != nil {
			return RunReport{}, fmt.Errorf("generate run id: %w", err)
		}
	}
	req.Spread = req.spread()
	report := RunReport{RunID: runID, Request: req, Started: o.clock.Now()}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("crawl started", zap.Stringer("request", req), zap.Stringer("target", primary))

	scope := NewSessionScope(o.renderer, o.opts.SessionBudget, o.opts.Warmup, logger)
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			logger.Warn("closing session failed", zap.Error(cerr))
		}
	}()

	processed := Processed{}
	result, found := o.crawl(ctx, scope, runID, req, primary, processed, logger)
	report.Targets = append(report.Targets, result)

	if req.Mode == ModeHistorical && req.Spread != SpreadNone && ctx.Err() == nil {
		report.Targets = append(report.Targets, o.spread(ctx, scope, runID, req, primary, found, processed, logger)...)
	}

	report.Finished = o.clock.Now()
	logger.Info("crawl finished",
		zap.Int("targets", len(report.Targets)),
		zap.Int("events", report.Events()),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report, ctx.Err()
}

// spread crawls team follow-ups from the primary's links and, for SpreadAll, the
// competitions those team crawls reveal.
func (o *Orchestrator) spread(
	ctx context.Context,
	scope *SessionScope,
	runID string,
	req Request,
	primary Target,
	found *links.Set,
	processed Processed,
	logger *zap.Logger,
) []TargetResult {
	var results []TargetResult
	discovered := links.NewSet()
	discovered.Merge(found)

	teams := NextTargets(ctx, found, FollowUp{
		Sport:  req.Sport,
		Season: primary.Season(),
		Teams:  true,
	}, processed, o.store, logger)
	logger.Info("following team links", zap.Int("targets", len(teams)))
	for _, target := range teams {
		if ctx.Err() != nil {
			return results
		}
		res, set := o.crawl(ctx, scope, runID, req, target, processed, logger)
		results = append(results, res)
		discovered.Merge(set)
	}

	if req.Spread != SpreadAll {
		return results
	}
	var exclude []links.Competition
	if c, ok := primary.(CompetitionSeason); ok {
		exclude = append(exclude, links.Competition{Region: c.Region, Competition: c.Competition})
	}
	competitions := NextTargets(ctx, discovered, FollowUp{
		Sport:        req.Sport,
		Season:       primary.Season(),
		Competitions: true,
		Exclude:      exclude,
	}, processed, o.store, logger)
	logger.Info("following competition links", zap.Int("targets", len(competitions)))
	for _, target := range competitions {
		if ctx.Err() != nil {
			return results
		}
		res, _ := o.crawl(ctx, scope, runID, req, target, processed, logger)
		results = append(results, res)
	}
	return results
}

// crawl runs one target through the gate, scanner, executor and store. It returns the
// links discovered along the way.
func (o *Orchestrator) crawl(
	ctx context.Context,
	scope *SessionScope,
	runID string,
	req Request,
	target Target,
	processed Processed,
	logger *zap.Logger,
) (TargetResult, *links.Set) {
	logger = logger.With(zap.Stringer("target", target))
	result := TargetResult{Target: target}
	found := links.NewSet()
	key := KeyFor(target, req.Sport, req.Mode)
	processed.Mark(key)

	done := func(status TargetStatus, err error) (TargetResult, *links.Set) {
		result.Status = status
		result.Err = err
		metrics.ObserveDataset(string(target.Kind()), string(status))
		if err != nil {
			logger.Error("target failed", zap.String("status", string(status)), zap.Error(err))
		} else {
			logger.Info("target finished",
				zap.String("status", string(status)),
				zap.Int("events", result.Events),
				zap.String("location", result.Location),
			)
		}
		return result, found
	}

	var window *season.Window
	if req.Mode == ModeHistorical {
		if o.stored(ctx, key, logger) {
			return done(StatusExists, nil)
		}
		w, err := season.ParseWindow(target.Season(), o.opts.Boundary)
		if err != nil {
			return done(StatusFailed, err)
		}
		window = &w
	}

	locator := o.locator(req, target)
	scan, err := o.scan(ctx, scope, locator, window)
	if req.Mode == ModeHistorical && target.Kind() == KindCompetition && len(scan.Items) == 0 && fallbackAllowed(ctx, err) {
		alt, aerr := o.fallback(ctx, scope, locator, target.Season(), window, scan, logger)
		if aerr != nil || len(alt.Items) > 0 {
			scan, err = alt, aerr
		}
	}
	result.Scan = scan.Status
	if err != nil {
		return done(StatusFailed, err)
	}
	logger.Info("listing scanned",
		zap.String("locator", locator),
		zap.Int("items", len(scan.Items)),
		zap.Int("pages", scan.Pages),
		zap.Stringer("status", scan.Status),
	)
	if len(scan.Items) == 0 {
		return done(StatusEmpty, nil)
	}

	acc, runErr := o.executor.Run(ctx, scope, scan.Items, WorkSpec{Window: window, Bookmaker: req.Bookmaker}, NewAccumulator())
	result.Stats = acc.Stats
	result.Events = len(acc.Events)
	found = acc.Links
	if len(acc.Events) == 0 {
		if runErr != nil {
			return done(StatusFailed, runErr)
		}
		return done(StatusEmpty, nil)
	}

	// Records already collected outlive an interrupted run, including a canceled one.
	saveCtx, status := ctx, StatusSaved
	if runErr != nil {
		logger.Warn("run interrupted, saving collected records",
			zap.Int("events", len(acc.Events)),
			zap.Error(runErr),
		)
		saveCtx, status = context.WithoutCancel(ctx), StatusPartial
	}

	dataset := o.dataset(runID, req, target, acc.Events)
	location, err := o.store.Save(saveCtx, dataset)
	switch {
	case errors.Is(err, ErrDatasetTooSmall):
		logger.Warn("dataset not saved", zap.Error(err))
		if runErr != nil {
			return done(StatusFailed, runErr)
		}
		return done(StatusNotSaved, nil)
	case err != nil:
		return done(StatusFailed, errors.Join(runErr, fmt.Errorf("save dataset: %w", err)))
	}
	result.Location = location
	o.notify(saveCtx, dataset, location, logger)
	return done(status, runErr)
}

// fallbackAllowed reports whether a season listing scan that found nothing may be
// retried under the year listings. Navigation failures qualify; cancellation does not.
func fallbackAllowed(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	return ctx.Err() == nil && errors.Is(err, ErrNavigation)
}

// stored consults the idempotency gate. Index errors are logged and treated as absent.
func (o *Orchestrator) stored(ctx context.Context, key DatasetKey, logger *zap.Logger) bool {
	exists, err := o.store.Exists(ctx, key)
	if err != nil {
		logger.Warn("idempotency check failed, crawling anyway", zap.Error(err))
		return false
	}
	return exists
}

func (o *Orchestrator) locator(req Request, target Target) string {
	switch t := target.(type) {
	case TeamSeason:
		return links.TeamResultsURL(o.opts.BaseURL, t.TeamID)
	case CompetitionSeason:
		if req.Mode == ModeUpcoming {
			return links.UpcomingURL(o.opts.BaseURL, req.Sport, t.Region, t.Competition)
		}
		return links.CompetitionResultsURL(o.opts.BaseURL, req.Sport, t.Region, t.Competition, t.SeasonName)
	default:
		panic(fmt.Sprintf("crawler: unknown target %T", target))
	}
}

// scan runs the scanner on a dedicated page of the scope's session.
func (o *Orchestrator) scan(ctx context.Context, scope *SessionScope, locator string, window *season.Window) (ScanResult, error) {
	session, err := scope.Acquire(ctx)
	if err != nil {
		return ScanResult{Status: ScanEmpty}, err
	}
	page, err := session.NewPage(ctx)
	if err != nil {
		return ScanResult{Status: ScanEmpty}, fmt.Errorf("open listing page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()
	return o.scanner.Scan(ctx, page, locator, window)
}

// fallback retries a competition listing under its single-year locators, end year first.
func (o *Orchestrator) fallback(
	ctx context.Context,
	scope *SessionScope,
	locator string,
	seasonName string,
	window *season.Window,
	prev ScanResult,
	logger *zap.Logger,
) (ScanResult, error) {
	startYear, endYear, err := links.YearLinks(locator, seasonName)
	if err != nil {
		return prev, nil
	}
	for _, alt := range []string{endYear, startYear} {
		logger.Info("no items for season listing, trying year listing", zap.String("locator", alt))
		scan, serr := o.scan(ctx, scope, alt, window)
		if serr != nil {
			if ctx.Err() != nil {
				return scan, serr
			}
			logger.Info("year listing unavailable", zap.String("locator", alt), zap.Error(serr))
			continue
		}
		if len(scan.Items) > 0 {
			return scan, nil
		}
	}
	return prev, nil
}

func (o *Orchestrator) dataset(runID string, req Request, target Target, events []MatchRecord) Dataset {
	ds := Dataset{
		RunID:       runID,
		Kind:        target.Kind(),
		Mode:        req.Mode,
		Sport:       req.Sport,
		Season:      target.Season(),
		Market:      Market,
		Bookmaker:   req.Bookmaker,
		CollectedAt: o.clock.Now(),
		Events:      events,
	}
	switch t := target.(type) {
	case CompetitionSeason:
		ds.Region = t.Region
		ds.Competition = t.Competition
	case TeamSeason:
		ds.Team = t.TeamName
		ds.TeamID = t.TeamID
	}
	return ds
}

// notify publishes a DatasetSaved message. Failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, ds Dataset, location string, logger *zap.Logger) {
	if o.publisher == nil || o.opts.Topic == "" {
		return
	}
	msg := DatasetSaved{
		RunID:       ds.RunID,
		Kind:        ds.Kind,
		Mode:        ds.Mode,
		Sport:       ds.Sport,
		Region:      ds.Region,
		Competition: ds.Competition,
		Team:        ds.Team,
		Season:      ds.Season,
		Bookmaker:   ds.Bookmaker,
		Events:      len(ds.Events),
		Location:    location,
		CollectedAt: ds.CollectedAt,
	}
	id, err := o.publisher.Publish(ctx, o.opts.Topic, msg)
	if err != nil {
		logger.Warn("publish dataset notification failed", zap.Error(err))
		return
	}
	logger.Debug("dataset notification published", zap.String("message_id", id))
}
