package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
)

// Launcher runs one crawl request. *crawler.Orchestrator satisfies it.
type Launcher interface {
	Run(ctx context.Context, req crawler.Request) (crawler.RunReport, error)
}

// Config tunes a Runner.
type Config struct {
	// Parallel caps concurrently running jobs. Defaults to 3.
	Parallel int
	// Defaults fill blank request fields.
	Defaults crawler.Request
}

// Result is the outcome of one job.
type Result struct {
	Name     string
	RunID    string
	Request  crawler.Request
	Report   crawler.RunReport
	Duration time.Duration
	Err      error
}

// Passed reports whether the job ran and no target failed.
func (r Result) Passed() bool {
	return r.Err == nil && !r.Report.Failed()
}

// Summary collects job results in submission order.
type Summary struct {
	Started  time.Time
	Finished time.Time
	Results  []Result
}

// Failed counts jobs that did not pass.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if !r.Passed() {
			n++
		}
	}
	return n
}

// Runner executes requests through a Launcher and records them in a RunStore.
type Runner struct {
	launcher Launcher
	runs     crawler.RunStore
	ids      crawler.IDGenerator
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Runner. runs may be nil.
func New(
	launcher Launcher,
	runs crawler.RunStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{launcher: launcher, runs: runs, ids: ids, clock: clock, cfg: cfg, logger: logger}
}

// Prepare applies defaults to req and validates it without touching the network.
func (r *Runner) Prepare(req crawler.Request) (crawler.Request, error) {
	req = WithDefaults(req, r.cfg.Defaults)
	if _, err := req.Target(); err != nil {
		return req, err
	}
	return req, nil
}

// Submit validates req and records it as a queued run, returning the run ID.
func (r *Runner) Submit(ctx context.Context, req crawler.Request) (string, crawler.Request, error) {
	req, err := r.Prepare(req)
	if err != nil {
		return "", req, err
	}
	id, err := r.ids.NewID()
	if err != nil {
		return "", req, fmt.Errorf("generate run id: %w", err)
	}
	if r.runs != nil {
		record := crawler.RunRecord{ID: id, Request: req, Status: crawler.RunQueued, Created: r.clock.Now()}
		if err := r.runs.CreateRun(ctx, record); err != nil {
			return "", req, fmt.Errorf("create run: %w", err)
		}
	}
	return id, req, nil
}

// Execute runs a submitted request to completion and records the outcome.
func (r *Runner) Execute(ctx context.Context, id, name string, req crawler.Request) Result {
	logger := r.logger.With(zap.String("run_id", id), zap.String("job", name))
	r.record(ctx, id, crawler.RunRunning, nil, nil)

	start := r.clock.Now()
	logger.Info("Job started", zap.Stringer("request", req))
	report, err := r.launcher.Run(crawler.WithRunID(ctx, id), req)
	res := Result{
		Name:     name,
		RunID:    id,
		Request:  req,
		Report:   report,
		Duration: r.clock.Now().Sub(start),
		Err:      err,
	}

	status := crawler.RunSucceeded
	if !res.Passed() {
		status = crawler.RunFailed
	}
	r.record(ctx, id, status, err, report.Summaries())

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("events", report.Events()),
		zap.Duration("duration", res.Duration),
	}
	if err != nil {
		logger.Warn("Job failed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("Job finished", fields...)
	}
	return res
}

// RunJobs executes jobs with at most Config.Parallel running at once. A failing
// job never cancels its siblings; only ctx does.
func (r *Runner) RunJobs(ctx context.Context, jobs []Job) Summary {
	summary := Summary{Started: r.clock.Now(), Results: make([]Result, len(jobs))}
	r.logger.Info("Starting jobs", zap.Int("jobs", len(jobs)), zap.Int("parallel", r.cfg.Parallel))

	var g errgroup.Group
	g.SetLimit(r.cfg.Parallel)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				summary.Results[i] = Result{Name: job.Name, Request: job.Request, Err: err}
				return nil
			}
			id, req, err := r.Submit(ctx, job.Request)
			if err != nil {
				summary.Results[i] = Result{Name: job.Name, Request: req, Err: err}
				r.logger.Warn("Job rejected", zap.String("job", job.Name), zap.Error(err))
				return nil
			}
			summary.Results[i] = r.Execute(ctx, id, job.Name, req)
			return nil
		})
	}
	_ = g.Wait()

	summary.Finished = r.clock.Now()
	r.logger.Info("Jobs finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("failed", summary.Failed()),
		zap.Duration("duration", summary.Finished.Sub(summary.Started)),
	)
	return summary
}

func (r *Runner) record(ctx context.Context, id string, status crawler.RunStatus, err error, targets []crawler.TargetSummary) {
	if r.runs == nil {
		return
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	if uerr := r.runs.UpdateRun(context.WithoutCancel(ctx), id, status, errText, targets); uerr != nil &&
		!errors.Is(uerr, context.Canceled) {
		r.logger.Warn("Failed to record run", zap.String("run_id", id), zap.Error(uerr))
	}
}
