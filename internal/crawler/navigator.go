package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/metrics"
)

// NavigatorConfig bounds single navigation and wait attempts.
type NavigatorConfig struct {
	Timeout     time.Duration
	WaitTimeout time.Duration
}

// Navigator loads locators and waits for selectors under a retry policy.
type Navigator struct {
	loads  RetryPolicy
	waits  RetryPolicy
	pauser Pauser
	cfg    NavigatorConfig
	logger *zap.Logger
}

// NewNavigator constructs a Navigator. waits may be nil to reuse loads for selector waits.
func NewNavigator(loads, waits RetryPolicy, pauser Pauser, cfg NavigatorConfig, logger *zap.Logger) *Navigator {
	if loads == nil {
		loads = NewLinearRetryPolicy(0, -1)
	}
	if waits == nil {
		waits = loads
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{loads: loads, waits: waits, pauser: pauser, cfg: cfg, logger: logger}
}

// Navigate loads locator on page, retrying transient failures. It returns a
// *NavigationError once the policy gives up. Content left on page after a failure
// must not be used.
func (n *Navigator) Navigate(ctx context.Context, page Page, locator string) error {
	for attempt := 1; ; attempt++ {
		err := page.Load(ctx, locator, n.cfg.Timeout)
		if err == nil {
			metrics.ObserveNavigation("ok")
			return nil
		}
		metrics.ObserveNavigation("error")

		verdict := n.loads.Decide(err, attempt)
		if ctx.Err() != nil {
			verdict = StopScan
		}
		n.logger.Debug("navigation attempt failed",
			zap.String("locator", locator),
			zap.Int("attempt", attempt),
			zap.Stringer("verdict", verdict),
			zap.Error(err),
		)
		if verdict != Retryable {
			return &NavigationError{Locator: locator, Attempts: attempt, Err: err}
		}
		if perr := n.pauser.Pause(ctx, n.loads.Backoff(attempt)); perr != nil {
			return &NavigationError{Locator: locator, Attempts: attempt, Err: perr}
		}
	}
}

// WaitFor blocks until selector renders on page. Between attempts it backs off and,
// when reload is set, navigates to reload again.
func (n *Navigator) WaitFor(ctx context.Context, page Page, selector, reload string) error {
	for attempt := 1; ; attempt++ {
		err := page.WaitFor(ctx, selector, n.cfg.WaitTimeout)
		if err == nil {
			return nil
		}
		verdict := n.waits.Decide(err, attempt)
		if ctx.Err() != nil {
			verdict = StopScan
		}
		if verdict != Retryable {
			return &ExtractionError{
				Field: selector,
				Err:   fmt.Errorf("not rendered after %d attempt(s): %w", attempt, err),
			}
		}
		n.logger.Debug("selector not ready, retrying",
			zap.String("selector", selector),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if perr := n.pauser.Pause(ctx, n.waits.Backoff(attempt)); perr != nil {
			return &ExtractionError{Field: selector, Err: perr}
		}
		if reload != "" {
			if nerr := n.Navigate(ctx, page, reload); nerr != nil {
				return nerr
			}
		}
	}
}

// VerdictFor maps a step error to the verdict the executor acts on. Caller
// cancellation stops the scan and any other failure skips the item.
func VerdictFor(ctx context.Context, err error) Verdict {
	switch {
	case err == nil:
		return Proceed
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return StopScan
	case errors.Is(err, ErrBoundaryStop):
		return StopScan
	default:
		return SkipItem
	}
}
