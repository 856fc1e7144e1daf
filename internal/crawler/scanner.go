package crawler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/season"
)

// ScanStatus reports why a scan ended.
type ScanStatus int

// Scan outcomes.
const (
	// ScanComplete means the listing ran out of pages.
	ScanComplete ScanStatus = iota
	// ScanBoundary means an item older than the season window was reached.
	ScanBoundary
	// ScanEmpty means no item was ever found.
	ScanEmpty
)

func (s ScanStatus) String() string {
	switch s {
	case ScanComplete:
		return "complete"
	case ScanBoundary:
		return "boundary"
	case ScanEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// ScanResult is the finite list of refs a scan produced.
type ScanResult struct {
	Items       []ItemRef
	Pages       int
	OutOfWindow int
	Status      ScanStatus
}

// Scanner walks a paginated listing and collects item references.
type Scanner struct {
	nav      *Navigator
	lister   Lister
	maxPages int
	logger   *zap.Logger
}

// NewScanner constructs a Scanner. maxPages <= 0 leaves pagination unbounded.
func NewScanner(nav *Navigator, lister Lister, maxPages int, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{nav: nav, lister: lister, maxPages: maxPages, logger: logger}
}

// Scan navigates page to locator and collects item references until the listing
// ends or the season boundary is crossed. window may be nil to disable temporal
// filtering.
//
// The listing must be reverse-chronological: the first item tagged with an earlier
// season ends the whole scan, so a listing that interleaves seasons loses the items
// after that point. Scan is not restartable; calling it again starts from page one.
//
// An error is returned only when the first page cannot be loaded or ctx ends.
func (s *Scanner) Scan(ctx context.Context, page Page, locator string, window *season.Window) (ScanResult, error) {
	var result ScanResult
	if err := s.nav.Navigate(ctx, page, locator); err != nil {
		result.Status = ScanEmpty
		return result, err
	}

	seen := make(map[string]struct{})
	for {
		result.Pages++
		reload := ""
		if result.Pages == 1 {
			reload = locator
		}
		if err := s.nav.WaitFor(ctx, page, s.lister.ListSelector(), reload); err != nil {
			if ctx.Err() != nil {
				return s.finish(result, ScanComplete), ctx.Err()
			}
			s.logger.Info("listing did not render, ending scan",
				zap.String("locator", locator),
				zap.Int("page", result.Pages),
				zap.Error(err),
			)
			return s.finish(result, ScanComplete), nil
		}

		refs, err := s.lister.ItemRefs(ctx, page)
		if err != nil {
			s.logger.Warn("reading listing failed", zap.Int("page", result.Pages), zap.Error(err))
			return s.finish(result, ScanComplete), nil
		}

		fresh := 0
		for _, ref := range refs {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			fresh++

			item := ItemRef{Locator: ref}
			if tag, ok := season.TagFromLocator(ref); ok {
				item.SeasonTag = tag
			}
			switch s.position(item, window) {
			case season.Before:
				s.logger.Info("season boundary reached in listing",
					zap.String("item", ref),
					zap.Int("page", result.Pages),
					zap.Int("items", len(result.Items)),
				)
				result.Status = ScanBoundary
				return result, nil
			case season.After:
				result.OutOfWindow++
				continue
			}
			result.Items = append(result.Items, item)
		}

		if fresh == 0 {
			return s.finish(result, ScanComplete), nil
		}
		if s.maxPages > 0 && result.Pages >= s.maxPages {
			s.logger.Info("page limit reached", zap.Int("max_pages", s.maxPages))
			return s.finish(result, ScanComplete), nil
		}

		more, err := s.lister.NextPage(ctx, page)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return s.finish(result, ScanComplete), err
			}
			s.logger.Info("next page unavailable", zap.Int("page", result.Pages), zap.Error(err))
			return s.finish(result, ScanComplete), nil
		}
		if !more {
			return s.finish(result, ScanComplete), nil
		}
	}
}

// position classifies an item by its embedded tag. Untagged items are kept.
func (s *Scanner) position(item ItemRef, window *season.Window) season.Position {
	if window == nil || item.SeasonTag == "" {
		return season.Within
	}
	date, err := season.TagDate(item.SeasonTag)
	if err != nil {
		return season.Within
	}
	return window.Classify(date)
}

func (s *Scanner) finish(result ScanResult, status ScanStatus) ScanResult {
	if len(result.Items) == 0 && status != ScanBoundary {
		status = ScanEmpty
	}
	result.Status = status
	return result
}
