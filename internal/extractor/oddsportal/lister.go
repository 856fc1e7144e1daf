package oddsportal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/links"
)

const (
	rowSelector  = "a.next-m\\:flex > div[data-testid='game-row']"
	pageSelector = "a.pagination-link"
)

// ListerConfig tunes the results listing reader.
type ListerConfig struct {
	BaseURL      string
	ClickTimeout time.Duration
	// SettleTimeout bounds how long NextPage waits for the rows to change after a click.
	SettleTimeout time.Duration
	SettlePoll    time.Duration
}

// Lister implements crawler.Lister for results pages.
type Lister struct {
	cfg ListerConfig
}

// NewLister constructs a Lister.
func NewLister(cfg ListerConfig) *Lister {
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = 10 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 10 * time.Second
	}
	if cfg.SettlePoll <= 0 {
		cfg.SettlePoll = 250 * time.Millisecond
	}
	return &Lister{cfg: cfg}
}

// ListSelector matches one row per match.
func (l *Lister) ListSelector() string { return rowSelector }

// ItemRefs returns the absolute match locators of the current listing page in order.
func (l *Lister) ItemRefs(ctx context.Context, page crawler.Page) ([]string, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return nil, err
	}
	return l.refs(doc), nil
}

func (l *Lister) refs(doc *goquery.Document) []string {
	var refs []string
	seen := make(map[string]struct{})
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Parent().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		locator := links.Absolute(l.cfg.BaseURL, href)
		if _, dup := seen[locator]; dup {
			return
		}
		seen[locator] = struct{}{}
		refs = append(refs, locator)
	})
	return refs
}

// NextPage clicks the "Next" pagination control. It reports false when the control is
// missing or disabled. After the click it waits until the first row differs from the
// previous page so that the caller never reads a stale listing.
func (l *Lister) NextPage(ctx context.Context, page crawler.Page) (bool, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return false, err
	}
	controls := doc.Find(pageSelector)
	next := controls.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(strings.TrimSpace(s.Text()), "next")
	}).First()
	if next.Length() == 0 || disabled(next) {
		return false, nil
	}

	before := ""
	if refs := l.refs(doc); len(refs) > 0 {
		before = refs[0]
	}
	if err := page.Click(ctx, pageSelector, controls.IndexOfSelection(next), l.cfg.ClickTimeout); err != nil {
		return false, fmt.Errorf("click next page: %w", err)
	}
	return true, l.settle(ctx, page, before)
}

// settle polls until the listing's first row changes. A listing that never changes is
// left to the scanner, which stops when a page yields nothing new.
func (l *Lister) settle(ctx context.Context, page crawler.Page, before string) error {
	if before == "" {
		return nil
	}
	deadline := time.Now().Add(l.cfg.SettleTimeout)
	ticker := time.NewTicker(l.cfg.SettlePoll)
	defer ticker.Stop()
	for {
		refs, err := l.ItemRefs(ctx, page)
		if err == nil && len(refs) > 0 && refs[0] != before {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func disabled(s *goquery.Selection) bool {
	if s.HasClass("disabled") {
		return true
	}
	aria, _ := s.Attr("aria-disabled")
	return strings.EqualFold(strings.TrimSpace(aria), "true")
}
