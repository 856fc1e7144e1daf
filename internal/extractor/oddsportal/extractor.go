// Package oddsportal reads match pages and result listings of the odds site.
package oddsportal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/datenorm"
	"github.com/JakeFAU/odds-history-crawler/internal/links"
)

const (
	hostSelector        = "[data-testid='game-host']"
	guestSelector       = "[data-testid='game-guest']"
	timeSelector        = "[data-testid='game-time-item']"
	oddSelector         = "[data-testid='odd-container']"
	competitionSelector = "a[data-testid='3']"
	missingScore        = "N/A"
	outcomes            = 3
)

var movementPattern = regexp.MustCompile(`(\d{1,2} \w{3,}, \d{2}:\d{2})([0-9]+\.[0-9]+)`)

// ExtractorConfig tunes the match page reader.
type ExtractorConfig struct {
	BaseURL string
	// Kickoffs resolves the match date against the clock.
	Kickoffs datenorm.Normalizer
	// Ticks resolves odds-movement timestamps against the kickoff.
	Ticks        datenorm.Normalizer
	ClickTimeout time.Duration
}

// Extractor implements crawler.Extractor for match pages.
type Extractor struct {
	cfg    ExtractorConfig
	clock  crawler.Clock
	logger *zap.Logger
}

// NewExtractor constructs an Extractor.
func NewExtractor(cfg ExtractorConfig, clock crawler.Clock, logger *zap.Logger) *Extractor {
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, clock: clock, logger: logger}
}

// ReadySelector is present once the match header has rendered.
func (e *Extractor) ReadySelector() string { return hostSelector }

// Extract reads teams, score and kickoff, then the odds movement of the three 1X2
// outcomes offered by bookmaker. A missing bookmaker leaves the series empty.
func (e *Extractor) Extract(ctx context.Context, page crawler.Page, bookmaker string) (crawler.MatchRecord, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return crawler.MatchRecord{}, &crawler.ExtractionError{Field: "document", Err: err}
	}

	host := doc.Find(hostSelector).First()
	guest := doc.Find(guestSelector).First()
	if host.Length() == 0 || guest.Length() == 0 {
		return crawler.MatchRecord{}, &crawler.ExtractionError{Field: "participants"}
	}
	rawTime := strings.TrimSpace(doc.Find(timeSelector).First().Text())
	if rawTime == "" {
		return crawler.MatchRecord{}, &crawler.ExtractionError{Field: "kickoff"}
	}
	kickoff, err := e.cfg.Kickoffs.Normalize(rawTime, e.clock.Now())
	if err != nil {
		return crawler.MatchRecord{}, &crawler.ExtractionError{Field: "kickoff", Err: err}
	}

	record := crawler.MatchRecord{
		HomeTeam: strings.TrimSpace(host.Text()),
		AwayTeam: strings.TrimSpace(guest.Text()),
		Score:    scoreText(host.Next()) + "-" + scoreText(guest.Prev()),
		Kickoff:  kickoff,
	}

	cells, err := bookmakerCells(doc, bookmaker)
	if err != nil {
		return crawler.MatchRecord{}, &crawler.ExtractionError{Field: "bookmaker", Err: err}
	}
	if len(cells) == 0 {
		e.logger.Debug("bookmaker not offered", zap.String("bookmaker", bookmaker))
		return record, nil
	}
	series := []*[]crawler.OddsPoint{&record.Odds.Home, &record.Odds.Draw, &record.Odds.Away}
	for i, index := range cells {
		if i >= outcomes {
			break
		}
		points, err := e.movement(ctx, page, index, kickoff)
		if err != nil {
			if ctx.Err() != nil {
				return crawler.MatchRecord{}, ctx.Err()
			}
			e.logger.Debug("odds movement unavailable", zap.Int("outcome", i), zap.Error(err))
			continue
		}
		*series[i] = points
	}
	return record, nil
}

// movement opens the odds-movement popup of one cell and parses its ticks. Ticks whose
// dates cannot be resolved are dropped.
func (e *Extractor) movement(ctx context.Context, page crawler.Page, index int, kickoff time.Time) ([]crawler.OddsPoint, error) {
	if err := page.Click(ctx, oddSelector, index, e.cfg.ClickTimeout); err != nil {
		return nil, fmt.Errorf("open odds cell %d: %w", index, err)
	}
	doc, err := document(ctx, page)
	if err != nil {
		return nil, err
	}
	header := doc.Find("h3").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "Odds movement")
	}).First()
	if header.Length() == 0 {
		return nil, fmt.Errorf("odds movement block missing for cell %d", index)
	}

	var points []crawler.OddsPoint
	for _, m := range movementPattern.FindAllStringSubmatch(header.Parent().Text(), -1) {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		at, err := e.cfg.Ticks.Normalize(m[1], kickoff)
		if err != nil {
			e.logger.Debug("dropping odds tick", zap.String("tick", m[0]), zap.Error(err))
			continue
		}
		points = append(points, crawler.OddsPoint{Value: value, ObservedAt: at})
	}
	return points, nil
}

// TeamLinks returns the hrefs of both team names.
func (e *Extractor) TeamLinks(ctx context.Context, page crawler.Page) (string, string, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return "", "", err
	}
	home, _ := doc.Find(hostSelector + " a").First().Attr("href")
	away, _ := doc.Find(guestSelector + " a").First().Attr("href")
	if home == "" && away == "" {
		return "", "", &crawler.ExtractionError{Field: "team links"}
	}
	return links.Absolute(e.cfg.BaseURL, home), links.Absolute(e.cfg.BaseURL, away), nil
}

// CompetitionLink returns the breadcrumb link of the match's competition.
func (e *Extractor) CompetitionLink(ctx context.Context, page crawler.Page) (string, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return "", err
	}
	href, ok := doc.Find(competitionSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", &crawler.ExtractionError{Field: "competition link"}
	}
	return links.Absolute(e.cfg.BaseURL, href), nil
}

// bookmakerCells returns the document-wide indexes of the odds cells in the row of
// bookmaker. The row is the third ancestor of the bookmaker's name.
func bookmakerCells(doc *goquery.Document, bookmaker string) ([]int, error) {
	name := strings.TrimSpace(bookmaker)
	if name == "" {
		return nil, nil
	}
	pattern, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(name) + `(\.[a-z]+)?$`)
	if err != nil {
		return nil, fmt.Errorf("bookmaker pattern: %w", err)
	}
	label := doc.Find("a > p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return pattern.MatchString(strings.TrimSpace(s.Text()))
	}).First()
	if label.Length() == 0 {
		return nil, nil
	}
	all := doc.Find(oddSelector)
	var indexes []int
	label.Parent().Parent().Parent().Find(oddSelector).Each(func(_ int, cell *goquery.Selection) {
		if idx := all.IndexOfSelection(cell); idx >= 0 {
			indexes = append(indexes, idx)
		}
	})
	return indexes, nil
}

func scoreText(s *goquery.Selection) string {
	if s.Length() == 0 || goquery.NodeName(s) != "div" {
		return missingScore
	}
	text := strings.TrimSpace(s.Text())
	if text == "" {
		return missingScore
	}
	return text
}

func document(ctx context.Context, page crawler.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}
