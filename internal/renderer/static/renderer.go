// Package static renders pages without JavaScript using colly. Clicks are emulated by
// following the href of the clicked element, so it suits listings and match pages that
// are server-rendered, and tests.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/policy/ratelimit"
)

// ErrNotRendered reports a selector that is absent from the fetched document.
var ErrNotRendered = errors.New("selector not present")

// Config controls collector behavior.
type Config struct {
	UserAgents    []string
	RespectRobots bool
}

// Renderer implements crawler.Renderer with plain HTTP fetches.
type Renderer struct {
	cfg       Config
	limiter   *ratelimit.Limiter
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Renderer. limiter may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg, limiter: limiter, transport: newHTTPTransport(), logger: logger}
}

// Open returns a session with its own cookie jar and user agent.
func (r *Renderer) Open(ctx context.Context) (crawler.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(r.transport)
	c.IgnoreRobotsTxt = !r.cfg.RespectRobots
	if ua := crawler.PickOne(r.cfg.UserAgents); ua != "" {
		c.UserAgent = ua
	}
	return &session{renderer: r, base: c}, nil
}

type session struct {
	renderer *Renderer
	base     *colly.Collector
	mu       sync.Mutex
	closed   bool
}

func (s *session) NewPage(context.Context) (crawler.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	return &page{session: s}, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type page struct {
	session *session

	mu   sync.Mutex
	url  *url.URL
	body []byte
	doc  *goquery.Document
}

func (p *page) Load(ctx context.Context, locator string, timeout time.Duration) error {
	if err := p.session.renderer.limiter.Wait(ctx, locator); err != nil {
		return err
	}
	var (
		finalURL *url.URL
		body     []byte
		fetchErr error
	)
	collector := p.session.base.Clone()
	if timeout > 0 {
		collector.SetRequestTimeout(timeout)
	}
	collector.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = classify(r, err)
	})

	if err := visit(ctx, collector, locator); err != nil {
		if ctx.Err() == nil && fetchErr != nil {
			return fmt.Errorf("load %s: %w", locator, fetchErr)
		}
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", locator, err)
	}

	p.mu.Lock()
	p.url, p.body, p.doc = finalURL, body, doc
	p.mu.Unlock()
	return nil
}

// visit runs the blocking colly visit and gives up when ctx ends.
func visit(ctx context.Context, collector *colly.Collector, locator string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(locator)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func classify(r *colly.Response, err error) error {
	if r == nil {
		return err
	}
	switch r.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("http status %d: %w", r.StatusCode, crawler.ErrPermanent)
	case 0:
		return err
	default:
		return fmt.Errorf("http status %d: %w", r.StatusCode, err)
	}
}

func (p *page) document() (*goquery.Document, *url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, nil, errors.New("page not loaded")
	}
	return p.doc, p.url, nil
}

func (p *page) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, _, err := p.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrNotRendered, selector)
	}
	return nil
}

func (p *page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", errors.New("page not loaded")
	}
	return string(p.body), nil
}

// Click follows the href of the index-th match, or of its closest enclosing anchor.
func (p *page) Click(ctx context.Context, selector string, index int, timeout time.Duration) error {
	doc, current, err := p.document()
	if err != nil {
		return err
	}
	matches := doc.Find(selector)
	if index < 0 || index >= matches.Length() {
		return fmt.Errorf("click %q: index %d out of %d match(es)", selector, index, matches.Length())
	}
	node := matches.Eq(index)
	href, ok := node.Attr("href")
	if !ok {
		href, ok = node.Closest("a[href]").Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
		return nil
	}
	target, err := current.Parse(href)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return p.Load(ctx, target.String(), timeout)
}

func (p *page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc, p.body = nil, nil
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
