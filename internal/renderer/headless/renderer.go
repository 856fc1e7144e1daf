// Package headless renders pages in headless Chrome via chromedp. A Session is one
// browser process and every Page is a tab of it.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/policy/ratelimit"
)

// Config controls the browser processes the renderer launches.
type Config struct {
	Headless bool
	// UserAgents is the pool one agent is picked from per session.
	UserAgents  []string
	HTMLTimeout time.Duration
}

// Renderer implements crawler.Renderer using chromedp.
type Renderer struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// New constructs a Renderer. limiter may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Renderer {
	if cfg.HTMLTimeout <= 0 {
		cfg.HTMLTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg, limiter: limiter, logger: logger}
}

// Open launches a browser and returns it as a session.
func (r *Renderer) Open(ctx context.Context) (crawler.Session, error) {
	userAgent := crawler.PickOne(r.cfg.UserAgents)
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := forwardCancel(ctx, browserCancel)
	defer stop()
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.logger.Debug("browser started", zap.String("user_agent", userAgent))
	return &session{
		renderer:      r,
		userAgent:     userAgent,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type session struct {
	renderer      *Renderer
	userAgent     string
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
}

func (s *session) NewPage(ctx context.Context) (crawler.Page, error) {
	if err := s.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("session closed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	p := &page{
		session: s,
		tabCtx:  tabCtx,
		cancel:  cancel,
		meta:    newResponseMeta(),
	}
	chromedp.ListenTarget(tabCtx, p.meta.captureEvent)
	return p, nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}

type page struct {
	session   *session
	tabCtx    context.Context
	cancel    context.CancelFunc
	meta      *responseMeta
	closeOnce sync.Once
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *page) Load(ctx context.Context, locator string, timeout time.Duration) error {
	if err := p.session.renderer.limiter.Wait(ctx, locator); err != nil {
		return err
	}
	p.meta.reset()
	err := p.run(ctx, timeout,
		p.networkSetupAction(),
		chromedp.Navigate(locator),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	return statusError(p.meta.status())
}

func (p *page) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := p.session.userAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (p *page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.session.renderer.cfg.HTMLTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *page) Click(ctx context.Context, selector string, index int, timeout time.Duration) error {
	var nodes []*cdp.Node
	if err := p.run(ctx, timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll)); err != nil {
		return err
	}
	if index < 0 || index >= len(nodes) {
		return fmt.Errorf("click %q: index %d out of %d match(es)", selector, index, len(nodes))
	}
	return p.run(ctx, timeout, chromedp.MouseClickNode(nodes[index]))
}

func (p *page) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

// statusError turns a document status into a navigation error. Missing pages are permanent.
func statusError(status int) error {
	switch {
	case status == 0 || status < http.StatusBadRequest:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("http status %d: %w", status, crawler.ErrPermanent)
	default:
		return fmt.Errorf("http status %d", status)
	}
}

type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.code = 0
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(event.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// forwardCancel calls cancel when parent ends. The returned func stops forwarding.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
