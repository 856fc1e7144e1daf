package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/metrics"
)

// Warmup prepares a fresh session, e.g. by accepting a consent banner.
type Warmup struct {
	HomeURL         string
	ConsentSelector string
	Timeout         time.Duration
}

// SessionScope owns the shared Session. It opens the Session on first use and
// recreates it once Budget item fetches have been charged against it.
type SessionScope struct {
	renderer Renderer
	budget   int
	warmup   Warmup
	logger   *zap.Logger

	current Session
	uses    int
}

// NewSessionScope constructs a scope. budget <= 0 disables recycling.
func NewSessionScope(renderer Renderer, budget int, warmup Warmup, logger *zap.Logger) *SessionScope {
	if logger == nil {
		logger = zap.NewNop()
	}
	if warmup.Timeout <= 0 {
		warmup.Timeout = 10 * time.Second
	}
	return &SessionScope{renderer: renderer, budget: budget, warmup: warmup, logger: logger}
}

// Acquire returns the live Session, opening and warming one if needed.
func (s *SessionScope) Acquire(ctx context.Context) (Session, error) {
	if s.current != nil {
		return s.current, nil
	}
	session, err := s.renderer.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	s.current = session
	s.uses = 0
	s.warm(ctx, session)
	return session, nil
}

// Use charges n item fetches against the current Session.
func (s *SessionScope) Use(n int) {
	s.uses += n
}

// Due reports whether the Session has spent its budget.
func (s *SessionScope) Due() bool {
	return s.current != nil && s.budget > 0 && s.uses >= s.budget
}

// Recycle closes the current Session and opens a fresh one.
func (s *SessionScope) Recycle(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.logger.Warn("closing session before recycle failed", zap.Error(err))
	}
	if _, err := s.Acquire(ctx); err != nil {
		return err
	}
	metrics.ObserveSessionRecycle()
	s.logger.Debug("session recycled")
	return nil
}

// Opened reports whether a Session is currently held.
func (s *SessionScope) Opened() bool {
	return s.current != nil
}

// Close releases the Session if one is open. It is idempotent.
func (s *SessionScope) Close() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.uses = 0
	return err
}

// warm visits the home page and clicks the consent control. Failures are logged only.
func (s *SessionScope) warm(ctx context.Context, session Session) {
	if s.warmup.HomeURL == "" {
		return
	}
	page, err := session.NewPage(ctx)
	if err != nil {
		s.logger.Warn("warmup page failed", zap.Error(err))
		return
	}
	defer func() {
		_ = page.Close()
	}()
	if err := page.Load(ctx, s.warmup.HomeURL, s.warmup.Timeout); err != nil {
		s.logger.Warn("warmup navigation failed", zap.String("url", s.warmup.HomeURL), zap.Error(err))
		return
	}
	if s.warmup.ConsentSelector == "" {
		return
	}
	if err := page.Click(ctx, s.warmup.ConsentSelector, 0, s.warmup.Timeout); err != nil {
		s.logger.Debug("no consent control", zap.Error(err))
		return
	}
	s.logger.Debug("consent accepted")
}
