package crawler

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	testBase      = "https://odds.test"
	listSelector  = "div.listing"
	readySelector = "div.match"
)

// fakeSite is an in-memory odds site shared by the fake renderer, lister and extractor.
type fakeSite struct {
	mu sync.Mutex

	listings  map[string][][]string
	matches   map[string]MatchRecord
	teamLinks map[string][2]string
	compLinks map[string]string
	failLoads map[string]int
	notReady  map[string]int

	loads       map[string]int
	pagesServed map[string]int
	inflight    int
	maxInflight int
	extractWait time.Duration
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		listings:    make(map[string][][]string),
		matches:     make(map[string]MatchRecord),
		teamLinks:   make(map[string][2]string),
		compLinks:   make(map[string]string),
		failLoads:   make(map[string]int),
		notReady:    make(map[string]int),
		loads:       make(map[string]int),
		pagesServed: make(map[string]int),
	}
}

// alwaysFail makes every load of locator fail.
func (s *fakeSite) alwaysFail(locator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLoads[locator] = -1
}

func (s *fakeSite) loadCount(locator string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[locator]
}

func (s *fakeSite) totalLoads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.loads {
		total += n
	}
	return total
}

func (s *fakeSite) served(locator string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesServed[locator]
}

func (s *fakeSite) load(locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[locator]++
	switch n := s.failLoads[locator]; {
	case n < 0:
		return errors.New("net::ERR_CONNECTION_RESET")
	case n > 0:
		s.failLoads[locator] = n - 1
		return errors.New("net::ERR_TIMED_OUT")
	}
	if _, ok := s.listings[locator]; ok && s.pagesServed[locator] < 1 {
		s.pagesServed[locator] = 1
	}
	return nil
}

func (s *fakeSite) ready(locator, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.notReady[locator]; n > 0 {
		s.notReady[locator] = n - 1
		return context.DeadlineExceeded
	}
	switch selector {
	case listSelector:
		if _, ok := s.listings[locator]; ok {
			return nil
		}
	case readySelector:
		if _, ok := s.matches[locator]; ok {
			return nil
		}
	}
	return context.DeadlineExceeded
}

func (s *fakeSite) enter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
}

func (s *fakeSite) leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
}

type fakeRenderer struct {
	site *fakeSite

	mu      sync.Mutex
	opens   int
	closes  int
	openErr error
	// failFrom, when set, makes the failFrom-th Open and every later one fail.
	failFrom int
}

func (r *fakeRenderer) Open(context.Context) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	if r.failFrom > 0 && r.opens+1 >= r.failFrom {
		return nil, errors.New("browser crashed on relaunch")
	}
	r.opens++
	return &fakeSession{renderer: r}, nil
}

func (r *fakeRenderer) opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

type fakeSession struct {
	renderer *fakeRenderer
}

func (s *fakeSession) NewPage(context.Context) (Page, error) {
	return &fakePage{site: s.renderer.site}, nil
}

func (s *fakeSession) Close() error {
	s.renderer.mu.Lock()
	defer s.renderer.mu.Unlock()
	s.renderer.closes++
	return nil
}

type fakePage struct {
	site     *fakeSite
	locator  string
	pageIdx  int
	clicks   []string
	closed   bool
	clickErr error
}

func (p *fakePage) Load(ctx context.Context, locator string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.site.load(locator); err != nil {
		return err
	}
	p.locator = locator
	p.pageIdx = 0
	return nil
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.site.ready(p.locator, selector)
}

func (p *fakePage) HTML(context.Context) (string, error) { return "<html></html>", nil }

func (p *fakePage) Click(_ context.Context, selector string, _ int, _ time.Duration) error {
	p.clicks = append(p.clicks, selector)
	return p.clickErr
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeLister struct {
	site *fakeSite
}

func (fakeLister) ListSelector() string { return listSelector }

func (l fakeLister) ItemRefs(_ context.Context, page Page) ([]string, error) {
	fp := page.(*fakePage)
	l.site.mu.Lock()
	defer l.site.mu.Unlock()
	pages := l.site.listings[fp.locator]
	if fp.pageIdx >= len(pages) {
		return nil, nil
	}
	return append([]string(nil), pages[fp.pageIdx]...), nil
}

func (l fakeLister) NextPage(_ context.Context, page Page) (bool, error) {
	fp := page.(*fakePage)
	l.site.mu.Lock()
	defer l.site.mu.Unlock()
	pages := l.site.listings[fp.locator]
	if fp.pageIdx+1 >= len(pages) {
		return false, nil
	}
	fp.pageIdx++
	if fp.pageIdx+1 > l.site.pagesServed[fp.locator] {
		l.site.pagesServed[fp.locator] = fp.pageIdx + 1
	}
	return true, nil
}

type fakeExtractor struct {
	site *fakeSite
}

func (fakeExtractor) ReadySelector() string { return readySelector }

func (e fakeExtractor) Extract(_ context.Context, page Page, _ string) (MatchRecord, error) {
	e.site.enter()
	defer e.site.leave()
	if e.site.extractWait > 0 {
		time.Sleep(e.site.extractWait)
	}
	fp := page.(*fakePage)
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	rec, ok := e.site.matches[fp.locator]
	if !ok {
		return MatchRecord{}, &ExtractionError{Field: "participants"}
	}
	return rec, nil
}

func (e fakeExtractor) TeamLinks(_ context.Context, page Page) (string, string, error) {
	fp := page.(*fakePage)
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	l, ok := e.site.teamLinks[fp.locator]
	if !ok {
		return "", "", &ExtractionError{Field: "team links"}
	}
	return l[0], l[1], nil
}

func (e fakeExtractor) CompetitionLink(_ context.Context, page Page) (string, error) {
	fp := page.(*fakePage)
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	return e.site.compLinks[fp.locator], nil
}

type recordingPauser struct {
	mu      sync.Mutex
	delays  []time.Duration
	onPause func()
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	hook := p.onPause
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (p *recordingPauser) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delays)
}

type fakeStore struct {
	mu        sync.Mutex
	existing  map[DatasetKey]bool
	existsErr error
	saveErr   error
	checks    int
	saved     []Dataset
	saveCtxs  []error
}

func newFakeStore(existing ...DatasetKey) *fakeStore {
	s := &fakeStore{existing: make(map[DatasetKey]bool)}
	for _, k := range existing {
		s.existing[k.Normalized()] = true
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, key DatasetKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.existing[key.Normalized()], nil
}

func (s *fakeStore) Save(ctx context.Context, ds Dataset) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCtxs = append(s.saveCtxs, ctx.Err())
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, ds)
	s.existing[ds.Key().Normalized()] = true
	return "mem://" + string(ds.Kind) + "/" + ds.Season, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, payload)
	return "msg-1", nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type staticIDs struct{ id string }

func (g staticIDs) NewID() (string, error) { return g.id, nil }

// testNavigator retries three times without sleeping.
func testNavigator(pauser Pauser) *Navigator {
	return NewNavigator(NewLinearRetryPolicy(3, time.Second), nil, pauser, NavigatorConfig{}, nil)
}

func inSeason(day int) time.Time {
	return time.Date(2024, time.October, day, 15, 0, 0, 0, time.UTC)
}
