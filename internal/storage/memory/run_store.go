package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunStore provides an in-memory crawler.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.RunRecord
	now  func() time.Time
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]crawler.RunRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run crawler.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if run.Status == "" {
		run.Status = crawler.RunQueued
	}
	if run.Created.IsZero() {
		run.Created = s.now()
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun sets the status, error text and target summaries of a run.
func (s *RunStore) UpdateRun(
	_ context.Context,
	id string,
	status crawler.RunStatus,
	errText string,
	targets []crawler.TargetSummary,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	run.Error = errText
	if targets != nil {
		run.Targets = append([]crawler.TargetSummary(nil), targets...)
	}
	now := s.now()
	if status == crawler.RunRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if status.Terminal() {
		run.Finished = pointerTime(now)
	}
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (crawler.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return crawler.RunRecord{}, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns every run, newest first.
func (s *RunStore) ListRuns(context.Context) ([]crawler.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID > out[j].ID
		}
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
