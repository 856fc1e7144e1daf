package crawler

import (
	"context"
	"time"
)

// RunStatus tracks a run submitted through the status API or the batch runner.
type RunStatus string

// Run statuses.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether s is final.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// TargetSummary is the serializable view of a TargetResult.
type TargetSummary struct {
	Kind     TargetKind   `json:"kind"`
	Target   string       `json:"target"`
	Status   TargetStatus `json:"status"`
	Scan     string       `json:"scan"`
	Events   int          `json:"events"`
	Stats    RunStats     `json:"stats"`
	Location string       `json:"location,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// RunRecord is the persisted state of one run.
type RunRecord struct {
	ID       string          `json:"id"`
	Request  Request         `json:"request"`
	Status   RunStatus       `json:"status"`
	Created  time.Time       `json:"created"`
	Started  *time.Time      `json:"started,omitempty"`
	Finished *time.Time      `json:"finished,omitempty"`
	Error    string          `json:"error,omitempty"`
	Targets  []TargetSummary `json:"targets,omitempty"`
}

// RunStore keeps run records for inspection.
type RunStore interface {
	CreateRun(ctx context.Context, run RunRecord) error
	UpdateRun(ctx context.Context, id string, status RunStatus, errText string, targets []TargetSummary) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
}

// Summaries converts the report's target results for serialization.
func (r RunReport) Summaries() []TargetSummary {
	out := make([]TargetSummary, 0, len(r.Targets))
	for _, t := range r.Targets {
		s := TargetSummary{
			Status:   t.Status,
			Scan:     t.Scan.String(),
			Events:   t.Events,
			Stats:    t.Stats,
			Location: t.Location,
		}
		if t.Target != nil {
			s.Kind = t.Target.Kind()
			s.Target = t.Target.String()
		}
		if t.Err != nil {
			s.Error = t.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

type runIDKey struct{}

// WithRunID makes Orchestrator.Run use id instead of generating one.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run ID stored by WithRunID.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
