// Package runner executes crawl requests, singly or as a parallel jobs file,
// and records each as a run.
package runner

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
)

// ErrNoJobs is returned for a jobs file without entries.
var ErrNoJobs = errors.New("jobs file has no jobs")

// Job is one named request in a jobs file.
type Job struct {
	Name            string `yaml:"name"`
	crawler.Request `yaml:",inline"`
}

// File is the on-disk jobs layout. Defaults fill blank request fields.
type File struct {
	Defaults crawler.Request `yaml:"defaults"`
	Jobs     []Job           `yaml:"jobs"`
}

// LoadJobs reads a YAML jobs file and applies its defaults to every job.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path) //nolint:gosec // jobs path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes a jobs document.
func ParseJobs(data []byte) ([]Job, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode jobs file: %w", err)
	}
	if len(f.Jobs) == 0 {
		return nil, ErrNoJobs
	}
	jobs := make([]Job, 0, len(f.Jobs))
	for i, job := range f.Jobs {
		job.Request = WithDefaults(job.Request, f.Defaults)
		if strings.TrimSpace(job.Name) == "" {
			job.Name = fmt.Sprintf("job-%d", i+1)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// WithDefaults fills blank fields of req from defaults. Target fields
// (region, competition, team) are never defaulted.
func WithDefaults(req, defaults crawler.Request) crawler.Request {
	if req.Sport == "" {
		req.Sport = defaults.Sport
	}
	if req.Season == "" {
		req.Season = defaults.Season
	}
	if req.Bookmaker == "" {
		req.Bookmaker = defaults.Bookmaker
	}
	if req.Mode == "" {
		req.Mode = defaults.Mode
	}
	if req.Spread == "" {
		req.Spread = defaults.Spread
	}
	return req
}
