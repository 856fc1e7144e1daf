// Package links deduplicates entity links discovered while crawling and builds site locators.
package links

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Competition is a (region, competition) pair discovered from a match page.
type Competition struct {
	Region      string `json:"region"`
	Competition string `json:"competition"`
}

// Team is a team reference discovered from a match page.
type Team struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Key returns the case-folded identity of the pair.
func (c Competition) Key() string {
	return Fold(c.Region) + "\x00" + Fold(c.Competition)
}

// Key returns the case-folded identity of the team. The site ID wins when present.
func (t Team) Key() string {
	if t.ID != "" {
		return "id:" + Fold(t.ID)
	}
	if t.Path != "" {
		return "path:" + Fold(strings.TrimSuffix(t.Path, "/"))
	}
	return "name:" + Fold(t.Name)
}

var folder = cases.Fold()

// Fold case-folds s and collapses runs of spaces, dashes and underscores into one dash.
func Fold(s string) string {
	folded := folder.String(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		switch r {
		case ' ', '-', '_', '\t':
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('-')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Set accumulates links in discovery order without duplicates. It is safe for concurrent use.
type Set struct {
	mu           sync.Mutex
	competitions []Competition
	teams        []Team
	seenComp     map[string]struct{}
	seenTeam     map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{
		seenComp: make(map[string]struct{}),
		seenTeam: make(map[string]struct{}),
	}
}

// AddCompetition records c unless an equal pair is already present. It reports whether c was new.
func (s *Set) AddCompetition(c Competition) bool {
	if strings.TrimSpace(c.Region) == "" || strings.TrimSpace(c.Competition) == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.Key()
	if _, ok := s.seenComp[key]; ok {
		return false
	}
	s.seenComp[key] = struct{}{}
	s.competitions = append(s.competitions, c)
	return true
}

// AddTeam records t unless an equal team is already present. It reports whether t was new.
func (s *Set) AddTeam(t Team) bool {
	if t.ID == "" && t.Path == "" && strings.TrimSpace(t.Name) == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.Key()
	if _, ok := s.seenTeam[key]; ok {
		return false
	}
	s.seenTeam[key] = struct{}{}
	s.teams = append(s.teams, t)
	return true
}

// Merge adds every link from other.
func (s *Set) Merge(other *Set) {
	if other == nil || other == s {
		return
	}
	for _, c := range other.Competitions() {
		s.AddCompetition(c)
	}
	for _, t := range other.Teams() {
		s.AddTeam(t)
	}
}

// Competitions returns a copy of the competition pairs in discovery order.
func (s *Set) Competitions() []Competition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Competition(nil), s.competitions...)
}

// Teams returns a copy of the team references in discovery order.
func (s *Set) Teams() []Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Team(nil), s.teams...)
}

// Len returns the number of distinct links held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.competitions) + len(s.teams)
}

// Dedupe returns pairs with case-insensitive duplicates removed, keeping the first spelling.
func Dedupe(pairs []Competition) []Competition {
	set := NewSet()
	for _, p := range pairs {
		set.AddCompetition(p)
	}
	return set.Competitions()
}

// Without returns pairs minus any pair equal to exclude.
func Without(pairs []Competition, exclude Competition) []Competition {
	out := make([]Competition, 0, len(pairs))
	key := exclude.Key()
	for _, p := range pairs {
		if p.Key() != key {
			out = append(out, p)
		}
	}
	return out
}
