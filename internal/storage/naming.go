// Package storage holds the encoding and naming rules shared by every dataset store.
package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/links"
)

// ContentType of encoded datasets.
const ContentType = "application/json"

const timestampLayout = "20060102_150405"

// Encode renders d as indented JSON.
func Encode(d crawler.Dataset) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return data, nil
}

// Decode parses a dataset previously written by Encode.
func Decode(data []byte) (crawler.Dataset, error) {
	var d crawler.Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return crawler.Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	return d, nil
}

// CleanName makes s safe for file and object names. Path and shell metacharacters
// become dashes, anything else that is not a letter, digit, space, dash or underscore
// is dropped, and spaces become underscores.
func CleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
}

// FileName returns the descriptive name of d, prefixed by its collection time:
//
//	competition: {ts}_{sport}_{region}_{competition}_{season}_{bookmaker}.json
//	upcoming:    {ts}_{sport}_{region}_{competition}_{bookmaker}_upcoming.json
//	team:        {ts}_{sport}_{team}_team_{season}_{bookmaker}.json
func FileName(d crawler.Dataset) string {
	ts := d.CollectedAt.UTC().Format(timestampLayout)
	season := CleanName(links.SeasonSlug(d.Season))
	switch {
	case d.Kind == crawler.KindTeam:
		return fmt.Sprintf("%s_%s_%s_team_%s_%s.json", ts, CleanName(d.Sport), CleanName(d.Team), season, CleanName(d.Bookmaker))
	case d.Mode == crawler.ModeUpcoming:
		return fmt.Sprintf("%s_%s_%s_%s_%s_upcoming.json",
			ts, CleanName(d.Sport), CleanName(d.Region), CleanName(d.Competition), CleanName(d.Bookmaker))
	default:
		return fmt.Sprintf("%s_%s_%s_%s_%s_%s.json",
			ts, CleanName(d.Sport), CleanName(d.Region), CleanName(d.Competition), season, CleanName(d.Bookmaker))
	}
}

// Matches reports whether name is a dataset file for key. Comparison ignores case and
// treats spaces, dashes and underscores alike, so "2024/2025" matches "2024-2025".
// Upcoming snapshots never match.
func Matches(name string, key crawler.DatasetKey) bool {
	if key.Mode == crawler.ModeUpcoming || !strings.HasSuffix(strings.ToLower(name), ".json") {
		return false
	}
	fragment := Fragment(key)
	return fragment != "" && strings.Contains(links.Fold(name), fragment)
}

// Fragment is the folded portion of a dataset file name that identifies key.
func Fragment(key crawler.DatasetKey) string {
	season := links.SeasonSlug(key.Season)
	var parts []string
	switch key.Kind {
	case crawler.KindTeam:
		parts = []string{key.Sport, key.Team, "team", season}
	case crawler.KindCompetition:
		parts = []string{key.Sport, key.Region, key.Competition, season}
	default:
		return ""
	}
	for i, p := range parts {
		p = links.Fold(CleanName(p))
		if p == "" {
			return ""
		}
		parts[i] = p
	}
	return "-" + strings.Join(parts, "-") + "-"
}
