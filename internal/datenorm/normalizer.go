// Package datenorm turns partial "day month[, year], HH:MM" strings into absolute timestamps.
package datenorm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrParse marks an unparseable or out-of-range date string.
var ErrParse = errors.New("date parse")

// ParseError carries the offending input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrParse, e.Input, e.Reason)
}

// Unwrap exposes ErrParse to errors.Is.
func (e *ParseError) Unwrap() error { return ErrParse }

// Thresholds bound how far a year-less candidate may drift from its reference.
type Thresholds struct {
	Forward  time.Duration
	Backward time.Duration
}

const day = 24 * time.Hour

// OddsThresholds suit odds-movement ticks that sit close to a known kickoff.
func OddsThresholds() Thresholds {
	return Thresholds{Forward: 30 * day, Backward: 330 * day}
}

// GenericThresholds suit free-standing dates compared against "now".
func GenericThresholds() Thresholds {
	return Thresholds{Forward: 180 * day, Backward: 180 * day}
}

// Normalizer resolves missing years using a pair of thresholds.
type Normalizer struct {
	thresholds Thresholds
}

// New builds a Normalizer. Zero thresholds disable the corresponding adjustment.
func New(t Thresholds) Normalizer {
	return Normalizer{thresholds: t}
}

// Thresholds returns the configured threshold pair.
func (n Normalizer) Thresholds() Thresholds { return n.thresholds }

var datePattern = regexp.MustCompile(
	`(?i)(\d{1,2})\s+([a-z]{3,})\.?,?(?:\s+(\d{4}))?\s*,?\s+(\d{1,2}):(\d{2})`,
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Normalize parses partial and anchors it to reference's year and location.
// A year present in the input is kept as-is.
func (n Normalizer) Normalize(partial string, reference time.Time) (time.Time, error) {
	m := datePattern.FindStringSubmatch(partial)
	if m == nil {
		return time.Time{}, &ParseError{Input: partial, Reason: "no day-month-time sequence"}
	}
	dayOfMonth, _ := strconv.Atoi(m[1])
	month, ok := lookupMonth(m[2])
	if !ok {
		return time.Time{}, &ParseError{Input: partial, Reason: fmt.Sprintf("unknown month %q", m[2])}
	}
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	if hour > 23 || minute > 59 {
		return time.Time{}, &ParseError{Input: partial, Reason: "time out of range"}
	}

	loc := reference.Location()
	if m[3] != "" {
		year, _ := strconv.Atoi(m[3])
		return build(partial, year, month, dayOfMonth, hour, minute, loc)
	}

	year := reference.Year()
	candidate, err := build(partial, year, month, dayOfMonth, hour, minute, loc)
	if err != nil {
		if month == time.February && dayOfMonth == 29 {
			return n.leapDay(partial, reference, hour, minute, err)
		}
		return time.Time{}, err
	}
	switch {
	case n.thresholds.Forward > 0 && candidate.Sub(reference) > n.thresholds.Forward:
		return build(partial, year-1, month, dayOfMonth, hour, minute, loc)
	case n.thresholds.Backward > 0 && reference.Sub(candidate) > n.thresholds.Backward:
		return build(partial, year+1, month, dayOfMonth, hour, minute, loc)
	default:
		return candidate, nil
	}
}

// leapDay places 29 February in the neighbouring leap year when the reference year has
// none. At most one of the two neighbours is a leap year.
func (n Normalizer) leapDay(partial string, reference time.Time, hour, minute int, cause error) (time.Time, error) {
	for _, year := range []int{reference.Year() - 1, reference.Year() + 1} {
		candidate, err := build(partial, year, time.February, 29, hour, minute, reference.Location())
		if err != nil {
			continue
		}
		if n.within(candidate, reference) {
			return candidate, nil
		}
	}
	return time.Time{}, cause
}

// within reports whether candidate sits inside the thresholds around reference.
func (n Normalizer) within(candidate, reference time.Time) bool {
	if n.thresholds.Forward > 0 && candidate.Sub(reference) > n.thresholds.Forward {
		return false
	}
	if n.thresholds.Backward > 0 && reference.Sub(candidate) > n.thresholds.Backward {
		return false
	}
	return true
}

func build(input string, year int, month time.Month, d, hour, minute int, loc *time.Location) (time.Time, error) {
	if d < 1 || d > time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day() {
		return time.Time{}, &ParseError{Input: input, Reason: fmt.Sprintf("day %d out of range for %s %d", d, month, year)}
	}
	return time.Date(year, month, d, hour, minute, 0, 0, loc), nil
}

func lookupMonth(name string) (time.Month, bool) {
	lower := strings.ToLower(name)
	if len(lower) < 3 {
		return 0, false
	}
	month, ok := months[lower[:3]]
	if !ok {
		return 0, false
	}
	// The remaining letters must still spell the month, so "Mayday" is rejected.
	full := strings.ToLower(month.String())
	if !strings.HasPrefix(full, lower) && lower != "sept" {
		return 0, false
	}
	return month, true
}
