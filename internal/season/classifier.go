// Package season classifies timestamps against a season window.
package season

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultBoundary is the month-day on which European football seasons roll over.
const DefaultBoundary = "08-01"

// ErrInvalidSeason is returned for malformed season or boundary strings.
var ErrInvalidSeason = errors.New("invalid season")

// Position is the location of a timestamp relative to a Window.
type Position int

// Positions are a total, non-overlapping partition of the time line.
const (
	Before Position = iota + 1
	Within
	After
)

func (p Position) String() string {
	switch p {
	case Before:
		return "before"
	case Within:
		return "within"
	case After:
		return "after"
	default:
		return "unknown"
	}
}

// Window is the half-open interval [boundary(StartYear), boundary(EndYear)).
type Window struct {
	StartYear     int
	EndYear       int
	BoundaryMonth time.Month
	BoundaryDay   int
}

// ParseWindow builds a Window from "YYYY/YYYY" (or "YYYY-YYYY") and an "MM-DD" boundary.
func ParseWindow(season, boundary string) (Window, error) {
	start, end, err := splitSeason(season)
	if err != nil {
		return Window{}, err
	}
	month, day, err := ParseBoundary(boundary)
	if err != nil {
		return Window{}, err
	}
	return Window{StartYear: start, EndYear: end, BoundaryMonth: month, BoundaryDay: day}, nil
}

// ParseBoundary parses an "MM-DD" month-day pair.
func ParseBoundary(boundary string) (time.Month, int, error) {
	parts := strings.Split(strings.TrimSpace(boundary), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: boundary %q must be MM-DD", ErrInvalidSeason, boundary)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: boundary month in %q", ErrInvalidSeason, boundary)
	}
	day, err := strconv.Atoi(parts[1])
	// 2001 is not a leap year, so 02-29 is rejected as a recurring boundary.
	if err != nil || day < 1 || day > daysIn(time.Month(month), 2001) {
		return 0, 0, fmt.Errorf("%w: boundary day in %q", ErrInvalidSeason, boundary)
	}
	return time.Month(month), day, nil
}

// Classify parses its arguments and classifies ts.
func Classify(season string, ts time.Time, boundary string) (Position, error) {
	w, err := ParseWindow(season, boundary)
	if err != nil {
		return 0, err
	}
	return w.Classify(ts), nil
}

// Classify reports where ts falls. The window is evaluated in ts's own location.
func (w Window) Classify(ts time.Time) Position {
	loc := ts.Location()
	switch {
	case ts.Before(w.start(loc)):
		return Before
	case ts.Before(w.end(loc)):
		return Within
	default:
		return After
	}
}

// Start returns the first instant of the window in UTC.
func (w Window) Start() time.Time { return w.start(time.UTC) }

// End returns the exclusive end of the window in UTC.
func (w Window) End() time.Time { return w.end(time.UTC) }

// String renders the season as "YYYY/YYYY".
func (w Window) String() string {
	return fmt.Sprintf("%d/%d", w.StartYear, w.EndYear)
}

// Tag renders the season as the "YYYY-YYYY" form embedded in locators.
func (w Window) Tag() string {
	return fmt.Sprintf("%d-%d", w.StartYear, w.EndYear)
}

func (w Window) start(loc *time.Location) time.Time {
	return time.Date(w.StartYear, w.BoundaryMonth, w.BoundaryDay, 0, 0, 0, 0, loc)
}

func (w Window) end(loc *time.Location) time.Time {
	return time.Date(w.EndYear, w.BoundaryMonth, w.BoundaryDay, 0, 0, 0, 0, loc)
}

var tagPattern = regexp.MustCompile(`\b\d{4}-\d{4}\b`)

// TagFromLocator returns the first "YYYY-YYYY" season tag embedded in a locator.
func TagFromLocator(locator string) (string, bool) {
	tag := tagPattern.FindString(locator)
	return tag, tag != ""
}

// TagDate maps a season tag to a representative date: Dec 31 of its first year.
func TagDate(tag string) (time.Time, error) {
	start, _, err := splitSeason(tag)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(start, time.December, 31, 0, 0, 0, 0, time.UTC), nil
}

// Normalize rewrites a season into the canonical "YYYY/YYYY" form.
func Normalize(season string) (string, error) {
	start, end, err := splitSeason(season)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d", start, end), nil
}

func splitSeason(season string) (int, int, error) {
	s := strings.TrimSpace(season)
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 4 {
		return 0, 0, fmt.Errorf("%w: %q must be YYYY/YYYY", ErrInvalidSeason, season)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start year in %q", ErrInvalidSeason, season)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end year in %q", ErrInvalidSeason, season)
	}
	return start, end, nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
