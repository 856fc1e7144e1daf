package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest rejects conflicting or insufficient request parameters.
	ErrInvalidRequest = errors.New("invalid crawl request")
	// ErrNavigation marks a locator that could not be loaded within the retry budget.
	ErrNavigation = errors.New("navigation failed")
	// ErrExtraction marks a loaded page whose expected content is absent or malformed.
	ErrExtraction = errors.New("extraction failed")
	// ErrBoundaryStop signals that the season window is exhausted. It is not a failure.
	ErrBoundaryStop = errors.New("season boundary reached")
	// ErrDatasetTooSmall is returned by stores that refuse suspiciously small payloads.
	ErrDatasetTooSmall = errors.New("dataset below minimum size")
)

func invalidRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

// NavigationError reports the locator and attempt count of a failed navigation.
type NavigationError struct {
	Locator  string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s after %d attempt(s): %v", e.Locator, e.Attempts, e.Err)
}

// Unwrap exposes both ErrNavigation and the last attempt's error.
func (e *NavigationError) Unwrap() []error { return []error{ErrNavigation, e.Err} }

// ExtractionError reports which field could not be read from a page.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: missing", e.Field)
	}
	return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
}

// Unwrap exposes ErrExtraction and the cause.
func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExtraction}
	}
	return []error{ErrExtraction, e.Err}
}

// Verdict is the three-level outcome of a step: retry it, skip the item, or stop the scan.
type Verdict int

// Verdicts, ordered by severity.
const (
	Proceed Verdict = iota
	Retryable
	SkipItem
	StopScan
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case Retryable:
		return "retryable"
	case SkipItem:
		return "skip_item"
	case StopScan:
		return "stop_scan"
	default:
		return "unknown"
	}
}
