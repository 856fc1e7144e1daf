package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Www.OddsPortal.com/football/", "www.oddsportal.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := crawlerItemsTotal
	Init()
	if crawlerItemsTotal == nil || crawlerItemsTotal != first {
		t.Fatal("Init() must build collectors exactly once")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlerItemsTotal.WithLabelValues("ok"))
	ObserveItem("ok", 3*time.Second)
	if got := testutil.ToFloat64(crawlerItemsTotal.WithLabelValues("ok")); got != before+1 {
		t.Errorf("items{ok} = %f; want %f", got, before+1)
	}

	beforeNav := testutil.ToFloat64(crawlerNavigationAttemptsTotal.WithLabelValues("error"))
	ObserveNavigation("error")
	ObserveNavigation("error")
	if got := testutil.ToFloat64(crawlerNavigationAttemptsTotal.WithLabelValues("error")); got != beforeNav+2 {
		t.Errorf("navigation{error} = %f; want %f", got, beforeNav+2)
	}

	beforeBatches := testutil.ToFloat64(crawlerBatchesTotal)
	ObserveBatch()
	if got := testutil.ToFloat64(crawlerBatchesTotal); got != beforeBatches+1 {
		t.Errorf("batches = %f; want %f", got, beforeBatches+1)
	}

	beforeRecycles := testutil.ToFloat64(crawlerSessionRecyclesTotal)
	ObserveSessionRecycle()
	if got := testutil.ToFloat64(crawlerSessionRecyclesTotal); got != beforeRecycles+1 {
		t.Errorf("recycles = %f; want %f", got, beforeRecycles+1)
	}

	beforeDatasets := testutil.ToFloat64(crawlerDatasetsTotal.WithLabelValues("team", "saved"))
	ObserveDataset("team", "saved")
	if got := testutil.ToFloat64(crawlerDatasetsTotal.WithLabelValues("team", "saved")); got != beforeDatasets+1 {
		t.Errorf("datasets{team,saved} = %f; want %f", got, beforeDatasets+1)
	}

	IncInflight()
	IncInflight()
	DecInflight()
	DecInflight()
	if got := testutil.ToFloat64(crawlerInflightItems); got != 0 {
		t.Errorf("inflight = %f; want 0", got)
	}

	ObserveRateLimitDelay("https://www.oddsportal.com/x", 2*time.Second)
	if got := testutil.CollectAndCount(crawlerRateLimitDelaysSeconds); got <= 0 {
		t.Errorf("rate limit histogram not observed, got %d series", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.oddsportal.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
