package datenorm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddsReferenceYear(t *testing.T) {
	t.Parallel()

	ref := time.Date(2024, time.August, 16, 20, 45, 0, 0, time.UTC)
	got, err := New(OddsThresholds()).Normalize("14 Aug, 09:12", ref)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.August, 14, 9, 12, 0, 0, time.UTC), got)
}

func TestNormalizeYearRollover(t *testing.T) {
	t.Parallel()

	odds := New(OddsThresholds())
	tests := []struct {
		name    string
		partial string
		ref     time.Time
		want    time.Time
		wantErr bool
	}{
		{
			name:    "late december odds for an early january match",
			partial: "28 Dec, 10:00",
			ref:     time.Date(2025, time.January, 3, 18, 0, 0, 0, time.UTC),
			want:    time.Date(2024, time.December, 28, 10, 0, 0, 0, time.UTC),
		},
		{
			name:    "early january tick after a late december reference",
			partial: "2 Jan, 08:30",
			ref:     time.Date(2024, time.December, 30, 12, 0, 0, 0, time.UTC),
			want:    time.Date(2025, time.January, 2, 8, 30, 0, 0, time.UTC),
		},
		{
			name:    "leap day before a non-leap reference year",
			partial: "29 Feb, 10:00",
			ref:     time.Date(2025, time.January, 15, 20, 0, 0, 0, time.UTC),
			want:    time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC),
		},
		{
			name:    "leap day inside a leap reference year",
			partial: "29 Feb, 21:45",
			ref:     time.Date(2024, time.March, 2, 20, 0, 0, 0, time.UTC),
			want:    time.Date(2024, time.February, 29, 21, 45, 0, 0, time.UTC),
		},
		{
			name:    "leap day with no leap year in reach",
			partial: "29 Feb, 10:00",
			ref:     time.Date(2022, time.June, 1, 12, 0, 0, 0, time.UTC),
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := odds.Normalize(tc.partial, tc.ref)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeGenericThresholds(t *testing.T) {
	t.Parallel()

	generic := New(GenericThresholds())
	now := time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)

	got, err := generic.Normalize("Today, 10 Feb, 20:00", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.February, 10, 20, 0, 0, 0, time.UTC), got)

	// More than 180 days ahead of the reference means last year.
	got, err = generic.Normalize("Sunday, 14 Sep, 15:00", now)
	require.NoError(t, err)
	require.Equal(t, 2024, got.Year())
}

func TestNormalizeIdempotentOnCompleteTimestamps(t *testing.T) {
	t.Parallel()

	ref := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for _, th := range []Thresholds{OddsThresholds(), GenericThresholds(), {}, {Forward: time.Hour, Backward: time.Hour}} {
		got, err := New(th).Normalize("Saturday, 30 Nov 2024, 17:30", ref)
		require.NoError(t, err)
		require.Equal(t, time.Date(2024, time.November, 30, 17, 30, 0, 0, time.UTC), got)

		again, err := New(th).Normalize(got.Format("2 Jan 2006, 15:04"), ref)
		require.NoError(t, err)
		require.Equal(t, got, again)
	}
}

func TestNormalizeKeepsReferenceLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CET", 3600)
	ref := time.Date(2024, time.May, 1, 0, 0, 0, 0, loc)
	got, err := New(OddsThresholds()).Normalize("18 May, 14:05", ref)
	require.NoError(t, err)
	require.Equal(t, loc, got.Location())
}

func TestNormalizeParseErrors(t *testing.T) {
	t.Parallel()

	ref := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	inputs := []string{
		"",
		"not a date",
		"18 Foo, 14:05",
		"18 Mayday, 14:05",
		"31 Apr, 10:00",
		"30 Feb 2024, 10:00",
		"12 May, 25:00",
	}
	for _, in := range inputs {
		_, err := New(OddsThresholds()).Normalize(in, ref)
		require.Error(t, err, in)
		require.ErrorIs(t, err, ErrParse, in)
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		require.Equal(t, in, pe.Input)
	}
}

func TestLookupMonthFullNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"January", "sept", "SEP", "Aug", "december"} {
		_, ok := lookupMonth(name)
		require.True(t, ok, name)
	}
}
