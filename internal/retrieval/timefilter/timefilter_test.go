package timefilter

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC) // a Friday

func TestParseToday(t *testing.T) {
	tf, ok := Parse("today", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
	if !tf.End.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", tf.End)
	}
}

func TestParseYesterday(t *testing.T) {
	tf, ok := Parse("yesterday", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
}

func TestParseThisWeekStartsMonday(t *testing.T) {
	tf, ok := Parse("this week", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if tf.Start.Weekday() != time.Monday {
		t.Fatalf("expected week to start on Monday, got %v", tf.Start.Weekday())
	}
	if !tf.Start.Equal(time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week start: %v", tf.Start)
	}
}

func TestParseLastMonthIsFullPreviousCalendarMonth(t *testing.T) {
	tf, ok := Parse("last month", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
	if !tf.End.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", tf.End)
	}
}

func TestParseQuarterDefaultsToCurrentYear(t *testing.T) {
	tf, ok := Parse("Q1", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
	if !tf.End.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", tf.End)
	}
}

func TestParseQuarterWithExplicitYear(t *testing.T) {
	tf, ok := Parse("Q3 2024", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
}

func TestParseSinceDate(t *testing.T) {
	tf, ok := Parse("since March 1", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
}

func TestParseExplicitRange(t *testing.T) {
	tf, ok := Parse("2026-01-01 to 2026-01-15", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
	if !tf.End.Equal(time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end (inclusive of the 15th): %v", tf.End)
	}
}

func TestParseMonthYear(t *testing.T) {
	tf, ok := Parse("march 2025", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
	if !tf.End.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", tf.End)
	}
}

func TestParseYearOnly(t *testing.T) {
	tf, ok := Parse("2024", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
}

func TestParseNoMatchForGarbage(t *testing.T) {
	// A single bare word still falls through to the single-date
	// fallback rule, which should fail to parse and report no match.
	if _, ok := Parse("gibberish", fixedNow); ok {
		t.Fatalf("expected no match for unparseable text")
	}
}

func TestParseLastNDays(t *testing.T) {
	tf, ok := Parse("last 7 days", fixedNow)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !tf.Start.Equal(time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", tf.Start)
	}
}
