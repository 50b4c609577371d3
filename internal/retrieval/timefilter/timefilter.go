// Package timefilter parses natural-language time expressions
// ("yesterday", "last week", "since March 1", "Q2 2026") into a
// concrete [start, end) window (spec 4.8.1). A bare month name after
// "since", "before", "after", or "on" is not recognized; those forms
// need a day ("March 1") or an ISO date. There is no teacher file
// that parses time expressions; this borrows the "ordered table of
// patterns, first match wins" structure from
// internal/reflex/types.go's single-compiled-pattern-per-trigger
// matching, generalized to a whole table of patterns tried in
// priority order.
package timefilter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tracehq/trace/internal/types"
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

type rule struct {
	pattern *regexp.Regexp
	parse   func(now time.Time, m []string) (types.TimeFilter, bool)
}

// Parse returns the time window described by query relative to now, or
// false if nothing recognizable was found.
func Parse(query string, now time.Time) (types.TimeFilter, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, r := range rules {
		if m := r.pattern.FindStringSubmatch(q); m != nil {
			if tf, ok := r.parse(now, m); ok {
				return tf, true
			}
		}
	}
	return types.TimeFilter{}, false
}

// rules is tried top to bottom; the first match wins, matching
// reflex's Pattern-match-and-stop approach.
var rules = []rule{
	{regexp.MustCompile(`^today$`), parseToday},
	{regexp.MustCompile(`^yesterday$`), parseYesterday},
	{regexp.MustCompile(`^this week$`), parseThisWeek},
	{regexp.MustCompile(`^last week$`), parseLastWeek},
	{regexp.MustCompile(`^this month$`), parseThisMonth},
	{regexp.MustCompile(`^last month$`), parseLastMonth},
	{regexp.MustCompile(`^this year$`), parseThisYear},
	{regexp.MustCompile(`^last year$`), parseLastYear},
	{regexp.MustCompile(`^(?:last|past) (\d+) days?$`), parseLastNDays},
	{regexp.MustCompile(`^(?:last|past) (\d+) weeks?$`), parseLastNWeeks},
	{regexp.MustCompile(`^(?:last|past) (\d+) months?$`), parseLastNMonths},
	{regexp.MustCompile(`^(\d+) days? ago$`), parseNDaysAgo},
	{regexp.MustCompile(`^(\d+) weeks? ago$`), parseNWeeksAgo},
	{regexp.MustCompile(`^q([1-4])(?:\s+(\d{4}))?$`), parseQuarter},
	{regexp.MustCompile(`^(.+?)\s+to\s+(.+)$`), parseRange},
	{regexp.MustCompile(`^between\s+(.+?)\s+and\s+(.+)$`), parseRange},
	{regexp.MustCompile(`^since\s+(.+)$`), parseSince},
	{regexp.MustCompile(`^before\s+(.+)$`), parseBefore},
	{regexp.MustCompile(`^after\s+(.+)$`), parseSince},
	{regexp.MustCompile(`^(?:on|during)\s+(.+)$`), parseOn},
	{regexp.MustCompile(`^([a-z]+)\s+(\d{4})$`), parseMonthYear},
	{regexp.MustCompile(`^(\d{4})$`), parseYearOnly},
	{regexp.MustCompile(`^(.+)$`), parseSingleDateAsDay},
}

func dayRange(d time.Time) (time.Time, time.Time) {
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	return start, start.Add(24 * time.Hour)
}

func parseToday(now time.Time, _ []string) (types.TimeFilter, bool) {
	start, end := dayRange(now)
	return types.TimeFilter{Start: start, End: end, Description: "today", Confidence: 1.0}, true
}

func parseYesterday(now time.Time, _ []string) (types.TimeFilter, bool) {
	start, end := dayRange(now.AddDate(0, 0, -1))
	return types.TimeFilter{Start: start, End: end, Description: "yesterday", Confidence: 1.0}, true
}

// weekStart returns the Monday of d's week (weeks start Monday per 4.8.1).
func weekStart(d time.Time) time.Time {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7 // Sunday is day 7, not 0, for a Monday-start week
	}
	start, _ := dayRange(d)
	return start.AddDate(0, 0, -(wd - 1))
}

func parseThisWeek(now time.Time, _ []string) (types.TimeFilter, bool) {
	start := weekStart(now)
	return types.TimeFilter{Start: start, End: start.AddDate(0, 0, 7), Description: "this week", Confidence: 1.0}, true
}

func parseLastWeek(now time.Time, _ []string) (types.TimeFilter, bool) {
	start := weekStart(now).AddDate(0, 0, -7)
	return types.TimeFilter{Start: start, End: start.AddDate(0, 0, 7), Description: "last week", Confidence: 1.0}, true
}

func monthStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
}

func parseThisMonth(now time.Time, _ []string) (types.TimeFilter, bool) {
	start := monthStart(now)
	return types.TimeFilter{Start: start, End: start.AddDate(0, 1, 0), Description: "this month", Confidence: 1.0}, true
}

// parseLastMonth returns the previous calendar month in full, per 4.8.1.
func parseLastMonth(now time.Time, _ []string) (types.TimeFilter, bool) {
	start := monthStart(now).AddDate(0, -1, 0)
	return types.TimeFilter{Start: start, End: start.AddDate(0, 1, 0), Description: "last month", Confidence: 1.0}, true
}

func yearStart(d time.Time) time.Time {
	return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
}

func parseThisYear(now time.Time, _ []string) (types.TimeFilter, bool) {
	start := yearStart(now)
	return types.TimeFilter{Start: start, End: start.AddDate(1, 0, 0), Description: "this year", Confidence: 1.0}, true
}

func parseLastYear(now time.Time, _ []string) (types.TimeFilter, bool) {
	start := yearStart(now).AddDate(-1, 0, 0)
	return types.TimeFilter{Start: start, End: start.AddDate(1, 0, 0), Description: "last year", Confidence: 1.0}, true
}

func parseLastNDays(now time.Time, m []string) (types.TimeFilter, bool) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return types.TimeFilter{}, false
	}
	_, todayEnd := dayRange(now)
	start, _ := dayRange(now.AddDate(0, 0, -n))
	return types.TimeFilter{Start: start, End: todayEnd, Description: "last " + m[1] + " days", Confidence: 0.9}, true
}

func parseLastNWeeks(now time.Time, m []string) (types.TimeFilter, bool) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return types.TimeFilter{}, false
	}
	_, todayEnd := dayRange(now)
	start := weekStart(now).AddDate(0, 0, -7*n)
	return types.TimeFilter{Start: start, End: todayEnd, Description: "last " + m[1] + " weeks", Confidence: 0.9}, true
}

func parseLastNMonths(now time.Time, m []string) (types.TimeFilter, bool) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return types.TimeFilter{}, false
	}
	_, todayEnd := dayRange(now)
	start := monthStart(now).AddDate(0, -n, 0)
	return types.TimeFilter{Start: start, End: todayEnd, Description: "last " + m[1] + " months", Confidence: 0.9}, true
}

func parseNDaysAgo(now time.Time, m []string) (types.TimeFilter, bool) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return types.TimeFilter{}, false
	}
	start, end := dayRange(now.AddDate(0, 0, -n))
	return types.TimeFilter{Start: start, End: end, Description: m[1] + " days ago", Confidence: 0.9}, true
}

func parseNWeeksAgo(now time.Time, m []string) (types.TimeFilter, bool) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return types.TimeFilter{}, false
	}
	start := weekStart(now).AddDate(0, 0, -7*n)
	return types.TimeFilter{Start: start, End: start.AddDate(0, 0, 7), Description: m[1] + " weeks ago", Confidence: 0.9}, true
}

func parseQuarter(now time.Time, m []string) (types.TimeFilter, bool) {
	q, err := strconv.Atoi(m[1])
	if err != nil || q < 1 || q > 4 {
		return types.TimeFilter{}, false
	}
	year := now.Year()
	if m[2] != "" {
		year, err = strconv.Atoi(m[2])
		if err != nil {
			return types.TimeFilter{}, false
		}
	}
	startMonth := time.Month((q-1)*3 + 1)
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, now.Location())
	return types.TimeFilter{Start: start, End: start.AddDate(0, 3, 0), Description: m[0], Confidence: 1.0}, true
}

func parseRange(now time.Time, m []string) (types.TimeFilter, bool) {
	start, ok := parseSingleDate(m[1], now)
	if !ok {
		return types.TimeFilter{}, false
	}
	endDay, ok := parseSingleDate(m[2], now)
	if !ok {
		return types.TimeFilter{}, false
	}
	_, end := dayRange(endDay)
	startDay, _ := dayRange(start)
	return types.TimeFilter{Start: startDay, End: end, Description: strings.TrimSpace(m[0]), Confidence: 0.85}, true
}

func parseSince(now time.Time, m []string) (types.TimeFilter, bool) {
	start, ok := parseSingleDate(m[1], now)
	if !ok {
		return types.TimeFilter{}, false
	}
	startDay, _ := dayRange(start)
	_, todayEnd := dayRange(now)
	return types.TimeFilter{Start: startDay, End: todayEnd, Description: strings.TrimSpace(m[0]), Confidence: 0.8}, true
}

// parseBefore leaves Start zero; callers intersect an open-ended lower
// bound with whatever real data range they're querying over.
func parseBefore(now time.Time, m []string) (types.TimeFilter, bool) {
	end, ok := parseSingleDate(m[1], now)
	if !ok {
		return types.TimeFilter{}, false
	}
	endDay, _ := dayRange(end)
	return types.TimeFilter{Start: time.Time{}, End: endDay, Description: strings.TrimSpace(m[0]), Confidence: 0.7}, true
}

func parseOn(now time.Time, m []string) (types.TimeFilter, bool) {
	d, ok := parseSingleDate(m[1], now)
	if !ok {
		return types.TimeFilter{}, false
	}
	start, end := dayRange(d)
	return types.TimeFilter{Start: start, End: end, Description: strings.TrimSpace(m[0]), Confidence: 0.9}, true
}

func parseMonthYear(now time.Time, m []string) (types.TimeFilter, bool) {
	month, ok := monthNames[m[1]]
	if !ok {
		return types.TimeFilter{}, false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return types.TimeFilter{}, false
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	return types.TimeFilter{Start: start, End: start.AddDate(0, 1, 0), Description: m[0], Confidence: 0.95}, true
}

func parseYearOnly(now time.Time, m []string) (types.TimeFilter, bool) {
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return types.TimeFilter{}, false
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())
	return types.TimeFilter{Start: start, End: start.AddDate(1, 0, 0), Description: m[0], Confidence: 0.9}, true
}

func parseSingleDateAsDay(now time.Time, m []string) (types.TimeFilter, bool) {
	d, ok := parseSingleDate(m[1], now)
	if !ok {
		return types.TimeFilter{}, false
	}
	start, end := dayRange(d)
	return types.TimeFilter{Start: start, End: end, Description: m[1], Confidence: 0.6}, true
}

var (
	isoDateRe       = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	longMonthDateRe = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})(?:,?\s+(\d{4}))?$`)
)

// parseSingleDate parses an ISO date or a "Month D[, YYYY]" form
// (long or short month name). Ambiguous (year-less) dates default to
// now's year per 4.8.1.
func parseSingleDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location()), true
	}
	if m := longMonthDateRe.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[m[1]]
		if !ok {
			return time.Time{}, false
		}
		day, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, false
		}
		year := now.Year()
		if m[3] != "" {
			year, err = strconv.Atoi(m[3])
			if err != nil {
				return time.Time{}, false
			}
		}
		return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}
