// Package aggregates implements spec 4.8.5's aggregates lookup:
// convenience rollups (top apps, topics, domains, media, artists,
// categories) over storage.DB.TopKeysForRange, plus a "most/top/
// favorite" query-pattern detector.
//
// Grounded on internal/storage_src/db.go's Stats() (aggregation by
// table over a fixed set of counters) generalized from "count rows per
// table" to "sum value_num per key over a time window", and on
// internal/retrieval/timefilter's ordered-regex-table shape for the
// pattern detector.
package aggregates

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// Store is the subset of storage.DB this package depends on.
type Store interface {
	TopKeysForRange(ctx context.Context, keyType types.AggregateKeyType, start, end time.Time, limit int) ([]*types.Aggregate, error)
	AggregatesForPeriod(ctx context.Context, periodType string, start time.Time) ([]*types.Aggregate, error)
}

// TopKeys is a thin pass-through to storage.DB.TopKeysForRange, kept
// here so callers depend on this package's narrower Store interface
// rather than all of storage.DB.
func TopKeys(ctx context.Context, store Store, keyType types.AggregateKeyType, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return store.TopKeysForRange(ctx, keyType, start, end, limit)
}

// TopApps, TopTopics, TopDomains, TopMedia, TopArtists, and
// TopCategories are spec 4.8.5's named convenience calls, each a fixed
// key-type binding over TopKeys.
func TopApps(ctx context.Context, store Store, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return TopKeys(ctx, store, types.KeyApp, start, end, limit)
}

func TopTopics(ctx context.Context, store Store, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return TopKeys(ctx, store, types.KeyTopic, start, end, limit)
}

func TopDomains(ctx context.Context, store Store, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return TopKeys(ctx, store, types.KeyDomain, start, end, limit)
}

func TopMedia(ctx context.Context, store Store, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return TopKeys(ctx, store, types.KeyMedia, start, end, limit)
}

func TopArtists(ctx context.Context, store Store, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return TopKeys(ctx, store, types.KeyArtist, start, end, limit)
}

func TopCategories(ctx context.Context, store Store, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	return TopKeys(ctx, store, types.KeyCategory, start, end, limit)
}

// GetTimeForKey sums value_num for one specific key within [start,
// end), treating the rolled-up number as minutes of usage (the unit
// aggregates are written in by the summarizer's per-hour rollup).
func GetTimeForKey(ctx context.Context, store Store, keyType types.AggregateKeyType, key string, start, end time.Time) (time.Duration, error) {
	const unboundedScan = 100000
	rows, err := store.TopKeysForRange(ctx, keyType, start, end, unboundedScan)
	if err != nil {
		return 0, err
	}
	for _, a := range rows {
		if a.Key == key {
			return time.Duration(a.ValueNum) * time.Minute, nil
		}
	}
	return 0, nil
}

// PeriodSummary is spec 4.8.5's "period summary (top-5 per key_type)".
type PeriodSummary map[types.AggregateKeyType][]*types.Aggregate

// allKeyTypes is iterated in a fixed order so PeriodSummary's output
// doesn't depend on Go's randomized map iteration.
var allKeyTypes = []types.AggregateKeyType{
	types.KeyApp,
	types.KeyDomain,
	types.KeyTopic,
	types.KeyMedia,
	types.KeyArtist,
	types.KeyTrack,
	types.KeyCategory,
	types.KeyCoActivity,
	types.KeyEntity,
}

const periodSummaryTopN = 5

// Summarize returns the top-5 rows per key type across [start, end).
func Summarize(ctx context.Context, store Store, start, end time.Time) (PeriodSummary, error) {
	out := make(PeriodSummary, len(allKeyTypes))
	for _, kt := range allKeyTypes {
		rows, err := store.TopKeysForRange(ctx, kt, start, end, periodSummaryTopN)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			out[kt] = rows
		}
	}
	return out, nil
}

// Mode is what kind of aggregate question a query pattern-matched as.
type Mode string

const ModeMost Mode = "most"

// Detection is the result of pattern-matching a query against the
// "most/top/favorite" family of aggregate questions.
type Detection struct {
	Mode    Mode
	KeyType types.AggregateKeyType
}

type detectorRule struct {
	pattern *regexp.Regexp
	keyType types.AggregateKeyType
}

// detectorRules maps "most/top/favorite <noun>" phrasing onto a key
// type. Ordered so a more specific noun (e.g. "artist") is tried
// before a more general fallback could ever apply.
var detectorRules = []detectorRule{
	{regexp.MustCompile(`\b(most|top|favorite)\s+(used\s+)?apps?\b`), types.KeyApp},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(visited\s+)?(websites?|domains?|sites?)\b`), types.KeyDomain},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(artists?|bands?|musicians?)\b`), types.KeyArtist},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(songs?|tracks?)\b`), types.KeyTrack},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(watched|listened( to)?)\s+media\b`), types.KeyMedia},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(topics?|subjects?)\b`), types.KeyTopic},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(categor(y|ies)|activit(y|ies))\b`), types.KeyCategory},
	{regexp.MustCompile(`\b(most|top|favorite)\s+(co-?activit(y|ies))\b`), types.KeyCoActivity},
}

// DetectMode reports whether query is a "most/top/favorite" aggregate
// question and, if so, which key type it's asking about.
func DetectMode(query string) (Detection, bool) {
	q := strings.ToLower(query)
	for _, r := range detectorRules {
		if r.pattern.MatchString(q) {
			return Detection{Mode: ModeMost, KeyType: r.keyType}, true
		}
	}
	return Detection{}, false
}
