package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/tracehq/trace/internal/retrieval/aggregates"
)

// AppUsageRow is one ranked app-usage entry for the dashboard.
type AppUsageRow struct {
	App     string  `json:"app"`
	Minutes float64 `json:"minutes"`
}

// TopicUsageRow is one ranked topic entry for the dashboard.
type TopicUsageRow struct {
	Topic   string  `json:"topic"`
	Minutes float64 `json:"minutes"`
}

// DayActivity is one day's row in the activity trend / heatmap.
type DayActivity struct {
	Date   string `json:"date"`
	Events int    `json:"events"`
}

// HeatmapCell is one (day, hour) activity count, for the dashboard's
// calendar heatmap.
type HeatmapCell struct {
	Weekday string `json:"weekday"`
	Hour    int    `json:"hour"`
	Count   int    `json:"count"`
}

// DashboardData is spec's single-call dashboard payload (dashboard.py's
// get_dashboard_data): usage rollups plus trend/heatmap views.
type DashboardData struct {
	AppUsage      []AppUsageRow   `json:"app_usage"`
	TopicUsage    []TopicUsageRow `json:"topic_usage"`
	ActivityTrend []DayActivity   `json:"activity_trend"`
	Heatmap       []HeatmapCell   `json:"heatmap"`
	Summary       string          `json:"summary"`
}

// AppUsage returns the top limit apps by rolled-up minutes over the
// trailing daysBack window.
func (i *Inspector) AppUsage(ctx context.Context, store aggregates.Store, daysBack, limit int) ([]AppUsageRow, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	rows, err := aggregates.TopApps(ctx, store, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("insights: app usage: %w", err)
	}
	out := make([]AppUsageRow, len(rows))
	for idx, r := range rows {
		out[idx] = AppUsageRow{App: r.Key, Minutes: r.ValueNum}
	}
	return out, nil
}

// TopicUsage returns the top limit topics by rolled-up minutes over
// the trailing daysBack window.
func (i *Inspector) TopicUsage(ctx context.Context, store aggregates.Store, daysBack, limit int) ([]TopicUsageRow, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	rows, err := aggregates.TopTopics(ctx, store, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("insights: topic usage: %w", err)
	}
	out := make([]TopicUsageRow, len(rows))
	for idx, r := range rows {
		out[idx] = TopicUsageRow{Topic: r.Key, Minutes: r.ValueNum}
	}
	return out, nil
}

// ActivityTrend buckets event counts per calendar day over daysBack,
// oldest first.
func (i *Inspector) ActivityTrend(ctx context.Context, store EventStore, daysBack int) ([]DayActivity, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	events, err := store.EventsOverlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("insights: activity trend: %w", err)
	}

	byDay := make(map[string]int)
	for _, e := range events {
		byDay[e.StartTS.Format("2006-01-02")]++
	}

	out := make([]DayActivity, 0, daysBack)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		out = append(out, DayActivity{Date: key, Events: byDay[key]})
	}
	return out, nil
}

// ActivityHeatmap buckets event counts by (weekday, hour) over
// daysBack, for a GitHub-contributions-style calendar view.
func (i *Inspector) ActivityHeatmap(ctx context.Context, store EventStore, daysBack int) ([]HeatmapCell, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	events, err := store.EventsOverlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("insights: activity heatmap: %w", err)
	}

	counts := make(map[time.Weekday]map[int]int)
	for _, e := range events {
		wd := e.StartTS.Weekday()
		if counts[wd] == nil {
			counts[wd] = make(map[int]int)
		}
		counts[wd][e.StartTS.Hour()]++
	}

	var out []HeatmapCell
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		for hour := 0; hour < 24; hour++ {
			if n := counts[wd][hour]; n > 0 {
				out = append(out, HeatmapCell{Weekday: wd.String(), Hour: hour, Count: n})
			}
		}
	}
	return out, nil
}

// DashboardStore is the combined read surface DashboardData needs.
type DashboardStore interface {
	aggregates.Store
	EventStore
}

// Dashboard assembles the full dashboard payload in one call, spec's
// "dashboard.data" IPC method.
func (i *Inspector) Dashboard(ctx context.Context, store DashboardStore, daysBack int) (*DashboardData, error) {
	appUsage, err := i.AppUsage(ctx, store, daysBack, 10)
	if err != nil {
		return nil, err
	}
	topicUsage, err := i.TopicUsage(ctx, store, daysBack, 10)
	if err != nil {
		return nil, err
	}
	trend, err := i.ActivityTrend(ctx, store, daysBack)
	if err != nil {
		return nil, err
	}
	heatmap, err := i.ActivityHeatmap(ctx, store, daysBack)
	if err != nil {
		return nil, err
	}

	totalEvents := 0
	for _, d := range trend {
		totalEvents += d.Events
	}
	summary := fmt.Sprintf("%d events over the trailing %d days", totalEvents, daysBack)
	if len(appUsage) > 0 {
		summary = fmt.Sprintf("%s, led by %s", summary, appUsage[0].App)
	}

	return &DashboardData{
		AppUsage:      appUsage,
		TopicUsage:    topicUsage,
		ActivityTrend: trend,
		Heatmap:       heatmap,
		Summary:       summary,
	}, nil
}
