package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

// Defaults for the 4.7 backfill rule.
const (
	DefaultMinActivityThreshold = 3
	DefaultBackfillLookback     = 48 * time.Hour
	WakeBackfillThreshold       = 5 * time.Minute
)

// MissingHoursStore is the storage surface backfill detection needs.
type MissingHoursStore interface {
	GetNoteByPeriod(ctx context.Context, noteType types.NoteType, start time.Time) (*types.Note, error)
	ScreenshotsBetween(ctx context.Context, start, end time.Time) ([]*types.Screenshot, error)
	EventsOverlapping(ctx context.Context, start, end time.Time) ([]*types.Event, error)
}

// FindMissingHours enumerates hours in [now-lookback, now-1h] with no
// hour-note row but at least minActivity rows across screenshots and
// events in that hour, oldest first. This is the "missing hour" of
// spec 4.7.
func FindMissingHours(ctx context.Context, store MissingHoursStore, now time.Time, lookback time.Duration, minActivity int) ([]time.Time, error) {
	start := now.Add(-lookback).Truncate(time.Hour)
	end := now.Add(-time.Hour).Truncate(time.Hour)

	var missing []time.Time
	for h := start; !h.After(end); h = h.Add(time.Hour) {
		_, err := store.GetNoteByPeriod(ctx, types.NoteHour, h)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		hourEnd := h.Add(time.Hour)
		shots, err := store.ScreenshotsBetween(ctx, h, hourEnd)
		if err != nil {
			return nil, err
		}
		events, err := store.EventsOverlapping(ctx, h, hourEnd)
		if err != nil {
			return nil, err
		}
		if len(shots)+len(events) >= minActivity {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

// ShouldBackfillAfterWake reports whether a sleep of the given
// duration is long enough to warrant a backfill pass on wake.
func ShouldBackfillAfterWake(sleepDuration time.Duration) bool {
	return sleepDuration > WakeBackfillThreshold
}

// RunBackfill finds missing hours and enqueues a summarization job for
// each, in chronological order, through the same backpressure queue
// the hourly scheduler uses.
func RunBackfill(ctx context.Context, store MissingHoursStore, enqueuer JobEnqueuer, queue *BoundedQueue, now time.Time, lookback time.Duration, minActivity int) (int, error) {
	hours, err := FindMissingHours(ctx, store, now, lookback, minActivity)
	if err != nil {
		return 0, err
	}
	for _, h := range hours {
		key := h.UTC().Format(time.RFC3339)
		queue.Push(JobTypeHourlyNote + ":" + key)
		jobID := JobTypeHourlyNote + "_backfill_" + key
		if err := enqueuer.EnqueueJob(ctx, jobID, JobTypeHourlyNote, key, time.Now()); err != nil {
			return 0, err
		}
	}
	return len(hours), nil
}
