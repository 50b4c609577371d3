package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// JobEnqueuer is the durable job-table surface the scheduler needs.
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, jobID, jobType, targetKey string, enqueuedAt time.Time) error
}

// Job type keys shared with the summarization worker pool.
const (
	JobTypeHourlyNote = "hourly_note"
	JobTypeDailyNote  = "daily_note"
)

// Scheduler runs the hourly and daily recurring job submissions of
// spec 4.7, generalized from internal/budget/cpuwatcher.go's single
// ticker + select watch loop to a select over an hourly ticker and a
// daily timer (re-armed for a configured local time after each fire).
type Scheduler struct {
	store   JobEnqueuer
	queue   *BoundedQueue
	dailyAt time.Duration // offset from local midnight at which the daily job fires

	once sync.Once
	mu   sync.Mutex
	stop chan struct{}

	lastHourly time.Time
	lastDaily  time.Time
}

// NewScheduler returns a Scheduler that enqueues into store, firing
// the daily job at dailyAt past local midnight (e.g. 23*time.Hour for
// 11pm).
func NewScheduler(store JobEnqueuer, dailyAt time.Duration) *Scheduler {
	return &Scheduler{
		store:   store,
		queue:   NewBoundedQueue(maxQueueDepth),
		dailyAt: dailyAt,
		stop:    make(chan struct{}),
	}
}

// Start launches the watch loop exactly once, regardless of how many
// times it's called (the hourly and daily Service adapters both call
// through to this).
func (s *Scheduler) Start(ctx context.Context) error {
	s.once.Do(func() {
		go s.Run(ctx)
	})
	return nil
}

// Stop signals the watch loop to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// Run is the ticker-plus-timer select loop. It blocks until ctx is canceled
// or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	hourly := time.NewTicker(time.Hour)
	defer hourly.Stop()

	daily := time.NewTimer(untilNextDaily(s.dailyAt, time.Now()))
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case t := <-hourly.C:
			s.submitHourly(ctx, t)
		case t := <-daily.C:
			s.submitDaily(ctx, t)
			daily.Reset(untilNextDaily(s.dailyAt, time.Now()))
		}
	}
}

// untilNextDaily returns the duration from now until the next
// occurrence of offset-past-local-midnight.
func untilNextDaily(offset time.Duration, now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := midnight.Add(offset)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (s *Scheduler) submitHourly(ctx context.Context, t time.Time) {
	hour := t.Add(-time.Hour).Truncate(time.Hour)
	s.enqueue(ctx, JobTypeHourlyNote, hour)
	s.mu.Lock()
	s.lastHourly = t
	s.mu.Unlock()
}

func (s *Scheduler) submitDaily(ctx context.Context, t time.Time) {
	day := t.Truncate(24 * time.Hour)
	s.enqueue(ctx, JobTypeDailyNote, day)
	s.mu.Lock()
	s.lastDaily = t
	s.mu.Unlock()
}

// enqueue applies the in-memory backpressure queue (4.7/5: bounded at
// 24, oldest-drop) before handing the job to the durable, idempotent
// jobs table.
func (s *Scheduler) enqueue(ctx context.Context, jobType string, target time.Time) {
	key := target.UTC().Format(time.RFC3339)
	if dropped, wasDropped := s.queue.Push(jobType + ":" + key); wasDropped {
		log.Printf("[scheduler] queue depth exceeded, dropped %s", dropped)
	}
	jobID := fmt.Sprintf("%s_%s", jobType, key)
	if err := s.store.EnqueueJob(ctx, jobID, jobType, key, time.Now()); err != nil {
		log.Printf("[scheduler] enqueue %s failed: %v", jobID, err)
	}
}

// HourlyService adapts Scheduler into the "hourly" entry of the
// supervisor's service registry. Both HourlyService and DailyService
// share the same underlying goroutine (Start is idempotent via
// sync.Once) but are health-checked independently, since the spec
// treats "hourly" and "daily" as separately restartable services even
// though one loop drives both.
type HourlyService struct{ S *Scheduler }

func (h HourlyService) Name() string                   { return "hourly" }
func (h HourlyService) Start(ctx context.Context) error { return h.S.Start(ctx) }
func (h HourlyService) Stop()                          {}
func (h HourlyService) Healthy() bool {
	h.S.mu.Lock()
	defer h.S.mu.Unlock()
	return h.S.lastHourly.IsZero() || time.Since(h.S.lastHourly) < 2*time.Hour
}

// DailyService is the "daily" registry entry; see HourlyService.
type DailyService struct{ S *Scheduler }

func (d DailyService) Name() string                   { return "daily" }
func (d DailyService) Start(ctx context.Context) error { return d.S.Start(ctx) }
func (d DailyService) Stop()                           {}
func (d DailyService) Healthy() bool {
	d.S.mu.Lock()
	defer d.S.mu.Unlock()
	// A fresh scheduler hasn't fired yet; that's healthy, not failed.
	return d.S.lastDaily.IsZero() || time.Since(d.S.lastDaily) < 25*time.Hour
}
