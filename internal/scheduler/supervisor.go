package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// Defaults for the 4.7 supervisor rule.
const (
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultMaxRestartAttempts  = 3
)

// Notifier is the core's only contract with the notification surface
// (mirrors internal/types.Notification verbatim).
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// Supervisor periodically health-checks every registered service and
// restarts one that stops reporting healthy, up to a bounded number of
// attempts, grounded on internal/budget/cpuwatcher.go's ticker-driven
// watch loop with a callback fired on state transition (there: a
// Claude process going idle/active; here: a service going
// unhealthy/restarted/failed).
type Supervisor struct {
	registry    *Registry
	notifier    Notifier
	interval    time.Duration
	maxRestarts int

	stop chan struct{}
}

// NewSupervisor returns a Supervisor over registry with the 4.7
// defaults (60s health checks, 3 restart attempts).
func NewSupervisor(registry *Registry, notifier Notifier) *Supervisor {
	return &Supervisor{
		registry:    registry,
		notifier:    notifier,
		interval:    DefaultHealthCheckInterval,
		maxRestarts: DefaultMaxRestartAttempts,
		stop:        make(chan struct{}),
	}
}

// SetInterval overrides the health-check period.
func (s *Supervisor) SetInterval(d time.Duration) { s.interval = d }

// SetMaxRestarts overrides the restart-attempt ceiling.
func (s *Supervisor) SetMaxRestarts(n int) { s.maxRestarts = n }

// Run is the health-check watch loop. It blocks until ctx is canceled
// or Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Stop signals the watch loop to exit.
func (s *Supervisor) Stop() {
	close(s.stop)
}

// poll checks every registered service once.
func (s *Supervisor) poll(ctx context.Context) {
	for _, name := range s.registry.Names() {
		svc, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		if s.registry.State(name) == StateFailed {
			continue // already given up on this service
		}
		if svc.Healthy() {
			s.registry.SetState(name, StateRunning)
			continue
		}
		s.handleUnhealthy(ctx, name, svc)
	}
}

func (s *Supervisor) handleUnhealthy(ctx context.Context, name string, svc Service) {
	restarts := s.registry.IncRestarts(name)
	if restarts > s.maxRestarts {
		s.registry.SetState(name, StateFailed)
		log.Printf("[supervisor] %s failed after %d restart attempts", name, s.maxRestarts)
		if s.notifier != nil {
			_ = s.notifier.Notify(ctx, types.Notification{
				Title: "service failed",
				Body:  fmt.Sprintf("%s stopped responding and exceeded %d restart attempts", name, s.maxRestarts),
				Level: types.LevelCritical,
			})
		}
		return
	}

	s.registry.SetState(name, StateRestarting)
	log.Printf("[supervisor] restarting %s (attempt %d/%d)", name, restarts, s.maxRestarts)
	svc.Stop()
	if err := svc.Start(ctx); err != nil {
		log.Printf("[supervisor] restart of %s failed: %v", name, err)
		return
	}
	// The service stays Restarting until a later poll sees it healthy.
}
