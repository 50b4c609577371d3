// Package notify delivers the core's notifications (capture errors,
// supervisor failures, retention warnings, ...) to whatever channel the
// deployment wants, behind a single generic interface.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/tracehq/trace/internal/types"
)

// Notifier is the core's only contract with the notification surface.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// LogNotifier writes notifications to the standard logger. It's always
// available and never fails, so it's a safe default or a fallback
// composed alongside a real delivery channel.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n types.Notification) error {
	log.Printf("[notify:%s] %s: %s", n.Level, n.Title, n.Body)
	return nil
}

// MultiNotifier fans a notification out to every member, continuing
// past individual failures and returning the first error encountered
// (if any) once all have been tried.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n types.Notification) error {
	var firstErr error
	for _, target := range m {
		if err := target.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify: %w", err)
		}
	}
	return firstErr
}
