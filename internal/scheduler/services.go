// Package scheduler runs the three named background services from
// spec 4.7 (capture, hourly, daily): the recurring hourly/daily job
// submission, missing-hour backfill detection, and the supervisor that
// restarts a service when it stops reporting healthy.
package scheduler

import (
	"context"
	"sync"
)

// ServiceState is a lifecycle state for a supervised service.
type ServiceState string

const (
	StateStopped    ServiceState = "stopped"
	StateStarting   ServiceState = "starting"
	StateRunning    ServiceState = "running"
	StateRestarting ServiceState = "restarting"
	StateFailed     ServiceState = "failed"
)

// Service is anything the supervisor can start, stop, and health-check.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	Healthy() bool
}

type entry struct {
	svc      Service
	state    ServiceState
	restarts int
}

// Registry is a small in-process service registry keyed by name,
// generalized from internal/reflex/engine.go's action-registration map
// (register-by-name, look-up-by-name) to hold the three named services
// rather than reflex actions.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*entry)}
}

// Register adds a service in the Stopped state.
func (r *Registry) Register(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[svc.Name()] = &entry{svc: svc, state: StateStopped}
}

// Get returns the named service, if registered.
func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.services[name]
	if !ok {
		return nil, false
	}
	return e.svc, true
}

// Names returns all registered service names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// State returns the current lifecycle state of the named service.
func (r *Registry) State(name string) ServiceState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.services[name]; ok {
		return e.state
	}
	return StateStopped
}

// SetState updates the lifecycle state of the named service.
func (r *Registry) SetState(name string, st ServiceState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.services[name]; ok {
		e.state = st
	}
}

// Restarts returns the number of restart attempts made for name so
// far this process lifetime.
func (r *Registry) Restarts(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.services[name]; ok {
		return e.restarts
	}
	return 0
}

// IncRestarts increments and returns the restart counter for name.
func (r *Registry) IncRestarts(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[name]
	if !ok {
		return 0
	}
	e.restarts++
	return e.restarts
}

// StartAll starts every registered service, marking it Running on
// success and Failed on error.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.Names() {
		svc, _ := r.Get(name)
		r.SetState(name, StateStarting)
		if err := svc.Start(ctx); err != nil {
			r.SetState(name, StateFailed)
			return err
		}
		r.SetState(name, StateRunning)
	}
	return nil
}

// StopAll stops every registered service.
func (r *Registry) StopAll() {
	for _, name := range r.Names() {
		svc, _ := r.Get(name)
		svc.Stop()
		r.SetState(name, StateStopped)
	}
}
