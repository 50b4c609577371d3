// Package blocklist is the CRUD and matching layer over the
// blocklist_entries table (spec 4.3 step 3): which apps and domains
// suppress screenshot capture, event tracking, or both.
package blocklist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tracehq/trace/internal/types"
)

// Store is the subset of storage.DB the blocklist needs, kept as an
// interface so this package can be tested against a fake.
type Store interface {
	ListBlocklistEntries(ctx context.Context) ([]*types.BlocklistEntry, error)
	UpsertBlocklistEntry(ctx context.Context, e *types.BlocklistEntry) error
	DeleteBlocklistEntry(ctx context.Context, id string) error
}

// List is an in-memory, periodically-refreshed view of the blocklist,
// grounded on internal/gtd/store.go's thread-safe in-memory-plus-
// persistence-backend shape (here the backend is SQLite rather than a
// JSON file).
type List struct {
	store Store
	mu    sync.RWMutex
	apps  []*types.BlocklistEntry
	doms  []*types.BlocklistEntry
}

// New loads the blocklist from store.
func New(ctx context.Context, store Store) (*List, error) {
	l := &List{store: store}
	return l, l.Reload(ctx)
}

// Reload re-reads all entries from the store, replacing the in-memory
// view atomically.
func (l *List) Reload(ctx context.Context) error {
	entries, err := l.store.ListBlocklistEntries(ctx)
	if err != nil {
		return fmt.Errorf("load blocklist: %w", err)
	}

	var apps, doms []*types.BlocklistEntry
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		switch e.BlockType {
		case types.BlockApp:
			apps = append(apps, e)
		case types.BlockDomain:
			doms = append(doms, e)
		}
	}

	l.mu.Lock()
	l.apps, l.doms = apps, doms
	l.mu.Unlock()
	return nil
}

// MatchApp reports whether appID matches an enabled app-blocklist
// entry (exact id match), and if so which capture phases it suppresses.
// Satisfies capture.BlocklistChecker.
func (l *List) MatchApp(appID string) (blockScreenshots, blockEvents, matched bool) {
	if appID == "" {
		return false, false, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.apps {
		if e.Pattern == appID {
			return e.BlockScreenshots, e.BlockEvents, true
		}
	}
	return false, false, false
}

// MatchDomain reports whether domain (or a parent of it) matches an
// enabled domain-blocklist entry. A pattern of "example.com" matches
// "example.com" and any "*.example.com" subdomain, never the reverse.
func (l *List) MatchDomain(domain string) (blockScreenshots, blockEvents, matched bool) {
	if domain == "" {
		return false, false, false
	}
	domain = strings.ToLower(domain)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.doms {
		pattern := strings.ToLower(e.Pattern)
		if domain == pattern || strings.HasSuffix(domain, "."+pattern) {
			return e.BlockScreenshots, e.BlockEvents, true
		}
	}
	return false, false, false
}

// Add creates a new blocklist entry, defaulting to blocking both
// screenshots and events, and reloads the in-memory view.
func (l *List) Add(ctx context.Context, blockType types.BlockType, pattern, displayName string) (*types.BlocklistEntry, error) {
	if err := validatePattern(blockType, pattern); err != nil {
		return nil, err
	}
	now := time.Now()
	e := &types.BlocklistEntry{
		ID:               uuid.NewString(),
		BlockType:        blockType,
		Pattern:          pattern,
		DisplayName:      displayName,
		Enabled:          true,
		BlockScreenshots: true,
		BlockEvents:      true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.store.UpsertBlocklistEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, l.Reload(ctx)
}

// Update persists changes to an existing entry and reloads.
func (l *List) Update(ctx context.Context, e *types.BlocklistEntry) error {
	if err := validatePattern(e.BlockType, e.Pattern); err != nil {
		return err
	}
	e.UpdatedAt = time.Now()
	if err := l.store.UpsertBlocklistEntry(ctx, e); err != nil {
		return err
	}
	return l.Reload(ctx)
}

// Remove deletes an entry by id and reloads.
func (l *List) Remove(ctx context.Context, id string) error {
	if err := l.store.DeleteBlocklistEntry(ctx, id); err != nil {
		return err
	}
	return l.Reload(ctx)
}

func validatePattern(blockType types.BlockType, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("blocklist pattern cannot be empty")
	}
	switch blockType {
	case types.BlockApp, types.BlockDomain:
		return nil
	default:
		return fmt.Errorf("unknown block type %q", blockType)
	}
}
