package blocklist

import (
	"context"
	"testing"

	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	entries map[string]*types.BlocklistEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]*types.BlocklistEntry)}
}

func (f *fakeStore) ListBlocklistEntries(ctx context.Context) ([]*types.BlocklistEntry, error) {
	var out []*types.BlocklistEntry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) UpsertBlocklistEntry(ctx context.Context, e *types.BlocklistEntry) error {
	f.entries[e.ID] = e
	return nil
}

func (f *fakeStore) DeleteBlocklistEntry(ctx context.Context, id string) error {
	delete(f.entries, id)
	return nil
}

func TestMatchAppExact(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	list, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := list.Add(ctx, types.BlockApp, "com.1password.1password", "1Password"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	blockScreens, blockEvents, matched := list.MatchApp("com.1password.1password")
	if !matched || !blockScreens || !blockEvents {
		t.Fatalf("expected app to match and block both, got %v %v %v", blockScreens, blockEvents, matched)
	}

	if _, _, matched := list.MatchApp("com.apple.Terminal"); matched {
		t.Fatalf("expected no match for unrelated app")
	}
}

func TestMatchDomainSuffix(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	list, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := list.Add(ctx, types.BlockDomain, "bank.example.com", "Bank"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, _, matched := list.MatchDomain("bank.example.com"); !matched {
		t.Fatalf("expected exact domain match")
	}
	if _, _, matched := list.MatchDomain("login.bank.example.com"); !matched {
		t.Fatalf("expected subdomain match")
	}
	if _, _, matched := list.MatchDomain("example.com"); matched {
		t.Fatalf("expected parent domain to NOT match a more specific blocked entry")
	}
	if _, _, matched := list.MatchDomain("notbank.example.com"); matched {
		t.Fatalf("expected lookalike domain to not match (suffix must be dot-bounded)")
	}
}

func TestRemoveDisablesMatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	list, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entry, err := list.Add(ctx, types.BlockApp, "com.test.app", "Test")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := list.Remove(ctx, entry.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, matched := list.MatchApp("com.test.app"); matched {
		t.Fatalf("expected no match after removal")
	}
}

func TestAddRejectsEmptyPattern(t *testing.T) {
	ctx := context.Background()
	list, err := New(ctx, newFakeStore())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := list.Add(ctx, types.BlockApp, "  ", "Nothing"); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}
