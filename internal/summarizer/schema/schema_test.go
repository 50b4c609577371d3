package schema

import "testing"

func TestValidateRequiresTitleAndSummary(t *testing.T) {
	h := &HourlySummary{}
	errs := h.Validate()
	if len(errs) < 2 {
		t.Fatalf("expected at least 2 errors for empty title/summary, got %v", errs)
	}
}

func TestValidateFlagsUnrecognizedEntityType(t *testing.T) {
	h := &HourlySummary{
		Title:   "t",
		Summary: "s",
		Entities: []EntityRef{
			{Name: "Safari", Type: "application"},
		},
	}
	errs := h.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for unrecognized type, got %v", errs)
	}
}

func TestRepairNormalizesEntityTypeAliases(t *testing.T) {
	h := &HourlySummary{
		Title:   "t",
		Summary: "s",
		Entities: []EntityRef{
			{Name: "Safari", Type: "application"},
			{Name: "Awake", Type: "song"},
			{Name: "example.com", Type: "website"},
			{Name: "report.pdf", Type: "pdf"},
			{Name: "something weird", Type: "nonsense"},
		},
	}
	h.Repair()

	want := []string{"app", "track", "domain", "document", "topic"}
	for i, w := range want {
		if h.Entities[i].Type != w {
			t.Fatalf("entity %d: expected type %q, got %q", i, w, h.Entities[i].Type)
		}
	}
	if len(h.Validate()) != 0 {
		t.Fatalf("expected no validation errors after repair, got %v", h.Validate())
	}
}

func TestRepairFillsNilListsWithEmptySlices(t *testing.T) {
	h := &HourlySummary{Title: "t", Summary: "s"}
	h.Repair()

	if h.Categories == nil || h.Activities == nil || h.Topics == nil ||
		h.Documents == nil || h.Websites == nil || h.OpenLoops == nil ||
		h.Media.Listening == nil || h.Media.Watching == nil {
		t.Fatalf("expected all list fields filled with empty slices, got %+v", h)
	}
}

func TestEmptyProducesValidPayload(t *testing.T) {
	h := Empty("14:00 - 15:00")
	if errs := h.Validate(); len(errs) != 0 {
		t.Fatalf("expected empty skeleton to validate, got %v", errs)
	}
}
