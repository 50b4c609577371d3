package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tracehq/trace/internal/llm"
	"github.com/tracehq/trace/internal/retrieval/graphexpand"
	"github.com/tracehq/trace/internal/types"
)

// Evidence is everything a route gathered for one query, assembled by
// the caller (the retrieval engine knows how to fetch each piece;
// synth only knows how to render and cite it).
type Evidence struct {
	Query           string
	Route           Route
	Notes           []*types.Note
	Aggregates      []*types.Aggregate
	RelatedEntities []graphexpand.Related
	TimeFilter      *types.TimeFilter
}

// Answer is the synthesized response to a query.
type Answer struct {
	Text       string
	Citations  []string
	Confidence float64
}

// noDataMessage is spec 4.9's deterministic response when no notes are
// available to answer from.
const noDataMessage = "I don't have any notes covering that — nothing was captured for this period, or it hasn't been summarized yet."

// systemPrompt mandates the citation format spec 4.9 requires: hourly
// notes cited as "[Note: HH:00]", daily notes as "[Note: YYYY-MM-DD]".
const systemPrompt = `You answer questions about the user's own captured activity using only the evidence provided below. Never invent facts not present in the evidence.

Cite every claim you make. Cite an hourly note as [Note: HH:00] using its start hour. Cite a daily note as [Note: YYYY-MM-DD] using its date. Use the exact citation tags shown next to each note in the evidence below.

Be concise and direct. If the evidence doesn't answer the question, say so plainly rather than guessing.`

// Synthesize renders evidence into a prompt, calls model.Generate (which
// takes no temperature setting, so the model's own default temperature
// applies), and derives citations mechanically from the notes
// actually supplied (never trusting the model's own citation claims
// blindly — a citation tag that doesn't correspond to a supplied note
// is dropped).
func Synthesize(ctx context.Context, model llm.LanguageModel, ev Evidence) (*Answer, error) {
	if len(ev.Notes) == 0 {
		return &Answer{Text: noDataMessage, Confidence: 0}, nil
	}

	citationTags := buildCitationTags(ev.Notes)
	prompt := buildPrompt(ev, citationTags)

	text, err := model.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("synth: generate: %w", err)
	}
	text = strings.TrimSpace(text)

	citations := extractValidCitations(text, citationTags)
	confidence := float64(len(ev.Notes)) / 3
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &Answer{Text: text, Citations: citations, Confidence: confidence}, nil
}

// buildCitationTags maps each note id to the exact citation tag it
// should be referred to by.
func buildCitationTags(notes []*types.Note) map[string]string {
	tags := make(map[string]string, len(notes))
	for _, n := range notes {
		if n.NoteType == types.NoteDay {
			tags[n.ID] = fmt.Sprintf("[Note: %s]", n.StartTS.Format("2006-01-02"))
		} else {
			tags[n.ID] = fmt.Sprintf("[Note: %s]", n.StartTS.Format("15:00"))
		}
	}
	return tags
}

// buildPrompt assembles the system+user prompt pair into a single
// prompt string (llm.LanguageModel.Generate takes one prompt), in the
// strings.Builder style of internal/summarizer/claude_inference.go's
// buildEpisodeInferencePrompt: a fixed instruction block, then
// evidence rendered in a stable order, then the actual question.
func buildPrompt(ev Evidence, citationTags map[string]string) string {
	var sb strings.Builder

	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	if ev.TimeFilter != nil {
		sb.WriteString(fmt.Sprintf("Time range: %s to %s\n\n", ev.TimeFilter.Start.Format("2006-01-02 15:04"), ev.TimeFilter.End.Format("2006-01-02 15:04")))
	}

	sb.WriteString("Notes:\n")
	for _, n := range ev.Notes {
		sb.WriteString(fmt.Sprintf("\n%s %s\n", citationTags[n.ID], n.JSONPayload))
	}

	if len(ev.Aggregates) > 0 {
		sb.WriteString("\nAggregates:\n")
		for _, a := range ev.Aggregates {
			sb.WriteString(fmt.Sprintf("- %s/%s: %.1f\n", a.KeyType, a.Key, a.ValueNum))
		}
	}

	if len(ev.RelatedEntities) > 0 {
		sb.WriteString("\nRelated entities:\n")
		for _, r := range ev.RelatedEntities {
			sb.WriteString(fmt.Sprintf("- %s (%s, weight %.2f)\n", r.EntityID, r.EdgeType, r.Weight))
		}
	}

	sb.WriteString(fmt.Sprintf("\nQuestion: %s\n", ev.Query))
	return sb.String()
}

var citationTagRe = regexp.MustCompile(`\[Note: [^\]]+\]`)

// extractValidCitations pulls every citation tag out of text that
// mechanically corresponds to a note actually supplied as evidence,
// in the order they first appear, deduplicated.
func extractValidCitations(text string, citationTags map[string]string) []string {
	valid := make(map[string]bool, len(citationTags))
	for _, tag := range citationTags {
		valid[tag] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, tag := range citationTagRe.FindAllString(text, -1) {
		if !valid[tag] || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
