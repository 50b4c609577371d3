// Package render turns a validated schema.HourlySummary into the
// deterministic Markdown file spec 4.6.1 describes: YAML front-matter,
// a header line, then fixed-order sections with absent ones omitted.
//
// Nothing in the teacher ever emits a Markdown note (its output was
// always graph rows), so this package is new. It uses gopkg.in/yaml.v3
// for the front-matter, the same library the teacher's own
// configuration loading depends on, matching the pack's general
// preference for explicit string building over text/template seen
// throughout internal/summarizer's prompt assembly.
package render

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tracehq/trace/internal/summarizer/schema"
)

// entityFM is one entity's YAML front-matter projection: just enough
// to round-trip name and type, per spec 4.6.1's round-trip contract.
type entityFM struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// frontMatter is the YAML document at the top of every rendered note.
type frontMatter struct {
	ID            string     `yaml:"id"`
	Type          string     `yaml:"type"`
	StartTime     string     `yaml:"start_time"`
	EndTime       string     `yaml:"end_time"`
	Location      string     `yaml:"location,omitempty"`
	Categories    []string   `yaml:"categories"`
	Entities      []entityFM `yaml:"entities"`
	SchemaVersion int        `yaml:"schema_version"`
}

// SchemaVersion is bumped whenever the HourlySummary shape changes in
// a way that would break round-tripping an older note.
const SchemaVersion = 1

// Hour renders an hour note's Markdown file.
func Hour(noteID string, startTS, endTS time.Time, h *schema.HourlySummary) (string, error) {
	fm := frontMatter{
		ID:            noteID,
		Type:          "hour",
		StartTime:     startTS.Format(time.RFC3339),
		EndTime:       endTS.Format(time.RFC3339),
		Location:      h.Location,
		Categories:    h.Categories,
		Entities:      entityNames(h.Entities),
		SchemaVersion: SchemaVersion,
	}

	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("render: marshal front matter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fmYAML)
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("%s | %s - %s\n\n",
		startTS.Format("Monday, January 2, 2006"),
		startTS.Format("15:04"), endTS.Format("15:04")))

	writeSection(&sb, "Summary", h.Summary)
	writeListSection(&sb, "Activities", h.Activities)
	writeListSection(&sb, "Topics & Learning", h.Topics)
	writeListSection(&sb, "Documents", h.Documents)
	writeListSection(&sb, "Websites Visited", h.Websites)
	writeMediaSection(&sb, h.Media)
	writeCoActivities(&sb, h)
	writeChecklistSection(&sb, "Open Loops", h.OpenLoops)

	if h.Location != "" {
		sb.WriteString(fmt.Sprintf("\n*Location: %s*\n", h.Location))
	}

	return sb.String(), nil
}

// Day renders a daily compaction's Markdown file: the same fixed
// section order as Hour, labeled as a full-day period rather than an
// hour window (CompactDay builds h by merging the day's hour notes).
func Day(noteID string, startTS, endTS time.Time, h *schema.HourlySummary) (string, error) {
	fm := frontMatter{
		ID:            noteID,
		Type:          "day",
		StartTime:     startTS.Format(time.RFC3339),
		EndTime:       endTS.Format(time.RFC3339),
		Location:      h.Location,
		Categories:    h.Categories,
		Entities:      entityNames(h.Entities),
		SchemaVersion: SchemaVersion,
	}

	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("render: marshal front matter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fmYAML)
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("%s\n\n", startTS.Format("Monday, January 2, 2006")))

	writeSection(&sb, "Summary", h.Summary)
	writeListSection(&sb, "Activities", h.Activities)
	writeListSection(&sb, "Topics & Learning", h.Topics)
	writeListSection(&sb, "Documents", h.Documents)
	writeListSection(&sb, "Websites Visited", h.Websites)
	writeMediaSection(&sb, h.Media)
	writeCoActivities(&sb, h)
	writeChecklistSection(&sb, "Open Loops", h.OpenLoops)

	if h.Location != "" {
		sb.WriteString(fmt.Sprintf("\n*Location: %s*\n", h.Location))
	}

	return sb.String(), nil
}

func entityNames(entities []schema.EntityRef) []entityFM {
	out := make([]entityFM, len(entities))
	for i, e := range entities {
		out[i] = entityFM{Name: e.Name, Type: e.Type}
	}
	return out
}

// FrontMatter is the parsed, round-tripped front-matter of a rendered
// note, used by tests (and by anything reparsing a note from disk) to
// recover the fields spec 4.6.1 requires survive a render/reparse cycle.
type FrontMatter struct {
	ID         string
	Type       string
	StartTime  time.Time
	EndTime    time.Time
	Categories []string
	Entities   []schema.EntityRef
}

// ParseFrontMatter extracts and parses the YAML front-matter block
// from a rendered note's Markdown.
func ParseFrontMatter(markdown string) (*FrontMatter, error) {
	const delim = "---\n"
	if !strings.HasPrefix(markdown, delim) {
		return nil, fmt.Errorf("render: no front matter delimiter")
	}
	rest := markdown[len(delim):]
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return nil, fmt.Errorf("render: unterminated front matter")
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return nil, fmt.Errorf("render: unmarshal front matter: %w", err)
	}

	start, err := time.Parse(time.RFC3339, fm.StartTime)
	if err != nil {
		return nil, fmt.Errorf("render: parse start_time: %w", err)
	}
	endTS, err := time.Parse(time.RFC3339, fm.EndTime)
	if err != nil {
		return nil, fmt.Errorf("render: parse end_time: %w", err)
	}

	entities := make([]schema.EntityRef, len(fm.Entities))
	for i, e := range fm.Entities {
		entities[i] = schema.EntityRef{Name: e.Name, Type: e.Type}
	}

	return &FrontMatter{
		ID:         fm.ID,
		Type:       fm.Type,
		StartTime:  start,
		EndTime:    endTS,
		Categories: fm.Categories,
		Entities:   entities,
	}, nil
}

func writeSection(sb *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", title, body))
}

func writeListSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("- %s\n", item))
	}
	sb.WriteString("\n")
}

func writeChecklistSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("- [ ] %s\n", item))
	}
	sb.WriteString("\n")
}

func writeMediaSection(sb *strings.Builder, m schema.Media) {
	if len(m.Listening) == 0 && len(m.Watching) == 0 {
		return
	}
	sb.WriteString("## Media\n\n")
	if len(m.Listening) > 0 {
		sb.WriteString("### Listening\n\n")
		for _, t := range m.Listening {
			sb.WriteString(fmt.Sprintf("- %s - %s\n", t.Artist, t.Track))
		}
		sb.WriteString("\n")
	}
	if len(m.Watching) > 0 {
		sb.WriteString("### Watching\n\n")
		for _, w := range m.Watching {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}
}

// writeCoActivities is the closest thing to a "who/what else was
// involved" section spec 4.6.1 names; since the schema doesn't carry
// explicit co-activity pairs, it lists each person or project entity,
// followed by its context string when it has one.
func writeCoActivities(sb *strings.Builder, h *schema.HourlySummary) {
	var lines []string
	for _, e := range h.Entities {
		if e.Type == "person" || e.Type == "project" {
			if e.Context != "" {
				lines = append(lines, fmt.Sprintf("%s — %s", e.Name, e.Context))
			} else {
				lines = append(lines, e.Name)
			}
		}
	}
	writeListSection(sb, "Co-Activities", lines)
}
