package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/tracehq/trace/internal/summarizer/schema"
)

// embedTextQuery projects a validated HourlySummary payload down to the
// fields spec 4.6 step 6 lists for the embedding text: title, summary,
// categories, activities (top 5), topics, entities grouped by type
// (sorted), media, documents, websites. Written as one jq program
// against the note's own JSON shape rather than a Go struct walk. A new
// projected field also needs a matching embedTextProjection field and a
// line in EmbeddingText's writer.
const embedTextQuery = `
{
  title: (.title // ""),
  summary: (.summary // ""),
  categories: ((.categories // []) | join(", ")),
  activities: ((.activities // [])[0:5] | join(", ")),
  topics: ((.topics // []) | join(", ")),
  entity_lines: ((.entities // [])
    | group_by(.type)
    | sort_by(.[0].type)
    | map(.[0].type + ": " + (map(.name) | join(", ")))),
  listening_lines: ((.media.listening // []) | map(.artist + " - " + .track)),
  watching: ((.media.watching // []) | join(", ")),
  documents: ((.documents // []) | join(", ")),
  websites: ((.websites // []) | join(", ")),
  location: (.location // "")
}
`

var embedTextCode = mustCompileJQ(embedTextQuery)

func mustCompileJQ(src string) *gojq.Code {
	query, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("synth: invalid embed text jq filter: %v", err))
	}
	code, err := gojq.Compile(query)
	if err != nil {
		panic(fmt.Sprintf("synth: compile embed text jq filter: %v", err))
	}
	return code
}

type embedTextProjection struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Categories     string   `json:"categories"`
	Activities     string   `json:"activities"`
	Topics         string   `json:"topics"`
	EntityLines    []string `json:"entity_lines"`
	ListeningLines []string `json:"listening_lines"`
	Watching       string   `json:"watching"`
	Documents      string   `json:"documents"`
	Websites       string   `json:"websites"`
	Location       string   `json:"location"`
}

// EmbeddingText renders h's deterministic embedding-text projection
// (spec 4.6 step 6), run through embedTextQuery instead of a
// hand-written field walk.
func EmbeddingText(h *schema.HourlySummary) (string, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("synth: marshal summary: %w", err)
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return "", fmt.Errorf("synth: unmarshal summary: %w", err)
	}

	iter := embedTextCode.Run(input)
	v, ok := iter.Next()
	if !ok {
		return "", fmt.Errorf("synth: embed text filter produced no output")
	}
	if err, ok := v.(error); ok {
		return "", fmt.Errorf("synth: embed text filter: %w", err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("synth: marshal filter output: %w", err)
	}
	var proj embedTextProjection
	if err := json.Unmarshal(out, &proj); err != nil {
		return "", fmt.Errorf("synth: unmarshal filter output: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(proj.Title)
	sb.WriteString("\n")
	sb.WriteString(proj.Summary)
	sb.WriteString("\n")
	sb.WriteString(proj.Categories)
	sb.WriteString("\n")
	sb.WriteString(proj.Activities)
	sb.WriteString("\n")
	sb.WriteString(proj.Topics)
	sb.WriteString("\n")
	for _, line := range proj.EntityLines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	for _, line := range proj.ListeningLines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(proj.Watching)
	sb.WriteString("\n")
	sb.WriteString(proj.Documents)
	sb.WriteString("\n")
	sb.WriteString(proj.Websites)
	sb.WriteString("\n")
	sb.WriteString(proj.Location)

	return sb.String(), nil
}
