// Package schema defines the HourlySummary JSON payload (spec §3 Note
// and spec 4.6 step 5) as explicit Go structs, with a Validate pass
// and a lenient Repair pass for the defaults/normalization table spec
// 4.6 names.
//
// The teacher never formalizes a JSON Schema object — internal/summarizer's
// former claude_inference.go leaned on extractJSON plus a bare
// json.Unmarshal into an ad-hoc response struct and trusted the model's
// shape. Spec 4.6 explicitly requires "validate against the schema;
// apply repairs" and "retry validation up to N times after repair", so
// this package is new structure built in the teacher's idiom: small
// typed structs plus explicit Go validation functions, not a
// reflection-based schema library (nothing in the example pack imports
// one).
package schema

import (
	"fmt"
	"strings"
)

// EntityRef is one entity the model reported finding in the hour.
type EntityRef struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
}

// TrackRef is one now-playing (artist, track) pair.
type TrackRef struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
}

// Media groups the hour's listening and watching activity.
type Media struct {
	Listening []TrackRef `json:"listening"`
	Watching  []string   `json:"watching"`
}

// HourlySummary is the structured payload an hour note's json_payload
// column holds, and what the LLM is asked to produce for one hour.
type HourlySummary struct {
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	Categories []string    `json:"categories"`
	Activities []string    `json:"activities"`
	Topics     []string    `json:"topics"`
	Entities   []EntityRef `json:"entities"`
	Media      Media       `json:"media"`
	Documents  []string    `json:"documents"`
	Websites   []string    `json:"websites"`
	Location   string      `json:"location,omitempty"`
	OpenLoops  []string    `json:"open_loops"`
}

// ValidationError names one field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// validEntityTypes mirrors types.EntityType's constant set. Kept as a
// local string set rather than importing internal/types, so this
// package stays a pure payload validator with no storage dependency.
var validEntityTypes = map[string]bool{
	"topic": true, "app": true, "domain": true, "document": true,
	"artist": true, "track": true, "video": true, "game": true,
	"person": true, "project": true,
}

// entityTypeAliases is the lenient normalization table spec 4.6 step 5
// names: song -> track, website -> domain, file|pdf|doc -> document,
// application -> app, anything else unrecognized -> topic.
var entityTypeAliases = map[string]string{
	"song":        "track",
	"website":     "domain",
	"file":        "document",
	"pdf":         "document",
	"doc":         "document",
	"application": "app",
}

// Validate reports every field that fails schema validation. A
// payload with zero errors is ready to persist; one with errors should
// go through Repair and be validated again.
func (h *HourlySummary) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(h.Title) == "" {
		errs = append(errs, ValidationError{"title", "must not be empty"})
	}
	if strings.TrimSpace(h.Summary) == "" {
		errs = append(errs, ValidationError{"summary", "must not be empty"})
	}
	for i, e := range h.Entities {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("entities[%d].name", i), "must not be empty"})
		}
		if !validEntityTypes[e.Type] {
			errs = append(errs, ValidationError{fmt.Sprintf("entities[%d].type", i), fmt.Sprintf("unrecognized entity type %q", e.Type)})
		}
	}

	return errs
}

// Repair applies the defaults and normalization table spec 4.6 step 5
// describes: nil list/object fields become empty, entity types are
// normalized via the alias table (and anything still unrecognized
// falls back to "topic"). Repair never touches Title/Summary — an
// empty title or summary is a genuine model failure, not something a
// mechanical repair pass should paper over.
func (h *HourlySummary) Repair() {
	if h.Categories == nil {
		h.Categories = []string{}
	}
	if h.Activities == nil {
		h.Activities = []string{}
	}
	if h.Topics == nil {
		h.Topics = []string{}
	}
	if h.Documents == nil {
		h.Documents = []string{}
	}
	if h.Websites == nil {
		h.Websites = []string{}
	}
	if h.OpenLoops == nil {
		h.OpenLoops = []string{}
	}
	if h.Media.Listening == nil {
		h.Media.Listening = []TrackRef{}
	}
	if h.Media.Watching == nil {
		h.Media.Watching = []string{}
	}

	for i, e := range h.Entities {
		t := strings.ToLower(strings.TrimSpace(e.Type))
		if alias, ok := entityTypeAliases[t]; ok {
			t = alias
		}
		if !validEntityTypes[t] {
			t = "topic"
		}
		h.Entities[i].Type = t
	}
}

// Empty returns the schema-valid skeleton spec 4.6 step 2 requires for
// an hour with zero events: a summary mentioning "no activity" and the
// hour label, everything else empty.
func Empty(hourLabel string) *HourlySummary {
	return &HourlySummary{
		Title:      "No activity",
		Summary:    fmt.Sprintf("No activity was captured during %s.", hourLabel),
		Categories: []string{},
		Activities: []string{},
		Topics:     []string{},
		Entities:   []EntityRef{},
		Media:      Media{Listening: []TrackRef{}, Watching: []string{}},
		Documents:  []string{},
		Websites:   []string{},
		OpenLoops:  []string{},
	}
}
