// Package triage implements the triage and keyframe-selection stage that
// sits between the capture pipeline and the summarizer (spec 4.5): it
// scores each captured screenshot for importance and picks a bounded,
// time-diverse subset to hand to the summarizer's multimodal prompt.
package triage

import "time"

// Category is a coarse activity bucket used for the heuristic importance
// bonus and for category aggregates.
type Category string

const (
	CategoryCode     Category = "code"
	CategoryDoc      Category = "document"
	CategoryCreative Category = "creative"
	CategoryBrowser  Category = "browser"
	CategoryComms    Category = "communication"
	CategoryMedia    Category = "media"
	CategoryTerminal Category = "terminal"
	CategoryOther    Category = "other"
)

// TriageResult is the common shape produced by both the heuristic and
// vision triage modes.
type TriageResult struct {
	Category    Category `json:"category"`
	Importance  float64  `json:"importance"` // 0.0-1.0
	HasText     bool     `json:"has_text"`
	HasDocument bool     `json:"has_document"`
	HasMedia    bool     `json:"has_media"`
	Description string   `json:"description,omitempty"`
}

// Candidate is a screenshot plus the event context it falls inside,
// enough for both triage scoring and keyframe selection.
type Candidate struct {
	ScreenshotID string
	Timestamp    time.Time
	AppID        string
	WindowTitle  string
	DiffScore    float64 // normalized Hamming distance vs. the previous kept frame, 0.0-1.0

	IsTransition bool // set by MarkTransitions
	Triage       TriageResult
	Score        float64 // set by score(), used internally by Select
}

// Config parameterizes keyframe selection (spec 4.5, all defaults as
// specified there).
type Config struct {
	WeightTransition float64       // w_t
	WeightDiff       float64       // w_d
	DiversityWindow  time.Duration // no two greedy picks within this window; coverage-gap fills ignore it
	AnchorInterval   time.Duration // maximum gap before a coverage-fill pick is forced
	MaxKeyframes     int           // hard cap on picks returned
	MaxForLLM        int           // top-N of the picks actually sent to the vision/summarizer call
}

// DefaultConfig matches the values named in spec 4.5.
func DefaultConfig() Config {
	return Config{
		WeightTransition: 0.4,
		WeightDiff:       0.4,
		DiversityWindow:  30 * time.Second,
		AnchorInterval:   300 * time.Second,
		MaxKeyframes:     15,
		MaxForLLM:        10,
	}
}
