// Package llm defines Trace's provider-agnostic embedding and language
// model interfaces. Summarizer, triage vision-mode, and retrieval all
// depend on these interfaces, never on a concrete provider, so the
// backing model can be swapped without touching call sites.
package llm

import "context"

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// LanguageModel generates text completions, optionally grounded in one
// or more images (keyframes, for the vision-mode triage path of spec
// 4.5 and the hourly summarizer's scene description step).
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateVision(ctx context.Context, prompt string, images [][]byte) (string, error)
}
