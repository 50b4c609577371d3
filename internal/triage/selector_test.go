package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateAt(secOffset int, appID, title string, diff float64) Candidate {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := Candidate{
		ScreenshotID: appID,
		Timestamp:    base.Add(time.Duration(secOffset) * time.Second),
		AppID:        appID,
		WindowTitle:  title,
		DiffScore:    diff,
	}
	c.Triage = Heuristic(appID, title, diff, false)
	return c
}

func TestClassifyAppPrefixMatchAndFallback(t *testing.T) {
	assert.Equal(t, CategoryCode, ClassifyApp("com.jetbrains.intellij"))
	assert.Equal(t, CategoryOther, ClassifyApp("com.unknownvendor.app"))
}

func TestHeuristicClampsTransitionImportance(t *testing.T) {
	r := Heuristic("com.unknownvendor.app", "x", 0.0, true)
	assert.GreaterOrEqual(t, r.Importance, 0.8)
}

func TestHeuristicDocBonus(t *testing.T) {
	doc := Heuristic("notion.id", "Notes", 0.3, false)
	other := Heuristic("com.unknownvendor.app", "Notes", 0.3, false)
	assert.Greater(t, doc.Importance, other.Importance)
}

func TestMarkTransitionsFirstAlwaysTransition(t *testing.T) {
	cands := []Candidate{
		candidateAt(0, "app.a", "Title A", 0.1),
		candidateAt(5, "app.a", "Title A", 0.1),
		candidateAt(10, "app.b", "Title B", 0.1),
	}
	MarkTransitions(cands)
	require.True(t, cands[0].IsTransition)
	assert.False(t, cands[1].IsTransition)
	assert.True(t, cands[2].IsTransition)
}

func TestSelectRespectsDiversityWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiversityWindow = 30 * time.Second
	cands := []Candidate{
		candidateAt(0, "app.a", "A", 0.9),
		candidateAt(5, "app.a", "A", 0.9),
		candidateAt(10, "app.a", "A", 0.9),
	}
	picked := Select(cands, cfg)
	for i := 0; i < len(picked); i++ {
		for j := i + 1; j < len(picked); j++ {
			diff := picked[j].Timestamp.Sub(picked[i].Timestamp)
			assert.GreaterOrEqual(t, diff, cfg.DiversityWindow)
		}
	}
}

func TestSelectReturnsSortedByTime(t *testing.T) {
	cfg := DefaultConfig()
	cands := []Candidate{
		candidateAt(100, "app.c", "C", 0.5),
		candidateAt(0, "app.a", "A", 0.5),
		candidateAt(50, "app.b", "B", 0.5),
	}
	picked := Select(cands, cfg)
	for i := 1; i < len(picked); i++ {
		assert.False(t, picked[i].Timestamp.Before(picked[i-1].Timestamp))
	}
}

func TestSelectFillsCoverageGaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnchorInterval = 100 * time.Second
	cfg.DiversityWindow = 60 * time.Second
	cands := []Candidate{
		candidateAt(0, "app.a", "A", 0.9),
		candidateAt(50, "app.b", "B", 0.0), // low score, inside the first pick's diversity window, the only candidate in the gap
		candidateAt(500, "app.c", "C", 0.9),
	}
	picked := Select(cands, cfg)
	require.Len(t, picked, 3, "the low-scoring middle candidate should be pulled in to fill the coverage gap")
}

func TestSelectCapsAtMaxKeyframes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeyframes = 2
	cfg.DiversityWindow = 1 * time.Second
	var cands []Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, candidateAt(i*60, "app.a", "A", 0.5))
	}
	picked := Select(cands, cfg)
	assert.LessOrEqual(t, len(picked), cfg.MaxKeyframes)
}

func TestForLLMCapsAndSortsByTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxForLLM = 2
	cands := []Candidate{
		candidateAt(0, "app.a", "A", 0.9),
		candidateAt(60, "app.b", "B", 0.1),
		candidateAt(120, "app.c", "C", 0.9),
	}
	for i := range cands {
		cands[i].Score = score(cands[i], cfg)
	}
	top := ForLLM(cands, cfg)
	require.Len(t, top, 2)
	assert.True(t, top[0].Timestamp.Before(top[1].Timestamp))
}

func TestSelectEmptyInput(t *testing.T) {
	assert.Nil(t, Select(nil, DefaultConfig()))
}
