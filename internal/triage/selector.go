package triage

import (
	"sort"
	"time"
)

// MarkTransitions sets IsTransition on each candidate (already sorted by
// time) where the app changes, or the window title changes and both
// sides are non-empty (spec 4.5 step 2).
func MarkTransitions(candidates []Candidate) {
	for i := range candidates {
		if i == 0 {
			candidates[i].IsTransition = true
			continue
		}
		prev := candidates[i-1]
		cur := candidates[i]
		appChanged := cur.AppID != prev.AppID
		titleChanged := cur.WindowTitle != prev.WindowTitle && cur.WindowTitle != "" && prev.WindowTitle != ""
		candidates[i].IsTransition = appChanged || titleChanged
	}
}

// hopDecay is graph-expansion's decay function (1/(hop+1)) evaluated at
// hop 0, kept here so the selector's score formula matches spec 4.5
// step 3 literally.
func hopDecay(hop int) float64 {
	return 1.0 / float64(hop+1)
}

// score computes s = w_t*is_transition + w_d*diff_score +
// 0.5*importance*hop_decay(0).
func score(c Candidate, cfg Config) float64 {
	t := 0.0
	if c.IsTransition {
		t = 1.0
	}
	return cfg.WeightTransition*t + cfg.WeightDiff*c.DiffScore + 0.5*c.Triage.Importance*hopDecay(0)
}

// Select runs the full deterministic keyframe-selection contract (spec
// 4.5 steps 1-6): sort, mark transitions, score, greedily pick under a
// diversity constraint, fill coverage gaps, cap and re-sort by time.
// Candidates must already carry a populated Triage field (from Heuristic
// or a vision-mode call).
func Select(candidates []Candidate, cfg Config) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	MarkTransitions(sorted)
	for i := range sorted {
		sorted[i].Score = score(sorted[i], cfg)
	}

	// Rank by score descending, ties broken by earlier timestamp.
	ranked := make([]int, len(sorted))
	for i := range ranked {
		ranked[i] = i
	}
	sort.Slice(ranked, func(a, b int) bool {
		ia, ib := ranked[a], ranked[b]
		if sorted[ia].Score != sorted[ib].Score {
			return sorted[ia].Score > sorted[ib].Score
		}
		return sorted[ia].Timestamp.Before(sorted[ib].Timestamp)
	})

	var pickedIdx []int
	for _, idx := range ranked {
		if len(pickedIdx) >= cfg.MaxKeyframes {
			break
		}
		if tooClose(sorted, idx, pickedIdx, cfg.DiversityWindow) {
			continue
		}
		pickedIdx = append(pickedIdx, idx)
	}

	pickedIdx = fillCoverageGaps(sorted, pickedIdx, cfg)

	sort.Slice(pickedIdx, func(a, b int) bool {
		return sorted[pickedIdx[a]].Timestamp.Before(sorted[pickedIdx[b]].Timestamp)
	})

	if len(pickedIdx) > cfg.MaxKeyframes {
		pickedIdx = pickedIdx[:cfg.MaxKeyframes]
	}

	out := make([]Candidate, 0, len(pickedIdx))
	for _, idx := range pickedIdx {
		out = append(out, sorted[idx])
	}
	return out
}

// ForLLM returns the top cfg.MaxForLLM of an already-selected, time-sorted
// keyframe set, ranked by score (spec 4.5 step 6: "the top <=10 are used").
func ForLLM(keyframes []Candidate, cfg Config) []Candidate {
	if len(keyframes) <= cfg.MaxForLLM {
		return keyframes
	}
	ranked := make([]Candidate, len(keyframes))
	copy(ranked, keyframes)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Timestamp.Before(ranked[j].Timestamp)
	})
	top := ranked[:cfg.MaxForLLM]
	sort.Slice(top, func(i, j int) bool {
		return top[i].Timestamp.Before(top[j].Timestamp)
	})
	return top
}

func tooClose(sorted []Candidate, idx int, pickedIdx []int, window time.Duration) bool {
	for _, p := range pickedIdx {
		diff := sorted[idx].Timestamp.Sub(sorted[p].Timestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff < window {
			return true
		}
	}
	return false
}

// fillCoverageGaps inserts, for any time interval between consecutive
// picks that exceeds cfg.AnchorInterval, the unpicked candidate nearest
// the interval's midpoint (spec 4.5 step 5). Time before the first pick
// and after the last pick is not filled.
func fillCoverageGaps(sorted []Candidate, pickedIdx []int, cfg Config) []int {
	if len(pickedIdx) == 0 {
		return pickedIdx
	}
	order := append([]int{}, pickedIdx...)
	sort.Slice(order, func(a, b int) bool {
		return sorted[order[a]].Timestamp.Before(sorted[order[b]].Timestamp)
	})

	already := make(map[int]bool, len(order))
	for _, idx := range order {
		already[idx] = true
	}

	result := append([]int{}, order...)
	for i := 0; i+1 < len(order); i++ {
		a, b := order[i], order[i+1]
		gap := sorted[b].Timestamp.Sub(sorted[a].Timestamp)
		if gap <= cfg.AnchorInterval {
			continue
		}
		mid := sorted[a].Timestamp.Add(gap / 2)
		if idx, ok := nearestUnpicked(sorted, a, b, mid, already); ok {
			result = append(result, idx)
			already[idx] = true
			if len(result) >= cfg.MaxKeyframes {
				break
			}
		}
	}
	return result
}

func nearestUnpicked(sorted []Candidate, lo, hi int, mid time.Time, already map[int]bool) (int, bool) {
	best := -1
	var bestDist time.Duration
	for i := lo + 1; i < hi; i++ {
		if already[i] {
			continue
		}
		d := sorted[i].Timestamp.Sub(mid)
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, best != -1
}
