package retrieval

import "github.com/zero-day-ai/engram/vector"

// selectDiverse picks up to k items by maximal marginal relevance:
// each round takes the candidate maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarityToSelected
//
// Equal scores resolve by earliest note creation, then id, so selection is
// deterministic across runs. Picks are returned in selection order and the
// matching candidates entries get Selected set, so the caller keeps a full
// record of what the filter kept and dropped.
func selectDiverse(candidates []Item, k int, lambda float64) []Item {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}
	selected := make([]Item, 0, min(k, len(candidates)))

	for len(selected) < k && len(remaining) > 0 {
		best := -1
		var bestScore float64

		for i, idx := range remaining {
			cand := candidates[idx]
			maxSim := 0.0
			for _, chosen := range selected {
				sim := vector.Cosine(cand.Note.Embedding, chosen.Note.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}

			score := lambda*cand.Score - (1-lambda)*maxSim
			switch {
			case best == -1:
				best, bestScore = i, score
			case score > bestScore:
				best, bestScore = i, score
			case score == bestScore && preferred(cand, candidates[remaining[best]]):
				best = i
			}
		}

		idx := remaining[best]
		candidates[idx].Selected = true
		selected = append(selected, candidates[idx])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return selected
}

// preferred reports whether a wins a score tie against b.
func preferred(a, b Item) bool {
	if !a.Note.CreatedAt.Equal(b.Note.CreatedAt) {
		return a.Note.CreatedAt.Before(b.Note.CreatedAt)
	}
	return a.Note.ID < b.Note.ID
}
