package engram

import (
	"context"
	"errors"
	"sort"

	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/queue"
)

const (
	// refreshFanout bounds how many neighbors contribute terms during a
	// metadata refresh.
	refreshFanout = 10

	// maxRefreshKeywords caps a note's keyword set after merging neighbor
	// terms.
	maxRefreshKeywords = 16
)

// refreshMetadata re-derives a note's keywords and tags from its linked
// neighborhood after new edges attached. Existing annotations are kept and
// the most common neighbor terms are appended, so refreshes are additive.
// The description is left alone, which keeps the stored vector valid.
func (e *Engine) refreshMetadata(ctx context.Context, task queue.Task) error {
	n, err := e.notes.GetAny(ctx, task.NoteID)
	if err != nil {
		if errors.Is(err, note.ErrNotFound) {
			// The note vanished between enqueue and processing.
			e.logger.Debug("skipping metadata refresh, note gone", "note_id", task.NoteID)
			return nil
		}
		return err
	}

	edges, err := e.graph.Neighbors(ctx, n.ID, refreshFanout, 0)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	keywordCounts := make(map[string]int)
	tagSet := make(map[string]bool)
	for _, t := range n.Tags {
		tagSet[t] = true
	}
	for _, edge := range edges {
		neighbor, err := e.notes.GetAny(ctx, edge.Target)
		if err != nil {
			continue
		}
		for _, kw := range neighbor.Keywords {
			keywordCounts[kw]++
		}
		for _, t := range neighbor.Tags {
			tagSet[t] = true
		}
	}

	keywords := mergeKeywords(n.Keywords, keywordCounts, maxRefreshKeywords)
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	if equalStrings(keywords, n.Keywords) && equalStrings(tags, sortedCopy(n.Tags)) {
		return nil
	}

	if err := e.notes.UpdateAnnotations(ctx, n.ID, keywords, tags, n.Description); err != nil {
		return err
	}
	e.logger.Debug("metadata refreshed from neighborhood",
		"note_id", n.ID,
		"keywords", len(keywords),
		"tags", len(tags),
	)
	return nil
}

// mergeKeywords keeps the note's own keywords in order, then appends
// neighbor terms by descending frequency until the cap. Frequency ties
// break alphabetically for a deterministic result.
func mergeKeywords(own []string, counts map[string]int, limit int) []string {
	merged := make([]string, 0, limit)
	seen := make(map[string]bool)
	for _, kw := range own {
		if !seen[kw] && len(merged) < limit {
			merged = append(merged, kw)
			seen[kw] = true
		}
	}

	candidates := make([]string, 0, len(counts))
	for kw := range counts {
		if !seen[kw] {
			candidates = append(candidates, kw)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	for _, kw := range candidates {
		if len(merged) >= limit {
			break
		}
		merged = append(merged, kw)
	}
	return merged
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedCopy(v []string) []string {
	out := append([]string(nil), v...)
	sort.Strings(out)
	return out
}
