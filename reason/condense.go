package reason

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zero-day-ai/engram/retrieval"
)

// DefaultCondenseBudget caps each injected summary at roughly 300 tokens.
const DefaultCondenseBudget = 300

// charsPerToken is the coarse estimate used for budget accounting. Exact
// tokenizer counts vary by model; four characters per token is close
// enough for a cap that exists to bound cost, not to bill it.
const charsPerToken = 4

// estimateTokens converts a string length to an approximate token count,
// rounding up.
func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// condense compresses retrieved items into a summary no larger than
// tokenBudget tokens, most relevant first. Items that do not fit are
// dropped; the last included item may be truncated.
func condense(items []retrieval.Item, tokenBudget int) string {
	if len(items) == 0 {
		return "No stored memories matched the search."
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultCondenseBudget
	}
	limit := tokenBudget * charsPerToken

	var b strings.Builder
	b.WriteString("Retrieved memories, most relevant first:\n")
	for i, item := range items {
		entry := fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(item.Note.Content))
		if item.Provenance != retrieval.ProvenanceVector && item.Relation != "" {
			entry += fmt.Sprintf(" (linked: %s)", item.Relation)
		}

		if b.Len()+len(entry)+1 > limit {
			remaining := limit - b.Len() - 1
			// A fragment shorter than this carries no signal.
			if remaining >= 48 {
				b.WriteString(truncateRunes(entry, remaining-3))
				b.WriteString("...")
			}
			break
		}
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateRunes shortens s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
