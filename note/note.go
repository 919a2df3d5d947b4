package note

import (
	"fmt"
	"time"
)

// DefaultMaxContentLength caps note content size when no limit is configured.
const DefaultMaxContentLength = 8192

// Note is an atomic memory unit.
//
// The content payload is immutable after ingestion. Keywords, tags, and
// description are cosmetic annotations refreshed over time as new
// relationships attach; annotation updates never change the note's identity.
//
// Notes are never physically deleted. When retention drops below the archive
// threshold they transition to Archived, which excludes them from normal
// reads and retrieval.
type Note struct {
	// ID is the content-derived identity: a hash over the embedding bytes.
	// It is computed once at ingestion and never recomputed, even when
	// annotations change or the vector is re-derived.
	ID string

	// Content is the immutable text payload.
	Content string

	// Keywords are extracted or refreshed annotation terms.
	Keywords []string

	// Tags are caller- or refresh-supplied categorization labels.
	Tags []string

	// Description is an optional semantic summary. It participates in the
	// embedding payload, so changing it marks the note dirty for
	// re-indexing.
	Description string

	// Embedding is the vector the note was indexed under. It may be
	// re-derived by an explicit re-index after annotation changes; the ID
	// stays fixed regardless.
	Embedding []float64

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time

	// Seq is a monotonic ingestion sequence assigned by the store,
	// disambiguating notes created within the same clock tick.
	Seq uint64

	// Archived marks the note as faded out by the decay model. Archived
	// notes are excluded from normal reads and retrieval.
	Archived bool

	// Dirty marks that the payload feeding the embedding changed after the
	// stored vector was computed, so the vector-index entry is stale until
	// an explicit re-index.
	Dirty bool
}

// EmbedPayload returns the text that feeds the note's embedding: the content,
// plus the description when present. Keyword and tag changes do not affect
// the payload.
func (n *Note) EmbedPayload() string {
	return EmbedPayload(n.Content, n.Description)
}

// EmbedPayload builds the embedding input from content and description.
func EmbedPayload(content, description string) string {
	if description == "" {
		return content
	}
	return content + "\n\n" + description
}

// Validate checks the note against the configured limits.
//
// maxContent <= 0 falls back to DefaultMaxContentLength. dimension <= 0
// skips the embedding dimension check (used by stores that do not know the
// provider's dimension).
func (n *Note) Validate(maxContent, dimension int) error {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	if n.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len(n.Content) > maxContent {
		return fmt.Errorf("%w: content length %d exceeds maximum %d", ErrValidation, len(n.Content), maxContent)
	}
	if len(n.Embedding) == 0 {
		return fmt.Errorf("%w: embedding is required", ErrValidation)
	}
	if dimension > 0 && len(n.Embedding) != dimension {
		return fmt.Errorf("%w: embedding dimension %d does not match configured dimension %d", ErrValidation, len(n.Embedding), dimension)
	}
	return nil
}

// Clone returns a deep copy of the note. Stores hand out clones so callers
// cannot mutate stored state through the returned pointer.
func (n *Note) Clone() *Note {
	c := *n
	c.Keywords = append([]string(nil), n.Keywords...)
	c.Tags = append([]string(nil), n.Tags...)
	c.Embedding = append([]float64(nil), n.Embedding...)
	return &c
}
