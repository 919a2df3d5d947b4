package engram

import (
	"errors"

	"github.com/zero-day-ai/engram/decay"
	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/reason"
	"github.com/zero-day-ai/engram/retrieval"
)

// Engine-level error taxonomy. Each sentinel aliases the owning package's
// sentinel where one exists, so errors.Is matches whether the caller
// imports the subpackage or only the root.
var (
	// ErrValidation indicates malformed input: empty or oversized content,
	// or an embedding whose dimension does not match the configured model
	// dimension. Never retried.
	//
	// Example:
	//
	//	_, err := eng.Ingest(ctx, req)
	//	if errors.Is(err, engram.ErrValidation) {
	//	    return fmt.Errorf("rejecting note: %w", err)
	//	}
	ErrValidation = note.ErrValidation

	// ErrNotFound indicates the requested note does not exist or has been
	// archived by the decay model. Archived notes remain readable through
	// Get with WithArchived.
	ErrNotFound = note.ErrNotFound

	// ErrProviderUnavailable indicates the embedding backend stayed down
	// through the ingestion retry budget. Classification outages never
	// surface this error: link discovery degrades to similarity-only
	// linking instead.
	ErrProviderUnavailable = errors.New("engram: provider unavailable")

	// ErrDepthLimit indicates a search asked for link expansion beyond two
	// hops. A programming-contract violation, never retried.
	ErrDepthLimit = retrieval.ErrDepthLimit

	// ErrSearchBudgetExceeded is the non-fatal signal that a reasoning
	// session hit its search cap. The session still finalizes and returns
	// a best-effort answer.
	//
	// Example:
	//
	//	outcome, err := session.Run(ctx, prompt)
	//	if errors.Is(err, engram.ErrSearchBudgetExceeded) {
	//	    log.Printf("budget hit after %d searches", outcome.Searches)
	//	}
	ErrSearchBudgetExceeded = reason.ErrSearchBudgetExceeded

	// ErrInvalidTime indicates the clock read earlier than a decay
	// record's last touch. Points at clock skew or a corrupted record.
	ErrInvalidTime = decay.ErrInvalidTime

	// ErrNoReasoner indicates NewSession was called on an engine built
	// without an LLM provider.
	ErrNoReasoner = errors.New("engram: no llm provider configured")

	// ErrClosed indicates the engine has been shut down.
	ErrClosed = errors.New("engram: engine closed")
)
