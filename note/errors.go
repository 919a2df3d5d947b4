package note

import "errors"

// Sentinel errors for note store operations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrValidation indicates malformed input: empty or oversized content,
	// a missing embedding, or an embedding whose dimension does not match
	// the configured model dimension. Validation failures are never
	// retried.
	//
	// Example:
	//
	//	_, err := engine.Ingest(ctx, req)
	//	if errors.Is(err, note.ErrValidation) {
	//	    return fmt.Errorf("rejecting malformed note: %w", err)
	//	}
	ErrValidation = errors.New("note: validation failed")

	// ErrNotFound indicates the requested note does not exist or has been
	// archived. Archived notes are excluded from normal reads but remain
	// readable through GetAny.
	//
	// Example:
	//
	//	n, err := store.Get(ctx, id)
	//	if errors.Is(err, note.ErrNotFound) {
	//	    n, err = store.GetAny(ctx, id) // include archived
	//	}
	ErrNotFound = errors.New("note: not found")
)
