package reason

import "errors"

// ErrSearchBudgetExceeded signals that a session asked for more searches
// than its budget allows. It is non-fatal: Run still returns a best-effort
// Outcome alongside this error, so callers should inspect the outcome
// before deciding the session failed.
//
// Example:
//
//	outcome, err := session.Run(ctx, prompt)
//	if errors.Is(err, reason.ErrSearchBudgetExceeded) {
//	    log.Printf("budget hit after %d searches", outcome.Searches)
//	    err = nil // the answer in outcome.Answer is still usable
//	}
var ErrSearchBudgetExceeded = errors.New("search budget exceeded")

// ErrInvalidTransition signals an illegal state-machine move. Seeing it
// outside of direct State manipulation indicates a controller bug.
var ErrInvalidTransition = errors.New("invalid state transition")
