// Package classify determines the semantic relationship between two notes.
//
// The link discovery engine hands each candidate pair to a Provider, which
// returns a Decision: a relation from the closed vocabulary in the graph
// package, a confidence in [0, 1], and a one-line rationale.
//
// # Providers
//
// Three implementations cover production, resilience, and degraded modes:
//
//   - LLMProvider asks a language model for a structured JSON decision,
//     retrying transport and parse failures with exponential backoff.
//   - BreakerProvider wraps any provider in a circuit breaker; while the
//     circuit is open, calls fail fast with ErrUnavailable.
//   - SimilarityProvider decides from embedding similarity alone and is
//     the fallback when classification is unavailable.
//
// The usual production stack chains all three:
//
//	llmProv, _ := classify.NewLLMProvider(classify.LLMOptions{Provider: model})
//	provider := classify.NewBreakerProvider(llmProv, classify.BreakerOptions{})
//
// A Decision that fails Validate is a provider error, not a filtering
// outcome; callers degrade the same way they would for ErrUnavailable.
package classify
