// Package reason runs bounded reasoning sessions that interleave model
// generation with memory retrieval.
//
// A session walks a fixed state machine:
//
//	Reasoning -> (SearchRequested -> Searching -> ResultsInjected)* -> Finalizing -> Done
//
// While reasoning, the model may request a memory lookup by emitting a
// structured tag:
//
//	<search>how did the march outage start</search>
//
// The controller pauses generation, runs the search, condenses the results
// into a token-capped summary, injects it into the conversation, and
// resumes. Each injection adds to a running token-overhead counter exposed
// on the Outcome for cost accounting.
//
// # Budget
//
// Executed searches are hard-capped at Options.MaxSearches. A session
// requesting one search too many is forced into Finalizing: the pending
// search never runs, the model is told the budget is gone, and Run returns
// its best-effort answer together with ErrSearchBudgetExceeded. The error
// is a signal, not a failure.
//
// # Concurrency
//
// A Session is single-use and confined to one goroutine. Independent
// sessions share nothing and run fully in parallel. Cancellation is
// honored at suspension points between completions and searches.
package reason
