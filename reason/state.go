package reason

import "fmt"

// State identifies where a reasoning session sits in its lifecycle.
//
// Sessions move through a fixed machine:
//
//	Reasoning -> (SearchRequested -> Searching -> ResultsInjected)* -> Finalizing -> Done
//
// A session that never requests a search goes straight from Reasoning to
// Finalizing. A session that exhausts its search budget jumps from
// SearchRequested to Finalizing without executing the pending search.
type State string

const (
	// StateReasoning means the model is generating freely.
	StateReasoning State = "reasoning"

	// StateSearchRequested means a search request was detected in the
	// model output and is awaiting execution.
	StateSearchRequested State = "search_requested"

	// StateSearching means a retrieval round is in flight.
	StateSearching State = "searching"

	// StateResultsInjected means condensed results have been appended to
	// the conversation and generation is about to resume.
	StateResultsInjected State = "results_injected"

	// StateFinalizing means no further searches will run and the session
	// is producing its final answer.
	StateFinalizing State = "finalizing"

	// StateDone is terminal.
	StateDone State = "done"
)

func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is one of the defined states.
func (s State) IsValid() bool {
	switch s {
	case StateReasoning, StateSearchRequested, StateSearching,
		StateResultsInjected, StateFinalizing, StateDone:
		return true
	}
	return false
}

// IsTerminal reports whether the session has finished.
func (s State) IsTerminal() bool {
	return s == StateDone
}

var transitions = map[State][]State{
	StateReasoning:       {StateSearchRequested, StateFinalizing},
	StateSearchRequested: {StateSearching, StateFinalizing},
	StateSearching:       {StateResultsInjected},
	StateResultsInjected: {StateReasoning},
	StateFinalizing:      {StateDone},
	StateDone:            {},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move from s is legal, or
// ErrInvalidTransition.
func (s State) Transition(next State) (State, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
