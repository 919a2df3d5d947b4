package llm

import "sync"

// TokenTracker accumulates token usage keyed by pipeline stage, so callers
// can see where a session's token budget went (reasoning turns, relation
// classification, context condensation).
type TokenTracker interface {
	// Add records usage under the named stage.
	Add(stage string, usage TokenUsage)

	// Total returns the sum across all stages.
	Total() TokenUsage

	// ByStage returns the usage recorded for one stage.
	ByStage(stage string) TokenUsage

	// Stages returns the names of all stages with recorded usage.
	Stages() []string

	// Reset clears all recorded usage.
	Reset()
}

// DefaultTokenTracker is a thread-safe in-memory TokenTracker.
type DefaultTokenTracker struct {
	mu     sync.RWMutex
	stages map[string]TokenUsage
}

// NewTokenTracker creates an empty tracker.
func NewTokenTracker() *DefaultTokenTracker {
	return &DefaultTokenTracker{
		stages: make(map[string]TokenUsage),
	}
}

// Add records usage under the named stage.
func (t *DefaultTokenTracker) Add(stage string, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.stages[stage]
	current.Add(usage)
	t.stages[stage] = current
}

// Total returns the sum across all stages.
func (t *DefaultTokenTracker) Total() TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total TokenUsage
	for _, usage := range t.stages {
		total.Add(usage)
	}
	return total
}

// ByStage returns the usage recorded for one stage. Unknown stages return
// a zero value.
func (t *DefaultTokenTracker) ByStage(stage string) TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.stages[stage]
}

// Stages returns the names of all stages with recorded usage.
func (t *DefaultTokenTracker) Stages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.stages))
	for name := range t.stages {
		names = append(names, name)
	}
	return names
}

// Reset clears all recorded usage.
func (t *DefaultTokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stages = make(map[string]TokenUsage)
}
