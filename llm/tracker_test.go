package llm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenTrackerAccumulates(t *testing.T) {
	tracker := NewTokenTracker()

	tracker.Add("reasoning", TokenUsage{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})
	tracker.Add("reasoning", TokenUsage{InputTokens: 60, OutputTokens: 20, TotalTokens: 80})
	tracker.Add("search_injection", TokenUsage{InputTokens: 300, TotalTokens: 300})

	reasoning := tracker.ByStage("reasoning")
	assert.Equal(t, 160, reasoning.InputTokens)
	assert.Equal(t, 60, reasoning.OutputTokens)
	assert.Equal(t, 220, reasoning.TotalTokens)

	total := tracker.Total()
	assert.Equal(t, 460, total.InputTokens)
	assert.Equal(t, 520, total.TotalTokens)

	assert.ElementsMatch(t, []string{"reasoning", "search_injection"}, tracker.Stages())
}

func TestTokenTrackerUnknownStage(t *testing.T) {
	tracker := NewTokenTracker()
	assert.Equal(t, TokenUsage{}, tracker.ByStage("missing"))
}

func TestTokenTrackerReset(t *testing.T) {
	tracker := NewTokenTracker()
	tracker.Add("reasoning", TokenUsage{TotalTokens: 10})

	tracker.Reset()

	assert.Equal(t, TokenUsage{}, tracker.Total())
	assert.Empty(t, tracker.Stages())
}

func TestTokenTrackerConcurrentAdd(t *testing.T) {
	tracker := NewTokenTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Add("reasoning", TokenUsage{TotalTokens: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tracker.Total().TotalTokens)
}
