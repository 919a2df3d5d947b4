package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zero-day-ai/engram/graph"
	"github.com/zero-day-ai/engram/llm"
)

// defaultSystemPrompt is used when no custom system prompt is provided.
const defaultSystemPrompt = `You are a knowledge-graph curator. Given two notes and the cosine similarity of their embeddings, classify the relationship from NOTE A to NOTE B.

You must respond with valid JSON in the following format:
{"relation": "<relation>", "confidence": <float between 0.0 and 1.0>, "rationale": "<one sentence explanation>"}

The relation must be exactly one of:
- elaborates (NOTE A adds detail or depth to NOTE B)
- supports (NOTE A provides evidence for NOTE B)
- contradicts (the notes make incompatible claims)
- refutes (NOTE A disproves or invalidates NOTE B)
- predecessor (NOTE A describes an earlier state of what NOTE B describes)
- successor (NOTE A describes a later state of what NOTE B describes)
- unrelated (no meaningful relationship)

Guidelines:
- Treat the similarity score as a hint, not a verdict
- Report your honest confidence; low confidence is acceptable
- Keep the rationale to a single sentence`

// LLMOptions configures an LLM-backed classification provider.
type LLMOptions struct {
	// Provider is the completion backend (required).
	Provider llm.Provider

	// SystemPrompt overrides the default classification prompt.
	SystemPrompt string

	// MaxRetries is the number of times to retry on completion or JSON
	// parse failures (default: 3).
	MaxRetries int

	// Temperature controls randomness (default: 0.0 for determinism).
	Temperature float64

	// Tracker optionally records token usage under the "classification"
	// stage.
	Tracker llm.TokenTracker
}

// LLMProvider classifies note relationships by asking a language model for
// a structured JSON decision.
type LLMProvider struct {
	provider     llm.Provider
	systemPrompt string
	maxRetries   int
	temperature  float64
	tracker      llm.TokenTracker
}

// NewLLMProvider creates an LLM-backed classification provider.
// Returns an error if no completion provider is given.
func NewLLMProvider(opts LLMOptions) (*LLMProvider, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("LLMOptions.Provider is required")
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &LLMProvider{
		provider:     opts.Provider,
		systemPrompt: systemPrompt,
		maxRetries:   maxRetries,
		temperature:  opts.Temperature,
		tracker:      opts.Tracker,
	}, nil
}

// ClassifyRelation asks the model to classify the relationship from the
// source note to the target note, retrying on transport and parse failures.
func (p *LLMProvider) ClassifyRelation(ctx context.Context, source, target string, similarity float64) (Decision, error) {
	messages := []llm.Message{
		llm.SystemMessage(p.systemPrompt),
		llm.UserMessage(buildClassificationPrompt(source, target, similarity)),
	}

	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		resp, err := p.provider.Complete(ctx, messages, llm.WithTemperature(p.temperature))
		if err != nil {
			lastErr = fmt.Errorf("completion failed (attempt %d/%d): %w", attempt+1, p.maxRetries+1, err)
			if attempt < p.maxRetries {
				if err := backoff(ctx, attempt); err != nil {
					return Decision{}, err
				}
			}
			continue
		}

		if p.tracker != nil {
			p.tracker.Add("classification", resp.Usage)
		}

		decision, err := parseDecision(resp.Content)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d/%d: %w", attempt+1, p.maxRetries+1, err)

			// Feed the failure back so the model can correct itself.
			if attempt < p.maxRetries {
				messages = append(messages,
					llm.AssistantMessage(resp.Content),
					llm.UserMessage(fmt.Sprintf("Invalid response. Error: %v\nRespond with valid JSON: {\"relation\": \"<relation>\", \"confidence\": <0.0-1.0>, \"rationale\": \"<one sentence>\"}", err)),
				)
				if err := backoff(ctx, attempt); err != nil {
					return Decision{}, err
				}
			}
			continue
		}

		return decision, nil
	}

	return Decision{}, fmt.Errorf("relation classification failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

// buildClassificationPrompt constructs the user prompt for one note pair.
func buildClassificationPrompt(source, target string, similarity float64) string {
	var sb strings.Builder

	sb.WriteString("NOTE A:\n")
	sb.WriteString(source)
	sb.WriteString("\n\nNOTE B:\n")
	sb.WriteString(target)
	sb.WriteString(fmt.Sprintf("\n\nEmbedding cosine similarity: %.3f\n\n", similarity))
	sb.WriteString("Classify the relationship from NOTE A to NOTE B.\n")
	sb.WriteString("Respond with valid JSON: {\"relation\": \"<relation>\", \"confidence\": <0.0-1.0>, \"rationale\": \"<one sentence>\"}")

	return sb.String()
}

// parseDecision extracts a validated Decision from the model's reply.
func parseDecision(content string) (Decision, error) {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Locate the JSON object if the model added surrounding prose.
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return Decision{}, fmt.Errorf("%w: no JSON object found in response: %s", ErrInvalidDecision, content)
	}

	var raw struct {
		Relation   string  `json:"relation"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(content[startIdx:endIdx+1]), &raw); err != nil {
		return Decision{}, fmt.Errorf("%w: unmarshal failed: %v", ErrInvalidDecision, err)
	}

	relation, err := graph.ParseRelation(strings.ToLower(strings.TrimSpace(raw.Relation)))
	if err != nil {
		return Decision{}, fmt.Errorf("%w: relation %q not in vocabulary", ErrInvalidDecision, raw.Relation)
	}

	decision := Decision{
		Relation:   relation,
		Confidence: raw.Confidence,
		Rationale:  strings.TrimSpace(raw.Rationale),
	}
	if err := decision.Validate(); err != nil {
		return Decision{}, err
	}
	if decision.Rationale == "" {
		return Decision{}, fmt.Errorf("%w: missing rationale", ErrInvalidDecision)
	}

	return decision, nil
}

// backoff sleeps for an exponentially growing interval, aborting if the
// context is cancelled.
func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
