package reason

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-day-ai/engram/llm"
	"github.com/zero-day-ai/engram/retrieval"
	"github.com/zero-day-ai/engram/telemetry"
)

// DefaultMaxSearches bounds executed retrieval rounds per session.
const DefaultMaxSearches = 5

// searchPattern matches a structured search request embedded in model
// output. Only the first request per response is honored.
var searchPattern = regexp.MustCompile(`(?s)<search>\s*(.+?)\s*</search>`)

const defaultSystemPrompt = `You are a reasoning assistant with access to a personal memory store.

When you need information you do not have, request a memory lookup by writing
<search>your query</search> on its own line, then stop. Retrieved memories will
be provided and you can continue. Request at most one lookup per response.

When you have enough information, give your final answer directly without any
<search> tag.`

// budgetNotice is injected when a session requests a search it has no
// budget left for.
const budgetNotice = `The search budget is exhausted and no further lookups are possible. Give your best final answer using only the information already available.`

// SearchFunc executes one retrieval round for a query expressed as text.
// The engine wires this to embedding plus hybrid search.
type SearchFunc func(ctx context.Context, query string) ([]retrieval.Item, error)

// ReinforceFunc is called with the ids of notes whose content was injected
// into a session, so their decay records can be touched. Implementations
// must be safe for concurrent use across sessions.
type ReinforceFunc func(ctx context.Context, noteIDs []string)

// Options configure a Controller. The zero value of every field selects a
// default.
type Options struct {
	// MaxSearches caps executed retrieval rounds per session. Zero means
	// DefaultMaxSearches.
	MaxSearches int

	// CondenseBudget caps each injected summary, in tokens. Zero means
	// DefaultCondenseBudget.
	CondenseBudget int

	// SystemPrompt overrides the default search-protocol instructions.
	SystemPrompt string

	// Tracker receives per-stage token accounting. Optional.
	Tracker llm.TokenTracker

	// Reinforce receives the ids of injected notes. Optional.
	Reinforce ReinforceFunc

	// Telemetry records spans and metrics. Optional.
	Telemetry *telemetry.Telemetry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxSearches <= 0 {
		o.MaxSearches = DefaultMaxSearches
	}
	if o.CondenseBudget <= 0 {
		o.CondenseBudget = DefaultCondenseBudget
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Controller builds reasoning sessions over a model and a search
// capability. Sessions are independent, so one controller may serve many
// concurrently.
type Controller struct {
	provider llm.Provider
	search   SearchFunc
	opts     Options
}

// NewController wires a reasoning model to a search capability.
func NewController(provider llm.Provider, search SearchFunc, opts Options) (*Controller, error) {
	if provider == nil {
		return nil, fmt.Errorf("reason: provider is required")
	}
	if search == nil {
		return nil, fmt.Errorf("reason: search func is required")
	}
	return &Controller{
		provider: provider,
		search:   search,
		opts:     opts.withDefaults(),
	}, nil
}

// NewSession creates a fresh single-use session.
func (c *Controller) NewSession() *Session {
	id := uuid.New().String()
	return &Session{
		id:       id,
		provider: c.provider,
		search:   c.search,
		opts:     c.opts,
		logger:   c.opts.Logger.With("session_id", id),
		state:    StateReasoning,
	}
}

// Outcome is what a finished session produced.
type Outcome struct {
	// Answer is the final model output. When Run also returned
	// ErrSearchBudgetExceeded this is the best-effort answer produced
	// after the budget notice.
	Answer string

	// Searches counts executed retrieval rounds.
	Searches int

	// TokenOverhead estimates the prompt tokens spent on injected
	// summaries, for caller-side cost accounting.
	TokenOverhead int

	// Usage aggregates model token usage across every completion in the
	// session.
	Usage llm.TokenUsage
}

// Session drives one bounded reason/search/inject loop.
//
// A session is single-use and not safe for concurrent use. Independent
// sessions run fully in parallel; they share no mutable state beyond the
// underlying stores.
type Session struct {
	id       string
	provider llm.Provider
	search   SearchFunc
	opts     Options
	logger   *slog.Logger

	state    State
	messages []llm.Message
	searches int
	overhead int
	usage    llm.TokenUsage
	ran      bool
}

// ID returns the session identifier used in logs and spans.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Run reasons over prompt until the model produces an answer, interleaving
// retrieval rounds the model requests. It blocks until the session
// finishes or ctx is cancelled at a suspension point.
//
// When the session requests more searches than its budget allows, Run
// returns a non-nil Outcome together with ErrSearchBudgetExceeded.
func (s *Session) Run(ctx context.Context, prompt string) (*Outcome, error) {
	if s.ran {
		return nil, fmt.Errorf("reason: session %s already ran", s.id)
	}
	s.ran = true
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("reason: prompt is required")
	}

	ctx, span := s.opts.Telemetry.StartSpan(ctx, "engram.reason",
		attribute.String("session_id", s.id))
	defer span.End()

	s.messages = []llm.Message{
		llm.SystemMessage(s.opts.SystemPrompt),
		llm.UserMessage(prompt),
	}

	var answer string
	budgetHit := false

	for {
		// Suspension point: sessions cancel between searches, never
		// mid-write.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := s.provider.Complete(ctx, s.messages)
		if err != nil {
			return nil, fmt.Errorf("reason: completion in state %s: %w", s.state, err)
		}
		s.usage.Add(resp.Usage)
		s.track("reasoning", resp.Usage)

		query, requested := parseSearchRequest(resp.Content)
		if !requested {
			answer = resp.Content
			if err := s.transition(StateFinalizing); err != nil {
				return nil, err
			}
			break
		}

		if err := s.transition(StateSearchRequested); err != nil {
			return nil, err
		}

		if s.searches >= s.opts.MaxSearches {
			budgetHit = true
			if err := s.transition(StateFinalizing); err != nil {
				return nil, err
			}
			answer, err = s.forceFinal(ctx, resp.Content)
			if err != nil {
				return nil, err
			}
			break
		}

		if err := s.executeSearch(ctx, resp.Content, query); err != nil {
			return nil, err
		}
	}

	if err := s.transition(StateDone); err != nil {
		return nil, err
	}

	s.opts.Telemetry.RecordReasonSearches(ctx, s.searches)
	s.logger.Debug("session finished",
		"searches", s.searches,
		"token_overhead", s.overhead,
		"budget_hit", budgetHit)

	outcome := &Outcome{
		Answer:        answer,
		Searches:      s.searches,
		TokenOverhead: s.overhead,
		Usage:         s.usage,
	}
	if budgetHit {
		return outcome, ErrSearchBudgetExceeded
	}
	return outcome, nil
}

// executeSearch runs one retrieval round and injects the condensed result
// into the conversation. A failed search injects an empty result rather
// than aborting the session.
func (s *Session) executeSearch(ctx context.Context, modelReply, query string) error {
	if err := s.transition(StateSearching); err != nil {
		return err
	}
	s.searches++

	items, err := s.search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("search failed, continuing without results",
			"query", query,
			"error", err)
		items = nil
	}

	if err := s.transition(StateResultsInjected); err != nil {
		return err
	}

	summary := condense(items, s.opts.CondenseBudget)
	overhead := estimateTokens(summary)
	s.overhead += overhead
	s.track("injection", llm.TokenUsage{InputTokens: overhead, TotalTokens: overhead})
	s.opts.Telemetry.RecordTokenOverhead(ctx, overhead)

	s.messages = append(s.messages,
		llm.AssistantMessage(modelReply),
		llm.UserMessage(summary),
	)
	s.reinforce(ctx, items)

	s.logger.Debug("results injected",
		"query", query,
		"items", len(items),
		"search", s.searches)

	return s.transition(StateReasoning)
}

// forceFinal asks for a last answer after the budget notice. If even that
// completion fails, the model's previous reply is the only output left.
func (s *Session) forceFinal(ctx context.Context, lastReply string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.messages = append(s.messages,
		llm.AssistantMessage(lastReply),
		llm.UserMessage(budgetNotice),
	)

	resp, err := s.provider.Complete(ctx, s.messages)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("forced finalize failed, falling back to last reply", "error", err)
		return stripSearchRequests(lastReply), nil
	}
	s.usage.Add(resp.Usage)
	s.track("reasoning", resp.Usage)
	return stripSearchRequests(resp.Content), nil
}

func (s *Session) transition(to State) error {
	next, err := s.state.Transition(to)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Session) track(stage string, usage llm.TokenUsage) {
	if s.opts.Tracker != nil {
		s.opts.Tracker.Add(stage, usage)
	}
}

func (s *Session) reinforce(ctx context.Context, items []retrieval.Item) {
	if s.opts.Reinforce == nil || len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.Note.ID
	}
	s.opts.Reinforce(ctx, ids)
}

// parseSearchRequest extracts the first structured search request from
// model output.
func parseSearchRequest(content string) (string, bool) {
	m := searchPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	query := strings.TrimSpace(m[1])
	if query == "" {
		return "", false
	}
	return query, true
}

// stripSearchRequests removes unexecuted search tags from a best-effort
// answer.
func stripSearchRequests(content string) string {
	return strings.TrimSpace(searchPattern.ReplaceAllString(content, ""))
}
