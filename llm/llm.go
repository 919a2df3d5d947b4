package llm

import (
	"context"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem carries instructions that frame the whole conversation.
	RoleSystem Role = "system"

	// RoleUser carries input from the calling application or end user.
	RoleUser Role = "user"

	// RoleAssistant carries text produced by the model.
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Validate checks that the message has a known role and non-empty content.
func (m Message) Validate() error {
	if !m.Role.IsValid() {
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("message content is empty")
	}
	return nil
}

// SystemMessage builds a message with the system role.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a message with the user role.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a message with the assistant role.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// TokenUsage records the token cost of a single completion.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest carries the messages and sampling parameters for one
// model call. Optional fields use pointers so zero values can be expressed
// explicitly.
type CompletionRequest struct {
	Messages      []Message `json:"messages"`
	Temperature   *float64  `json:"temperature,omitempty"`
	MaxTokens     *int      `json:"max_tokens,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// Validate checks that the request has at least one valid message.
func (r CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("completion request has no messages")
	}
	for i, m := range r.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range [0, 2]", *r.Temperature)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", *r.MaxTokens)
	}
	return nil
}

// CompletionResponse is the model's reply to a completion request.
type CompletionResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        TokenUsage `json:"usage"`
}

// CompletionOption mutates a completion request before it is sent.
type CompletionOption func(*CompletionRequest)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(r *CompletionRequest) {
		r.Temperature = &t
	}
}

// WithMaxTokens caps the length of the generated reply.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) {
		r.MaxTokens = &n
	}
}

// WithStopSequences sets strings that terminate generation when emitted.
func WithStopSequences(stops ...string) CompletionOption {
	return func(r *CompletionRequest) {
		r.StopSequences = append([]string(nil), stops...)
	}
}

// NewCompletionRequest builds a request from messages and options.
func NewCompletionRequest(messages []Message, opts ...CompletionOption) CompletionRequest {
	req := CompletionRequest{Messages: messages}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Provider is the minimal completion capability the engine depends on.
// Implementations wrap a concrete model API and translate its request and
// response shapes.
type Provider interface {
	// Complete sends the conversation to the model and returns its reply.
	Complete(ctx context.Context, messages []Message, opts ...CompletionOption) (*CompletionResponse, error)
}
