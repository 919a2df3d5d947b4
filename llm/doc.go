// Package llm defines the completion abstraction the memory engine uses to
// talk to language models.
//
// The engine never binds to a concrete model API. Relation classification
// and the reasoning controller both consume the Provider interface, which
// covers exactly one capability: turn a conversation into a reply.
//
// # Providers
//
// A Provider implementation adapts one model backend:
//
//	type anthropicProvider struct{ client *anthropic.Client }
//
//	func (p *anthropicProvider) Complete(ctx context.Context, messages []llm.Message, opts ...llm.CompletionOption) (*llm.CompletionResponse, error) {
//		req := llm.NewCompletionRequest(messages, opts...)
//		// translate req, call the API, translate the reply
//	}
//
// # Token accounting
//
// TokenTracker accumulates TokenUsage keyed by stage name, so a caller can
// ask how many tokens were spent on reasoning turns versus memory-search
// overhead after a session completes.
package llm
