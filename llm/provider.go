package llm

import "context"

// StreamChunk is one increment of a streaming chat response. Chunks arrive in
// generation order; a non-nil Err terminates the stream.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Err     *Error `json:"error,omitempty"`
}

// Provider is the unified adapter contract over one upstream chat/embedding
// API. One instance owns one persistent HTTP client bound to one descriptor
// and one credential; instances are created by the factory, cached for the
// lifetime of the owning router, and closed only on teardown.
type Provider interface {
	// Chat performs a blocking single-shot completion and returns the
	// assistant text. The adapter applies its rate limiter before the
	// network call and retries transient failures within its attempt budget.
	Chat(ctx context.Context, messages []Message, cfg *GenerationConfig) (string, error)

	// ChatStream performs a streaming completion. The returned channel is a
	// single-pass, forward-only sequence of chunks, closed when generation
	// finishes. Adapters whose descriptor lacks streaming degrade to one
	// chunk holding the full Chat result instead of erroring. Consumers may
	// stop receiving at any point; the transport is released promptly.
	ChatStream(ctx context.Context, messages []Message, cfg *GenerationConfig) (<-chan StreamChunk, error)

	// Embed returns the embedding vector for text. Adapters whose descriptor
	// marks embeddings unsupported fail with a capability error before any
	// network call.
	Embed(ctx context.Context, text, model string) ([]float64, error)

	// ListModels returns the deduplicated, order-preserving model list. The
	// result is cached per adapter instance; forceRefresh bypasses the cache.
	// On total upstream failure it falls back to the statically configured
	// models and never errors while a fallback value exists.
	ListModels(ctx context.Context, forceRefresh bool) ([]string, error)

	// CountTokens estimates the token count of text. The estimate may be a
	// rough character heuristic; routing does not depend on exact counts.
	CountTokens(text string) int

	// Name returns the provider identifier used for routing and diagnostics.
	Name() string

	// Descriptor returns the immutable descriptor the adapter was built from.
	Descriptor() *Descriptor

	// Close releases the adapter's idle connections. Called once at router
	// or process teardown.
	Close() error
}

// SingleChunkStream wraps a complete response as a one-chunk stream. Used by
// adapters degrading ChatStream when the descriptor lacks streaming support.
func SingleChunkStream(text string) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: text}
	close(ch)
	return ch
}
