package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradementor/llmcore/internal/metrics"
)

// Router holds a priority-ordered set of constructed adapters for one caller
// context and retries across them on failure. Each caller (a user supplying
// their own keys, or the system-wide credential set) gets its own Router;
// adapters are tried in registration order, preferred-first when a preference
// is given.
//
// Per call the router walks NOT_STARTED -> TRYING(adapter_i) ->
// {SUCCESS | TRYING(adapter_i+1) | ALL_FAILED}. Only one adapter's output is
// ever visible to the caller.
type Router struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider under the given name, preserving insertion order
// for fallback. Re-registering a name replaces the adapter but keeps its
// original position.
func (r *Router) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Router) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the provider names in fallback order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered providers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Close closes every registered adapter. Called once at teardown of the
// owning context.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close provider %s: %w", name, err)
		}
	}
	return firstErr
}

// candidates returns the attempt order: preferred first when registered, then
// every other provider in insertion order.
func (r *Router) candidates(preferred string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	if preferred != "" {
		if _, ok := r.providers[preferred]; ok {
			out = append(out, preferred)
		}
	}
	for _, name := range r.order {
		if name != preferred {
			out = append(out, name)
		}
	}
	return out
}

// attempt records one failed adapter in a fallback chain.
type attempt struct {
	provider string
	err      error
}

func (r *Router) aggregateError(attempts []attempt) *Error {
	if len(attempts) == 0 {
		return &Error{Code: ErrAllProvidersFailed, Message: "no providers configured"}
	}
	tried := make([]string, 0, len(attempts))
	for _, a := range attempts {
		tried = append(tried, a.provider)
	}
	last := attempts[len(attempts)-1]
	return &Error{
		Code:     ErrAllProvidersFailed,
		Provider: last.provider,
		Message: fmt.Sprintf("all providers failed (tried %s): last error from %s: %v",
			strings.Join(tried, ", "), last.provider, last.err),
	}
}

// ChatWithFallback sends the request through the preferred adapter when one
// is named, then every other configured adapter in insertion order, returning
// the first success. Errors from earlier adapters are not surfaced on
// success; if every adapter fails the aggregate error names the providers
// tried and the last failure.
func (r *Router) ChatWithFallback(ctx context.Context, messages []Message, cfg *GenerationConfig, preferred string) (string, error) {
	log := r.logger.With(zap.String("request_id", uuid.NewString()))
	var attempts []attempt
	for _, name := range r.candidates(preferred) {
		p, _ := r.Get(name)
		start := time.Now()
		text, err := p.Chat(ctx, messages, cfg)
		metrics.ObserveRequest(name, "chat", time.Since(start), err)
		if err == nil {
			if len(attempts) > 0 {
				metrics.RecordFallback(attempts[len(attempts)-1].provider, name)
			}
			return text, nil
		}
		log.Warn("provider chat failed, advancing to next candidate",
			zap.String("provider", name), zap.Error(err))
		attempts = append(attempts, attempt{provider: name, err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return "", r.aggregateError(attempts)
}

// ChatStreamWithFallback applies the same fallback policy for streaming
// calls. Fallback is only attempted before the first chunk has been yielded
// to the caller: the router buffers exactly one chunk per candidate to detect
// immediate stream errors, and commits to an adapter once its first content
// chunk arrives. A stream that fails after that point surfaces the error
// in-band and is not retried elsewhere. Buffering whole responses to allow
// later fallback would defeat the purpose of streaming, so this is a known
// limitation rather than a defect.
func (r *Router) ChatStreamWithFallback(ctx context.Context, messages []Message, cfg *GenerationConfig, preferred string) (<-chan StreamChunk, error) {
	log := r.logger.With(zap.String("request_id", uuid.NewString()))
	var attempts []attempt
	for _, name := range r.candidates(preferred) {
		p, _ := r.Get(name)
		start := time.Now()
		ch, err := p.ChatStream(ctx, messages, cfg)
		if err != nil {
			metrics.ObserveRequest(name, "chat_stream", time.Since(start), err)
			log.Warn("provider stream failed to start, advancing",
				zap.String("provider", name), zap.Error(err))
			attempts = append(attempts, attempt{provider: name, err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		first, ok := <-ch
		if ok && first.Err != nil {
			// Failed before anything was delivered; still safe to fall back.
			metrics.ObserveRequest(name, "chat_stream", time.Since(start), first.Err)
			log.Warn("provider stream errored before first chunk, advancing",
				zap.String("provider", name), zap.Error(first.Err))
			attempts = append(attempts, attempt{provider: name, err: first.Err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.ObserveRequest(name, "chat_stream", time.Since(start), nil)
		if len(attempts) > 0 {
			metrics.RecordFallback(attempts[len(attempts)-1].provider, name)
		}

		out := make(chan StreamChunk)
		go func() {
			defer close(out)
			if ok {
				select {
				case out <- first:
				case <-ctx.Done():
					return
				}
			}
			for chunk := range ch {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
	return nil, r.aggregateError(attempts)
}
