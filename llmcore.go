// Package llmcore provides a top-level convenience entry point for building
// a routed LLM client with minimal boilerplate.
//
// Usage:
//
//	import "github.com/tradementor/llmcore"
//
//	r, err := llmcore.New(llmcore.WithOpenAI(""), llmcore.WithAnthropic(""))
//	text, err := r.ChatWithFallback(ctx, messages, cfg, "openai")
//
// Each With* option registers one provider; credentials fall back to the
// conventional environment variables when the argument is empty. Use the
// llm/factory package directly when you need presets, custom descriptors, or
// instance-cache control.
package llmcore

import (
	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/factory"
)

// Option registers one provider on the router being built.
type Option func(*builder) error

type builder struct {
	logger  *zap.Logger
	factory *factory.Factory
	router  *llm.Router
}

// New builds a router from the options. At least one provider option is
// required.
func New(opts ...Option) (*llm.Router, error) {
	b := &builder{logger: zap.NewNop()}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.router == nil || b.router.Len() == 0 {
		return nil, llm.NewConfigurationError("at least one provider option is required")
	}
	return b.router, nil
}

func (b *builder) add(typ factory.ProviderType, apiKey string) error {
	if b.factory == nil {
		b.factory = factory.New(b.logger)
		b.router = llm.NewRouter(b.logger)
	}
	p, err := b.factory.Create(factory.Options{Type: typ, APIKey: apiKey})
	if err != nil {
		return err
	}
	b.router.Register(p.Name(), p)
	return nil
}

// WithLogger sets the logger used by the router and every provider it
// constructs. Must appear before provider options to take effect.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// WithOpenAI registers an OpenAI provider. Empty key falls back to
// OPENAI_API_KEY.
func WithOpenAI(apiKey string) Option {
	return func(b *builder) error { return b.add(factory.TypeOpenAI, apiKey) }
}

// WithAnthropic registers an Anthropic provider. Empty key falls back to
// ANTHROPIC_API_KEY.
func WithAnthropic(apiKey string) Option {
	return func(b *builder) error { return b.add(factory.TypeAnthropic, apiKey) }
}

// WithGoogle registers a Gemini provider. Empty key falls back to
// GOOGLE_API_KEY.
func WithGoogle(apiKey string) Option {
	return func(b *builder) error { return b.add(factory.TypeGoogle, apiKey) }
}

// WithOllama registers a local Ollama provider. No credential is used.
func WithOllama() Option {
	return func(b *builder) error { return b.add(factory.TypeOllama, "") }
}

// WithPreset registers a custom provider from the named preset.
func WithPreset(name, apiKey string) Option {
	return func(b *builder) error {
		if b.factory == nil {
			b.factory = factory.New(b.logger)
			b.router = llm.NewRouter(b.logger)
		}
		p, err := b.factory.FromPreset(name, apiKey, "")
		if err != nil {
			return err
		}
		b.router.Register(p.Name(), p)
		return nil
	}
}

// WithProvider registers a pre-built provider.
func WithProvider(p llm.Provider) Option {
	return func(b *builder) error {
		if b.router == nil {
			b.factory = factory.New(b.logger)
			b.router = llm.NewRouter(b.logger)
		}
		b.router.Register(p.Name(), p)
		return nil
	}
}
