// Package factory constructs provider adapters from a type name, credential,
// and optional descriptor or preset, caching instances so identical
// configurations share one outbound client.
package factory

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/providers/anthropic"
	"github.com/tradementor/llmcore/llm/providers/custom"
	"github.com/tradementor/llmcore/llm/providers/google"
	"github.com/tradementor/llmcore/llm/providers/ollama"
	"github.com/tradementor/llmcore/llm/providers/openai"
)

// ProviderType names an adapter family.
type ProviderType string

const (
	TypeOpenAI    ProviderType = "openai"
	TypeAnthropic ProviderType = "anthropic"
	TypeGoogle    ProviderType = "google"
	TypeCustom    ProviderType = "custom"
	TypeOllama    ProviderType = "ollama"
)

// credentialEnv maps each family to the environment variable consulted when
// no explicit credential is supplied. Ollama is absent on purpose; the local
// daemon takes no credential.
var credentialEnv = map[ProviderType]string{
	TypeOpenAI:    "OPENAI_API_KEY",
	TypeAnthropic: "ANTHROPIC_API_KEY",
	TypeGoogle:    "GOOGLE_API_KEY",
	TypeCustom:    "CUSTOM_LLM_API_KEY",
}

// Options configures one Create call.
type Options struct {
	Type   ProviderType
	APIKey string
	// Model overrides the descriptor's default model when set.
	Model   string
	BaseURL string
	// Descriptor carries preset or per-user configuration; nil means the
	// family defaults.
	Descriptor *llm.Descriptor
}

// Factory builds and caches adapter instances. The cache key is the
// (type, credential, base URL) tuple; identical tuples share one instance
// and therefore one outbound client. Safe for concurrent use.
type Factory struct {
	logger *zap.Logger

	mu        sync.RWMutex
	instances map[string]llm.Provider
	group     singleflight.Group
}

// New creates an empty factory.
func New(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		logger:    logger,
		instances: make(map[string]llm.Provider),
	}
}

func cacheKey(typ ProviderType, apiKey, baseURL string) string {
	return fmt.Sprintf("%s|%s|%s", typ, apiKey, baseURL)
}

// effectiveBaseURL resolves the base URL the adapter will actually use, so
// two descriptors pointing at different gateways never collide in the
// instance cache even when no explicit override is given.
func effectiveBaseURL(opts Options) string {
	if opts.BaseURL != "" {
		return opts.BaseURL
	}
	if opts.Descriptor != nil {
		return opts.Descriptor.BaseURL
	}
	return ""
}

// resolveCredential applies the explicit argument, then the family's
// environment default. Families that require a credential fail loudly when
// neither is present rather than constructing an unauthenticated client.
func resolveCredential(typ ProviderType, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	env, required := credentialEnv[typ]
	if !required {
		return "", nil
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", llm.NewConfigurationError("provider type %s: credential required (set %s or pass an API key)", typ, env)
}

// Create returns the adapter for the options, constructing it on first use.
// Repeated calls with an identical (type, credential, base URL) tuple return
// the identical instance.
func (f *Factory) Create(opts Options) (llm.Provider, error) {
	apiKey, err := resolveCredential(opts.Type, opts.APIKey)
	if err != nil {
		return nil, err
	}
	key := cacheKey(opts.Type, apiKey, effectiveBaseURL(opts))

	f.mu.RLock()
	p, ok := f.instances[key]
	f.mu.RUnlock()
	if ok {
		return p, nil
	}

	// Guard first construction so concurrent callers with the same tuple do
	// not build two clients.
	v, err, _ := f.group.Do(key, func() (any, error) {
		f.mu.RLock()
		p, ok := f.instances[key]
		f.mu.RUnlock()
		if ok {
			return p, nil
		}

		built, err := f.build(opts, apiKey)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.instances[key] = built
		f.mu.Unlock()
		f.logger.Info("provider constructed",
			zap.String("type", string(opts.Type)),
			zap.String("provider", built.Name()))
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(llm.Provider), nil
}

func (f *Factory) build(opts Options, apiKey string) (llm.Provider, error) {
	// A bare type name means the family defaults; starting from an empty
	// descriptor here would wipe the family's capability flags in the merge.
	desc := opts.Descriptor
	if desc == nil {
		desc = FamilyDefault(opts.Type)
	} else {
		desc = desc.Clone()
	}
	if desc == nil {
		return nil, llm.NewConfigurationError("unknown provider type %q", opts.Type)
	}
	if opts.BaseURL != "" {
		desc.BaseURL = opts.BaseURL
	}
	if opts.Model != "" {
		desc.DefaultModel = opts.Model
	}

	switch opts.Type {
	case TypeOpenAI:
		return openai.New(desc, apiKey, f.logger), nil
	case TypeAnthropic:
		return anthropic.New(desc, apiKey, f.logger), nil
	case TypeGoogle:
		return google.New(desc, apiKey, f.logger), nil
	case TypeCustom:
		return custom.New(desc, apiKey, f.logger)
	case TypeOllama:
		return ollama.New(desc, f.logger), nil
	default:
		return nil, llm.NewConfigurationError("unknown provider type %q", opts.Type)
	}
}

// FamilyDefault returns a copy of the family's stock descriptor, or nil for
// an unknown type. Callers tweaking quotas or timeouts start from it so the
// family's capability flags survive.
func FamilyDefault(typ ProviderType) *llm.Descriptor {
	switch typ {
	case TypeOpenAI:
		return openai.DefaultDescriptor()
	case TypeAnthropic:
		return anthropic.DefaultDescriptor()
	case TypeGoogle:
		return google.DefaultDescriptor()
	case TypeCustom:
		return custom.DefaultDescriptor()
	case TypeOllama:
		return ollama.DefaultDescriptor()
	default:
		return nil
	}
}

// FromPreset constructs a custom adapter from a registered preset, with an
// optional base URL override.
func (f *Factory) FromPreset(name, apiKey, baseURLOverride string) (llm.Provider, error) {
	desc, err := Preset(name)
	if err != nil {
		return nil, err
	}
	return f.Create(Options{
		Type:       TypeCustom,
		APIKey:     apiKey,
		BaseURL:    baseURLOverride,
		Descriptor: desc,
	})
}

// Size reports how many instances the cache holds.
func (f *Factory) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.instances)
}

// Close tears down every cached instance and empties the cache.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for key, p := range f.instances {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.instances, key)
	}
	return firstErr
}
