package config

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/cache"
	"github.com/tradementor/llmcore/llm/factory"
)

// BuildRouter constructs a factory and router from the configuration:
// preset overlay first, then one registration per declared provider, in
// listed order. When the cache is enabled every provider is wrapped in the
// read-through decorator against the shared Redis store. The returned
// factory owns the adapter instances; closing it closes them.
func BuildRouter(cfg *Config, logger *zap.Logger) (*factory.Factory, *llm.Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.PresetsFile != "" {
		data, err := os.ReadFile(cfg.PresetsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read presets overlay %s: %w", cfg.PresetsFile, err)
		}
		if err := factory.LoadPresets(data); err != nil {
			return nil, nil, err
		}
	}

	var store cache.Store
	if cfg.Cache.Enabled {
		store = cache.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}))
	}

	f := factory.New(logger)
	router := llm.NewRouter(logger)
	for _, pc := range cfg.Providers {
		p, err := buildProvider(f, pc)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		if store != nil {
			p = cache.NewCachedProvider(p, store, logger)
		}
		router.Register(p.Name(), p)
	}
	return f, router, nil
}

func buildProvider(f *factory.Factory, pc ProviderConfig) (llm.Provider, error) {
	if pc.Preset != "" {
		return f.FromPreset(pc.Preset, pc.APIKey(), pc.BaseURL)
	}

	var desc *llm.Descriptor
	if pc.RequestsPerMinute > 0 || pc.TokensPerMinute > 0 || pc.Timeout > 0 {
		desc = factory.FamilyDefault(factory.ProviderType(pc.Type))
		if desc == nil {
			return nil, llm.NewConfigurationError("unknown provider type %q", pc.Type)
		}
		if pc.RequestsPerMinute > 0 {
			desc.RequestsPerMinute = pc.RequestsPerMinute
		}
		if pc.TokensPerMinute > 0 {
			desc.TokensPerMinute = pc.TokensPerMinute
		}
		if pc.Timeout > 0 {
			desc.Timeout = pc.Timeout
		}
	}
	return f.Create(factory.Options{
		Type:       factory.ProviderType(pc.Type),
		APIKey:     pc.APIKey(),
		Model:      pc.Model,
		BaseURL:    pc.BaseURL,
		Descriptor: desc,
	})
}
