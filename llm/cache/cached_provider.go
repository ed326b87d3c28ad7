package cache

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/internal/metrics"
	"github.com/tradementor/llmcore/llm"
)

// CachedProvider decorates a Provider with read-through caching of chat
// responses and embeddings. Decorator pattern: the wrapped adapter is not
// modified. Streaming calls pass through uncached. Cache failures degrade to
// the upstream call; they never fail the request.
type CachedProvider struct {
	llm.Provider
	store  Store
	logger *zap.Logger
}

// NewCachedProvider wraps p with the given store.
func NewCachedProvider(p llm.Provider, store Store, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{Provider: p, store: store, logger: logger}
}

// Chat returns the cached response for an identical prompt when present,
// otherwise calls through and stores the result for ChatTTL.
func (c *CachedProvider) Chat(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (string, error) {
	model := ""
	if cfg != nil {
		model = cfg.Model
	}
	key := ChatKey(model, messages, cfg)

	if data, err := c.store.Get(ctx, key); err == nil {
		metrics.RecordCacheHit("chat")
		return string(data), nil
	} else if err != ErrMiss {
		c.logger.Warn("chat cache read failed", zap.Error(err))
	}
	metrics.RecordCacheMiss("chat")

	text, err := c.Provider.Chat(ctx, messages, cfg)
	if err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, key, []byte(text), ChatTTL); err != nil {
		c.logger.Warn("chat cache write failed", zap.Error(err))
	}
	return text, nil
}

// Embed returns the cached vector for (model, text) when present, otherwise
// calls through and stores the result for EmbeddingTTL.
func (c *CachedProvider) Embed(ctx context.Context, text, model string) ([]float64, error) {
	key := EmbeddingKey(model, text)

	if data, err := c.store.Get(ctx, key); err == nil {
		var vec []float64
		if err := json.Unmarshal(data, &vec); err == nil {
			metrics.RecordCacheHit("embedding")
			return vec, nil
		}
		c.logger.Warn("embedding cache entry corrupt, refetching", zap.String("key", key))
	} else if err != ErrMiss {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
	}
	metrics.RecordCacheMiss("embedding")

	vec, err := c.Provider.Embed(ctx, text, model)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(vec); err == nil {
		if err := c.store.Set(ctx, key, data, EmbeddingTTL); err != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}
