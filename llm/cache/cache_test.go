package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisStore(rdb)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestRedisStore_MissAndDelete(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestChatKey_SensitiveToGenerationParams(t *testing.T) {
	messages := []llm.Message{llm.User("hello")}
	base := ChatKey("gpt-4o-mini", messages, &llm.GenerationConfig{Temperature: 0.2})

	tests := []struct {
		name string
		key  string
		same bool
	}{
		{"identical input", ChatKey("gpt-4o-mini", messages, &llm.GenerationConfig{Temperature: 0.2}), true},
		{"different temperature", ChatKey("gpt-4o-mini", messages, &llm.GenerationConfig{Temperature: 0.9}), false},
		{"different model", ChatKey("gpt-4o", messages, &llm.GenerationConfig{Temperature: 0.2}), false},
		{"different messages", ChatKey("gpt-4o-mini", []llm.Message{llm.User("bye")}, &llm.GenerationConfig{Temperature: 0.2}), false},
		{"stream flag does not participate", ChatKey("gpt-4o-mini", messages, &llm.GenerationConfig{Temperature: 0.2, Stream: true}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, base, tt.key)
			} else {
				assert.NotEqual(t, base, tt.key)
			}
		})
	}
}

func TestEmbeddingKey(t *testing.T) {
	a := EmbeddingKey("text-embedding-3-small", "alpha")
	assert.Equal(t, a, EmbeddingKey("text-embedding-3-small", "alpha"))
	assert.NotEqual(t, a, EmbeddingKey("text-embedding-3-small", "beta"))
	assert.NotEqual(t, a, EmbeddingKey("text-embedding-004", "alpha"))
}

// countingProvider counts upstream calls to verify the read-through path.
type countingProvider struct {
	chatCalls  int
	embedCalls int
	chatErr    error
}

func (p *countingProvider) Chat(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (string, error) {
	p.chatCalls++
	if p.chatErr != nil {
		return "", p.chatErr
	}
	return "fresh response", nil
}

func (p *countingProvider) ChatStream(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (<-chan llm.StreamChunk, error) {
	return llm.SingleChunkStream("stream"), nil
}

func (p *countingProvider) Embed(ctx context.Context, text, model string) ([]float64, error) {
	p.embedCalls++
	return []float64{0.1, 0.2, 0.3}, nil
}

func (p *countingProvider) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return nil, nil
}

func (p *countingProvider) CountTokens(text string) int { return len(text) / 4 }
func (p *countingProvider) Name() string                { return "counting" }
func (p *countingProvider) Descriptor() *llm.Descriptor { return &llm.Descriptor{Name: "counting"} }
func (p *countingProvider) Close() error                { return nil }

func TestCachedProvider_ChatReadThrough(t *testing.T) {
	_, store := setupStore(t)
	upstream := &countingProvider{}
	cached := NewCachedProvider(upstream, store, zap.NewNop())
	ctx := context.Background()
	messages := []llm.Message{llm.User("hello")}

	first, err := cached.Chat(ctx, messages, nil)
	require.NoError(t, err)
	second, err := cached.Chat(ctx, messages, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, upstream.chatCalls, "identical prompt must be served from cache")

	_, err = cached.Chat(ctx, []llm.Message{llm.User("different")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.chatCalls)
}

func TestCachedProvider_ChatErrorNotCached(t *testing.T) {
	_, store := setupStore(t)
	upstream := &countingProvider{chatErr: errors.New("upstream down")}
	cached := NewCachedProvider(upstream, store, zap.NewNop())

	_, err := cached.Chat(context.Background(), []llm.Message{llm.User("hello")}, nil)
	require.Error(t, err)

	upstream.chatErr = nil
	text, err := cached.Chat(context.Background(), []llm.Message{llm.User("hello")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh response", text)
	assert.Equal(t, 2, upstream.chatCalls, "failures never populate the cache")
}

func TestCachedProvider_EmbedReadThrough(t *testing.T) {
	_, store := setupStore(t)
	upstream := &countingProvider{}
	cached := NewCachedProvider(upstream, store, zap.NewNop())
	ctx := context.Background()

	first, err := cached.Embed(ctx, "alpha", "text-embedding-3-small")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "alpha", "text-embedding-3-small")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, upstream.embedCalls)
}

func TestCachedProvider_StoreFailureDegradesToUpstream(t *testing.T) {
	mr, store := setupStore(t)
	upstream := &countingProvider{}
	cached := NewCachedProvider(upstream, store, zap.NewNop())

	mr.Close()
	text, err := cached.Chat(context.Background(), []llm.Message{llm.User("hello")}, nil)
	require.NoError(t, err, "a broken cache must not fail the request")
	assert.Equal(t, "fresh response", text)
	assert.Equal(t, 1, upstream.chatCalls)
}
