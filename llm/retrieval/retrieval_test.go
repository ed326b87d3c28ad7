package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradementor/llmcore/llm"
)

// embedOnlyProvider returns a fixed vector for every text, or a scripted
// error.
type embedOnlyProvider struct {
	name   string
	vector []float64
	err    error
	calls  int
}

func (p *embedOnlyProvider) Chat(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (string, error) {
	return "", llm.NewCapabilityError(p.name, "chat")
}

func (p *embedOnlyProvider) ChatStream(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (<-chan llm.StreamChunk, error) {
	return nil, llm.NewCapabilityError(p.name, "chat")
}

func (p *embedOnlyProvider) Embed(ctx context.Context, text, model string) ([]float64, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.vector, nil
}

func (p *embedOnlyProvider) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return nil, nil
}

func (p *embedOnlyProvider) CountTokens(text string) int { return len(text) / 4 }
func (p *embedOnlyProvider) Name() string                { return p.name }
func (p *embedOnlyProvider) Close() error                { return nil }

func (p *embedOnlyProvider) Descriptor() *llm.Descriptor {
	return &llm.Descriptor{Name: p.name, SupportsEmbeddings: true}
}

func TestInMemoryStore_ScopeAndDimensionIsolation(t *testing.T) {
	store := NewInMemoryStore()
	scopeA := Scope{Owner: "user-1", Collection: "journal"}
	scopeB := Scope{Owner: "user-2", Collection: "journal"}

	store.Add(Entry{Scope: scopeA, Embedding: []float64{1, 0, 0}, Content: "a3", Source: "s1"})
	store.Add(Entry{Scope: scopeA, Embedding: []float64{1, 0}, Content: "a2-other-dim", Source: "s2"})
	store.Add(Entry{Scope: scopeB, Embedding: []float64{1, 0, 0}, Content: "b3", Source: "s3"})

	rows, err := store.Nearest(context.Background(), []float64{1, 0, 0}, 3, scopeA, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "other owners and other dimensions never match")
	assert.Equal(t, "a3", rows[0].Content)
}

func TestInMemoryStore_RankedByDistance(t *testing.T) {
	store := NewInMemoryStore()
	scope := Scope{Owner: "u", Collection: "c"}
	store.Add(Entry{Scope: scope, Embedding: []float64{0, 1}, Content: "far"})
	store.Add(Entry{Scope: scope, Embedding: []float64{1, 0}, Content: "exact"})
	store.Add(Entry{Scope: scope, Embedding: []float64{1, 1}, Content: "near"})

	rows, err := store.Nearest(context.Background(), []float64{1, 0}, 2, scope, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "exact", rows[0].Content)
	assert.Equal(t, "near", rows[1].Content)
}

func TestRetriever_ScoresAndClamps(t *testing.T) {
	store := NewInMemoryStore()
	scope := Scope{Owner: "u", Collection: "c"}
	store.Add(Entry{Scope: scope, Embedding: []float64{1, 0}, Content: "match", Source: "doc1"})
	store.Add(Entry{Scope: scope, Embedding: []float64{-1, 0}, Content: "anti-match", Source: "doc2"})

	r := NewRetriever([]Candidate{
		{Provider: &embedOnlyProvider{name: "e1", vector: []float64{1, 0}}},
	}, store, zap.NewNop())

	results, err := r.Retrieve(context.Background(), "query", scope, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "match", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "doc1", results[0].Source)
	assert.Zero(t, results[1].Score, "negative similarity clamps to zero, never below")
}

func TestRetriever_FallsThroughAcrossDimensions(t *testing.T) {
	// Knowledge base populated with 2-dim vectors; the first provider embeds
	// in 3 dims and finds nothing, the second matches.
	store := NewInMemoryStore()
	scope := Scope{Owner: "u", Collection: "c"}
	store.Add(Entry{Scope: scope, Embedding: []float64{1, 0}, Content: "legacy"})

	first := &embedOnlyProvider{name: "new-model", vector: []float64{1, 0, 0}}
	second := &embedOnlyProvider{name: "legacy-model", vector: []float64{1, 0}}
	r := NewRetriever([]Candidate{{Provider: first}, {Provider: second}}, store, zap.NewNop())

	results, err := r.Retrieve(context.Background(), "query", scope, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "legacy", results[0].Content)
	assert.Equal(t, 1, first.calls, "first candidate was tried and fell through")
}

func TestRetriever_SkipsFailingEmbedder(t *testing.T) {
	store := NewInMemoryStore()
	scope := Scope{Owner: "u", Collection: "c"}
	store.Add(Entry{Scope: scope, Embedding: []float64{1, 0}, Content: "hit"})

	broken := &embedOnlyProvider{name: "broken", err: llm.NewTransientError("broken", errors.New("down"))}
	working := &embedOnlyProvider{name: "working", vector: []float64{1, 0}}
	r := NewRetriever([]Candidate{{Provider: broken}, {Provider: working}}, store, zap.NewNop())

	results, err := r.Retrieve(context.Background(), "query", scope, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRetriever_EmptyWhenNoRowsAnywhere(t *testing.T) {
	r := NewRetriever([]Candidate{
		{Provider: &embedOnlyProvider{name: "e1", vector: []float64{1, 0}}},
	}, NewInMemoryStore(), zap.NewNop())

	results, err := r.Retrieve(context.Background(), "query", Scope{Owner: "u"}, 5)
	require.NoError(t, err, "an empty knowledge base is not an error")
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestRetriever_AllEmbeddersFail(t *testing.T) {
	r := NewRetriever([]Candidate{
		{Provider: &embedOnlyProvider{name: "e1", err: llm.NewTransientError("e1", errors.New("down"))}},
	}, NewInMemoryStore(), zap.NewNop())

	_, err := r.Retrieve(context.Background(), "query", Scope{Owner: "u"}, 5)
	require.Error(t, err)
}

func TestRetriever_NoCandidates(t *testing.T) {
	r := NewRetriever(nil, NewInMemoryStore(), zap.NewNop())
	_, err := r.Retrieve(context.Background(), "query", Scope{Owner: "u"}, 5)
	require.Error(t, err)
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrConfiguration, e.Code)
}

func TestFormatContext(t *testing.T) {
	assert.Empty(t, FormatContext(nil))
	out := FormatContext([]Result{
		{Content: "first passage"},
		{Content: "second passage"},
	})
	assert.Equal(t, "[1] first passage\n[2] second passage", out)
}

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func TestGormStore_AddAndNearest(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()
	scope := Scope{Owner: "user-1", Collection: "journal"}

	require.NoError(t, store.Add(ctx, scope, []float64{1, 0}, "exact", "doc1"))
	require.NoError(t, store.Add(ctx, scope, []float64{0, 1}, "far", "doc2"))
	require.NoError(t, store.Add(ctx, scope, []float64{1, 0, 0}, "wrong-dim", "doc3"))
	require.NoError(t, store.Add(ctx, Scope{Owner: "user-2", Collection: "journal"}, []float64{1, 0}, "other-owner", "doc4"))

	rows, err := store.Nearest(ctx, []float64{1, 0}, 2, scope, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "exact", rows[0].Content)
	assert.Equal(t, "doc1", rows[0].Source)
	assert.Equal(t, "far", rows[1].Content)
}

func TestGormStore_TopKBounds(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()
	scope := Scope{Owner: "u", Collection: "c"}
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Add(ctx, scope, []float64{1, float64(i)}, "row", ""))
	}

	rows, err := store.Nearest(ctx, []float64{1, 0}, 2, scope, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestGormStore_WorksWithRetriever(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()
	scope := Scope{Owner: "u", Collection: "kb"}
	require.NoError(t, store.Add(ctx, scope, []float64{0, 1}, "stored fact", "journal"))

	r := NewRetriever([]Candidate{
		{Provider: &embedOnlyProvider{name: "e", vector: []float64{0, 1}}},
	}, store, zap.NewNop())

	results, err := r.Retrieve(ctx, "query", scope, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "stored fact", results[0].Content)
}
