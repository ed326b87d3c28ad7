package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider scripts one provider's behaviour for router tests.
type fakeProvider struct {
	name      string
	reply     string
	chatErr   error
	streamErr error
	chunks    []string
	calls     int
	closed    bool
}

func (f *fakeProvider) Chat(ctx context.Context, messages []Message, cfg *GenerationConfig) (string, error) {
	f.calls++
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, messages []Message, cfg *GenerationConfig) (<-chan StreamChunk, error) {
	f.calls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	ch := make(chan StreamChunk, len(f.chunks)+1)
	if f.streamErr != nil {
		ch <- StreamChunk{Err: NewTransientError(f.name, f.streamErr)}
		close(ch)
		return ch, nil
	}
	for _, c := range f.chunks {
		ch <- StreamChunk{Content: c}
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Embed(ctx context.Context, text, model string) ([]float64, error) {
	return nil, NewCapabilityError(f.name, "embeddings")
}

func (f *fakeProvider) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return nil, nil
}

func (f *fakeProvider) CountTokens(text string) int { return len(text) / 4 }
func (f *fakeProvider) Name() string                { return f.name }
func (f *fakeProvider) Descriptor() *Descriptor     { return &Descriptor{Name: f.name} }
func (f *fakeProvider) Close() error                { f.closed = true; return nil }

func collect(t *testing.T, ch <-chan StreamChunk) (string, error) {
	t.Helper()
	var out string
	for chunk := range ch {
		if chunk.Err != nil {
			return out, chunk.Err
		}
		out += chunk.Content
	}
	return out, nil
}

func TestRouter_ChatWithFallback_FirstSuccess(t *testing.T) {
	r := NewRouter(zap.NewNop())
	a := &fakeProvider{name: "a", reply: "from a"}
	b := &fakeProvider{name: "b", reply: "from b"}
	r.Register("a", a)
	r.Register("b", b)

	text, err := r.ChatWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from a", text)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
}

func TestRouter_ChatWithFallback_PreferredFirst(t *testing.T) {
	r := NewRouter(zap.NewNop())
	a := &fakeProvider{name: "a", reply: "from a"}
	b := &fakeProvider{name: "b", reply: "from b"}
	r.Register("a", a)
	r.Register("b", b)

	text, err := r.ChatWithFallback(context.Background(), []Message{User("hi")}, nil, "b")
	require.NoError(t, err)
	assert.Equal(t, "from b", text)
	assert.Zero(t, a.calls)
}

func TestRouter_ChatWithFallback_AdvancesOnFailure(t *testing.T) {
	r := NewRouter(zap.NewNop())
	a := &fakeProvider{name: "a", chatErr: NewTransientError("a", errors.New("down"))}
	b := &fakeProvider{name: "b", chatErr: &Error{Code: ErrPermanent, Provider: "b", Message: "bad key"}}
	c := &fakeProvider{name: "c", reply: "from c"}
	r.Register("a", a)
	r.Register("b", b)
	r.Register("c", c)

	text, err := r.ChatWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from c", text)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls, "permanent errors advance to the next provider without local retry")
}

func TestRouter_ChatWithFallback_AllFailed(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register("a", &fakeProvider{name: "a", chatErr: NewTransientError("a", errors.New("down"))})
	r.Register("b", &fakeProvider{name: "b", chatErr: NewTransientError("b", errors.New("also down"))})

	_, err := r.ChatWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrAllProvidersFailed, e.Code)
	assert.Contains(t, e.Message, "tried a, b")
	assert.Contains(t, e.Message, "also down")
}

func TestRouter_ChatWithFallback_NoProviders(t *testing.T) {
	r := NewRouter(zap.NewNop())
	_, err := r.ChatWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrAllProvidersFailed, e.Code)
}

func TestRouter_ChatStreamWithFallback_Success(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register("a", &fakeProvider{name: "a", chunks: []string{"hel", "lo"}})

	ch, err := r.ChatStreamWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestRouter_ChatStreamWithFallback_FailsBeforeFirstChunk(t *testing.T) {
	r := NewRouter(zap.NewNop())
	a := &fakeProvider{name: "a", streamErr: errors.New("stream reset")}
	b := &fakeProvider{name: "b", chunks: []string{"from b"}}
	r.Register("a", a)
	r.Register("b", b)

	ch, err := r.ChatStreamWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "from b", text, "a stream erroring before any content falls back cleanly")
}

func TestRouter_ChatStreamWithFallback_AllFailed(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register("a", &fakeProvider{name: "a", chatErr: NewTransientError("a", errors.New("down"))})
	r.Register("b", &fakeProvider{name: "b", streamErr: errors.New("reset")})

	_, err := r.ChatStreamWithFallback(context.Background(), []Message{User("hi")}, nil, "")
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrAllProvidersFailed, e.Code)
	assert.Contains(t, e.Message, "tried a, b")
}

func TestRouter_Register_KeepsInsertionOrder(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register("a", &fakeProvider{name: "a"})
	r.Register("b", &fakeProvider{name: "b"})
	r.Register("c", &fakeProvider{name: "c"})

	// Replacing an adapter keeps its fallback position.
	r.Register("b", &fakeProvider{name: "b", reply: "v2"})
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestRouter_Close(t *testing.T) {
	r := NewRouter(zap.NewNop())
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	r.Register("a", a)
	r.Register("b", b)

	require.NoError(t, r.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
