package factory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
)

func TestFactory_Create_IdentityCaching(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	a, err := f.Create(Options{Type: TypeOpenAI, APIKey: "key-1"})
	require.NoError(t, err)
	b, err := f.Create(Options{Type: TypeOpenAI, APIKey: "key-1"})
	require.NoError(t, err)
	assert.Same(t, a, b, "identical tuples share one instance")

	c, err := f.Create(Options{Type: TypeOpenAI, APIKey: "key-1", BaseURL: "https://proxy.example.com"})
	require.NoError(t, err)
	assert.NotSame(t, a, c, "a different base URL is a different instance")

	d, err := f.Create(Options{Type: TypeOpenAI, APIKey: "key-2"})
	require.NoError(t, err)
	assert.NotSame(t, a, d, "a different credential is a different instance")

	assert.Equal(t, 3, f.Size())
}

func TestFactory_Create_DescriptorBaseURLInKey(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	a, err := f.Create(Options{
		Type:       TypeCustom,
		APIKey:     "key-1",
		Descriptor: &llm.Descriptor{Name: "gw-a", BaseURL: "https://gw-a.example.com/v1", DefaultModel: "m"},
	})
	require.NoError(t, err)
	b, err := f.Create(Options{
		Type:       TypeCustom,
		APIKey:     "key-1",
		Descriptor: &llm.Descriptor{Name: "gw-b", BaseURL: "https://gw-b.example.com/v1", DefaultModel: "m"},
	})
	require.NoError(t, err)

	assert.NotSame(t, a, b, "descriptors aimed at different gateways never share an instance")
	assert.Equal(t, 2, f.Size())
}

func TestFactory_Create_ConcurrentFirstConstruction(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	const goroutines = 16
	results := make([]llm.Provider, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.Create(Options{Type: TypeOpenAI, APIKey: "shared-key"})
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, f.Size())
}

func TestFactory_Create_CredentialResolution(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	t.Run("missing credential fails", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := f.Create(Options{Type: TypeOpenAI})
		require.Error(t, err)
		e, ok := llm.AsError(err)
		require.True(t, ok)
		assert.Equal(t, llm.ErrConfiguration, e.Code)
		assert.Contains(t, e.Message, "OPENAI_API_KEY")
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		p, err := f.Create(Options{Type: TypeAnthropic})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", p.Name())
	})

	t.Run("ollama needs no credential", func(t *testing.T) {
		p, err := f.Create(Options{Type: TypeOllama})
		require.NoError(t, err)
		assert.Equal(t, "ollama", p.Name())
	})
}

func TestFactory_Create_UnknownType(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	_, err := f.Create(Options{Type: "mystery", APIKey: "k"})
	require.Error(t, err)
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrConfiguration, e.Code)
}

func TestFactory_Create_ModelAndDescriptorOverrides(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	p, err := f.Create(Options{Type: TypeOpenAI, APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.Descriptor().DefaultModel)
	assert.True(t, p.Descriptor().SupportsStreaming, "family capability flags survive a bare create")

	q, err := f.Create(Options{
		Type:       TypeOpenAI,
		APIKey:     "k2",
		Descriptor: &llm.Descriptor{Name: "azure-openai", BaseURL: "https://azure.example.com/v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "azure-openai", q.Name())
	assert.Equal(t, "/v1/chat/completions", q.Descriptor().ChatPath, "format defaults fill unset paths")
}

func TestFactory_FromPreset(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	p, err := f.FromPreset("groq", "test-key", "")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())
	assert.Equal(t, "https://api.groq.com/openai", p.Descriptor().BaseURL)

	again, err := f.FromPreset("groq", "test-key", "")
	require.NoError(t, err)
	assert.Same(t, p, again)

	other, err := f.FromPreset("deepseek", "test-key", "")
	require.NoError(t, err)
	assert.NotSame(t, p, other, "different presets never collide in the cache")
}

func TestFactory_FromPreset_Unknown(t *testing.T) {
	f := New(zap.NewNop())
	defer f.Close()

	_, err := f.FromPreset("definitely-not-a-preset", "k", "")
	require.Error(t, err)
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrConfiguration, e.Code)
	assert.Contains(t, e.Message, "definitely-not-a-preset")
	assert.Contains(t, e.Message, "groq", "the error lists valid preset names")
	assert.Contains(t, e.Message, "openrouter")
}

func TestPresets_SortedAndComplete(t *testing.T) {
	names := Presets()
	assert.GreaterOrEqual(t, len(names), 16)
	assert.IsType(t, []string{}, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i], "names are sorted")
	}
	for _, required := range []string{"groq", "openrouter", "moonshot", "deepseek", "mistral", "xai"} {
		assert.Contains(t, names, required)
	}
}

func TestLoadPresets_Overlay(t *testing.T) {
	overlay := []byte(`
presets:
  groq:
    default_model: overridden-model
  internal-gateway:
    base_url: https://llm.corp.example.com/v1
    default_model: corp-model
    supports_streaming: true
    content_path: result.text
`)
	require.NoError(t, LoadPresets(overlay))

	groq, err := Preset("groq")
	require.NoError(t, err)
	assert.Equal(t, "overridden-model", groq.DefaultModel)
	assert.Equal(t, "https://api.groq.com/openai", groq.BaseURL, "unlisted fields keep built-in values")

	corp, err := Preset("internal-gateway")
	require.NoError(t, err)
	assert.Equal(t, "https://llm.corp.example.com/v1", corp.BaseURL)
	assert.True(t, corp.SupportsStreaming)
	assert.Equal(t, "result.text", corp.ResponseMapping.Content)
}

func TestLoadPresets_Invalid(t *testing.T) {
	assert.Error(t, LoadPresets([]byte("presets: [not a map]")))
}

func TestFactory_Close(t *testing.T) {
	f := New(zap.NewNop())
	_, err := f.Create(Options{Type: TypeOpenAI, APIKey: "k"})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Zero(t, f.Size())
}
