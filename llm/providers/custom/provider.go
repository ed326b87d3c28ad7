// Package custom implements the descriptor-driven adapter behind the preset
// registry. It speaks the openai dialect by default and extracts the reply
// through a declared dotted path or a fallback chain of conventional keys,
// which is enough to cover the long tail of OpenAI-compatible gateways.
package custom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/providers"
)

// Adapter is configured entirely by its descriptor: endpoint paths, auth
// scheme, and the optional response field mapping.
type Adapter struct {
	*providers.BaseAdapter
}

// DefaultDescriptor returns the generic openai-compatible defaults used when
// a preset leaves fields empty.
func DefaultDescriptor() *llm.Descriptor {
	return &llm.Descriptor{
		Name:              "custom",
		APIFormat:         llm.FormatCustom,
		AuthType:          llm.AuthBearer,
		ChatPath:          "/v1/chat/completions",
		EmbeddingsPath:    "/v1/embeddings",
		ModelsPath:        "/v1/models",
		SupportsStreaming: true,
	}
}

// New builds an adapter from a descriptor. A base URL is the one field no
// default can supply.
func New(desc *llm.Descriptor, apiKey string, logger *zap.Logger) (*Adapter, error) {
	d := providers.MergeDescriptor(desc, DefaultDescriptor())
	if d.BaseURL == "" {
		return nil, llm.NewConfigurationError("custom provider %s: base URL is required", d.Name)
	}
	return &Adapter{BaseAdapter: providers.NewBaseAdapter(d, apiKey, logger)}, nil
}

func (a *Adapter) buildRequest(messages []llm.Message, cfg *llm.GenerationConfig, model string, stream bool) providers.ChatRequest {
	req := providers.ChatRequest{
		Model:    model,
		Messages: providers.ToOpenAIMessages(messages),
		Stream:   stream,
	}
	if cfg != nil {
		req.Temperature = cfg.Temperature
		req.MaxTokens = cfg.MaxTokens
		req.TopP = cfg.TopP
		req.FrequencyPenalty = cfg.FrequencyPenalty
		req.PresencePenalty = cfg.PresencePenalty
	}
	return req
}

// extractContent pulls the reply text out of a response body. A declared
// mapping path wins; otherwise the openai shape is tried, then the
// conventional single-key shapes in fixed priority order.
func (a *Adapter) extractContent(raw []byte) (string, bool) {
	if path := a.Desc.ResponseMapping.Content; path != "" {
		if v, ok := lookupPath(raw, path); ok {
			return v, true
		}
		return "", false
	}
	if text, ok := providers.FirstChoiceContent(raw); ok && text != "" {
		return text, true
	}
	for _, key := range []string{"text", "content", "generated_text", "response"} {
		if v, ok := lookupPath(raw, key); ok {
			return v, true
		}
	}
	return "", false
}

// lookupPath resolves a dotted path ("choices.0.message.content") against a
// JSON document. Numeric segments index arrays.
func lookupPath(raw []byte, path string) (string, bool) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return "", false
	}
	for _, seg := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return "", false
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return "", false
			}
			node = v[idx]
		default:
			return "", false
		}
	}
	s, ok := node.(string)
	return s, ok && s != ""
}

// Chat performs a buffered completion.
func (a *Adapter) Chat(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (string, error) {
	if err := a.CheckVision(messages); err != nil {
		return "", err
	}
	model, err := a.ResolveModel(cfg)
	if err != nil {
		return "", err
	}
	if err := a.AcquireQuota(ctx, messages); err != nil {
		return "", err
	}

	body := a.buildRequest(messages, cfg, model, false)
	url := a.Endpoint(a.Desc.ChatPath)
	return a.ChatWithRetry(ctx, func() (string, error) {
		raw, err := a.DoJSON(ctx, http.MethodPost, url, body)
		if err != nil {
			return "", err
		}
		text, ok := a.extractContent(raw)
		if !ok {
			return "", llm.NewTransientError(a.Name(), fmt.Errorf("no content found in response"))
		}
		return text, nil
	})
}

// ChatStream performs a streaming completion, degrading to a single chunk
// when the descriptor declares no streaming support.
func (a *Adapter) ChatStream(ctx context.Context, messages []llm.Message, cfg *llm.GenerationConfig) (<-chan llm.StreamChunk, error) {
	if !a.Desc.SupportsStreaming {
		return a.DegradeStream(ctx, func(ctx context.Context) (string, error) {
			return a.Chat(ctx, messages, cfg)
		})
	}
	if err := a.CheckVision(messages); err != nil {
		return nil, err
	}
	model, err := a.ResolveModel(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.AcquireQuota(ctx, messages); err != nil {
		return nil, err
	}

	body := a.buildRequest(messages, cfg, model, true)
	stream, err := a.DoStream(ctx, http.MethodPost, a.Endpoint(a.Desc.ChatPath), body)
	if err != nil {
		return nil, err
	}
	return providers.StreamOpenAISSE(ctx, stream, a.Name()), nil
}

// Embed returns the embedding vector for text via the openai-style endpoint.
func (a *Adapter) Embed(ctx context.Context, text, model string) ([]float64, error) {
	if err := a.CheckEmbeddings(); err != nil {
		return nil, err
	}
	resolved := providers.ChooseModel(model, a.Desc.DefaultModel, "")
	if resolved == "" {
		return nil, llm.NewConfigurationError("provider %s: no embedding model configured", a.Name())
	}
	if err := a.AcquireQuota(ctx, []llm.Message{llm.User(text)}); err != nil {
		return nil, err
	}

	raw, err := a.DoJSON(ctx, http.MethodPost, a.Endpoint(a.Desc.EmbeddingsPath),
		providers.EmbeddingRequest{Model: resolved, Input: text})
	if err != nil {
		return nil, err
	}
	var resp providers.EmbeddingResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Data) == 0 {
		return nil, llm.NewTransientError(a.Name(), fmt.Errorf("malformed embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

// ListModels returns the cached, deduplicated model list.
func (a *Adapter) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return a.CachedModels(ctx, forceRefresh, func(ctx context.Context) ([]string, error) {
		raw, err := a.DoJSON(ctx, http.MethodGet, a.Endpoint(a.Desc.ModelsPath), nil)
		if err != nil {
			return nil, err
		}
		return providers.NormalizeModelList(raw), nil
	})
}
