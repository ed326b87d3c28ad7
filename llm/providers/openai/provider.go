// Package openai implements the adapter for the OpenAI API and is the
// reference implementation of the openai wire format.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/providers"
)

// Adapter speaks the OpenAI chat/embeddings dialect.
type Adapter struct {
	*providers.BaseAdapter
}

// DefaultDescriptor returns the stock OpenAI descriptor.
func DefaultDescriptor() *llm.Descriptor {
	return &llm.Descriptor{
		Name:               "openai",
		BaseURL:            "https://api.openai.com",
		APIFormat:          llm.FormatOpenAI,
		AuthType:           llm.AuthBearer,
		ChatPath:           "/v1/chat/completions",
		EmbeddingsPath:     "/v1/embeddings",
		ModelsPath:         "/v1/models",
		DefaultModel:       "gpt-4o-mini",
		SupportsStreaming:  true,
		SupportsFunctions:  true,
		SupportsVision:     true,
		SupportsEmbeddings: true,
	}
}

// New builds an adapter from a descriptor, filling format defaults for any
// endpoint path the descriptor leaves empty.
func New(desc *llm.Descriptor, apiKey string, logger *zap.Logger) *Adapter {
	d := providers.MergeDescriptor(desc, DefaultDescriptor())
	return &Adapter{BaseAdapter: providers.NewBaseAdapter(d, apiKey, logger)}
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

// Chat performs a buffered chat completion.
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
		text, ok := providers.FirstChoiceContent(raw)
		if !ok {
			return "", llm.NewTransientError(a.Name(), fmt.Errorf("malformed chat response"))
		}
		return text, nil
	})
}

// ChatStream performs a streaming completion over SSE.
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

// Embed returns the embedding vector for text.
func (a *Adapter) Embed(ctx context.Context, text, model string) ([]float64, error) {
	if err := a.CheckEmbeddings(); err != nil {
		return nil, err
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if err := a.AcquireQuota(ctx, []llm.Message{llm.User(text)}); err != nil {
		return nil, err
	}

	raw, err := a.DoJSON(ctx, http.MethodPost, a.Endpoint(a.Desc.EmbeddingsPath),
		providers.EmbeddingRequest{Model: model, Input: text})
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
