// Package google implements the adapter for the Gemini generateContent API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/providers"
)

// Adapter speaks the Gemini dialect: per-model paths, role "model" for
// assistant turns, and content carried as parts arrays.
type Adapter struct {
	*providers.BaseAdapter
}

// DefaultDescriptor returns the stock Gemini descriptor. Paths carry a
// {model} placeholder resolved per call.
func DefaultDescriptor() *llm.Descriptor {
	return &llm.Descriptor{
		Name:               "google",
		BaseURL:            "https://generativelanguage.googleapis.com",
		APIFormat:          llm.FormatGoogle,
		AuthType:           llm.AuthHeader,
		AuthHeader:         "x-goog-api-key",
		ChatPath:           "/v1beta/models/{model}:generateContent",
		EmbeddingsPath:     "/v1beta/models/{model}:embedContent",
		ModelsPath:         "/v1beta/models",
		DefaultModel:       "gemini-2.0-flash",
		SupportsStreaming:  true,
		SupportsFunctions:  true,
		SupportsVision:     true,
		SupportsEmbeddings: true,
	}
}

// New builds an adapter from a descriptor, filling format defaults for any
// field the descriptor leaves empty.
func New(desc *llm.Descriptor, apiKey string, logger *zap.Logger) *Adapter {
	d := providers.MergeDescriptor(desc, DefaultDescriptor())
	return &Adapter{BaseAdapter: providers.NewBaseAdapter(d, apiKey, logger)}
}

// Wire types for generateContent.

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type chatRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type chatResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// translate maps normalized messages into Gemini contents. The dialect has no
// system field in this request shape, so system texts are folded into the
// first user turn; assistant turns take role "model".
func translate(messages []llm.Message) []content {
	var system []string
	out := make([]content, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			if t := m.Text(); t != "" {
				system = append(system, t)
			}
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out = append(out, content{Role: role, Parts: translateParts(m)})
	}
	if len(system) > 0 {
		prefix := part{Text: strings.Join(system, "\n")}
		for i := range out {
			if out[i].Role == "user" {
				out[i].Parts = append([]part{prefix}, out[i].Parts...)
				return out
			}
		}
		out = append([]content{{Role: "user", Parts: []part{prefix}}}, out...)
	}
	return out
}

func translateParts(m llm.Message) []part {
	if len(m.Parts) == 0 {
		return []part{{Text: m.Content}}
	}
	out := make([]part, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case llm.PartText:
			out = append(out, part{Text: p.Text})
		case llm.PartImageURL:
			out = append(out, imagePart(p.ImageURL))
		}
	}
	return out
}

// imagePart maps an inline data URL onto inline_data; anything else is sent
// as a text reference, since this request shape has no remote-URL part.
func imagePart(url string) part {
	if i := strings.Index(url, ";base64,"); strings.HasPrefix(url, "data:") && i > 0 {
		return part{InlineData: &inlineData{
			MimeType: strings.TrimPrefix(url[:i], "data:"),
			Data:     url[i+len(";base64,"):],
		}}
	}
	return part{Text: url}
}

// endpoint resolves the {model} placeholder and applies the shared URL
// normalization.
func (a *Adapter) endpoint(path, model string) string {
	return a.Endpoint(strings.ReplaceAll(path, "{model}", model))
}

func (a *Adapter) buildRequest(messages []llm.Message, cfg *llm.GenerationConfig) chatRequest {
	req := chatRequest{Contents: translate(messages)}
	if cfg != nil && (cfg.Temperature != 0 || cfg.TopP != 0 || cfg.MaxTokens != 0) {
		req.GenerationConfig = &generationConfig{
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxTokens,
		}
	}
	return req
}

// Chat performs a buffered generateContent call.
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

	body := a.buildRequest(messages, cfg)
	url := a.endpoint(a.Desc.ChatPath, model)
	return a.ChatWithRetry(ctx, func() (string, error) {
		raw, err := a.DoJSON(ctx, http.MethodPost, url, body)
		if err != nil {
			return "", err
		}
		text, ok := firstCandidateText(raw)
		if !ok {
			return "", llm.NewTransientError(a.Name(), fmt.Errorf("malformed generateContent response"))
		}
		return text, nil
	})
}

func firstCandidateText(raw []byte) (string, bool) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", false
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return resp.Candidates[0].Content.Parts[0].Text, true
}

// ChatStream performs a streaming call via streamGenerateContent with SSE
// framing. Each event is a full response object carrying one text delta.
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

	streamPath := strings.Replace(a.Desc.ChatPath, ":generateContent", ":streamGenerateContent", 1)
	url := a.endpoint(streamPath, model) + "?alt=sse"
	stream, err := a.DoStream(ctx, http.MethodPost, url, a.buildRequest(messages, cfg))
	if err != nil {
		return nil, err
	}
	return providers.StreamSSE(ctx, stream, a.Name(), func(data []byte) (string, error) {
		text, ok := firstCandidateText(data)
		if !ok {
			return "", nil
		}
		return text, nil
	}), nil
}

// Embed calls embedContent for one text.
func (a *Adapter) Embed(ctx context.Context, text, model string) ([]float64, error) {
	if err := a.CheckEmbeddings(); err != nil {
		return nil, err
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if err := a.AcquireQuota(ctx, []llm.Message{llm.User(text)}); err != nil {
		return nil, err
	}

	raw, err := a.DoJSON(ctx, http.MethodPost, a.endpoint(a.Desc.EmbeddingsPath, model),
		embedRequest{Content: content{Parts: []part{{Text: text}}}})
	if err != nil {
		return nil, err
	}
	var resp embedResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Embedding.Values) == 0 {
		return nil, llm.NewTransientError(a.Name(), fmt.Errorf("malformed embedContent response"))
	}
	return resp.Embedding.Values, nil
}

// ListModels returns the cached, deduplicated model list. Identifiers come
// back as "models/gemini-..." and are normalized to bare names.
func (a *Adapter) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return a.CachedModels(ctx, forceRefresh, func(ctx context.Context) ([]string, error) {
		raw, err := a.DoJSON(ctx, http.MethodGet, a.Endpoint(a.Desc.ModelsPath), nil)
		if err != nil {
			return nil, err
		}
		models := providers.NormalizeModelList(raw)
		for i, m := range models {
			models[i] = strings.TrimPrefix(m, "models/")
		}
		return models, nil
	})
}
