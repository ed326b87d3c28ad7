// Package ollama implements the adapter for a local Ollama daemon. On top of
// the standard contract it exposes model management (Pull, Delete) and a
// small clustering-free similarity search over caller-supplied documents.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/providers"
)

// Adapter talks to one Ollama daemon. No credential is involved; the daemon
// trusts its local callers.
type Adapter struct {
	*providers.BaseAdapter
}

// DefaultDescriptor returns the stock local-daemon descriptor.
func DefaultDescriptor() *llm.Descriptor {
	return &llm.Descriptor{
		Name:               "ollama",
		BaseURL:            "http://localhost:11434",
		APIFormat:          llm.FormatCustom,
		AuthType:           llm.AuthNone,
		ChatPath:           "/api/chat",
		EmbeddingsPath:     "/api/embeddings",
		ModelsPath:         "/api/tags",
		DefaultModel:       "llama3.1",
		SupportsStreaming:  true,
		SupportsVision:     true,
		SupportsEmbeddings: true,
	}
}

// New builds an adapter from a descriptor, filling daemon defaults for any
// field the descriptor leaves empty.
func New(desc *llm.Descriptor, logger *zap.Logger) *Adapter {
	d := providers.MergeDescriptor(desc, DefaultDescriptor())
	return &Adapter{BaseAdapter: providers.NewBaseAdapter(d, "", logger)}
}

// Wire types for the daemon API.

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// translate flattens normalized messages into the daemon shape. Image parts
// ride in the dedicated images field as raw base64 payloads.
func translate(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Text()}
		for _, p := range m.Parts {
			if p.Type == llm.PartImageURL {
				msg.Images = append(msg.Images, providers.StripDataURL(p.ImageURL))
			}
		}
		out = append(out, msg)
	}
	return out
}

func (a *Adapter) buildRequest(messages []llm.Message, cfg *llm.GenerationConfig, model string, stream bool) chatRequest {
	req := chatRequest{Model: model, Messages: translate(messages), Stream: stream}
	if cfg != nil && (cfg.Temperature != 0 || cfg.TopP != 0 || cfg.MaxTokens != 0) {
		req.Options = &chatOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			NumPredict:  cfg.MaxTokens,
		}
	}
	return req
}

// Chat performs a buffered completion against /api/chat.
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
		var resp chatResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", llm.NewTransientError(a.Name(), fmt.Errorf("malformed chat response"))
		}
		return resp.Message.Content, nil
	})
}

// ChatStream performs a streaming completion. The daemon streams newline
// delimited JSON objects, one message fragment per line, until done.
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
	return a.parseStream(ctx, stream), nil
}

func (a *Adapter) parseStream(ctx context.Context, body io.ReadCloser) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp chatResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				providers.Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(a.Name(), err)})
				return
			}
			if resp.Message.Content != "" {
				if !providers.Emit(ctx, ch, llm.StreamChunk{Content: resp.Message.Content}) {
					return
				}
			}
			if resp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			providers.Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(a.Name(), err)})
		}
	}()
	return ch
}

// Embed returns the embedding vector for text.
func (a *Adapter) Embed(ctx context.Context, text, model string) ([]float64, error) {
	if err := a.CheckEmbeddings(); err != nil {
		return nil, err
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if err := a.AcquireQuota(ctx, []llm.Message{llm.User(text)}); err != nil {
		return nil, err
	}

	raw, err := a.DoJSON(ctx, http.MethodPost, a.Endpoint(a.Desc.EmbeddingsPath),
		embedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}
	var resp embedResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Embedding) == 0 {
		return nil, llm.NewTransientError(a.Name(), fmt.Errorf("malformed embedding response"))
	}
	return resp.Embedding, nil
}

// ListModels returns the locally installed models from /api/tags.
func (a *Adapter) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return a.CachedModels(ctx, forceRefresh, func(ctx context.Context) ([]string, error) {
		raw, err := a.DoJSON(ctx, http.MethodGet, a.Endpoint(a.Desc.ModelsPath), nil)
		if err != nil {
			return nil, err
		}
		return providers.NormalizeModelList(raw), nil
	})
}

// Pull asks the daemon to download a model. The daemon streams progress
// lines; they are drained and discarded, only the final status matters here.
func (a *Adapter) Pull(ctx context.Context, model string) error {
	if model == "" {
		return llm.NewConfigurationError("ollama: model name is required for pull")
	}
	body, err := a.DoStream(ctx, http.MethodPost, a.Endpoint("/api/pull"),
		map[string]any{"name": model})
	if err != nil {
		return err
	}
	defer body.Close()
	if _, err := io.Copy(io.Discard, body); err != nil {
		return llm.NewTransientError(a.Name(), err)
	}
	a.Logger.Info("model pulled", zap.String("model", model))
	return nil
}

// Delete removes a local model.
func (a *Adapter) Delete(ctx context.Context, model string) error {
	if model == "" {
		return llm.NewConfigurationError("ollama: model name is required for delete")
	}
	_, err := a.DoJSON(ctx, http.MethodDelete, a.Endpoint("/api/delete"),
		map[string]any{"name": model})
	return err
}

// Match is one similarity-search result.
type Match struct {
	Document string
	Score    float64
}

// Similar embeds the query and every document, ranks documents by cosine
// similarity, and returns the top k matches. Purely brute-force; callers are
// expected to hand in tens of documents, not a corpus.
func (a *Adapter) Similar(ctx context.Context, query string, documents []string, topK int) ([]Match, error) {
	if len(documents) == 0 || topK <= 0 {
		return nil, nil
	}
	qv, err := a.Embed(ctx, query, "")
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(documents))
	for _, doc := range documents {
		dv, err := a.Embed(ctx, doc, "")
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Document: doc, Score: Cosine(qv, dv)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Cosine computes the cosine similarity of two vectors, 0 for a dimension
// mismatch or zero vector.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
