// Package anthropic implements the adapter for the Anthropic Messages API.
package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/providers"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Adapter speaks the Anthropic Messages dialect. Embeddings are not offered
// upstream, so the descriptor marks them unsupported.
type Adapter struct {
	*providers.BaseAdapter
}

// DefaultDescriptor returns the stock Anthropic descriptor.
func DefaultDescriptor() *llm.Descriptor {
	return &llm.Descriptor{
		Name:              "anthropic",
		BaseURL:           "https://api.anthropic.com",
		APIFormat:         llm.FormatAnthropic,
		AuthType:          llm.AuthHeader,
		AuthHeader:        "x-api-key",
		ChatPath:          "/v1/messages",
		DefaultModel:      "claude-3-5-sonnet-20241022",
		SupportsStreaming: true,
		SupportsFunctions: true,
		SupportsVision:    true,
	}
}

// New builds an adapter from a descriptor, filling format defaults for any
// field the descriptor leaves empty.
func New(desc *llm.Descriptor, apiKey string, logger *zap.Logger) *Adapter {
	d := providers.MergeDescriptor(desc, DefaultDescriptor())
	return &Adapter{BaseAdapter: providers.NewBaseAdapter(d, apiKey, logger)}
}

// Wire types for the Messages API.

type chatRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type textBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

type imageBlock struct {
	Type   string      `json:"type"` // "image"
	Source imageSource `json:"source"`
}

type imageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type chatResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// translate splits normalized messages into the top-level system string and
// the user/assistant turn list. System messages have no place in the message
// list here; their texts are joined into the dedicated field.
func translate(messages []llm.Message) (string, []chatMessage) {
	var system []string
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			if t := m.Text(); t != "" {
				system = append(system, t)
			}
			continue
		}
		out = append(out, chatMessage{Role: string(m.Role), Content: translateContent(m)})
	}
	return strings.Join(system, "\n"), out
}

func translateContent(m llm.Message) any {
	if len(m.Parts) == 0 {
		return m.Content
	}
	blocks := make([]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case llm.PartText:
			blocks = append(blocks, textBlock{Type: "text", Text: p.Text})
		case llm.PartImageURL:
			blocks = append(blocks, imageBlock{Type: "image", Source: imageSourceFor(p.ImageURL)})
		}
	}
	return blocks
}

// imageSourceFor maps an image reference onto the Messages API source shape.
// Inline data URLs ("data:image/png;base64,....") become base64 sources;
// anything else is passed through as a URL source.
func imageSourceFor(url string) imageSource {
	if !strings.HasPrefix(url, "data:") {
		return imageSource{Type: "url", URL: url}
	}
	mediaType := "image/png"
	data := url
	if i := strings.Index(url, ";base64,"); i > 0 {
		mediaType = strings.TrimPrefix(url[:i], "data:")
		data = url[i+len(";base64,"):]
	}
	return imageSource{Type: "base64", MediaType: mediaType, Data: data}
}

func (a *Adapter) buildRequest(messages []llm.Message, cfg *llm.GenerationConfig, model string, stream bool) chatRequest {
	system, turns := translate(messages)
	req := chatRequest{
		Model:     model,
		System:    system,
		Messages:  turns,
		MaxTokens: defaultMaxTokens,
		Stream:    stream,
	}
	if cfg != nil {
		req.Temperature = cfg.Temperature
		req.TopP = cfg.TopP
		if cfg.MaxTokens > 0 {
			req.MaxTokens = cfg.MaxTokens
		}
	}
	return req
}

// doJSON adds the Messages API version header on top of the shared exchange.
func (a *Adapter) doJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	return a.DoJSON(ctx, http.MethodPost, url, payload, func(req *http.Request) {
		req.Header.Set("anthropic-version", apiVersion)
	})
}

// Chat performs a buffered completion against /v1/messages.
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
		raw, err := a.doJSON(ctx, url, body)
		if err != nil {
			return "", err
		}
		var resp chatResponse
		if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Content) == 0 {
			return "", llm.NewTransientError(a.Name(), fmt.Errorf("malformed messages response"))
		}
		return resp.Content[0].Text, nil
	})
}

// ChatStream performs a streaming completion. The Messages API streams typed
// SSE events; only content_block_delta events carry text.
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
	stream, err := a.DoStream(ctx, http.MethodPost, a.Endpoint(a.Desc.ChatPath), body, func(req *http.Request) {
		req.Header.Set("anthropic-version", apiVersion)
	})
	if err != nil {
		return nil, err
	}
	return a.parseStream(ctx, stream), nil
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) parseStream(ctx context.Context, body io.ReadCloser) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					providers.Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(a.Name(), err)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event streamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				providers.Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(a.Name(), err)})
				return
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				if !providers.Emit(ctx, ch, llm.StreamChunk{Content: event.Delta.Text}) {
					return
				}
			case "error":
				providers.Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(a.Name(),
					fmt.Errorf("%s: %s", event.Error.Type, event.Error.Message))})
				return
			case "message_stop":
				return
			}
		}
	}()
	return ch
}

// Embed always fails: Anthropic offers no embedding models, regardless of
// what the descriptor claims.
func (a *Adapter) Embed(ctx context.Context, text, model string) ([]float64, error) {
	return nil, llm.NewCapabilityError(a.Name(), "embeddings")
}

// ListModels serves the statically configured list; there is no public
// listing endpoint to refresh from in this dialect's descriptor.
func (a *Adapter) ListModels(ctx context.Context, forceRefresh bool) ([]string, error) {
	return a.CachedModels(ctx, forceRefresh, func(ctx context.Context) ([]string, error) {
		if a.Desc.ModelsPath == "" {
			return nil, nil
		}
		raw, err := a.DoJSON(ctx, http.MethodGet, a.Endpoint(a.Desc.ModelsPath), nil, func(req *http.Request) {
			req.Header.Set("anthropic-version", apiVersion)
		})
		if err != nil {
			return nil, err
		}
		return providers.NormalizeModelList(raw), nil
	})
}
