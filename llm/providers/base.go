package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/internal/tlsutil"
	"github.com/tradementor/llmcore/llm"
	"github.com/tradementor/llmcore/llm/ratelimit"
	"github.com/tradementor/llmcore/llm/retry"
)

const defaultTimeout = 60 * time.Second

// BaseAdapter carries the state every format-specific adapter shares: the
// bound descriptor and credential, one persistent HTTP client with the auth
// headers baked in, a private rate limiter, the retry policy, a logger, and
// the per-instance model-list cache. Adapters embed it and add their wire
// translation on top. Distinct adapter instances never share a client or
// limiter.
type BaseAdapter struct {
	Desc   *llm.Descriptor
	APIKey string
	Client *http.Client
	Retry  *retry.Policy
	Logger *zap.Logger

	limiter *ratelimit.Limiter

	modelsMu sync.Mutex
	models   []string
}

// NewBaseAdapter binds a descriptor and credential. The descriptor is not
// mutated and must not change afterwards.
func NewBaseAdapter(desc *llm.Descriptor, apiKey string, logger *zap.Logger) *BaseAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := desc.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &BaseAdapter{
		Desc:    desc,
		APIKey:  apiKey,
		Client:  tlsutil.Client(timeout),
		Retry:   retry.DefaultPolicy(),
		Logger:  logger.With(zap.String("provider", desc.Name)),
		limiter: ratelimit.New(desc.RequestsPerMinute, desc.TokensPerMinute),
	}
}

func (b *BaseAdapter) Name() string                { return b.Desc.Name }
func (b *BaseAdapter) Descriptor() *llm.Descriptor { return b.Desc }

// CountTokens estimates tokens against the descriptor's default model.
func (b *BaseAdapter) CountTokens(text string) int {
	return llm.CountTokens(b.Desc.DefaultModel, text)
}

// Close releases idle connections. The adapter stays usable; this is the
// teardown hook for the owning router.
func (b *BaseAdapter) Close() error {
	b.Client.CloseIdleConnections()
	return nil
}

// ApplyAuth attaches the credential per the descriptor's auth scheme.
func (b *BaseAdapter) ApplyAuth(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	switch b.Desc.AuthType {
	case llm.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	case llm.AuthHeader:
		header := b.Desc.AuthHeader
		if header == "" {
			header = "Authorization"
		}
		req.Header.Set(header, b.APIKey)
	case llm.AuthBasic:
		req.SetBasicAuth(b.APIKey, "")
	case llm.AuthNone:
	}
}

// Endpoint builds the full URL for a descriptor path.
func (b *BaseAdapter) Endpoint(path string) string {
	return JoinURL(b.Desc.BaseURL, path)
}

// CheckVision rejects image content on adapters without vision support
// before any network call. Silently dropping an image part would change the
// question the model is asked; the caller must know.
func (b *BaseAdapter) CheckVision(messages []llm.Message) error {
	if b.Desc.SupportsVision {
		return nil
	}
	for _, m := range messages {
		if m.HasImages() {
			return llm.NewCapabilityError(b.Desc.Name, "vision")
		}
	}
	return nil
}

// CheckEmbeddings rejects embedding calls on chat-only adapters.
func (b *BaseAdapter) CheckEmbeddings() error {
	if !b.Desc.SupportsEmbeddings {
		return llm.NewCapabilityError(b.Desc.Name, "embeddings")
	}
	return nil
}

// ResolveModel applies the request -> default chain and fails with a
// configuration error when nothing resolves.
func (b *BaseAdapter) ResolveModel(cfg *llm.GenerationConfig) (string, error) {
	requested := ""
	if cfg != nil {
		requested = cfg.Model
	}
	model := ChooseModel(requested, b.Desc.DefaultModel, "")
	if model == "" {
		return "", llm.NewConfigurationError("provider %s: no model requested and no usable default configured", b.Desc.Name)
	}
	return model, nil
}

// AcquireQuota applies the adapter's rate limiter before a network call,
// charging the estimated prompt token count.
func (b *BaseAdapter) AcquireQuota(ctx context.Context, messages []llm.Message) error {
	tokens := 0
	for _, m := range messages {
		tokens += b.CountTokens(m.Text())
	}
	return b.limiter.Acquire(ctx, tokens)
}

// DoJSON performs one JSON request/response exchange. Upstream errors carry
// the truncated response body; network failures are transient. Mutators run
// after auth, so dialect-specific headers can be layered on per call.
func (b *BaseAdapter) DoJSON(ctx context.Context, method, url string, payload any, mutators ...func(*http.Request)) ([]byte, error) {
	body, err := b.do(ctx, method, url, payload, mutators...)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, llm.NewTransientError(b.Desc.Name, err)
	}
	return data, nil
}

// DoStream performs the request and hands back the raw response body for
// stream parsing. The caller owns closing it.
func (b *BaseAdapter) DoStream(ctx context.Context, method, url string, payload any, mutators ...func(*http.Request)) (io.ReadCloser, error) {
	return b.do(ctx, method, url, payload, mutators...)
}

func (b *BaseAdapter) do(ctx context.Context, method, url string, payload any, mutators ...func(*http.Request)) (io.ReadCloser, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	b.ApplyAuth(req)
	for _, mutate := range mutators {
		mutate(req)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, llm.NewTransientError(b.Desc.Name, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, MapHTTPError(resp.StatusCode, ReadErrorBody(resp.Body), b.Desc.Name)
	}
	return resp.Body, nil
}

// ChatWithRetry wraps a chat exchange with the adapter's retry budget.
func (b *BaseAdapter) ChatWithRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	return retry.DoWithResult(ctx, b.Retry, b.Logger, fn)
}

// CachedModels serves ListModels from the per-instance cache, refreshing via
// fetch on first use or when forced. A listing is read-only, so on total
// upstream failure it falls back to the statically configured models rather
// than erroring while any fallback value exists.
func (b *BaseAdapter) CachedModels(ctx context.Context, forceRefresh bool, fetch func(context.Context) ([]string, error)) ([]string, error) {
	b.modelsMu.Lock()
	defer b.modelsMu.Unlock()

	if !forceRefresh && len(b.models) > 0 {
		return append([]string(nil), b.models...), nil
	}

	models, err := fetch(ctx)
	if err == nil && len(models) > 0 {
		b.models = models
		return append([]string(nil), models...), nil
	}
	if err != nil {
		b.Logger.Warn("model listing failed, using configured fallback", zap.Error(err))
	}
	if len(b.Desc.AvailableModels) > 0 {
		return append([]string(nil), b.Desc.AvailableModels...), nil
	}
	if b.Desc.DefaultModel != "" {
		return []string{b.Desc.DefaultModel}, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// DegradeStream serves ChatStream on adapters without streaming support:
// one chunk holding the full blocking result. Degrading beats erroring here;
// callers iterate a stream either way.
func (b *BaseAdapter) DegradeStream(ctx context.Context, chat func(context.Context) (string, error)) (<-chan llm.StreamChunk, error) {
	text, err := chat(ctx)
	if err != nil {
		return nil, err
	}
	return llm.SingleChunkStream(text), nil
}
