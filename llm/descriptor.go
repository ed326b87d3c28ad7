package llm

import "time"

// APIFormat selects the upstream wire protocol family an adapter speaks.
type APIFormat string

const (
	FormatOpenAI    APIFormat = "openai"
	FormatAnthropic APIFormat = "anthropic"
	FormatGoogle    APIFormat = "google"
	FormatCustom    APIFormat = "custom"
)

// AuthType selects how the credential is attached to outbound requests.
type AuthType string

const (
	AuthBearer AuthType = "bearer" // Authorization: Bearer <key>
	AuthHeader AuthType = "header" // <AuthHeaderName>: <key>
	AuthBasic  AuthType = "basic"  // HTTP basic auth, key as username
	AuthNone   AuthType = "none"   // local providers without credentials
)

// ResponseMapping declares a dotted-path extraction rule for fully custom
// JSON response shapes, e.g. "result.output.0.text".
type ResponseMapping struct {
	Content string `json:"content" yaml:"content"`
}

// Descriptor declares the shape of one upstream API: endpoints, auth scheme,
// wire format, capability flags and per-minute quotas. It is a configuration
// value bound to an adapter at construction time and never mutated afterwards;
// the adapter's HTTP client bakes the auth headers in, so a later mutation
// would desynchronize them.
type Descriptor struct {
	Name       string    `json:"name" yaml:"name"`
	BaseURL    string    `json:"base_url" yaml:"base_url"`
	APIFormat  APIFormat `json:"api_format" yaml:"api_format"`
	AuthType   AuthType  `json:"auth_type" yaml:"auth_type"`
	AuthHeader string    `json:"auth_header,omitempty" yaml:"auth_header,omitempty"`

	// Endpoint path templates. Empty paths fall back to the format family's
	// conventional defaults at adapter construction.
	ChatPath        string `json:"chat_path,omitempty" yaml:"chat_path,omitempty"`
	CompletionsPath string `json:"completions_path,omitempty" yaml:"completions_path,omitempty"`
	EmbeddingsPath  string `json:"embeddings_path,omitempty" yaml:"embeddings_path,omitempty"`
	ModelsPath      string `json:"models_path,omitempty" yaml:"models_path,omitempty"`

	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`

	SupportsStreaming  bool `json:"supports_streaming" yaml:"supports_streaming"`
	SupportsFunctions  bool `json:"supports_functions" yaml:"supports_functions"`
	SupportsVision     bool `json:"supports_vision" yaml:"supports_vision"`
	SupportsEmbeddings bool `json:"supports_embeddings" yaml:"supports_embeddings"`

	// Per-minute quotas enforced by the adapter's own limiter. Zero means no
	// throttling on that axis (explicit opt-out, not a default-zero bug).
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	TokensPerMinute   int `json:"tokens_per_minute,omitempty" yaml:"tokens_per_minute,omitempty"`

	// Timeout bounds each upstream request at the transport layer. Defaults
	// to 60s when zero.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	ResponseMapping ResponseMapping `json:"response_mapping,omitempty" yaml:"response_mapping,omitempty"`
}

// Clone returns a deep copy, used when merging preset overrides so the
// registry's descriptor records stay immutable.
func (d *Descriptor) Clone() *Descriptor {
	out := *d
	if len(d.AvailableModels) > 0 {
		out.AvailableModels = append([]string(nil), d.AvailableModels...)
	}
	return &out
}
