package llm

import (
	"errors"
	"fmt"
)

// ErrorCode classifies provider-layer failures. The class decides retry and
// fallback behaviour: transient errors are retried locally and eligible for
// fallback, permanent and configuration errors surface immediately.
type ErrorCode string

const (
	// ErrConfiguration: missing/invalid credential, unknown preset or provider
	// type, no model after all fallback resolution. Never retried.
	ErrConfiguration ErrorCode = "LLM_CONFIGURATION"

	// ErrCapability: the adapter's descriptor marks the requested operation
	// unsupported (embeddings on a chat-only adapter, vision content on a
	// non-vision adapter). Raised before any network call.
	ErrCapability ErrorCode = "LLM_CAPABILITY"

	// ErrTransient: network failure, 5xx, timeout. Retried up to the attempt
	// budget, then surfaced.
	ErrTransient ErrorCode = "LLM_TRANSIENT"

	// ErrPermanent: upstream 4xx (bad request, auth failure, invalid model).
	// Never retried against the same adapter.
	ErrPermanent ErrorCode = "LLM_PERMANENT"

	// ErrAllProvidersFailed: every adapter in the fallback chain failed.
	ErrAllProvidersFailed ErrorCode = "LLM_ALL_PROVIDERS_FAILED"
)

// Error is the typed error carried across the provider layer. Body holds the
// upstream response body truncated to a bounded length; it is often the only
// diagnostic signal for quota errors and malformed model names, so adapters
// never swallow it.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Body       string    `json:"body,omitempty"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// AsError unwraps err into a *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err is a transient failure worth retrying
// against the same adapter. Unknown error types count as transient so that
// raw network errors surface through the retry budget rather than aborting
// the first attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return true
}

// NewConfigurationError builds a non-retryable configuration error.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Code: ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewCapabilityError reports an operation the provider's descriptor marks
// unsupported.
func NewCapabilityError(provider, operation string) *Error {
	return &Error{
		Code:     ErrCapability,
		Message:  fmt.Sprintf("operation %q is not supported by provider %q", operation, provider),
		Provider: provider,
	}
}

// NewTransientError wraps a network-level failure as retryable.
func NewTransientError(provider string, err error) *Error {
	return &Error{
		Code:      ErrTransient,
		Message:   err.Error(),
		Retryable: true,
		Provider:  provider,
	}
}
