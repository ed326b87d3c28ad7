// Package providers holds the plumbing shared by every adapter: HTTP error
// mapping, endpoint URL construction, model-list normalization, model
// resolution, and the BaseAdapter every format-specific adapter embeds.
package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tradementor/llmcore/llm"
)

// maxErrorBody bounds how much of an upstream error body is kept for
// diagnostics.
const maxErrorBody = 1000

// PlaceholderModel is a known placeholder some saved configurations carry as
// a "default model". It is never a usable chat model, so model resolution
// treats it as absent and falls through to the next candidate.
const PlaceholderModel = "aqa"

// MapHTTPError converts an upstream HTTP failure into a typed error.
// 5xx and 429 are transient and retryable; other 4xx are permanent since the
// request itself is wrong and re-sending it cannot succeed.
func MapHTTPError(status int, body, provider string) *llm.Error {
	msg := extractErrorMessage(body)
	code := llm.ErrPermanent
	retryable := false
	if status >= 500 || status == http.StatusTooManyRequests {
		code = llm.ErrTransient
		retryable = true
	}
	return &llm.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
		Body:       Truncate(body, maxErrorBody),
	}
}

// ReadErrorBody drains an upstream error response, keeping at most
// maxErrorBody characters. The body is often the only diagnostic signal
// (quota errors, malformed model names) and must never be dropped silently.
func ReadErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody+1))
	if err != nil {
		return "failed to read error response"
	}
	return Truncate(string(data), maxErrorBody)
}

// Truncate bounds s to n characters.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// extractErrorMessage pulls a human-readable message out of the common
// {"error": {"message": ...}} envelope, falling back to the raw text.
func extractErrorMessage(body string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return Truncate(body, maxErrorBody)
}

// JoinURL builds the full endpoint URL from a base URL and a path template,
// collapsing a duplicated leading segment. A base URL already ending in the
// segment the path starts with (base ".../v1" + path "/v1/chat/completions")
// yields ".../v1/chat/completions", not ".../v1/v1/...". This normalization
// is deliberate: presets carry full conventional paths while operators often
// configure base URLs that already include the version prefix.
func JoinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	rest := path[1:]
	seg := rest
	if i := strings.Index(rest, "/"); i >= 0 {
		seg = rest[:i]
	}
	if seg != "" && strings.HasSuffix(base, "/"+seg) {
		path = strings.TrimPrefix(path, "/"+seg)
	}
	return base + path
}

// StripDataURL returns the bare base64 payload of a data URL, or the input
// unchanged when it is not one. Local daemons want raw payloads, not URLs.
func StripDataURL(url string) string {
	if !strings.HasPrefix(url, "data:") {
		return url
	}
	if i := strings.Index(url, ";base64,"); i > 0 {
		return url[i+len(";base64,"):]
	}
	return url
}

// MergeDescriptor overlays desc onto the format family's defaults, leaving
// both inputs untouched. Unset string fields fall back; capability flags and
// quotas are taken from desc as-is when desc is non-nil (a preset that turns
// a capability off must win over the family default).
func MergeDescriptor(desc, def *llm.Descriptor) *llm.Descriptor {
	if desc == nil {
		return def.Clone()
	}
	out := desc.Clone()
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.BaseURL == "" {
		out.BaseURL = def.BaseURL
	}
	if out.APIFormat == "" {
		out.APIFormat = def.APIFormat
	}
	if out.AuthType == "" {
		out.AuthType = def.AuthType
	}
	if out.AuthHeader == "" {
		out.AuthHeader = def.AuthHeader
	}
	if out.ChatPath == "" {
		out.ChatPath = def.ChatPath
	}
	if out.CompletionsPath == "" {
		out.CompletionsPath = def.CompletionsPath
	}
	if out.EmbeddingsPath == "" {
		out.EmbeddingsPath = def.EmbeddingsPath
	}
	if out.ModelsPath == "" {
		out.ModelsPath = def.ModelsPath
	}
	if out.DefaultModel == "" {
		out.DefaultModel = def.DefaultModel
	}
	if out.Timeout == 0 {
		out.Timeout = def.Timeout
	}
	return out
}

// ChooseModel resolves the model for a call: explicit request first, then the
// configured default, then the fallback. Defaults equal to PlaceholderModel
// are treated as absent. Returns "" when nothing resolves; callers surface a
// configuration error in that case.
func ChooseModel(requested, defaultModel, fallback string) string {
	for _, m := range []string{requested, defaultModel, fallback} {
		if m != "" && m != PlaceholderModel {
			return m
		}
	}
	return ""
}

// NormalizeModelList parses a model-list response of any of the shapes seen
// in the wild (a flat list of strings, a list of objects keyed by id/model/
// name, or either nested under "data" or "models") into one deduplicated
// list preserving first-seen order.
func NormalizeModelList(raw []byte) []string {
	payload := raw
	var nested struct {
		Data   json.RawMessage `json:"data"`
		Models json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested.Data) > 0 {
			payload = nested.Data
		} else if len(nested.Models) > 0 {
			payload = nested.Models
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		id := modelID(item)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// modelID extracts the identifier from one list element: a bare string, or
// an object's id/model/name field in that priority order.
func modelID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, v := range []string{obj.ID, obj.Model, obj.Name} {
		if v != "" {
			return v
		}
	}
	return ""
}
