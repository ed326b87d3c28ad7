package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tradementor/llmcore/llm"
)

// ChatKey hashes (model, normalized message list, selected config fields)
// into a content-addressed cache key. Only the fields that change the
// upstream output participate; streaming flags and diagnostics do not.
func ChatKey(model string, messages []llm.Message, cfg *llm.GenerationConfig) string {
	payload := struct {
		Model       string        `json:"model"`
		Messages    []llm.Message `json:"messages"`
		Temperature float32       `json:"temperature"`
		MaxTokens   int           `json:"max_tokens"`
		TopP        float32       `json:"top_p"`
	}{Model: model, Messages: messages}
	if cfg != nil {
		payload.Temperature = cfg.Temperature
		payload.MaxTokens = cfg.MaxTokens
		payload.TopP = cfg.TopP
	}
	return "chat:" + hashJSON(payload)
}

// EmbeddingKey hashes (model, text) for embedding lookups.
func EmbeddingKey(model, text string) string {
	payload := struct {
		Model string `json:"model"`
		Text  string `json:"text"`
	}{Model: model, Text: text}
	return "embed:" + hashJSON(payload)
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Marshal of the key structs above cannot fail; keep a deterministic
		// fallback anyway.
		data = []byte("unhashable")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
