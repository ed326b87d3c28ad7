package providers

import (
	"encoding/json"

	"github.com/tradementor/llmcore/llm"
)

// OpenAI-compatible wire types, shared by the openai adapter and the
// descriptor-driven custom adapter (most gateways in the preset registry
// speak this dialect).

// ChatMessage is an OpenAI-style message. Content is a string for plain text
// or a []ContentPart slice for multimodal requests.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPartText and ContentPartImage are the multimodal content elements.
type ContentPartText struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

type ContentPartImage struct {
	Type     string   `json:"type"` // "image_url"
	ImageURL ImageURL `json:"image_url"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ChatRequest is the OpenAI-style chat completion request body.
type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      float32       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float32       `json:"top_p,omitempty"`
	FrequencyPenalty float32       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float32       `json:"presence_penalty,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

// ChatResponse is the OpenAI-style chat completion response body. Delta is
// set on streaming chunks, Message on buffered responses.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// EmbeddingRequest and EmbeddingResponse are the OpenAI-style embedding
// bodies.
type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type EmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// ToOpenAIMessages translates normalized messages into the OpenAI dialect.
// Plain-text messages keep a string content; multimodal messages become an
// ordered part array. System messages stay inline as-is; the OpenAI format
// keeps them in the message list.
func ToOpenAIMessages(messages []llm.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, ChatMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		parts := make([]any, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case llm.PartText:
				parts = append(parts, ContentPartText{Type: "text", Text: p.Text})
			case llm.PartImageURL:
				parts = append(parts, ContentPartImage{Type: "image_url", ImageURL: ImageURL{URL: p.ImageURL}})
			}
		}
		out = append(out, ChatMessage{Role: string(m.Role), Content: parts})
	}
	return out
}

// FirstChoiceContent extracts choices[0].message.content from a buffered
// OpenAI-style response body.
func FirstChoiceContent(raw []byte) (string, bool) {
	var resp ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	return resp.Choices[0].Message.Content, true
}
