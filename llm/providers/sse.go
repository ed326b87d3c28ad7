package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/tradementor/llmcore/llm"
)

// StreamOpenAISSE parses an OpenAI-style SSE stream into a chunk channel.
// Chunks are forwarded strictly in arrival order; the channel closes on
// [DONE], EOF or consumer cancellation. The body is always closed here, so
// an abandoned consumer releases the connection promptly.
func StreamOpenAISSE(ctx context.Context, body io.ReadCloser, provider string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(provider, err)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var resp ChatResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(provider, err)})
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !Emit(ctx, ch, llm.StreamChunk{Content: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return ch
}

// StreamSSE parses a generic SSE stream, delegating per-event text extraction
// to the caller. Events that extract to "" are skipped; an extraction error
// ends the stream with a transient in-band error. Shared by dialects whose
// event payloads are not OpenAI-shaped.
func StreamSSE(ctx context.Context, body io.ReadCloser, provider string, extract func(data []byte) (string, error)) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(provider, err)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			text, err := extract([]byte(data))
			if err != nil {
				Emit(ctx, ch, llm.StreamChunk{Err: llm.NewTransientError(provider, err)})
				return
			}
			if text == "" {
				continue
			}
			if !Emit(ctx, ch, llm.StreamChunk{Content: text}) {
				return
			}
		}
	}()
	return ch
}

// Emit sends one chunk unless the consumer is gone.
func Emit(ctx context.Context, ch chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}
