package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderMu    sync.Mutex
	encoderCache = map[string]*tiktoken.Tiktoken{}
)

// CountTokens estimates the token count of text for the given model. When a
// tiktoken encoding is known for the model it is exact; otherwise a character
// heuristic applies (CJK runes weigh heavier than Latin). Exact tokenization
// is model-specific and routing correctness does not depend on it.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

func encoderFor(model string) *tiktoken.Tiktoken {
	if model == "" {
		return nil
	}
	encoderMu.Lock()
	defer encoderMu.Unlock()
	if enc, ok := encoderCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model; cache the miss so we only probe once.
		encoderCache[model] = nil
		return nil
	}
	encoderCache[model] = enc
	return enc
}

// estimateTokens approximates ~4 Latin characters or ~1.5 CJK characters per
// token, floored at 1 for non-empty text.
func estimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	tokens := float64(cjk)/1.5 + float64(other)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}
