// Package llm defines the normalized vocabulary shared by every provider
// adapter: messages, generation config, provider descriptors, the Provider
// interface, the error taxonomy, and the fallback router.
//
// The rest of the application talks to this package only. It builds a list
// of [Message] values plus a [GenerationConfig], resolves an adapter through
// the factory, and sends the request through a [Router]. The adapter owns
// request/response translation for its upstream wire format; callers receive
// either a complete string or a forward-only channel of text chunks.
package llm
