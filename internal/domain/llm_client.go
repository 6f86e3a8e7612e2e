package domain

import "context"

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMStreamChunk is the canonical shape of one streamed token batch. Provider
// response formats are adapted to this at the collaborator boundary, never at
// call sites.
type LLMStreamChunk struct {
	Response string
	Done     bool
}

// LLMClient defines the completion capabilities consumed by the pipeline.
type LLMClient interface {
	// Complete issues one blocking, non-streaming completion call and
	// returns the assistant text.
	Complete(ctx context.Context, messages []Message) (string, error)

	// ChatStream starts a streaming completion. Chunks arrive on the first
	// channel; a setup or mid-stream failure arrives on the second. Both
	// channels are closed when the provider stream ends.
	ChatStream(ctx context.Context, messages []Message) (<-chan LLMStreamChunk, <-chan error, error)

	// Version returns the wrapped model name.
	Version() string
}
