package usecase

import (
	"context"

	"docchat/internal/domain"
)

// ChatStreamInput carries one inbound chat turn. The last user message is the
// query; earlier messages are conversation history forwarded to the model.
type ChatStreamInput struct {
	Messages  []domain.Message
	SessionID string
}

// StreamEventKind labels events on the per-request stream.
type StreamEventKind string

const (
	// StreamEventKindProgress reports a pipeline stage transition.
	StreamEventKindProgress StreamEventKind = "progress"
	// StreamEventKindDelta carries one answer token batch.
	StreamEventKindDelta StreamEventKind = "delta"
	// StreamEventKindError is terminal: the pipeline failed before the
	// answer stream committed.
	StreamEventKindError StreamEventKind = "error"
	// StreamEventKindDone marks a completed answer stream.
	StreamEventKindDone StreamEventKind = "done"
)

// StreamEvent is one item on the ordered, single-reader event channel.
type StreamEvent struct {
	Kind    StreamEventKind
	Payload interface{}
}

// ProgressUpdate is the payload of a progress event. Field presence follows
// the stage: queries from stage two on, context at stage three.
type ProgressUpdate struct {
	Message         string   `json:"message"`
	Queries         []string `json:"queries,omitempty"`
	RelevantContext []string `json:"relevantContext,omitempty"`
}

// Stage messages, in protocol order.
const (
	progressRewriting = "Rewriting message to queries..."
	progressQuerying  = "Querying vector index and full text search..."
	progressFound     = "Found relevant documents..."
)

// ChatStreamUsecase runs the retrieval pipeline for one chat turn and streams
// stage progress plus the generated answer.
type ChatStreamUsecase interface {
	Stream(ctx context.Context, input ChatStreamInput) <-chan StreamEvent
}
