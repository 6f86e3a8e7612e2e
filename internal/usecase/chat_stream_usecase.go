package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat/internal/domain"
	"docchat/internal/usecase/retrieval"

	"golang.org/x/sync/errgroup"
)

// RetrievalSettings are the per-request pipeline tunables.
type RetrievalSettings struct {
	// RewriteQueryCount is how many queries the rewrite prompt asks for.
	RewriteQueryCount int
	// SearchTopK is the per-query result limit for both indexes.
	SearchTopK int
	// RRFK is the reciprocal rank fusion constant.
	RRFK float64
	// ContextLimit caps how many fused candidates are hydrated.
	ContextLimit int
}

type chatStreamUsecase struct {
	chunkRepo     domain.ChunkRepository
	embedder      domain.Embedder
	lexical       domain.LexicalSearcher
	llm           domain.LLMClient
	promptBuilder PromptBuilder
	settings      RetrievalSettings
	logger        *slog.Logger
}

// NewChatStreamUsecase wires the retrieval pipeline.
func NewChatStreamUsecase(
	chunkRepo domain.ChunkRepository,
	embedder domain.Embedder,
	lexical domain.LexicalSearcher,
	llm domain.LLMClient,
	promptBuilder PromptBuilder,
	settings RetrievalSettings,
	logger *slog.Logger,
) ChatStreamUsecase {
	if settings.SearchTopK <= 0 {
		settings.SearchTopK = 5
	}
	if settings.RRFK <= 0 {
		settings.RRFK = retrieval.DefaultRRFK
	}
	if settings.ContextLimit <= 0 {
		settings.ContextLimit = 10
	}
	return &chatStreamUsecase{
		chunkRepo:     chunkRepo,
		embedder:      embedder,
		lexical:       lexical,
		llm:           llm,
		promptBuilder: promptBuilder,
		settings:      settings,
		logger:        logger,
	}
}

// Stream runs the pipeline and emits events in strict protocol order:
// rewriting, querying, found, then answer deltas, then done. Any failure
// before the answer stream commits yields a single terminal error event.
func (u *chatStreamUsecase) Stream(ctx context.Context, input ChatStreamInput) <-chan StreamEvent {
	events := make(chan StreamEvent, 4)
	go func() {
		defer close(events)
		u.run(ctx, input, events)
	}()
	return events
}

func (u *chatStreamUsecase) run(ctx context.Context, input ChatStreamInput, events chan<- StreamEvent) {
	start := time.Now()

	query := lastUserMessage(input.Messages)
	if strings.TrimSpace(query) == "" {
		u.send(ctx, events, errorEvent("no user message in request"))
		return
	}
	if strings.TrimSpace(input.SessionID) == "" {
		u.send(ctx, events, errorEvent("sessionId is required"))
		return
	}

	// Stage 1: rewrite
	if !u.send(ctx, events, progressEvent(ProgressUpdate{Message: progressRewriting})) {
		return
	}
	queries, err := retrieval.RewriteToQueries(ctx, query, u.settings.RewriteQueryCount, u.llm, u.logger)
	if err != nil {
		u.logger.Error("query_rewrite_failed", slog.String("error", err.Error()))
		u.send(ctx, events, errorEvent("failed to rewrite message to queries"))
		return
	}
	if len(queries) == 0 {
		u.send(ctx, events, errorEvent("query rewriting produced no queries"))
		return
	}

	// Stage 2: dual-index retrieval, all per-query lookups concurrent,
	// joined before fusion.
	if !u.send(ctx, events, progressEvent(ProgressUpdate{Message: progressQuerying, Queries: queries})) {
		return
	}

	var vectorLists, lexicalLists []retrieval.RankedList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lists, err := retrieval.VectorSearch(gctx, queries, input.SessionID, u.settings.SearchTopK, u.embedder, u.chunkRepo, u.logger)
		if err != nil {
			// Losing the vector side is recoverable as long as the
			// lexical side produced lists.
			u.logger.Warn("vector_search_failed", slog.String("error", err.Error()))
			return nil
		}
		vectorLists = lists
		return nil
	})
	g.Go(func() error {
		lexicalLists = retrieval.LexicalSearch(gctx, queries, input.SessionID, u.settings.SearchTopK, u.lexical, u.logger)
		return nil
	})
	_ = g.Wait()

	// Successful queries contribute a list even when it is empty, so no lists
	// at all means every retriever failed. An indexed-nothing session fuses
	// to zero candidates and still gets an answer, with empty context.
	lists := make([]retrieval.RankedList, 0, len(vectorLists)+len(lexicalLists))
	lists = append(lists, vectorLists...)
	lists = append(lists, lexicalLists...)
	if len(lists) == 0 {
		u.send(ctx, events, errorEvent("retrieval failed for all queries"))
		return
	}

	fused := retrieval.FuseRanked(lists, u.settings.RRFK, u.settings.ContextLimit)
	passages, err := retrieval.Hydrate(ctx, fused, input.SessionID, u.chunkRepo)
	if err != nil {
		u.logger.Error("hydration_failed", slog.String("error", err.Error()))
		u.send(ctx, events, errorEvent("failed to load relevant documents"))
		return
	}

	// Stage 3: found
	contextTexts := make([]string, len(passages))
	for i, p := range passages {
		contextTexts[i] = p.Text
	}
	if !u.send(ctx, events, progressEvent(ProgressUpdate{
		Message:         progressFound,
		Queries:         queries,
		RelevantContext: contextTexts,
	})) {
		return
	}

	u.logger.Info("retrieval_completed",
		slog.String("session_id", input.SessionID),
		slog.Int("query_count", len(queries)),
		slog.Int("list_count", len(lists)),
		slog.Int("passage_count", len(passages)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	// Stage 4: answer relay. Generation must not begin before fusion and
	// hydration completed above.
	messages := u.promptBuilder.Build(input.Messages, passages)
	chunkCh, errCh, err := u.llm.ChatStream(ctx, messages)
	if err != nil {
		u.logger.Error("chat_stream_setup_failed", slog.String("error", err.Error()))
		u.send(ctx, events, errorEvent("failed to start answer generation"))
		return
	}

	u.relayAnswer(ctx, events, chunkCh, errCh)
}

// relayAnswer forwards provider chunks to the caller. A mid-stream provider
// failure is surfaced as inline text: the response headers are already
// committed, so in-band is the only channel left.
func (u *chatStreamUsecase) relayAnswer(
	ctx context.Context,
	events chan<- StreamEvent,
	chunkCh <-chan domain.LLMStreamChunk,
	errCh <-chan error,
) {
	for {
		if chunkCh == nil && errCh == nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunkCh:
			if !ok {
				chunkCh = nil
				continue
			}
			if chunk.Response != "" {
				if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: chunk.Response}) {
					return
				}
			}
			if chunk.Done {
				u.send(ctx, events, StreamEvent{Kind: StreamEventKindDone})
				return
			}
		case streamErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			u.logger.Error("answer_stream_failed", slog.String("error", streamErr.Error()))
			u.send(ctx, events, StreamEvent{
				Kind:    StreamEventKindDelta,
				Payload: fmt.Sprintf("Error: %v", streamErr),
			})
			return
		}
	}
	u.send(ctx, events, StreamEvent{Kind: StreamEventKindDone})
}

func (u *chatStreamUsecase) send(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

func progressEvent(update ProgressUpdate) StreamEvent {
	return StreamEvent{Kind: StreamEventKindProgress, Payload: update}
}

func errorEvent(message string) StreamEvent {
	return StreamEvent{Kind: StreamEventKindError, Payload: message}
}

func lastUserMessage(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
