package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) ChatStream(ctx context.Context, messages []domain.Message) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	args := m.Called(ctx, messages)
	var chunkCh <-chan domain.LLMStreamChunk
	var errCh <-chan error
	if args.Get(0) != nil {
		chunkCh = args.Get(0).(<-chan domain.LLMStreamChunk)
	}
	if args.Get(1) != nil {
		errCh = args.Get(1).(<-chan error)
	}
	return chunkCh, errCh, args.Error(2)
}

func (m *mockLLM) Version() string {
	return "mock-model"
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	switch v := args.Get(0).(type) {
	case [][]float32:
		return v, args.Error(1)
	case func([]string) [][]float32:
		return v(texts), args.Error(1)
	default:
		return nil, args.Error(1)
	}
}

func (m *mockEmbedder) Version() string {
	return "mock-embedder"
}

type mockChunkRepo struct {
	mock.Mock
}

func (m *mockChunkRepo) BulkInsert(ctx context.Context, chunks []domain.DocumentChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *mockChunkRepo) SearchByVector(ctx context.Context, queryVector []float32, sessionID string, limit int) ([]domain.VectorMatch, error) {
	args := m.Called(ctx, queryVector, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VectorMatch), args.Error(1)
}

func (m *mockChunkRepo) FetchByIDs(ctx context.Context, ids []uuid.UUID, sessionID string) ([]domain.DocumentChunk, error) {
	args := m.Called(ctx, ids, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentChunk), args.Error(1)
}

type stubLexicalSearcher struct {
	hits map[string][]domain.LexicalHit
	err  error
}

func (s *stubLexicalSearcher) Search(_ context.Context, term, _ string, _ int) ([]domain.LexicalHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[term], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func answerStream(chunks ...domain.LLMStreamChunk) (<-chan domain.LLMStreamChunk, <-chan error) {
	chunkCh := make(chan domain.LLMStreamChunk, len(chunks))
	for _, c := range chunks {
		chunkCh <- c
	}
	close(chunkCh)
	errCh := make(chan error)
	close(errCh)
	return chunkCh, errCh
}

func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func defaultSettings() RetrievalSettings {
	return RetrievalSettings{
		RewriteQueryCount: 5,
		SearchTopK:        5,
		RRFK:              60,
		ContextLimit:      10,
	}
}

func TestChatStreamProtocolOrder(t *testing.T) {
	chunkA := uuid.New()
	chunkB := uuid.New()
	chunkC := uuid.New()

	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).
		Return("1. restated original\n2. alpha\n3. beta", nil)

	embedder := new(mockEmbedder)
	embedder.On("Encode", mock.Anything, []string{"alpha", "beta"}).
		Return([][]float32{{0.1}, {0.2}}, nil)

	repo := new(mockChunkRepo)
	repo.On("SearchByVector", mock.Anything, []float32{0.1}, "s1", 5).
		Return([]domain.VectorMatch{{ChunkID: chunkA}}, nil)
	repo.On("SearchByVector", mock.Anything, []float32{0.2}, "s1", 5).
		Return([]domain.VectorMatch{{ChunkID: chunkB}}, nil)
	repo.On("FetchByIDs", mock.Anything, mock.Anything, "s1").
		Return([]domain.DocumentChunk{
			{ID: chunkC, Content: "text-c"},
			{ID: chunkA, Content: "text-a"},
			{ID: chunkB, Content: "text-b"},
		}, nil)

	lexical := &stubLexicalSearcher{hits: map[string][]domain.LexicalHit{
		"alpha": {{ChunkID: chunkC.String(), Content: "text-c"}},
	}}

	chunkCh, errCh := answerStream(
		domain.LLMStreamChunk{Response: "The answer "},
		domain.LLMStreamChunk{Response: "is 42 [1]"},
		domain.LLMStreamChunk{Done: true},
	)
	llm.On("ChatStream", mock.Anything, mock.MatchedBy(func(messages []domain.Message) bool {
		if len(messages) == 0 {
			return false
		}
		last := messages[len(messages)-1]
		return last.Role == "user" &&
			strings.Contains(last.Content, "[1] text-a") &&
			strings.Contains(last.Content, "[2] text-b") &&
			strings.Contains(last.Content, "[3] text-c")
	})).Return(chunkCh, errCh, nil)

	uc := NewChatStreamUsecase(repo, embedder, lexical, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "what is the revenue"}},
		SessionID: "s1",
	}))

	require.Len(t, events, 6)

	assert.Equal(t, StreamEventKindProgress, events[0].Kind)
	assert.Equal(t, ProgressUpdate{Message: "Rewriting message to queries..."}, events[0].Payload)

	assert.Equal(t, StreamEventKindProgress, events[1].Kind)
	assert.Equal(t, ProgressUpdate{
		Message: "Querying vector index and full text search...",
		Queries: []string{"alpha", "beta"},
	}, events[1].Payload)

	assert.Equal(t, StreamEventKindProgress, events[2].Kind)
	assert.Equal(t, ProgressUpdate{
		Message:         "Found relevant documents...",
		Queries:         []string{"alpha", "beta"},
		RelevantContext: []string{"text-a", "text-b", "text-c"},
	}, events[2].Payload)

	assert.Equal(t, StreamEventKindDelta, events[3].Kind)
	assert.Equal(t, "The answer ", events[3].Payload)
	assert.Equal(t, StreamEventKindDelta, events[4].Kind)
	assert.Equal(t, "is 42 [1]", events[4].Payload)
	assert.Equal(t, StreamEventKindDone, events[5].Kind)

	llm.AssertExpectations(t)
	embedder.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestChatStreamRejectsMissingUserMessage(t *testing.T) {
	uc := NewChatStreamUsecase(new(mockChunkRepo), new(mockEmbedder), &stubLexicalSearcher{}, new(mockLLM), NewContextPromptBuilder(), defaultSettings(), testLogger())

	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "assistant", Content: "hello"}},
		SessionID: "s1",
	}))

	require.Len(t, events, 1)
	assert.Equal(t, StreamEventKindError, events[0].Kind)
}

func TestChatStreamRejectsMissingSession(t *testing.T) {
	uc := NewChatStreamUsecase(new(mockChunkRepo), new(mockEmbedder), &stubLexicalSearcher{}, new(mockLLM), NewContextPromptBuilder(), defaultSettings(), testLogger())

	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	require.Len(t, events, 1)
	assert.Equal(t, StreamEventKindError, events[0].Kind)
}

func TestChatStreamRewriteFailureIsTerminal(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("model unavailable"))

	uc := NewChatStreamUsecase(new(mockChunkRepo), new(mockEmbedder), &stubLexicalSearcher{}, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}))

	require.Len(t, events, 2)
	assert.Equal(t, StreamEventKindProgress, events[0].Kind)
	assert.Equal(t, StreamEventKindError, events[1].Kind)
}

func TestChatStreamSurvivesVectorSideFailure(t *testing.T) {
	chunkC := uuid.New()

	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).Return("original\nalpha", nil)

	embedder := new(mockEmbedder)
	embedder.On("Encode", mock.Anything, mock.Anything).Return(nil, errors.New("embedder down"))

	repo := new(mockChunkRepo)
	repo.On("FetchByIDs", mock.Anything, []uuid.UUID{chunkC}, "s1").
		Return([]domain.DocumentChunk{{ID: chunkC, Content: "text-c"}}, nil)

	lexical := &stubLexicalSearcher{hits: map[string][]domain.LexicalHit{
		"alpha": {{ChunkID: chunkC.String(), Content: "text-c"}},
	}}

	chunkCh, errCh := answerStream(domain.LLMStreamChunk{Response: "answer [1]"}, domain.LLMStreamChunk{Done: true})
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil)

	uc := NewChatStreamUsecase(repo, embedder, lexical, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}))

	require.NotEmpty(t, events)
	assert.Equal(t, StreamEventKindDone, events[len(events)-1].Kind)
	for _, ev := range events {
		assert.NotEqual(t, StreamEventKindError, ev.Kind)
	}
}

func TestChatStreamAnswersWithEmptyContext(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).Return("original\nalpha", nil)

	embedder := new(mockEmbedder)
	embedder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)

	// both lookups succeed but the session has nothing indexed
	repo := new(mockChunkRepo)
	repo.On("SearchByVector", mock.Anything, mock.Anything, "s1", 5).
		Return(nil, nil)
	lexical := &stubLexicalSearcher{}

	chunkCh, errCh := answerStream(domain.LLMStreamChunk{Response: "no sources found"}, domain.LLMStreamChunk{Done: true})
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil)

	uc := NewChatStreamUsecase(repo, embedder, lexical, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}))

	require.Len(t, events, 5)
	for _, ev := range events {
		assert.NotEqual(t, StreamEventKindError, ev.Kind)
	}
	assert.Equal(t, ProgressUpdate{
		Message:         "Found relevant documents...",
		Queries:         []string{"alpha"},
		RelevantContext: []string{},
	}, events[2].Payload)
	assert.Equal(t, StreamEventKindDelta, events[3].Kind)
	assert.Equal(t, StreamEventKindDone, events[4].Kind)
}

func TestChatStreamFailsWhenBothIndexesFail(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).Return("original\nalpha", nil)

	embedder := new(mockEmbedder)
	embedder.On("Encode", mock.Anything, mock.Anything).Return(nil, errors.New("embedder down"))

	lexical := &stubLexicalSearcher{err: errors.New("index down")}

	uc := NewChatStreamUsecase(new(mockChunkRepo), embedder, lexical, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}))

	require.Len(t, events, 3)
	assert.Equal(t, StreamEventKindProgress, events[0].Kind)
	assert.Equal(t, StreamEventKindProgress, events[1].Kind)
	assert.Equal(t, StreamEventKindError, events[2].Kind)
}

func TestChatStreamHydrationFailureIsTerminal(t *testing.T) {
	chunkA := uuid.New()

	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).Return("original\nalpha", nil)

	embedder := new(mockEmbedder)
	embedder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)

	repo := new(mockChunkRepo)
	repo.On("SearchByVector", mock.Anything, mock.Anything, "s1", 5).
		Return([]domain.VectorMatch{{ChunkID: chunkA}}, nil)
	repo.On("FetchByIDs", mock.Anything, mock.Anything, "s1").
		Return(nil, errors.New("connection reset"))

	uc := NewChatStreamUsecase(repo, embedder, &stubLexicalSearcher{}, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StreamEventKindError, last.Kind)
}

func TestChatStreamMidStreamFailureIsInline(t *testing.T) {
	chunkA := uuid.New()

	llm := new(mockLLM)
	llm.On("Complete", mock.Anything, mock.Anything).Return("original\nalpha", nil)

	embedder := new(mockEmbedder)
	embedder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)

	repo := new(mockChunkRepo)
	repo.On("SearchByVector", mock.Anything, mock.Anything, "s1", 5).
		Return([]domain.VectorMatch{{ChunkID: chunkA}}, nil)
	repo.On("FetchByIDs", mock.Anything, mock.Anything, "s1").
		Return([]domain.DocumentChunk{{ID: chunkA, Content: "text-a"}}, nil)

	chunkCh := make(chan domain.LLMStreamChunk)
	errCh := make(chan error)
	go func() {
		chunkCh <- domain.LLMStreamChunk{Response: "partial "}
		errCh <- errors.New("upstream reset")
	}()
	llm.On("ChatStream", mock.Anything, mock.Anything).
		Return((<-chan domain.LLMStreamChunk)(chunkCh), (<-chan error)(errCh), nil)

	uc := NewChatStreamUsecase(repo, embedder, &stubLexicalSearcher{}, llm, NewContextPromptBuilder(), defaultSettings(), testLogger())
	events := collectEvents(t, uc.Stream(context.Background(), ChatStreamInput{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}))

	require.GreaterOrEqual(t, len(events), 2)
	last := events[len(events)-1]
	assert.Equal(t, StreamEventKindDelta, last.Kind)
	assert.Equal(t, "Error: upstream reset", last.Payload)
	for _, ev := range events {
		assert.NotEqual(t, StreamEventKindDone, ev.Kind)
		assert.NotEqual(t, StreamEventKindError, ev.Kind)
	}
}
