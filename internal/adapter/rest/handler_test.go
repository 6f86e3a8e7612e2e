package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/usecase"
)

type stubChatUsecase struct {
	events []usecase.StreamEvent
	input  usecase.ChatStreamInput
}

func (s *stubChatUsecase) Stream(_ context.Context, input usecase.ChatStreamInput) <-chan usecase.StreamEvent {
	s.input = input
	ch := make(chan usecase.StreamEvent, len(s.events))
	for _, e := range s.events {
		ch <- e
	}
	close(ch)
	return ch
}

type stubIngestUsecase struct {
	out  *usecase.IngestDocumentOutput
	err  error
	docs []domain.Document
}

func (s *stubIngestUsecase) Ingest(_ context.Context, _ usecase.IngestDocumentInput) (*usecase.IngestDocumentOutput, error) {
	return s.out, s.err
}

func (s *stubIngestUsecase) ListDocuments(_ context.Context, _ string) ([]domain.Document, error) {
	return s.docs, s.err
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return s.allowed, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newChatContext(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func sseFrames(body string) []string {
	var frames []string
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame != "" {
			frames = append(frames, frame)
		}
	}
	return frames
}

func TestChatStreamsProtocolFrames(t *testing.T) {
	chat := &stubChatUsecase{events: []usecase.StreamEvent{
		{Kind: usecase.StreamEventKindProgress, Payload: usecase.ProgressUpdate{Message: "Rewriting message to queries..."}},
		{Kind: usecase.StreamEventKindProgress, Payload: usecase.ProgressUpdate{Message: "Querying vector index and full text search...", Queries: []string{"q1"}}},
		{Kind: usecase.StreamEventKindProgress, Payload: usecase.ProgressUpdate{Message: "Found relevant documents...", Queries: []string{"q1"}, RelevantContext: []string{"ctx"}}},
		{Kind: usecase.StreamEventKindDelta, Payload: "Hello"},
		{Kind: usecase.StreamEventKindDelta, Payload: " world [1]"},
		{Kind: usecase.StreamEventKindDone},
	}}
	h := NewHandler(chat, &stubIngestUsecase{}, &stubLimiter{allowed: true}, testLogger())
	c, rec := newChatContext(echo.New(), `{"messages":[{"role":"user","content":"hi"}],"sessionId":"s1"}`)

	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 6)
	assert.Equal(t, `data: {"message":"Rewriting message to queries..."}`, frames[0])
	assert.Equal(t, `data: {"message":"Querying vector index and full text search...","queries":["q1"]}`, frames[1])
	assert.Equal(t, `data: {"message":"Found relevant documents...","queries":["q1"],"relevantContext":["ctx"]}`, frames[2])
	assert.Equal(t, `data: {"response":"Hello"}`, frames[3])
	assert.Equal(t, `data: {"response":" world [1]"}`, frames[4])
	assert.Equal(t, `data: [DONE]`, frames[5])

	assert.Equal(t, "s1", chat.input.SessionID)
}

func TestChatErrorEventClosesStream(t *testing.T) {
	chat := &stubChatUsecase{events: []usecase.StreamEvent{
		{Kind: usecase.StreamEventKindProgress, Payload: usecase.ProgressUpdate{Message: "Rewriting message to queries..."}},
		{Kind: usecase.StreamEventKindError, Payload: "failed to rewrite message to queries"},
	}}
	h := NewHandler(chat, &stubIngestUsecase{}, &stubLimiter{allowed: true}, testLogger())
	c, rec := newChatContext(echo.New(), `{"messages":[{"role":"user","content":"hi"}],"sessionId":"s1"}`)

	require.NoError(t, h.Chat(c))

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, `data: {"error":"failed to rewrite message to queries"}`, frames[1])
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}

// unflushableWriter hides the recorder's Flush so the writer no longer
// satisfies http.Flusher.
type unflushableWriter struct {
	http.ResponseWriter
}

func TestChatRequiresFlushableWriter(t *testing.T) {
	h := NewHandler(&stubChatUsecase{}, &stubIngestUsecase{}, &stubLimiter{allowed: true}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"sessionId":"s1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, &unflushableWriter{rec})

	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	h := NewHandler(&stubChatUsecase{}, &stubIngestUsecase{}, &stubLimiter{allowed: true}, testLogger())

	c, rec := newChatContext(echo.New(), `{"sessionId":"s1"}`)
	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newChatContext(echo.New(), `{"messages":[{"role":"user","content":"hi"}]}`)
	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRateLimited(t *testing.T) {
	h := NewHandler(&stubChatUsecase{}, &stubIngestUsecase{}, &stubLimiter{allowed: false}, testLogger())
	c, rec := newChatContext(echo.New(), `{"messages":[{"role":"user","content":"hi"}],"sessionId":"s1"}`)

	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestChatLimiterFailureIsOpen(t *testing.T) {
	chat := &stubChatUsecase{events: []usecase.StreamEvent{{Kind: usecase.StreamEventKindDone}}}
	h := NewHandler(chat, &stubIngestUsecase{}, &stubLimiter{allowed: false, err: errors.New("redis down")}, testLogger())
	c, rec := newChatContext(echo.New(), `{"messages":[{"role":"user","content":"hi"}],"sessionId":"s1"}`)

	require.NoError(t, h.Chat(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[DONE]")
}

func multipartUpload(t *testing.T, sessionID, fileName string, content []byte) (*http.Request, error) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if sessionID != "" {
		require.NoError(t, writer.WriteField("sessionId", sessionID))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req, nil
}

func TestUploadDocument(t *testing.T) {
	docID := uuid.New()
	ingest := &stubIngestUsecase{out: &usecase.IngestDocumentOutput{DocumentID: docID, ChunkCount: 3}}
	h := NewHandler(&stubChatUsecase{}, ingest, &stubLimiter{allowed: true}, testLogger())

	req, _ := multipartUpload(t, "s1", "report.pdf", []byte("%PDF-1.4"))
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.UploadDocument(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), docID.String())
	assert.Contains(t, rec.Body.String(), `"chunks":3`)
}

func TestUploadDocumentValidation(t *testing.T) {
	h := NewHandler(&stubChatUsecase{}, &stubIngestUsecase{}, &stubLimiter{allowed: true}, testLogger())

	req, _ := multipartUpload(t, "", "report.pdf", []byte("%PDF"))
	rec := httptest.NewRecorder()
	require.NoError(t, h.UploadDocument(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, _ = multipartUpload(t, "s1", "", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.UploadDocument(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDocumentIngestFailure(t *testing.T) {
	ingest := &stubIngestUsecase{err: errors.New("extract text: not a pdf")}
	h := NewHandler(&stubChatUsecase{}, ingest, &stubLimiter{allowed: true}, testLogger())

	req, _ := multipartUpload(t, "s1", "broken.pdf", []byte("junk"))
	rec := httptest.NewRecorder()
	require.NoError(t, h.UploadDocument(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListDocuments(t *testing.T) {
	ingest := &stubIngestUsecase{docs: []domain.Document{{ID: uuid.New(), Name: "a.pdf", Size: 42}}}
	h := NewHandler(&stubChatUsecase{}, ingest, &stubLimiter{allowed: true}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/documents?sessionId=s1", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListDocuments(echo.New().NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.pdf")
}

func TestListDocumentsRequiresSession(t *testing.T) {
	h := NewHandler(&stubChatUsecase{}, &stubIngestUsecase{}, &stubLimiter{allowed: true}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListDocuments(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
