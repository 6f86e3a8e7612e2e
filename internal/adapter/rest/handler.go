package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"docchat/internal/domain"
	"docchat/internal/usecase"
)

// maxUploadBytes caps one uploaded file.
const maxUploadBytes = 32 << 20

type Handler struct {
	chatUsecase   usecase.ChatStreamUsecase
	ingestUsecase usecase.IngestDocumentUsecase
	limiter       domain.RateLimiter
	logger        *slog.Logger
}

func NewHandler(
	chatUsecase usecase.ChatStreamUsecase,
	ingestUsecase usecase.IngestDocumentUsecase,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		chatUsecase:   chatUsecase,
		ingestUsecase: ingestUsecase,
		limiter:       limiter,
		logger:        logger,
	}
}

type chatRequest struct {
	Messages  []domain.Message `json:"messages"`
	SessionID string           `json:"sessionId"`
}

type deltaPayload struct {
	Response string `json:"response"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Chat runs the retrieval pipeline and streams progress plus the answer as
// server-sent events.
// (POST /api/chat)
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	allowed, err := h.limiter.Allow(ctx, c.RealIP())
	if err != nil {
		// A broken limiter backend must not take chat down.
		h.logger.Warn("rate_limit_check_failed", slog.String("error", err.Error()))
		allowed = true
	}
	if !allowed {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "messages is required"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
	}

	w := c.Response().Writer
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		return c.String(http.StatusInternalServerError, "streaming not supported")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	events := h.chatUsecase.Stream(ctx, usecase.ChatStreamInput{
		Messages:  req.Messages,
		SessionID: req.SessionID,
	})

	for event := range events {
		switch event.Kind {
		case usecase.StreamEventKindProgress:
			if err := writeSSE(w, event.Payload); err != nil {
				return nil
			}
		case usecase.StreamEventKindDelta:
			text, _ := event.Payload.(string)
			if err := writeSSE(w, deltaPayload{Response: text}); err != nil {
				return nil
			}
		case usecase.StreamEventKindError:
			message, _ := event.Payload.(string)
			if err := writeSSE(w, errorPayload{Error: message}); err != nil {
				return nil
			}
			flusher.Flush()
			return nil
		case usecase.StreamEventKindDone:
			if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
			return nil
		}
		flusher.Flush()
	}
	return nil
}

func writeSSE(w io.Writer, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// UploadDocument ingests one uploaded PDF into the session's indexes.
// (POST /api/documents)
func (h *Handler) UploadDocument(c echo.Context) error {
	sessionID := c.FormValue("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}
	if fileHeader.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "could not read file"})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "could not read file"})
	}
	if len(data) > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
	}

	out, err := h.ingestUsecase.Ingest(c.Request().Context(), usecase.IngestDocumentInput{
		FileName:  fileHeader.Filename,
		Data:      data,
		SessionID: sessionID,
	})
	if err != nil {
		h.logger.Error("ingest_failed",
			slog.String("name", fileHeader.Filename),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"documentId": out.DocumentID.String(),
		"chunks":     out.ChunkCount,
	})
}

type documentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListDocuments returns the session's uploaded documents, newest first.
// (GET /api/documents)
func (h *Handler) ListDocuments(c echo.Context) error {
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
	}

	docs, err := h.ingestUsecase.ListDocuments(c.Request().Context(), sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentResponse{
			ID:        doc.ID.String(),
			Name:      doc.Name,
			Size:      doc.Size,
			CreatedAt: doc.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": out})
}
