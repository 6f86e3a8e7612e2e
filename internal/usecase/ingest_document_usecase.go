package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"docchat/internal/domain"
)

// embedBatchSize bounds one embedding request. Providers reject oversized
// batches, so large documents are encoded in slices.
const embedBatchSize = 64

// IngestDocumentInput carries one uploaded file.
type IngestDocumentInput struct {
	FileName  string
	Data      []byte
	SessionID string
}

// IngestDocumentOutput reports what ingestion produced.
type IngestDocumentOutput struct {
	DocumentID uuid.UUID
	ChunkCount int
}

// IngestDocumentUsecase turns an uploaded file into retrievable chunks:
// extract text, split into overlapping windows, embed, persist, and register
// the chunks in the lexical index under the same ids.
type IngestDocumentUsecase interface {
	Ingest(ctx context.Context, input IngestDocumentInput) (*IngestDocumentOutput, error)
	ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error)
}

type ingestDocumentUsecase struct {
	docRepo   domain.DocumentRepository
	chunkRepo domain.ChunkRepository
	txManager domain.TransactionManager
	extractor domain.TextExtractor
	chunker   domain.Chunker
	embedder  domain.Embedder
	indexer   domain.LexicalIndexer
	logger    *slog.Logger
}

// NewIngestDocumentUsecase wires the ingestion pipeline.
func NewIngestDocumentUsecase(
	docRepo domain.DocumentRepository,
	chunkRepo domain.ChunkRepository,
	txManager domain.TransactionManager,
	extractor domain.TextExtractor,
	chunker domain.Chunker,
	embedder domain.Embedder,
	indexer domain.LexicalIndexer,
	logger *slog.Logger,
) IngestDocumentUsecase {
	return &ingestDocumentUsecase{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		txManager: txManager,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		logger:    logger,
	}
}

func (u *ingestDocumentUsecase) Ingest(ctx context.Context, input IngestDocumentInput) (*IngestDocumentOutput, error) {
	if len(input.Data) == 0 {
		return nil, errors.New("empty file")
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, errors.New("sessionId is required")
	}

	start := time.Now()

	text, err := u.extractor.Extract(input.Data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	pieces, err := u.chunker.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	if len(pieces) == 0 {
		return nil, errors.New("document contains no extractable text")
	}

	vectors, err := u.embedChunks(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	doc := &domain.Document{
		ID:          uuid.New(),
		Name:        input.FileName,
		Size:        int64(len(input.Data)),
		TextContent: text,
		SessionID:   input.SessionID,
		CreatedAt:   time.Now(),
	}

	chunks := make([]domain.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			SessionID:  input.SessionID,
			Ordinal:    piece.Ordinal,
			Content:    piece.Content,
			Embedding:  pgvector.NewVector(vectors[i]),
			CreatedAt:  doc.CreatedAt,
		}
	}

	err = u.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := u.docRepo.Create(txCtx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := u.chunkRepo.BulkInsert(txCtx, chunks); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Lexical registration stays outside the transaction: the chunks are
	// durable either way, and a failed index pass only degrades search to
	// vector-only until re-ingestion.
	if err := u.indexer.IndexChunks(ctx, chunks); err != nil {
		u.logger.Warn("lexical_index_failed",
			slog.String("document_id", doc.ID.String()),
			slog.String("error", err.Error()))
	}

	u.logger.Info("document_ingested",
		slog.String("document_id", doc.ID.String()),
		slog.String("session_id", input.SessionID),
		slog.String("name", input.FileName),
		slog.Int("chunk_count", len(chunks)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return &IngestDocumentOutput{DocumentID: doc.ID, ChunkCount: len(chunks)}, nil
}

func (u *ingestDocumentUsecase) ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("sessionId is required")
	}
	return u.docRepo.ListBySession(ctx, sessionID)
}

func (u *ingestDocumentUsecase) embedChunks(ctx context.Context, pieces []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(pieces))
	for lo := 0; lo < len(pieces); lo += embedBatchSize {
		hi := lo + embedBatchSize
		if hi > len(pieces) {
			hi = len(pieces)
		}
		texts := make([]string, 0, hi-lo)
		for _, piece := range pieces[lo:hi] {
			texts = append(texts, piece.Content)
		}
		batch, err := u.embedder.Encode(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
