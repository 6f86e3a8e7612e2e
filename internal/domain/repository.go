package domain

import (
	"context"

	"github.com/google/uuid"
)

// DocumentRepository defines the operations for managing documents.
type DocumentRepository interface {
	// Create inserts a new document.
	Create(ctx context.Context, doc *Document) error

	// ListBySession returns all documents owned by a session, newest first.
	// Text content is not loaded.
	ListBySession(ctx context.Context, sessionID string) ([]Document, error)
}

// ChunkRepository defines the operations for managing chunks. Every read is
// scoped to a session: retrieval must never return chunks belonging to a
// different session.
type ChunkRepository interface {
	// BulkInsert inserts multiple chunks.
	BulkInsert(ctx context.Context, chunks []DocumentChunk) error

	// SearchByVector performs a nearest-neighbor search over the session's
	// chunks. Results are ordered best-to-worst by the index's own
	// similarity ranking.
	SearchByVector(ctx context.Context, queryVector []float32, sessionID string, limit int) ([]VectorMatch, error)

	// FetchByIDs resolves chunk ids to stored chunks in one batched lookup.
	// Order of the returned slice is unspecified.
	FetchByIDs(ctx context.Context, ids []uuid.UUID, sessionID string) ([]DocumentChunk, error)
}

// VectorMatch is a single nearest-neighbor hit. The rank position within the
// result list is what fusion consumes; Distance is kept for debugging only.
type VectorMatch struct {
	ChunkID  uuid.UUID
	Distance float32
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
