package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document represents one ingested source file. Documents are created once at
// ingestion and immutable afterwards.
type Document struct {
	ID          uuid.UUID
	Name        string
	Size        int64
	TextContent string
	SessionID   string
	ArchiveURL  *string // Pointer to archived raw bytes, if any. Not managed here.
	CreatedAt   time.Time
}

// DocumentChunk is one contiguous slice of a document's text. A chunk is the
// atomic unit of both indexes: it is embedded into the vector index and
// registered in the lexical index under the same id, so the two indexes share
// one key space.
type DocumentChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	SessionID  string
	Ordinal    int
	Content    string
	Embedding  pgvector.Vector
	CreatedAt  time.Time
}
