package domain

import "context"

// LexicalHit is a single full-text match. Hits arrive in the engine's
// relevance order; fusion ranks by slice position.
type LexicalHit struct {
	ChunkID string
	Content string
}

// LexicalSearcher defines the interface for term-match search against the
// full-text index. The index mirrors chunk ids, so hits are addressable in
// the same key space as vector matches.
type LexicalSearcher interface {
	Search(ctx context.Context, term, sessionID string, limit int) ([]LexicalHit, error)
}

// LexicalIndexer registers chunks in the full-text index under the same ids
// used by the vector side.
type LexicalIndexer interface {
	IndexChunks(ctx context.Context, chunks []DocumentChunk) error
}
