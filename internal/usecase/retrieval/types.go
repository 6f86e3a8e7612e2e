package retrieval

import "github.com/google/uuid"

// RankedList is one ordered result list from a single retriever for a single
// query. Position in IDs is the rank; absolute scores from the backing index
// are discarded before this point.
type RankedList struct {
	// Source labels the retriever and query that produced the list, for
	// logging only.
	Source string
	IDs    []uuid.UUID
}

// ScoredCandidate is one fused result: a chunk id and the sum of its
// reciprocal-rank contributions across every list it appeared in. Candidates
// live for a single request and are never persisted.
type ScoredCandidate struct {
	ChunkID uuid.UUID
	Score   float64
}

// ContextPassage is a hydrated candidate, numbered from 1 for citation
// markers in the generated answer.
type ContextPassage struct {
	Index   int
	ChunkID uuid.UUID
	Text    string
}
