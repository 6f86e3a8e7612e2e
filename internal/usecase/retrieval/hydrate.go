package retrieval

import (
	"context"
	"fmt"

	"docchat/internal/domain"

	"github.com/google/uuid"
)

// Hydrate resolves fused candidates to stored chunk text in one batched
// lookup, then re-applies the fused ordering (the batched fetch does not
// preserve it) and numbers the passages from 1 for citation formatting.
// Candidates whose chunk no longer exists are dropped silently.
func Hydrate(
	ctx context.Context,
	candidates []ScoredCandidate,
	sessionID string,
	chunkRepo domain.ChunkRepository,
) ([]ContextPassage, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	chunks, err := chunkRepo.FetchByIDs(ctx, ids, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}

	byID := make(map[uuid.UUID]domain.DocumentChunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	passages := make([]ContextPassage, 0, len(candidates))
	for _, c := range candidates {
		chunk, ok := byID[c.ChunkID]
		if !ok {
			continue
		}
		passages = append(passages, ContextPassage{
			Index:   len(passages) + 1,
			ChunkID: chunk.ID,
			Text:    chunk.Content,
		})
	}
	return passages, nil
}
