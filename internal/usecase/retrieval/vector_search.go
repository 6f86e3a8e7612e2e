package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docchat/internal/domain"
)

// VectorSearch embeds every rewritten query and runs the per-query
// nearest-neighbor lookups concurrently, scoped to the session namespace.
// A lookup failure for one query excludes that list and is logged; the
// remaining lists are still returned. An embedding failure loses the whole
// vector side and is returned as an error for the caller to weigh against
// the lexical results.
func VectorSearch(
	ctx context.Context,
	queries []string,
	sessionID string,
	topK int,
	embedder domain.Embedder,
	chunkRepo domain.ChunkRepository,
	logger *slog.Logger,
) ([]RankedList, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	embedStart := time.Now()
	embeddings, err := embedder.Encode(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode queries: %w", err)
	}
	if len(embeddings) != len(queries) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(queries), len(embeddings))
	}

	type searchResult struct {
		index   int
		matches []domain.VectorMatch
		err     error
	}

	searchStart := time.Now()
	resultsChan := make(chan searchResult, len(queries))
	for i := range queries {
		go func(idx int, vector []float32) {
			matches, err := chunkRepo.SearchByVector(ctx, vector, sessionID, topK)
			resultsChan <- searchResult{index: idx, matches: matches, err: err}
		}(i, embeddings[i])
	}

	ordered := make([][]domain.VectorMatch, len(queries))
	succeeded := make([]bool, len(queries))
	failed := 0
	for range queries {
		sr := <-resultsChan
		if sr.err != nil {
			failed++
			logger.Warn("vector_search_query_failed",
				slog.String("query", queries[sr.index]),
				slog.String("error", sr.err.Error()))
			continue
		}
		ordered[sr.index] = sr.matches
		succeeded[sr.index] = true
	}

	// A query that succeeded with zero rows still contributes an empty list:
	// only failed queries are excluded, so the caller can tell "nothing
	// indexed" apart from "every lookup broke".
	lists := make([]RankedList, 0, len(queries))
	for i, matches := range ordered {
		if !succeeded[i] {
			continue
		}
		list := RankedList{Source: "vector:" + queries[i]}
		for _, m := range matches {
			list.IDs = append(list.IDs, m.ChunkID)
		}
		lists = append(lists, list)
	}

	logger.Info("vector_search_completed",
		slog.Int("query_count", len(queries)),
		slog.Int("failed_queries", failed),
		slog.Int("list_count", len(lists)),
		slog.Int64("embed_ms", searchStart.Sub(embedStart).Milliseconds()),
		slog.Int64("search_ms", time.Since(searchStart).Milliseconds()))

	return lists, nil
}
