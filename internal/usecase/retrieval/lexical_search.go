package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"docchat/internal/domain"

	"github.com/google/uuid"
)

// LexicalSearch runs a sanitized term-match query per rewritten query against
// the full-text index, concurrently, scoped to the session. Terms that
// sanitize to nothing are skipped without issuing a query. A backend failure
// for one term degrades that term to vector-only fusion: the error is logged
// and the remaining lists are returned.
func LexicalSearch(
	ctx context.Context,
	queries []string,
	sessionID string,
	limit int,
	searcher domain.LexicalSearcher,
	logger *slog.Logger,
) []RankedList {
	start := time.Now()

	ordered := make([][]domain.LexicalHit, len(queries))
	succeeded := make([]bool, len(queries))
	skipped := 0
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, query := range queries {
		term := sanitizeTerm(query)
		if term == "" {
			skipped++
			continue
		}
		wg.Add(1)
		go func(idx int, term string) {
			defer wg.Done()
			hits, err := searcher.Search(ctx, term, sessionID, limit)
			if err != nil {
				logger.Warn("lexical_search_term_failed",
					slog.String("term", term),
					slog.String("error", err.Error()))
				return
			}
			mu.Lock()
			ordered[idx] = hits
			succeeded[idx] = true
			mu.Unlock()
		}(i, term)
	}
	wg.Wait()

	// Zero hits for a term is still a successful query and yields an empty
	// list; only failed and skipped terms are excluded.
	lists := make([]RankedList, 0, len(queries))
	for i, hits := range ordered {
		if !succeeded[i] {
			continue
		}
		list := RankedList{Source: "lexical:" + queries[i]}
		for _, hit := range hits {
			id, err := uuid.Parse(hit.ChunkID)
			if err != nil {
				continue
			}
			list.IDs = append(list.IDs, id)
		}
		lists = append(lists, list)
	}

	logger.Info("lexical_search_completed",
		slog.Int("query_count", len(queries)),
		slog.Int("skipped_terms", skipped),
		slog.Int("list_count", len(lists)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return lists
}

// sanitizeTerm strips punctuation so the term is a plain sequence of words.
func sanitizeTerm(query string) string {
	var sb strings.Builder
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
