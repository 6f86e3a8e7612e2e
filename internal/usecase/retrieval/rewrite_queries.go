package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"docchat/internal/domain"
)

const rewritePrompt = `Given the following user message, rewrite it into %d distinct queries that could be used to search a vector database for relevant information. Each query should focus on different aspects or potential interpretations of the original message:

User message: "%s"

Provide %d queries, one per line and nothing else:`

// maxRewrittenQueries bounds how many rewritten queries one turn may produce.
const maxRewrittenQueries = 4

// enumerationMarker matches leading list decorations the model tends to add
// despite instructions ("1.", "2)", "-", "*").
var enumerationMarker = regexp.MustCompile(`^\s*(?:\d+\s*[.)]\s*|[-*]\s+)`)

// RewriteToQueries turns one user utterance into up to four diversified
// search queries via a single blocking completion call.
//
// The first returned line is always dropped: the leading suggestion tends to
// restate the original message nearly verbatim, duplicating what the
// remaining queries already cover. A failed call or a response with no
// usable lines is propagated to the caller; there is no silent fallback to
// the raw query.
func RewriteToQueries(ctx context.Context, query string, queryCount int, llm domain.LLMClient, logger *slog.Logger) ([]string, error) {
	if queryCount <= 0 {
		queryCount = maxRewrittenQueries + 1
	}

	prompt := fmt.Sprintf(rewritePrompt, queryCount, query, queryCount)
	response, err := llm.Complete(ctx, []domain.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("query rewrite completion failed: %w", err)
	}

	lines := parseQueryLines(response)
	if len(lines) == 0 {
		return nil, fmt.Errorf("query rewrite returned no usable lines")
	}

	// Drop the first suggestion, keep at most four of the rest.
	if len(lines) > maxRewrittenQueries+1 {
		lines = lines[:maxRewrittenQueries+1]
	}
	queries := lines[1:]

	logger.Info("queries_rewritten",
		slog.Int("line_count", len(lines)),
		slog.Any("queries", queries))

	return queries, nil
}

func parseQueryLines(response string) []string {
	var lines []string
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		line = enumerationMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, `"'`)
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
