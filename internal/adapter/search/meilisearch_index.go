package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"docchat/internal/domain"
)

// chunkDocument is the shape stored in the full-text index. IDs mirror the
// chunk rows in Postgres so fused results address one key space.
type chunkDocument struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// MeilisearchIndex adapts a Meilisearch index to the lexical search and
// indexing interfaces.
type MeilisearchIndex struct {
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
}

// NewMeilisearchIndex creates an adapter bound to one index.
func NewMeilisearchIndex(client meilisearch.ServiceManager, indexName string) *MeilisearchIndex {
	return &MeilisearchIndex{
		client: client,
		index:  client.Index(indexName),
	}
}

// EnsureIndex makes session_id filterable so every search can be scoped to
// its session. Must run before the first search; safe to repeat.
func (m *MeilisearchIndex) EnsureIndex(ctx context.Context) error {
	task, err := m.index.UpdateFilterableAttributesWithContext(ctx, &[]interface{}{"session_id"})
	if err != nil {
		return fmt.Errorf("failed to set filterable attributes: %w", err)
	}
	if _, err := m.index.WaitForTaskWithContext(ctx, task.TaskUID, 0); err != nil {
		return fmt.Errorf("failed to wait for index settings: %w", err)
	}
	return nil
}

// Search runs a full-text query scoped to one session. Hits come back in the
// engine's relevance order.
func (m *MeilisearchIndex) Search(ctx context.Context, term, sessionID string, limit int) ([]domain.LexicalHit, error) {
	resp, err := m.index.SearchWithContext(ctx, term, &meilisearch.SearchRequest{
		Limit:  int64(limit),
		Filter: fmt.Sprintf("session_id = %q", sessionID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	hits := make([]domain.LexicalHit, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		var doc chunkDocument
		if raw, ok := hit["id"]; ok {
			if err := json.Unmarshal(raw, &doc.ID); err != nil {
				continue
			}
		}
		if raw, ok := hit["content"]; ok {
			_ = json.Unmarshal(raw, &doc.Content)
		}
		if doc.ID == "" {
			continue
		}
		hits = append(hits, domain.LexicalHit{
			ChunkID: doc.ID,
			Content: doc.Content,
		})
	}
	return hits, nil
}

// IndexChunks registers chunks under their Postgres ids and waits for the
// indexing task so the chunks are searchable when ingestion returns.
func (m *MeilisearchIndex) IndexChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chunkDocument, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chunkDocument{
			ID:        chunk.ID.String(),
			SessionID: chunk.SessionID,
			Content:   chunk.Content,
		}
	}

	task, err := m.index.AddDocumentsWithContext(ctx, docs, nil)
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	if _, err := m.index.WaitForTaskWithContext(ctx, task.TaskUID, 0); err != nil {
		return fmt.Errorf("failed to wait for indexing task: %w", err)
	}
	return nil
}

var (
	_ domain.LexicalSearcher = (*MeilisearchIndex)(nil)
	_ domain.LexicalIndexer  = (*MeilisearchIndex)(nil)
)
