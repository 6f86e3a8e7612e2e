package domain

import "strings"

// ChunkerVersion identifies the chunking algorithm so re-ingestion can tell
// which version produced stored chunks.
type ChunkerVersion string

const (
	// ChunkerVersionV1 is the fixed-size sliding window chunker.
	ChunkerVersionV1 ChunkerVersion = "v1"

	// DefaultChunkSize is the target chunk length in bytes.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many trailing bytes of one chunk are
	// repeated at the start of the next.
	DefaultChunkOverlap = 200
)

// Chunk is one piece of a document produced by a Chunker.
type Chunk struct {
	Ordinal int
	Content string
}

// Chunker defines the interface for splitting extracted text into chunks.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
	Version() ChunkerVersion
}

type slidingWindowChunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker producing fixed-size chunks with overlap,
// breaking at the last whitespace boundary inside each window so words are
// not cut mid-way.
func NewChunker() Chunker {
	return &slidingWindowChunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
}

// NewChunkerWithOptions creates a Chunker with explicit window parameters.
// Overlap must be smaller than size; invalid values fall back to defaults.
func NewChunkerWithOptions(size, overlap int) Chunker {
	if size <= 0 || overlap < 0 || overlap >= size {
		return NewChunker()
	}
	return &slidingWindowChunker{size: size, overlap: overlap}
}

func (c *slidingWindowChunker) Version() ChunkerVersion {
	return ChunkerVersionV1
}

func (c *slidingWindowChunker) Chunk(text string) ([]Chunk, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return nil, nil
	}

	var chunks []Chunk
	start := 0
	for start < len(normalized) {
		end := start + c.size
		if end >= len(normalized) {
			end = len(normalized)
		} else {
			// Back up to a whitespace boundary when one exists in the
			// second half of the window.
			if cut := strings.LastIndexAny(normalized[start:end], " \n\t"); cut > c.size/2 {
				end = start + cut
			}
		}

		content := strings.TrimSpace(normalized[start:end])
		if content != "" {
			chunks = append(chunks, Chunk{Ordinal: len(chunks), Content: content})
		}

		if end == len(normalized) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// Overlap would stall the window; move on without it.
			next = end
		}
		start = next
	}

	return chunks, nil
}
