package domain

import "context"

// Embedder defines the interface for converting text into vectors.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
