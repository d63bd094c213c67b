// Package embeddings defines the Provider interface for text embedding
// backends used by the knowledge-graph semantic search.
package embeddings

import "context"

// Provider converts text into a dense vector. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector length this provider produces. Must
	// match the pgvector column dimension.
	Dimensions() int
}
