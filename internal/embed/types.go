// Package embed generates vector embeddings for chunk text. The engine
// ships a deterministic local hash embedder so indexing never depends on a
// network service; the factory leaves room for heavier models behind the
// same interface.
package embed

import (
	"context"
	"math"
)

const (
	// DefaultDimensions is the vector width of the hash embedder.
	DefaultDimensions = 384

	// DefaultBatchSize bounds how many texts are embedded per call.
	DefaultBatchSize = 32

	// DefaultCacheSize is the number of embeddings the LRU cache keeps.
	// At 384 dimensions * 4 bytes * 2048 entries it stays around 3MB.
	DefaultCacheSize = 2048
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result slice
	// is index-aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelTag identifies the model and version that produced the vectors.
	// Vectors from different tags are never compared against each other.
	ModelTag() string

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// CosineSimilarity computes the cosine similarity of two vectors. Both
// inputs must have the same length; mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
