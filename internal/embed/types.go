// Package embed turns text into vectors for hybrid and semantic search.
package embed

import (
	"context"
	"errors"
	"math"
)

// Providers.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
	ProviderNone   = "none"
)

// StaticDimensions is the default size of static embeddings.
const StaticDimensions = 256

// ErrClosed is returned by a closed embedder.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding size, or 0 if not yet known.
	Dimensions() int

	// ModelName identifies the model; stored vectors are keyed by it.
	ModelName() string

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	Close() error
}

// Normalize scales v to unit length. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
