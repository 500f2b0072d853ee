package embed

import (
	"context"
	"math"
	"time"
)

// Embedding request tuning constants.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding request once the model is
	// known to be loaded.
	DefaultTimeout = 20 * time.Second

	// DefaultColdTimeout is used for the constructor's dimension probe and
	// the first request, when the model may still need to load.
	DefaultColdTimeout = 60 * time.Second

	// ModelUnloadThreshold is the duration after which Ollama is assumed
	// to have unloaded the model, so the next call gets the cold timeout.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// DefaultDimensions is the embedding dimension assumed when a remote
// embedder's config does not pin one and auto-detection is skipped.
const DefaultDimensions = 1024

// StaticDimensions is the embedding dimension produced by StaticEmbedder.
const StaticDimensions = 256

// Embedder turns free-text queries and fault-case descriptions into
// L2-normalized vectors for the semantic retriever (§4.4/§4.5).
type Embedder interface {
	// Encode returns one embedding per input text, in the same order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width this encoder produces.
	Dimensions() int

	// ModelName identifies the underlying model, for logging and the
	// semantic-index metadata sidecar.
	ModelName() string

	// Available reports whether the encoder can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases any held resources (HTTP connections, caches).
	Close() error
}

// normalizeVector scales v to unit length. A zero vector is returned
// unchanged since it has no direction to normalize.
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
