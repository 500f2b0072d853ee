// Package rerank scores (query, candidate_text) pairs with a cross-encoder
// endpoint and converts raw logits to [0,1] via sigmoid. A NoOpReranker
// passes candidates through unscored when no endpoint is configured.
package rerank

import (
	"context"
	"math"
)

// RerankResult is a single scored candidate.
type RerankResult struct {
	// Index is the candidate's original position in the input slice.
	Index int
	// Score is in [0,1] after sigmoid.
	Score float64
	// Document is the original candidate text.
	Document string
}

// Reranker scores and reorders candidates by relevance to a query.
type Reranker interface {
	// Rerank scores documents against query and returns results sorted by
	// score descending. topK limits the result count; 0 means all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker's backend is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker returns documents in original order with decreasing scores.
// Used when no reranker endpoint is configured.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank assigns decreasing scores to preserve the original order.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		results[i] = RerankResult{
			Index:    i,
			Score:    1.0 - float64(i)*0.01,
			Document: doc,
		}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available always returns true for NoOpReranker.
func (n *NoOpReranker) Available(_ context.Context) bool { return true }

// Close is a no-op for NoOpReranker.
func (n *NoOpReranker) Close() error { return nil }

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
