// Package store persists and serves the knowledge base: the keyword
// (BM25, via bleve) and semantic (HNSW ANN) retrievers that back the
// fusion engine, plus the JSONL-backed case store they are built from.
package store

import (
	"context"
	"fmt"
)

// Document is a unit indexed by the keyword retriever: a case id paired
// with the text it was built from.
type Document struct {
	ID      string
	Content string
}

// BM25Result is a single keyword-retriever hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes the keyword index's current size.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index is the keyword (lexical) retrieval contract: §4.3.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config holds BM25 scoring parameters. BleveKeywordIndex stores it
// but does not pass K1 or B to bleve, so they do not affect scores.
type BM25Config struct {
	// K1 is the term frequency saturation parameter.
	K1 float64
	// B is the length normalization parameter.
	B float64
}

// DefaultBM25Config returns the classical BM25 defaults.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorResult is a single semantic-retriever hit. Cosine is in [-1, 1]
// per §4.4.
type VectorResult struct {
	ID     string
	Cosine float32
}

// VectorStoreConfig configures the HNSW index, per §4.4: defaults suited
// to dozens of thousands of points.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int    // max connections per layer, default 16
	EfConstruction int    // build-time search width, default 200; NewHNSWStore does not pass it to the graph
	EfSearch       int    // query-time search width, default 64
}

// DefaultVectorStoreConfig returns the spec's documented HNSW defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

// VectorStore is the semantic (ANN) retrieval contract: §4.4.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a query or insert vector's dimension
// does not match the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the semantic index)", e.Expected, e.Got)
}
