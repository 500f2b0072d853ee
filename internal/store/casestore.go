package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/faultmatch/core/internal/domain"
)

// CaseStore holds the knowledge base loaded from a JSONL file, one
// FaultCase per line. The keyword and semantic indexes built over it are
// held by KeywordRetriever and SemanticRetriever, not by the store.
type CaseStore struct {
	cases   map[string]*domain.FaultCase
	dataPath string
}

// LoadCases reads a JSONL knowledge base from path: one FaultCase object
// per line. Lines are decoded individually so one malformed line does
// not abort the whole load; its error is returned alongside the
// successfully parsed cases.
func LoadCases(path string) (*CaseStore, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", path, err)
	}
	defer file.Close()

	cases := make(map[string]*domain.FaultCase)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	var firstErr error
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		fc, err := caseFromRaw(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}
		cases[fc.ID] = fc
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", path, err)
	}

	return &CaseStore{cases: cases, dataPath: path}, firstErr
}

func caseFromRaw(raw map[string]any) (*domain.FaultCase, error) {
	fc := &domain.FaultCase{Raw: raw}

	if id, ok := raw["id"].(string); ok {
		fc.ID = id
	}
	if fc.ID == "" {
		return nil, fmt.Errorf("case missing required field id")
	}

	if text, ok := raw["text"].(string); ok {
		fc.Text = text
	}
	if system, ok := raw["system"].(string); ok {
		fc.System = system
	}
	if part, ok := raw["part"].(string); ok {
		fc.Part = part
	}
	if vt, ok := raw["vehicletype"].(string); ok {
		fc.VehicleType = vt
	}
	if fcode, ok := raw["faultcode"].(string); ok {
		fc.FaultCode = fcode
	}
	if pop, ok := raw["popularity"].(float64); ok {
		fc.Popularity = pop
	}
	if tagsRaw, ok := raw["tags"].([]any); ok {
		for _, t := range tagsRaw {
			if s, ok := t.(string); ok {
				fc.Tags = append(fc.Tags, s)
			}
		}
	}

	return fc, nil
}

// Get returns the case with id, or nil if absent.
func (cs *CaseStore) Get(id string) *domain.FaultCase {
	return cs.cases[id]
}

// Len returns the number of loaded cases.
func (cs *CaseStore) Len() int {
	return len(cs.cases)
}

// All returns every loaded case. Callers must not mutate the returned
// slice's elements.
func (cs *CaseStore) All() []*domain.FaultCase {
	out := make([]*domain.FaultCase, 0, len(cs.cases))
	for _, fc := range cs.cases {
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PopularityP95 estimates the P95 statistics input the fusion engine's
// popularity_norm prior needs: an ad-hoc P95 over the loaded
// popularities, per §9's open question ("treat as a tunable input").
func (cs *CaseStore) PopularityP95() float64 {
	if len(cs.cases) == 0 {
		return 1
	}
	values := make([]float64, 0, len(cs.cases))
	for _, fc := range cs.cases {
		values = append(values, fc.Popularity)
	}
	sort.Float64s(values)

	idx := int(float64(len(values)) * 0.95)
	if idx >= len(values) {
		idx = len(values) - 1
	}
	if values[idx] <= 0 {
		return 1
	}
	return values[idx]
}

// KeywordHit is a single keyword-retriever result: (id, raw_score).
type KeywordHit struct {
	ID      string
	RawScore float64
}

// KeywordRetriever wraps a BM25Index and the CaseStore it was built
// from, implementing §4.3's contract: Query(q, k) -> [(id, raw_score)].
type KeywordRetriever struct {
	index BM25Index
	cases *CaseStore
}

// NewKeywordRetriever builds (or, if the cache at cachePath exists and
// is newer than the data file, opens) the keyword index over cs.
func NewKeywordRetriever(ctx context.Context, cs *CaseStore, cachePath string, config BM25Config) (*KeywordRetriever, error) {
	rebuild := true
	if cachePath != "" {
		if cacheInfo, err := os.Stat(cachePath); err == nil {
			if dataInfo, derr := os.Stat(cs.dataPath); derr == nil {
				rebuild = dataInfo.ModTime().After(cacheInfo.ModTime())
			} else {
				rebuild = false
			}
		}
	}

	idx, err := NewBleveKeywordIndex(cachePath, config)
	if err != nil {
		return nil, err
	}

	if rebuild {
		docs := make([]*Document, 0, cs.Len())
		for _, fc := range cs.All() {
			if fc.Text == "" {
				continue
			}
			docs = append(docs, &Document{ID: fc.ID, Content: documentContent(fc)})
		}
		if err := idx.Index(ctx, docs); err != nil {
			return nil, fmt.Errorf("failed to build keyword index: %w", err)
		}
	}

	return &KeywordRetriever{index: idx, cases: cs}, nil
}

func documentContent(fc *domain.FaultCase) string {
	return fc.Text + " " + fc.System + " " + fc.Part
}

// Query returns at most k ids ordered by descending BM25 score.
func (r *KeywordRetriever) Query(ctx context.Context, q string, k int) ([]KeywordHit, error) {
	results, err := r.index.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}

	hits := make([]KeywordHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, KeywordHit{ID: res.DocID, RawScore: res.Score})
	}
	return hits, nil
}

// Close releases the underlying index.
func (r *KeywordRetriever) Close() error {
	return r.index.Close()
}

// VectorHit is a single semantic-retriever result: (id, cosine).
type VectorHit struct {
	ID     string
	Cosine float32
}

// Embedder encodes strings into L2-normalized vectors (§4.5).
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// SemanticRetriever wraps a VectorStore, implementing §4.4's contract:
// Query(q_vec, k) -> [(id, cosine)].
type SemanticRetriever struct {
	store VectorStore
}

// NewSemanticRetriever builds (or opens, if cachePath exists) the HNSW
// index over cs's case texts, encoding them with embedder.
func NewSemanticRetriever(ctx context.Context, cs *CaseStore, embedder Embedder, cachePath string, dimensions int) (*SemanticRetriever, error) {
	cfg := DefaultVectorStoreConfig(dimensions)
	hstore, err := NewHNSWStore(cfg)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if _, err := os.Stat(cachePath); err == nil {
			if loadErr := hstore.Load(cachePath); loadErr == nil {
				return &SemanticRetriever{store: hstore}, nil
			}
		}
	}

	all := cs.All()
	ids := make([]string, 0, len(all))
	texts := make([]string, 0, len(all))
	for _, fc := range all {
		if fc.Text == "" {
			continue
		}
		ids = append(ids, fc.ID)
		texts = append(texts, fc.Text)
	}

	if len(texts) > 0 {
		vecs, err := embedder.Encode(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode case texts: %w", err)
		}
		if err := hstore.Add(ctx, ids, vecs); err != nil {
			return nil, fmt.Errorf("failed to build semantic index: %w", err)
		}
	}

	if cachePath != "" {
		if err := hstore.Save(cachePath); err != nil {
			return nil, fmt.Errorf("failed to persist semantic index: %w", err)
		}
	}

	return &SemanticRetriever{store: hstore}, nil
}

// Query returns the k nearest neighbors to vec by cosine similarity.
func (r *SemanticRetriever) Query(ctx context.Context, vec []float32, k int) ([]VectorHit, error) {
	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, VectorHit{ID: res.ID, Cosine: res.Cosine})
	}
	return hits, nil
}

// Close releases the underlying vector store.
func (r *SemanticRetriever) Close() error {
	return r.store.Close()
}
