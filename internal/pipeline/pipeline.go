// Package pipeline orchestrates one request end to end: normalize, fan out
// to the keyword/semantic/remote retrievers concurrently, fuse, optionally
// rerank and re-fuse, route through the gray-zone decision, optionally
// adjudicate with the LLM picker, and assemble the response.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultmatch/core/internal/config"
	"github.com/faultmatch/core/internal/domain"
	coreerrors "github.com/faultmatch/core/internal/errors"
	"github.com/faultmatch/core/internal/fusion"
	"github.com/faultmatch/core/internal/llm"
	"github.com/faultmatch/core/internal/normalize"
	"github.com/faultmatch/core/internal/remote"
	"github.com/faultmatch/core/internal/rerank"
	"github.com/faultmatch/core/internal/router"
	"github.com/faultmatch/core/internal/store"
)

// Defaults per spec §4.11 / §5.
const (
	DefaultTopKVec     = 50
	DefaultTopKKw      = 50
	DefaultTopNReturn  = 3
	DefaultKRerank     = 20
	DefaultPerSourceTO = 1500 * time.Millisecond
	DefaultRerankTO    = 500 * time.Millisecond
	DefaultLLMTO       = 20 * time.Second
)

// Embedder encodes a query string into a vector for semantic / remote
// knn search. Satisfied by internal/embed's Embedder implementations.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is one caller's match request.
type Request struct {
	Query      string
	Hints      domain.Hints
	TopKVec    int
	TopKKw     int
	TopNReturn int
	KRerank    int
	UseRemote  bool
	UseLLM     bool
}

// applyDefaults fills zero-valued fields with the spec's documented
// defaults.
func (r Request) applyDefaults() Request {
	if r.TopKVec <= 0 {
		r.TopKVec = DefaultTopKVec
	}
	if r.TopKKw <= 0 {
		r.TopKKw = DefaultTopKKw
	}
	if r.TopNReturn <= 0 {
		r.TopNReturn = DefaultTopNReturn
	}
	if r.KRerank <= 0 {
		r.KRerank = DefaultKRerank
	}
	return r
}

// TopResult is one ranked case in the assembled response, matching spec
// §6's "top[]" shape.
type TopResult struct {
	ID          string              `json:"id"`
	Text        string              `json:"text"`
	System      string              `json:"system,omitempty"`
	Part        string              `json:"part,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Popularity  float64             `json:"popularity"`
	BM25Score   float64             `json:"bm25_score"`
	Cosine      float64             `json:"cosine"`
	RerankScore float64             `json:"rerank_score"`
	FinalScore  float64             `json:"final_score"`
	Why         []string            `json:"why,omitempty"`
	Sources     []domain.Source     `json:"sources,omitempty"`
	Highlight   map[string]string   `json:"highlight,omitempty"`
}

// Metadata reports which optional stages ran, per spec §6.
type Metadata struct {
	SemanticUsed      bool `json:"semantic_used"`
	RemoteUsed        bool `json:"remote_used"`
	VectorK           int  `json:"vector_k"`
	KeywordSize       int  `json:"keyword_size"`
	LLMUsed           bool `json:"llm_used"`
	LLMCandidateCount int  `json:"llm_candidate_count"`
}

// Response is the assembled result of one request, per spec §6.
type Response struct {
	Query    string          `json:"query"`
	Total    int             `json:"total"`
	Top      []TopResult     `json:"top"`
	Decision domain.Decision `json:"decision"`
	Metadata Metadata        `json:"metadata,omitempty"`
}

// Timeouts bounds each suspension point per spec §5.
type Timeouts struct {
	PerSource time.Duration
	Rerank    time.Duration
	LLM       time.Duration
}

func (t Timeouts) applyDefaults() Timeouts {
	if t.PerSource <= 0 {
		t.PerSource = DefaultPerSourceTO
	}
	if t.Rerank <= 0 {
		t.Rerank = DefaultRerankTO
	}
	if t.LLM <= 0 {
		t.LLM = DefaultLLMTO
	}
	return t
}

// Orchestrator wires together every retrieval source and scoring stage
// behind a single Handle entrypoint. Reranker and Picker may be nil/no-op
// when not configured, per spec's optionality of those stages.
type Orchestrator struct {
	Cases     *store.CaseStore
	Keyword   *store.KeywordRetriever
	Semantic  *store.SemanticRetriever
	Remote    *remote.Adapter
	Embedder  Embedder
	Reranker  rerank.Reranker
	Picker    llm.Picker
	Weights   config.FusionWeights
	Threshold config.Thresholds
	Timeouts  Timeouts
}

// Handle runs the full request flow described in spec §4.11.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	req = req.applyDefaults()
	timeouts := o.Timeouts.applyDefaults()

	query := normalize.Normalize(req.Query)
	if query == "" {
		return &Response{
			Query:    query,
			Decision: domain.Decision{Mode: domain.ModeNoMatch, Reason: "empty query"},
		}, nil
	}

	sources, meta, err := o.retrieve(ctx, query, req, timeouts.PerSource)
	if err != nil {
		return &Response{
			Query:    query,
			Decision: domain.Decision{Mode: domain.ModeNoMatch, Reason: "all sources failed"},
			Metadata: meta,
		}, nil
	}

	p95 := 0.0
	if o.Cases != nil {
		p95 = o.Cases.PopularityP95()
	}

	cases := o.buildCaseMap(sources)

	firstN := req.KRerank
	if req.TopNReturn > firstN {
		firstN = req.TopNReturn
	}
	candidates := fusion.Fuse(sources, cases, o.Weights, req.Hints, p95, firstN)

	candidates = o.rerankAndRefuse(ctx, query, candidates, sources, cases, req, timeouts.Rerank, p95)

	if len(candidates) > req.TopNReturn {
		candidates = candidates[:req.TopNReturn]
	}

	decision := router.Decide(candidates, o.Threshold)

	if req.UseLLM && decision.Mode == domain.ModeGray && o.Picker != nil {
		decision = o.adjudicate(ctx, query, candidates, decision, timeouts.LLM, &meta)
	}

	return &Response{
		Query:    query,
		Total:    len(candidates),
		Top:      toTopResults(candidates),
		Decision: decision,
		Metadata: meta,
	}, nil
}

// retrieve fans out to the keyword, semantic, and (optionally) remote
// retrievers concurrently with a shared per-source deadline. A retriever
// failure is logged and contributes an empty result; only when every
// configured source fails does retrieve return an error.
func (o *Orchestrator) retrieve(ctx context.Context, query string, req Request, timeout time.Duration) (fusion.Sources, Metadata, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(deadlineCtx)

	var bm25Hits []store.KeywordHit
	var vecHits []store.VectorHit
	var remoteHits []fusion.RemoteCandidate
	var bm25Err, vecErr, remoteErr error

	if o.Keyword != nil {
		g.Go(func() error {
			hits, err := o.Keyword.Query(gctx, query, req.TopKKw)
			if err != nil {
				bm25Err = err
				slog.Warn("keyword retriever failed", slog.String("error", err.Error()))
				return nil
			}
			bm25Hits = hits
			return nil
		})
	} else {
		bm25Err = coreerrors.New(coreerrors.ErrCodeKeywordTimeout, "keyword retriever not configured", nil)
	}

	var queryVec []float32
	if o.Semantic != nil && o.Embedder != nil {
		g.Go(func() error {
			vecs, err := o.Embedder.Encode(gctx, []string{query})
			if err != nil || len(vecs) == 0 {
				vecErr = err
				if vecErr == nil {
					vecErr = coreerrors.New(coreerrors.ErrCodeSemanticTimeout, "query embedding returned no vector", nil)
				}
				slog.Warn("semantic retriever failed to embed query", slog.String("error", vecErr.Error()))
				return nil
			}
			queryVec = vecs[0]

			hits, err := o.Semantic.Query(gctx, queryVec, req.TopKVec)
			if err != nil {
				vecErr = err
				slog.Warn("semantic retriever failed", slog.String("error", err.Error()))
				return nil
			}
			vecHits = hits
			return nil
		})
	} else {
		vecErr = coreerrors.New(coreerrors.ErrCodeSemanticTimeout, "semantic retriever not configured", nil)
	}

	if o.Remote != nil && req.UseRemote {
		g.Go(func() error {
			resp, err := o.Remote.Search(gctx, remote.Query{
				Text: query,
				Filters: remote.Filters{
					System:      req.Hints.System,
					Part:        req.Hints.Part,
					VehicleType: req.Hints.VehicleType,
					FaultCode:   req.Hints.FaultCode,
				},
				K: req.TopKKw,
			})
			if err != nil {
				remoteErr = err
				slog.Warn("remote retriever failed", slog.String("error", err.Error()))
				return nil
			}
			remoteHits = make([]fusion.RemoteCandidate, 0, len(resp.Hits))
			for _, h := range resp.Hits {
				remoteHits = append(remoteHits, fusion.RemoteCandidate{ID: h.ID, Score: h.Score})
			}
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return fusion.Sources{}, Metadata{}, waitErr
	}

	meta := Metadata{
		SemanticUsed: vecErr == nil && o.Semantic != nil,
		RemoteUsed:   o.Remote != nil && req.UseRemote && remoteErr == nil,
		VectorK:      req.TopKVec,
		KeywordSize:  req.TopKKw,
	}

	allFailed := bm25Err != nil && vecErr != nil && (o.Remote == nil || !req.UseRemote || remoteErr != nil)
	if allFailed {
		return fusion.Sources{}, meta, coreerrors.New(coreerrors.ErrCodeAllSourcesFailed, "all retrieval sources failed", nil)
	}

	return fusion.Sources{BM25: bm25Hits, Cosine: vecHits, Remote: remoteHits}, meta, nil
}

// rerankAndRefuse reranks the top candidates (bounded by req.KRerank)
// with the configured reranker, if any, and re-fuses with the newly
// populated rerank_raw scores. A reranker failure or absence falls back
// to the already-fused candidates unchanged.
func (o *Orchestrator) rerankAndRefuse(ctx context.Context, query string, candidates []*domain.Candidate, sources fusion.Sources, cases map[string]*domain.FaultCase, req Request, timeout time.Duration, p95 float64) []*domain.Candidate {
	if o.Reranker == nil || len(candidates) < 2 {
		return candidates
	}

	rerankCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !o.Reranker.Available(rerankCtx) {
		return candidates
	}

	top := candidates
	if len(top) > req.KRerank {
		top = top[:req.KRerank]
	}

	docs := make([]string, len(top))
	for i, c := range top {
		docs[i] = c.Text
	}

	results, err := o.Reranker.Rerank(rerankCtx, query, docs, 0)
	if err != nil {
		slog.Warn("reranker failed, falling back to fusion without rerank", slog.String("error", err.Error()))
		return candidates
	}

	rerankRaw := make(map[string]float64, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(top) {
			continue
		}
		rerankRaw[top[r.Index].ID] = r.Score
	}

	sources.RerankRaw = rerankRaw
	return fusion.Fuse(sources, cases, o.Weights, req.Hints, p95, len(candidates))
}

// adjudicate invokes the LLM picker over the top candidates and applies
// the upgrade rule. A picker failure degrades to the base gray decision,
// per spec §7's LLM error handling.
func (o *Orchestrator) adjudicate(ctx context.Context, query string, candidates []*domain.Candidate, decision domain.Decision, timeout time.Duration, meta *Metadata) domain.Decision {
	llmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inputs := make([]llm.CandidateInput, len(candidates))
	for i, c := range candidates {
		inputs[i] = llm.CandidateInput{ID: c.ID, Text: c.Text, System: c.System, Part: c.Part}
	}

	meta.LLMUsed = true
	meta.LLMCandidateCount = len(inputs)

	result, err := o.Picker.Pick(llmCtx, query, inputs, llm.DefaultOptions())
	if err != nil {
		slog.Warn("llm picker failed, keeping base gray decision", slog.String("error", err.Error()))
		decision.Reason = decision.Reason + "; llm adjudication failed"
		return decision
	}

	return router.UpgradeWithLLM(decision, result)
}

// buildCaseMap resolves only the ids that the retrievers actually
// surfaced, mirroring the teacher's batch-enrichment pattern of fetching
// just what was returned rather than materializing the whole store.
func (o *Orchestrator) buildCaseMap(sources fusion.Sources) map[string]*domain.FaultCase {
	out := make(map[string]*domain.FaultCase)
	if o.Cases == nil {
		return out
	}

	add := func(id string) {
		if _, ok := out[id]; ok {
			return
		}
		if fc := o.Cases.Get(id); fc != nil {
			out[id] = fc
		}
	}

	for _, h := range sources.BM25 {
		add(h.ID)
	}
	for _, h := range sources.Cosine {
		add(h.ID)
	}
	for _, h := range sources.Remote {
		add(h.ID)
	}
	return out
}

func toTopResults(candidates []*domain.Candidate) []TopResult {
	results := make([]TopResult, len(candidates))
	for i, c := range candidates {
		results[i] = TopResult{
			ID:          c.ID,
			Text:        c.Text,
			System:      c.System,
			Part:        c.Part,
			Tags:        c.Tags,
			Popularity:  c.Popularity,
			BM25Score:   c.BM25,
			Cosine:      c.Cosine,
			RerankScore: c.Rerank,
			FinalScore:  c.FinalScore,
			Why:         c.Why,
			Sources:     sortedSources(c.Sources),
			Highlight:   c.Highlight,
		}
	}
	return results
}

func sortedSources(sources []domain.Source) []domain.Source {
	out := make([]domain.Source, len(sources))
	copy(out, sources)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
