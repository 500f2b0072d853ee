// Package fusion merges per-source retrieval results into a single ranked
// candidate list. Unlike the teacher's reciprocal-rank fusion, this package
// fuses a per-request-calibrated weighted sum of normalized scores plus
// structured priors, per the retrieval core's documented algorithm.
package fusion

import (
	"math"
	"sort"
	"strings"

	"github.com/faultmatch/core/internal/calib"
	"github.com/faultmatch/core/internal/config"
	"github.com/faultmatch/core/internal/domain"
	"github.com/faultmatch/core/internal/store"
)

// scoreEpsilon is the tie-break tolerance on final scores (spec step 6).
const scoreEpsilon = 1e-6

// whyThreshold is the per-component threshold above which a why tag fires
// (spec step 5).
const whyThreshold = 0.6

// RemoteCandidate is a hit contributed by the remote search adapter,
// reduced to the fields fusion needs.
type RemoteCandidate struct {
	ID    string
	Score float64
}

// Sources bundles the per-retriever result lists for one request. RerankRaw
// maps candidate id to the reranker's raw logit; nil or empty means rerank
// did not run for this fuse pass.
type Sources struct {
	BM25      []store.KeywordHit
	Cosine    []store.VectorHit
	Remote    []RemoteCandidate
	RerankRaw map[string]float64
}

// Fuse implements the retrieval core's fusion algorithm: union by id,
// per-request logistic calibration of bm25/cosine/rerank, structured
// kg_prior/popularity_norm priors, a weighted sum, why-tag emission, and a
// deterministic tie-break, truncated to topN.
//
// cases supplies the case metadata (text, facets, popularity) for every id
// that appears in any source; an id with no corresponding case is dropped
// from the union, since a candidate the caller cannot resolve to a case
// cannot be returned.
func Fuse(src Sources, cases map[string]*domain.FaultCase, weights config.FusionWeights, hints domain.Hints, p95Popularity float64, topN int) []*domain.Candidate {
	union := make(map[string]*domain.Candidate)

	getOrCreate := func(id string) *domain.Candidate {
		if c, ok := union[id]; ok {
			return c
		}
		fc, ok := cases[id]
		if !ok {
			return nil
		}
		c := &domain.Candidate{
			ID:          id,
			Text:        fc.Text,
			System:      fc.System,
			Part:        fc.Part,
			Tags:        fc.Tags,
			VehicleType: fc.VehicleType,
			FaultCode:   fc.FaultCode,
			Popularity:  fc.Popularity,
		}
		union[id] = c
		return c
	}

	for _, hit := range src.BM25 {
		c := getOrCreate(hit.ID)
		if c == nil {
			continue
		}
		c.BM25Raw = hit.RawScore
		c.HasBM25 = true
		c.AddSource(domain.SourceKeyword)
	}

	for _, hit := range src.Cosine {
		c := getOrCreate(hit.ID)
		if c == nil {
			continue
		}
		c.CosineRaw = float64(hit.Cosine)
		c.HasCosine = true
		c.AddSource(domain.SourceSemantic)
	}

	// A remote hit that duplicates a local keyword hit keeps the local
	// bm25 raw score (it was already computed locally and is directly
	// comparable to other local bm25 values) but still records remote as
	// a contributing source for provenance.
	for _, hit := range src.Remote {
		c := getOrCreate(hit.ID)
		if c == nil {
			continue
		}
		if !c.HasBM25 {
			c.BM25Raw = hit.Score
			c.HasBM25 = true
		}
		c.AddSource(domain.SourceRemote)
	}

	for id, raw := range src.RerankRaw {
		c := getOrCreate(id)
		if c == nil {
			continue
		}
		c.RerankRaw = raw
		c.HasRerank = true
		c.AddSource(domain.SourceRerank)
	}

	if len(union) == 0 {
		return []*domain.Candidate{}
	}

	candidates := make([]*domain.Candidate, 0, len(union))
	for _, c := range union {
		candidates = append(candidates, c)
	}

	normalizeSource(candidates,
		func(c *domain.Candidate) (float64, bool) { return c.BM25Raw, c.HasBM25 },
		func(c *domain.Candidate, v float64) { c.BM25 = v })
	normalizeSource(candidates,
		func(c *domain.Candidate) (float64, bool) { return c.CosineRaw, c.HasCosine },
		func(c *domain.Candidate, v float64) { c.Cosine = v })
	normalizeSource(candidates,
		func(c *domain.Candidate) (float64, bool) { return c.RerankRaw, c.HasRerank },
		func(c *domain.Candidate, v float64) { c.Rerank = v })

	for _, c := range candidates {
		c.KGPrior = kgPrior(c, hints)
		c.PopularityNorm = popularityNorm(c.Popularity, p95Popularity)
		c.FinalScore = weights.Rerank*c.Rerank + weights.Cosine*c.Cosine + weights.BM25*c.BM25 +
			weights.KGPrior*c.KGPrior + weights.Popularity*c.PopularityNorm
		c.Why = whyTags(c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	if topN > 0 && topN < len(candidates) {
		candidates = candidates[:topN]
	}
	return candidates
}

// normalizeSource computes per-request stats over whichever candidates have
// the raw score present and writes the logistic-calibrated value back.
// Candidates missing the source keep a normalized score of 0, per spec
// step 2.
func normalizeSource(candidates []*domain.Candidate, raw func(*domain.Candidate) (float64, bool), set func(*domain.Candidate, float64)) {
	var values []float64
	for _, c := range candidates {
		if v, ok := raw(c); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return
	}
	stats := calib.ComputeStats(values)
	for _, c := range candidates {
		if v, ok := raw(c); ok {
			set(c, calib.LogisticFromStats(v, stats, 1.0))
		}
	}
}

// kgPrior implements spec step 3's structured prior: 1.0 for an exact
// system match, 0.7 for an exact part match, 0.5 when both facets loosely
// (substring) match, 0.0 otherwise (or when no hint is provided).
func kgPrior(c *domain.Candidate, hints domain.Hints) float64 {
	if hints.System == "" && hints.Part == "" && hints.VehicleType == "" && hints.FaultCode == "" {
		return 0
	}

	best := 0.0
	if hints.System != "" && equalFold(c.System, hints.System) {
		best = math.Max(best, 1.0)
	}
	if hints.Part != "" && equalFold(c.Part, hints.Part) {
		best = math.Max(best, 0.7)
	}
	if hints.System != "" && hints.Part != "" &&
		containsFold(c.System, hints.System) && containsFold(c.Part, hints.Part) {
		best = math.Max(best, 0.5)
	}
	return best
}

func equalFold(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(strings.ToLower(a), strings.ToLower(b)) ||
		strings.Contains(strings.ToLower(b), strings.ToLower(a))
}

// popularityNorm implements spec step 3's popularity prior.
func popularityNorm(popularity, p95 float64) float64 {
	if popularity <= 0 || p95 <= 0 {
		return 0
	}
	v := math.Log1p(popularity) / math.Log1p(p95)
	if v > 1 {
		return 1
	}
	return v
}

// whyTags implements spec step 5: one tag per component exceeding
// whyThreshold, in the fixed enumeration order cosine, bm25, kg_prior,
// popularity, rerank.
func whyTags(c *domain.Candidate) []string {
	var tags []string
	if c.Cosine > whyThreshold {
		tags = append(tags, "语义近")
	}
	if c.BM25 > whyThreshold {
		tags = append(tags, "关键词命中")
	}
	if c.KGPrior > whyThreshold {
		if c.KGPrior >= 1.0 {
			tags = append(tags, "系统一致")
		} else {
			tags = append(tags, "部件相近")
		}
	}
	if c.PopularityNorm > whyThreshold {
		tags = append(tags, "高热度")
	}
	if c.Rerank > whyThreshold {
		tags = append(tags, "精排优")
	}
	return tags
}

// less implements spec step 6's tie-break: final score descending, then
// rerank descending, then cosine descending, then id ascending.
func less(a, b *domain.Candidate) bool {
	if math.Abs(a.FinalScore-b.FinalScore) > scoreEpsilon {
		return a.FinalScore > b.FinalScore
	}
	if a.Rerank != b.Rerank {
		return a.Rerank > b.Rerank
	}
	if a.Cosine != b.Cosine {
		return a.Cosine > b.Cosine
	}
	return a.ID < b.ID
}
