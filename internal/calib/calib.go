// Package calib turns raw, query-dependent retriever scores into
// well-behaved [0,1] values using request-level statistics, so that
// fusion weights and gray-zone thresholds stay meaningful regardless of
// a source's native scale (unbounded BM25 mass, cosine in [-1,1], raw
// reranker logits).
package calib

import "math"

// epsilon floors standard deviation and range denominators to avoid
// division by zero on degenerate (single-value or constant) inputs.
const epsilon = 1e-9

// Stats holds the per-request statistics computed over one source's raw
// scores across the candidate union.
type Stats struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// ComputeStats computes mean, standard deviation (Bessel-corrected when
// more than one value is present), min, and max over values. Calling
// ComputeStats on an empty slice returns the zero Stats.
func ComputeStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))

	if len(values) > 1 {
		var sqDiff float64
		for _, v := range values {
			d := v - s.Mean
			sqDiff += d * d
		}
		s.Std = math.Sqrt(sqDiff / float64(len(values)-1))
	} else {
		s.Std = epsilon
	}

	return s
}

// LogisticFromStats maps x into [0,1] via a sigmoid centered on stats.Mean
// and scaled by stats.Std. When the sample is too small (len(values) <= 1
// was used to build stats, signaled by stats.Std <= epsilon) it falls back
// to a deterministic min-max heuristic, returning 0.5 for a degenerate
// (constant) sample.
func LogisticFromStats(x float64, stats Stats, scale float64) float64 {
	if stats.Std > epsilon {
		z := (x - stats.Mean) / stats.Std * scale
		return sigmoid(z)
	}

	rng := stats.Max - stats.Min
	if rng < epsilon {
		return 0.5
	}
	v := (x - stats.Min) / rng
	return clamp01(v)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeWeights rescales weights so they sum to 1. If weights sums to
// zero (e.g. every configured weight was zeroed out, or every weighted
// component was absent from a candidate), defaults is returned instead —
// itself assumed to already sum to 1.
func NormalizeWeights(weights, defaults map[string]float64) map[string]float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		out := make(map[string]float64, len(defaults))
		for k, v := range defaults {
			out[k] = v
		}
		return out
	}

	out := make(map[string]float64, len(weights))
	for k, w := range weights {
		out[k] = w / total
	}
	return out
}
