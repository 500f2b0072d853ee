package calib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestComputeStats_SingleValue_FloorsStd(t *testing.T) {
	s := ComputeStats([]float64{3.0})
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 3.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.LessOrEqual(t, s.Std, epsilon)
}

func TestComputeStats_MultipleValues(t *testing.T) {
	s := ComputeStats([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.InDelta(t, math.Sqrt(2.5), s.Std, 1e-9)
}

func TestLogisticFromStats_ReturnsUnitRange(t *testing.T) {
	stats := ComputeStats([]float64{1, 2, 3, 4, 5, 100})
	for _, x := range []float64{-10, 0, 3, 50, 1000} {
		v := LogisticFromStats(x, stats, 1.0)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestLogisticFromStats_MeanMapsNearHalf(t *testing.T) {
	stats := ComputeStats([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, 0.5, LogisticFromStats(stats.Mean, stats, 1.0), 1e-9)
}

func TestLogisticFromStats_DegenerateSingleValueFallsBackToHeuristic(t *testing.T) {
	stats := ComputeStats([]float64{7.0})
	// std floored to epsilon, max == min, so this is degenerate: 0.5.
	assert.Equal(t, 0.5, LogisticFromStats(7.0, stats, 1.0))
}

func TestLogisticFromStats_MinMaxHeuristicWhenStdBelowEpsilon(t *testing.T) {
	stats := Stats{Mean: 5, Std: 0, Min: 0, Max: 10}
	assert.InDelta(t, 0.5, LogisticFromStats(5, stats, 1.0), 1e-9)
	assert.InDelta(t, 0.0, LogisticFromStats(0, stats, 1.0), 1e-9)
	assert.InDelta(t, 1.0, LogisticFromStats(10, stats, 1.0), 1e-9)
}

func TestNormalizeWeights_SumsToOne(t *testing.T) {
	w := map[string]float64{"a": 2, "b": 2, "c": 4}
	out := NormalizeWeights(w, map[string]float64{"a": 1.0 / 3, "b": 1.0 / 3, "c": 1.0 / 3})

	var total float64
	for _, v := range out {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, 0.25, out["a"], 1e-9)
}

func TestNormalizeWeights_AllZeroRestoresDefaults(t *testing.T) {
	w := map[string]float64{"a": 0, "b": 0}
	defaults := map[string]float64{"a": 0.5, "b": 0.5}

	out := NormalizeWeights(w, defaults)
	assert.Equal(t, defaults, out)
}
