package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettings_Defaults(t *testing.T) {
	s := NewSettings()

	assert.Equal(t, 0.84, s.Thresholds.PassThreshold)
	assert.Equal(t, 0.65, s.Thresholds.GrayLowThreshold)
	assert.InDelta(t, 1.0, s.FusionWeights.Sum(), 1e-9)
	assert.Equal(t, 0.55, s.FusionWeights.Rerank)
}

func TestFusionWeights_Normalized(t *testing.T) {
	w := FusionWeights{Rerank: 1, Cosine: 1, BM25: 1, KGPrior: 1, Popularity: 0}
	n := w.Normalized()
	assert.InDelta(t, 1.0, n.Sum(), 1e-9)
	assert.InDelta(t, 0.25, n.Rerank, 1e-9)
}

func TestFusionWeights_Normalized_ZeroSumUnchanged(t *testing.T) {
	w := FusionWeights{}
	assert.Equal(t, w, w.Normalized())
}

func TestLoad_AppliesYAMLOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "settings.yaml")
	yamlContent := `
thresholds:
  pass_threshold: 0.9
  gray_low_threshold: 0.7
paths:
  data_file: /tmp/custom-cases.jsonl
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0o644))

	s, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 0.9, s.Thresholds.PassThreshold)
	assert.Equal(t, 0.7, s.Thresholds.GrayLowThreshold)
	assert.Equal(t, "/tmp/custom-cases.jsonl", s.Paths.DataFile)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.84, s.Thresholds.PassThreshold)
}

func TestLoad_EnvOverridesWinOverYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("thresholds:\n  pass_threshold: 0.9\n"), 0o644))

	t.Setenv("PASS_THRESHOLD", "0.77")
	s, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 0.77, s.Thresholds.PassThreshold)
}

func TestLoad_FusionWeightEnvOverride_Renormalizes(t *testing.T) {
	t.Setenv("FUSION_RERANK_WEIGHT", "10")
	t.Setenv("FUSION_COSINE_WEIGHT", "0")
	t.Setenv("FUSION_BM25_WEIGHT", "0")
	t.Setenv("FUSION_KG_PRIOR_WEIGHT", "0")
	t.Setenv("FUSION_POPULARITY_WEIGHT", "0")

	s, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.FusionWeights.Sum(), 1e-9)
	assert.InDelta(t, 1.0, s.FusionWeights.Rerank, 1e-9)
}

func TestLoad_AllWeightsZero_ReturnsFatalError(t *testing.T) {
	t.Setenv("FUSION_RERANK_WEIGHT", "0")
	t.Setenv("FUSION_COSINE_WEIGHT", "0")
	t.Setenv("FUSION_BM25_WEIGHT", "0")
	t.Setenv("FUSION_KG_PRIOR_WEIGHT", "0")
	t.Setenv("FUSION_POPULARITY_WEIGHT", "0")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidate_GrayLowAbovePassIsInvalid(t *testing.T) {
	s := NewSettings()
	s.Thresholds.GrayLowThreshold = 0.95
	s.Thresholds.PassThreshold = 0.5

	err := s.Validate()
	require.Error(t, err)
}

func TestLoadCalibration_OverlaysKnownFields(t *testing.T) {
	tmpDir := t.TempDir()
	calPath := filepath.Join(tmpDir, "calibration.json")
	calContent := `{
		"pass_threshold": 0.88,
		"fusion_weights": {"rerank": 0.6, "cosine": 0.2, "bm25": 0.1, "kg_prior": 0.05, "popularity": 0.05},
		"unknown_field": "ignored"
	}`
	require.NoError(t, os.WriteFile(calPath, []byte(calContent), 0o644))

	s := NewSettings()
	require.NoError(t, s.LoadCalibration(calPath))

	assert.Equal(t, 0.88, s.Thresholds.PassThreshold)
	assert.Equal(t, 0.65, s.Thresholds.GrayLowThreshold) // unchanged
	assert.InDelta(t, 1.0, s.FusionWeights.Sum(), 1e-9)
}

func TestLoadCalibration_MissingFileIsNotError(t *testing.T) {
	s := NewSettings()
	err := s.LoadCalibration(filepath.Join(t.TempDir(), "missing.json"))
	assert.NoError(t, err)
}
