// Package config loads process-wide Settings for the fault-case retrieval
// core: gray-zone thresholds, fusion weights, calibration and index paths,
// and LLM endpoint credentials. Settings are loaded once at process start
// from defaults, an optional YAML file, and environment variable overrides,
// then held immutable for the lifetime of the process.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	coreerrors "github.com/faultmatch/core/internal/errors"
)

// Thresholds gates the gray-zone router's direct/gray/reject decision.
type Thresholds struct {
	PassThreshold   float64 `yaml:"pass_threshold"`
	GrayLowThreshold float64 `yaml:"gray_low_threshold"`
}

// FusionWeights are the per-source contributions to final_score. They are
// normalized so Sum() == 1 whenever they are loaded or overridden.
type FusionWeights struct {
	Rerank     float64 `yaml:"rerank" json:"rerank"`
	Cosine     float64 `yaml:"cosine" json:"cosine"`
	BM25       float64 `yaml:"bm25" json:"bm25"`
	KGPrior    float64 `yaml:"kg_prior" json:"kg_prior"`
	Popularity float64 `yaml:"popularity" json:"popularity"`
}

// Sum returns the total weight mass.
func (w FusionWeights) Sum() float64 {
	return w.Rerank + w.Cosine + w.BM25 + w.KGPrior + w.Popularity
}

// Normalized returns w scaled so its components sum to 1. If w sums to
// zero, w is returned unchanged — callers must check Sum() == 0 themselves
// (see Settings.Validate).
func (w FusionWeights) Normalized() FusionWeights {
	total := w.Sum()
	if total == 0 {
		return w
	}
	return FusionWeights{
		Rerank:     w.Rerank / total,
		Cosine:     w.Cosine / total,
		BM25:       w.BM25 / total,
		KGPrior:    w.KGPrior / total,
		Popularity: w.Popularity / total,
	}
}

// Paths collects the on-disk locations of persisted state: the JSONL
// knowledge base, the TF-IDF cache, the HNSW index and its sidecar id
// table, and the optional calibration JSON.
type Paths struct {
	DataFile             string `yaml:"data_file"`
	HNSWIndexPath        string `yaml:"hnsw_index_path"`
	TFIDFCachePath       string `yaml:"tfidf_cache_path"`
	ScoreCalibrationPath string `yaml:"score_calibration_path"`
}

// LLMConfig holds the closed-set picker's endpoint credentials and model
// ids. APIKey is never logged or serialized back out.
type LLMConfig struct {
	APIBase       string `yaml:"openai_api_base"`
	APIKey        string `yaml:"-"`
	Model         string `yaml:"openai_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	RerankerModel string `yaml:"reranker_model"`
}

// RemoteConfig holds the external full-text+vector backend's endpoint and
// index name. Endpoint empty means the remote source is disabled and the
// pipeline runs keyword+semantic only.
type RemoteConfig struct {
	Endpoint  string `yaml:"remote_endpoint"`
	Index     string `yaml:"remote_index"`
	TimeoutMS int    `yaml:"remote_timeout_ms"`
}

// RerankConfig holds the cross-encoder reranker's endpoint. Endpoint empty
// means the no-op reranker is used and rerank never contributes to fusion.
type RerankConfig struct {
	Endpoint    string `yaml:"rerank_endpoint"`
	Concurrency int    `yaml:"rerank_concurrency"`
	TimeoutMS   int    `yaml:"rerank_timeout_ms"`
}

// Settings is the full process-wide configuration, loaded once at startup
// and held immutable thereafter.
type Settings struct {
	Thresholds    Thresholds    `yaml:"thresholds"`
	FusionWeights FusionWeights `yaml:"fusion_weights"`
	Paths         Paths         `yaml:"paths"`
	LLM           LLMConfig     `yaml:"llm"`
	Remote        RemoteConfig  `yaml:"remote"`
	Rerank        RerankConfig  `yaml:"rerank"`
}

// calibrationFile mirrors the optional calibration JSON sidecar: unknown
// keys are ignored and missing keys fall back to the loaded defaults.
type calibrationFile struct {
	PassThreshold    *float64       `json:"pass_threshold"`
	GrayLowThreshold *float64       `json:"gray_low_threshold"`
	FusionWeights    *FusionWeights `json:"fusion_weights"`
}

// NewSettings returns Settings populated with the spec's documented
// defaults: thresholds (0.84, 0.65) and fusion weights
// {0.55, 0.20, 0.10, 0.10, 0.05}.
func NewSettings() *Settings {
	home, err := os.UserHomeDir()
	base := filepath.Join(os.TempDir(), ".faultmatch")
	if err == nil {
		base = filepath.Join(home, ".faultmatch")
	}

	return &Settings{
		Thresholds: Thresholds{
			PassThreshold:    0.84,
			GrayLowThreshold: 0.65,
		},
		FusionWeights: FusionWeights{
			Rerank:     0.55,
			Cosine:     0.20,
			BM25:       0.10,
			KGPrior:    0.10,
			Popularity: 0.05,
		},
		Paths: Paths{
			DataFile:             filepath.Join(base, "cases.jsonl"),
			HNSWIndexPath:        filepath.Join(base, "index", "hnsw.bin"),
			TFIDFCachePath:       filepath.Join(base, "index", "bm25"),
			ScoreCalibrationPath: filepath.Join(base, "calibration.json"),
		},
		LLM: LLMConfig{
			APIBase:        "http://localhost:11434/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "nomic-embed-text",
			RerankerModel:  "bge-reranker-base",
		},
		Remote: RemoteConfig{
			Endpoint:  "",
			Index:     "fault_cases",
			TimeoutMS: 2000,
		},
		Rerank: RerankConfig{
			Endpoint:    "",
			Concurrency: 3,
			TimeoutMS:   3000,
		},
	}
}

// Load builds Settings from defaults, then an optional YAML file at path
// (skipped entirely when path is empty or does not exist), then
// environment variable overrides, then validates the result.
//
// Precedence, lowest to highest: NewSettings defaults < YAML file <
// environment variables.
func Load(path string) (*Settings, error) {
	s := NewSettings()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := s.loadYAML(path); err != nil {
				return nil, coreerrors.ConfigError(fmt.Sprintf("failed to load config file %s", path), err)
			}
		}
	}

	s.applyEnvOverrides()
	s.FusionWeights = s.FusionWeights.Normalized()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file Settings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	s.mergeWith(&file)
	return nil
}

// mergeWith overlays non-zero fields from other onto s.
func (s *Settings) mergeWith(other *Settings) {
	if other.Thresholds.PassThreshold != 0 {
		s.Thresholds.PassThreshold = other.Thresholds.PassThreshold
	}
	if other.Thresholds.GrayLowThreshold != 0 {
		s.Thresholds.GrayLowThreshold = other.Thresholds.GrayLowThreshold
	}
	if other.FusionWeights.Sum() != 0 {
		s.FusionWeights = other.FusionWeights
	}
	if other.Paths.DataFile != "" {
		s.Paths.DataFile = other.Paths.DataFile
	}
	if other.Paths.HNSWIndexPath != "" {
		s.Paths.HNSWIndexPath = other.Paths.HNSWIndexPath
	}
	if other.Paths.TFIDFCachePath != "" {
		s.Paths.TFIDFCachePath = other.Paths.TFIDFCachePath
	}
	if other.Paths.ScoreCalibrationPath != "" {
		s.Paths.ScoreCalibrationPath = other.Paths.ScoreCalibrationPath
	}
	if other.LLM.APIBase != "" {
		s.LLM.APIBase = other.LLM.APIBase
	}
	if other.LLM.Model != "" {
		s.LLM.Model = other.LLM.Model
	}
	if other.LLM.EmbeddingModel != "" {
		s.LLM.EmbeddingModel = other.LLM.EmbeddingModel
	}
	if other.LLM.RerankerModel != "" {
		s.LLM.RerankerModel = other.LLM.RerankerModel
	}
	if other.Remote.Endpoint != "" {
		s.Remote.Endpoint = other.Remote.Endpoint
	}
	if other.Remote.Index != "" {
		s.Remote.Index = other.Remote.Index
	}
	if other.Remote.TimeoutMS != 0 {
		s.Remote.TimeoutMS = other.Remote.TimeoutMS
	}
	if other.Rerank.Endpoint != "" {
		s.Rerank.Endpoint = other.Rerank.Endpoint
	}
	if other.Rerank.Concurrency != 0 {
		s.Rerank.Concurrency = other.Rerank.Concurrency
	}
	if other.Rerank.TimeoutMS != 0 {
		s.Rerank.TimeoutMS = other.Rerank.TimeoutMS
	}
}

// applyEnvOverrides reads the spec's documented environment variables,
// including per-source fusion weight overrides of the form
// FUSION_<SOURCE>_WEIGHT.
func (s *Settings) applyEnvOverrides() {
	if v := os.Getenv("PASS_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.Thresholds.PassThreshold = f
		}
	}
	if v := os.Getenv("GRAY_LOW_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.Thresholds.GrayLowThreshold = f
		}
	}

	if v := os.Getenv("FUSION_RERANK_WEIGHT"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.FusionWeights.Rerank = f
		}
	}
	if v := os.Getenv("FUSION_COSINE_WEIGHT"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.FusionWeights.Cosine = f
		}
	}
	if v := os.Getenv("FUSION_BM25_WEIGHT"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.FusionWeights.BM25 = f
		}
	}
	if v := os.Getenv("FUSION_KG_PRIOR_WEIGHT"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.FusionWeights.KGPrior = f
		}
	}
	if v := os.Getenv("FUSION_POPULARITY_WEIGHT"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			s.FusionWeights.Popularity = f
		}
	}

	if v := os.Getenv("DATA_FILE"); v != "" {
		s.Paths.DataFile = v
	}
	if v := os.Getenv("HNSW_INDEX_PATH"); v != "" {
		s.Paths.HNSWIndexPath = v
	}
	if v := os.Getenv("TFIDF_CACHE_PATH"); v != "" {
		s.Paths.TFIDFCachePath = v
	}
	if v := os.Getenv("SCORE_CALIBRATION_PATH"); v != "" {
		s.Paths.ScoreCalibrationPath = v
	}

	if v := os.Getenv("OPENAI_API_BASE"); v != "" {
		s.LLM.APIBase = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		s.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		s.LLM.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		s.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("RERANKER_MODEL"); v != "" {
		s.LLM.RerankerModel = v
	}

	if v := os.Getenv("REMOTE_SEARCH_ENDPOINT"); v != "" {
		s.Remote.Endpoint = v
	}
	if v := os.Getenv("REMOTE_SEARCH_INDEX"); v != "" {
		s.Remote.Index = v
	}
	if v := os.Getenv("REMOTE_SEARCH_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Remote.TimeoutMS = n
		}
	}
	if v := os.Getenv("RERANK_ENDPOINT"); v != "" {
		s.Rerank.Endpoint = v
	}
	if v := os.Getenv("RERANK_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Rerank.Concurrency = n
		}
	}
	if v := os.Getenv("RERANK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Rerank.TimeoutMS = n
		}
	}
}

// LoadCalibration overlays the optional calibration JSON sidecar onto s.
// Unknown keys are ignored by json.Unmarshal; missing keys leave the
// already-loaded values in place.
func (s *Settings) LoadCalibration(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return coreerrors.ConfigError(fmt.Sprintf("failed to read calibration file %s", path), err)
	}

	var cal calibrationFile
	if err := json.Unmarshal(data, &cal); err != nil {
		return coreerrors.ConfigError(fmt.Sprintf("failed to parse calibration file %s", path), err)
	}

	if cal.PassThreshold != nil {
		s.Thresholds.PassThreshold = *cal.PassThreshold
	}
	if cal.GrayLowThreshold != nil {
		s.Thresholds.GrayLowThreshold = *cal.GrayLowThreshold
	}
	if cal.FusionWeights != nil {
		s.FusionWeights = cal.FusionWeights.Normalized()
	}
	return nil
}

// Validate enforces the invariants the spec requires before Settings may
// be used: fusion weights must not all be zero (sum-to-zero is fatal,
// since normalization would divide by zero), and thresholds must be
// ordered gray_low <= pass.
func (s *Settings) Validate() error {
	if s.FusionWeights.Sum() == 0 {
		return coreerrors.New(coreerrors.ErrCodeConfigWeightsZero,
			"fusion weights sum to zero", nil)
	}
	if s.Thresholds.GrayLowThreshold > s.Thresholds.PassThreshold {
		return coreerrors.New(coreerrors.ErrCodeConfigInvalid,
			"gray_low_threshold must be <= pass_threshold", nil)
	}
	if s.Paths.DataFile == "" {
		return coreerrors.New(coreerrors.ErrCodeConfigInvalid,
			"data file path must not be empty", nil)
	}
	return nil
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
