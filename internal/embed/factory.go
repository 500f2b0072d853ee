package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType selects which embedding backend to construct.
type ProviderType string

const (
	// ProviderOllama uses Ollama's HTTP API (the default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses the hash-based fallback when no remote
	// embedding service is configured.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder builds an embedder for provider (explicitly named; empty or
// unrecognized means Ollama), wrapped in an LRU cache unless
// EMBEDDER_CACHE disables it. It does not fall back to the static
// embedder when Ollama is unreachable; it returns an error instead.
//
// The EMBEDDER_PROVIDER environment variable overrides provider when
// set: "ollama" or "static".
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("EMBEDDER_PROVIDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	case ProviderOllama:
		embedder, err = newOllama(ctx, model)
	default:
		embedder, err = newOllama(ctx, model)
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("EMBEDDER_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

func newOllama(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" {
		cfg.Model = model
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder unavailable (set EMBEDDER_PROVIDER=static to fall back): %w", err)
	}
	return embedder, nil
}

// ParseProvider converts a string to a ProviderType, defaulting to
// Ollama for anything unrecognized.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// String returns the string representation of the provider.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderStatic)}
}

// EmbedderInfo describes a constructed embedder for status reporting.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo reports the provider, model, dimension, and availability of
// embedder, unwrapping a CachedEmbedder to inspect the underlying type.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}

	return info
}
