package embed

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_StaticProvider_AlwaysSucceeds(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, ProviderStatic, "")
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.Equal(t, "static", embedder.ModelName())
	assert.True(t, embedder.Available(ctx))
}

func TestNewEmbedder_OllamaProvider_UnavailableReturnsError(t *testing.T) {
	ctx := context.Background()
	_, err := NewEmbedder(ctx, ProviderOllama, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama")
}

func TestNewEmbedder_EnvProviderOverridesArgument(t *testing.T) {
	orig := os.Getenv("EMBEDDER_PROVIDER")
	defer os.Setenv("EMBEDDER_PROVIDER", orig)
	os.Setenv("EMBEDDER_PROVIDER", "static")

	embedder, err := NewEmbedder(context.Background(), ProviderOllama, "")
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.Equal(t, "static", embedder.ModelName())
}

func TestNewEmbedder_CacheDisabledByEnv(t *testing.T) {
	origProvider := os.Getenv("EMBEDDER_PROVIDER")
	origCache := os.Getenv("EMBEDDER_CACHE")
	defer func() {
		os.Setenv("EMBEDDER_PROVIDER", origProvider)
		os.Setenv("EMBEDDER_CACHE", origCache)
	}()
	os.Setenv("EMBEDDER_PROVIDER", "static")
	os.Setenv("EMBEDDER_CACHE", "false")

	embedder, err := NewEmbedder(context.Background(), ProviderOllama, "")
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	_, isCached := embedder.(*CachedEmbedder)
	assert.False(t, isCached)
}

func TestNewEmbedder_CacheEnabledByDefault(t *testing.T) {
	origProvider := os.Getenv("EMBEDDER_PROVIDER")
	origCache := os.Getenv("EMBEDDER_CACHE")
	defer func() {
		os.Setenv("EMBEDDER_PROVIDER", origProvider)
		os.Setenv("EMBEDDER_CACHE", origCache)
	}()
	os.Setenv("EMBEDDER_PROVIDER", "static")
	os.Unsetenv("EMBEDDER_CACHE")

	embedder, err := NewEmbedder(context.Background(), ProviderOllama, "")
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	_, isCached := embedder.(*CachedEmbedder)
	assert.True(t, isCached)
}

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderOllama, ParseProvider("unknown"))
	assert.Equal(t, ProviderOllama, ParseProvider(""))
}

func TestGetInfo_ReportsStaticProvider(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, StaticDimensions, info.Dimensions)
	assert.True(t, info.Available)
}

func TestGetInfo_UnwrapsCachedEmbedder(t *testing.T) {
	inner := NewStaticEmbedder()
	cached := NewCachedEmbedderWithDefaults(inner)
	defer func() { _ = cached.Close() }()

	info := GetInfo(context.Background(), cached)
	assert.Equal(t, ProviderStatic, info.Provider)
}
