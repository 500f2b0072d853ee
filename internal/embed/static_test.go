package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Encode_ReturnsCorrectDimensions(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, err := embedder.Encode(context.Background(), []string{"刹车踏板发软"})

	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], StaticDimensions)
}

func TestStaticEmbedder_Encode_VectorIsNormalized(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, err := embedder.Encode(context.Background(), []string{"发动机怠速异响"})
	require.NoError(t, err)

	magnitude := vectorMagnitude(vecs[0])
	assert.InDelta(t, 1.0, magnitude, 0.001)
}

func TestStaticEmbedder_Encode_IsDeterministic(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	text := "制动距离变长，踏板发软"

	emb1, err1 := embedder.Encode(context.Background(), []string{text})
	emb2, err2 := embedder.Encode(context.Background(), []string{text})

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, emb1, emb2)
}

func TestStaticEmbedder_Encode_DeterministicAcrossInstances(t *testing.T) {
	embedder1 := NewStaticEmbedder()
	embedder2 := NewStaticEmbedder()
	defer func() { _ = embedder1.Close() }()
	defer func() { _ = embedder2.Close() }()

	text := "低速行驶时有异响"

	emb1, _ := embedder1.Encode(context.Background(), []string{text})
	emb2, _ := embedder2.Encode(context.Background(), []string{text})

	assert.Equal(t, emb1, emb2)
}

func TestStaticEmbedder_Encode_DifferentTextsProduceDifferentVectors(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	emb1, _ := embedder.Encode(context.Background(), []string{"刹车异响"})
	emb2, _ := embedder.Encode(context.Background(), []string{"空调不制冷"})

	assert.NotEqual(t, emb1[0], emb2[0])
}

func TestStaticEmbedder_Encode_EmptyInput_ReturnsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, err := embedder.Encode(context.Background(), []string{""})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	for i, v := range vecs[0] {
		assert.Equal(t, float32(0), v, "element %d should be zero", i)
	}
}

func TestStaticEmbedder_Encode_WhitespaceOnly_ReturnsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, err := embedder.Encode(context.Background(), []string{"   \t\n  "})
	require.NoError(t, err)

	for _, v := range vecs[0] {
		assert.Equal(t, float32(0), v)
	}
}

func TestStaticEmbedder_SimilarFaultText_HasHigherSimilarity(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	brakeSoft := "制动踏板发软，刹车距离变长"
	brakeNoise := "刹车时有异响，踏板偏软"
	acNoCool := "空调出风口不制冷，压缩机不启动"

	vecs, _ := embedder.Encode(context.Background(), []string{brakeSoft, brakeNoise, acNoCool})

	brakeSim := cosineSimilarity(vecs[0], vecs[1])
	crossSim := cosineSimilarity(vecs[0], vecs[2])

	assert.Greater(t, brakeSim, crossSim,
		"related brake descriptions should be more similar (%.4f) than unrelated text (%.4f)", brakeSim, crossSim)
}

func TestStaticEmbedder_Encode_PreservesFaultCodeSimilarity(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, _ := embedder.Encode(context.Background(), []string{"故障码P0420", "报故障码 P0420 三元催化效率低"})
	similarity := cosineSimilarity(vecs[0], vecs[1])
	assert.Greater(t, similarity, 0.1)
}

func TestStaticEmbedder_Available_AlwaysTrue(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	assert.True(t, embedder.Available(context.Background()))
}

func TestStaticEmbedder_Available_TrueEvenWithCancelledContext(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, embedder.Available(ctx))
}

func TestStaticEmbedder_Performance(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	texts := make([]string, 1000)
	for i := range texts {
		texts[i] = "制动异响测试" + string(rune('A'+i%26))
	}

	start := time.Now()
	_, err := embedder.Encode(context.Background(), texts)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 1*time.Second, "embedding 1000 texts should take < 1s (took %v)", elapsed)
}

func TestStaticEmbedder_ImplementsEmbedderInterface(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()
	var _ Embedder = embedder
}

func TestStaticEmbedder_Dimensions_Returns256(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()
	assert.Equal(t, StaticDimensions, embedder.Dimensions())
}

func TestStaticEmbedder_ModelName_ReturnsStatic(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()
	assert.Equal(t, "static", embedder.ModelName())
}

func TestStaticEmbedder_Encode_ReturnsCorrectCount(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	texts := []string{"刹车异响", "空调不制冷", "发动机抖动"}
	vecs, err := embedder.Encode(context.Background(), texts)

	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Len(t, v, StaticDimensions, "embedding %d should have correct dimensions", i)
	}
}

func TestStaticEmbedder_Encode_EmptyList_ReturnsEmpty(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, err := embedder.Encode(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestStaticEmbedder_Encode_HandlesEmptyStringsInBatch(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	texts := []string{"刹车踏板发软", "", "空调不制冷"}
	vecs, err := embedder.Encode(context.Background(), texts)

	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	for _, v := range vecs[1] {
		assert.Equal(t, float32(0), v)
	}
}

func TestStaticEmbedder_Close_IsIdempotent(t *testing.T) {
	embedder := NewStaticEmbedder()

	assert.NoError(t, embedder.Close())
	assert.NoError(t, embedder.Close())
	assert.NoError(t, embedder.Close())
}

func TestStaticEmbedder_Encode_AfterClose_ReturnsError(t *testing.T) {
	embedder := NewStaticEmbedder()
	_ = embedder.Close()

	_, err := embedder.Encode(context.Background(), []string{"test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestStaticEmbedder_Available_AfterClose_ReturnsFalse(t *testing.T) {
	embedder := NewStaticEmbedder()
	_ = embedder.Close()

	assert.False(t, embedder.Available(context.Background()))
}

func TestStaticEmbedder_Encode_UnicodeText_NoError(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	texts := []string{
		"发动机异响，伴随抖动",
		"// комментарий на русском",
		"const emoji = '🚀'",
	}

	vecs, err := embedder.Encode(context.Background(), texts)
	require.NoError(t, err)
	for _, v := range vecs {
		assert.Len(t, v, StaticDimensions)
	}
}

func TestStaticEmbedder_Encode_LongText_NoError(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	var longText string
	for i := 0; i < 10000; i++ {
		longText += "异响 "
	}

	vecs, err := embedder.Encode(context.Background(), []string{longText})
	require.NoError(t, err)
	assert.Len(t, vecs[0], StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[0]), 0.001)
}
