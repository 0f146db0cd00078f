package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/models"
)

func candidate(content string, vector ...float32) models.ScoredChunk {
	return models.ScoredChunk{ChunkEmbedding: models.ChunkEmbedding{
		Chunk:     models.Chunk{Content: content},
		Embedding: vector,
	}}
}

func contents(chunks []models.ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestMaxMarginalRelevance_PrefersDiverseResults(t *testing.T) {
	query := []float32{1, 1}
	candidates := []models.ScoredChunk{
		candidate("a", 1, 0.9),
		candidate("b", 1, 0.95),
		candidate("c", 0, 1),
	}

	got := MaxMarginalRelevance(query, candidates, 2, 0.5)
	assert.Equal(t, []string{"b", "c"}, contents(got))
	assert.InDelta(t, 0.9997, got[0].Similarity, 1e-3)
}

func TestMaxMarginalRelevance_LambdaOneIsRelevanceOrder(t *testing.T) {
	query := []float32{1, 1}
	candidates := []models.ScoredChunk{
		candidate("c", 0, 1),
		candidate("a", 1, 0.9),
		candidate("b", 1, 0.95),
	}

	got := MaxMarginalRelevance(query, candidates, 3, 1)
	assert.Equal(t, []string{"b", "a", "c"}, contents(got))
}

func TestMaxMarginalRelevance_Bounds(t *testing.T) {
	query := []float32{1, 0}
	candidates := []models.ScoredChunk{candidate("x", 1, 0), candidate("y", 0, 1)}

	tests := []struct {
		name string
		in   []models.ScoredChunk
		k    int
		want int
	}{
		{"k larger than pool", candidates, 5, 2},
		{"k zero", candidates, 0, 0},
		{"empty pool", nil, 3, 0},
		{"k one", candidates, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, MaxMarginalRelevance(query, tt.in, tt.k, 0.5), tt.want)
		})
	}
}

func TestMaxMarginalRelevance_NoDuplicates(t *testing.T) {
	query := []float32{1, 0}
	candidates := []models.ScoredChunk{
		candidate("x", 1, 0),
		candidate("x2", 1, 0),
		candidate("y", 0, 1),
	}

	got := MaxMarginalRelevance(query, candidates, 3, 0.5)
	require.Len(t, got, 3)
	assert.ElementsMatch(t, []string{"x", "x2", "y"}, contents(got))
	assert.Equal(t, "x", got[0].Content)
}

func TestCosine_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.InDelta(t, 1.0, cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
}

func TestMaxMarginalRelevance_NaNVectorsDoNotPanic(t *testing.T) {
	nan := float32(math.NaN())
	candidates := []models.ScoredChunk{
		candidate("valid", 1, 0),
		candidate("broken", nan, nan),
	}

	var got []models.ScoredChunk
	require.NotPanics(t, func() {
		got = MaxMarginalRelevance([]float32{1, 0}, candidates, 2, 0.5)
	})
	assert.Equal(t, []string{"valid"}, contents(got))

	require.NotPanics(t, func() {
		got = MaxMarginalRelevance([]float32{nan, nan}, candidates, 2, 0.5)
	})
	assert.Empty(t, got)
}
