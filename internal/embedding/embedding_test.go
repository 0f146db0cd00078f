package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/config"
	"document-qa/internal/models"
	"document-qa/internal/testutil"
)

type scaledEmbedder struct{}

func (scaledEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{3, 4}
	}
	return out, nil
}

func (scaledEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 5}, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNormalize_WrapsEmbedder(t *testing.T) {
	e := Normalize(scaledEmbedder{})
	assert.Same(t, e, Normalize(e), "double wrapping is a no-op")

	docs, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	for _, d := range docs {
		assert.InDelta(t, 1.0, norm(d), 1e-6)
	}

	q, err := e.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(q), 1e-6)
	assert.InDelta(t, 1.0, q[1], 1e-6)
}

func TestGenerateEmbedding_Batches(t *testing.T) {
	fake := &testutil.FakeEmbedder{}
	chunks := make([]models.Chunk, 7)
	for i := range chunks {
		chunks[i] = models.Chunk{Content: fmt.Sprintf("chunk %d", i), Source: "a.pdf", Page: 1, ChunkID: i + 1}
	}

	records, err := GenerateEmbedding(context.Background(), fake, chunks, 3)
	require.NoError(t, err)
	require.Len(t, records, 7)

	assert.Equal(t, 3, fake.Calls)
	for i, r := range records {
		assert.Equal(t, chunks[i], r.Chunk)
		assert.Equal(t, testutil.Vector(chunks[i].Content), r.Embedding)
	}
}

func TestGenerateEmbedding_EmptyAndError(t *testing.T) {
	records, err := GenerateEmbedding(context.Background(), &testutil.FakeEmbedder{}, nil, 8)
	require.NoError(t, err)
	assert.Nil(t, records)

	boom := errors.New("model offline")
	_, err = GenerateEmbedding(context.Background(), &testutil.FakeEmbedder{Err: boom}, []models.Chunk{{Content: "x"}}, 8)
	assert.ErrorIs(t, err, boom)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.EmbedConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_SplitsAtBatchLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, "custom-model", body.Model)

		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float64{float64(i), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("test-key", WithEmbeddingModel("custom-model"), WithBaseURL(srv.URL))
	assert.Equal(t, "custom-model", e.ModelName())

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	vectors, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	assert.Len(t, vectors, 150)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, []float32{49, 1}, vectors[149])
}
