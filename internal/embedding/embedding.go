package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// NewEmbedder creates the embedder selected by cfg.Provider. Every vector it
// returns has unit length.
func NewEmbedder(cfg *config.EmbedConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	var (
		embedder embeddings.Embedder
		err      error
	)
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		embedder, err = NewOllamaEmbedder(cfg)
	case "openai":
		opts := []OpenAIOption{WithEmbeddingModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		embedder = NewOpenAIEmbedder(strings.TrimPrefix(cfg.Key, "Bearer "), opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Normalize(embedder), nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.EmbedConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// GenerateEmbedding embeds chunks in batches of batchSize and returns them as
// storable records, in input order.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, batchSize int) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	records := make([]models.ChunkEmbedding, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}
		for i, v := range vectors {
			records = append(records, models.ChunkEmbedding{
				Chunk:     chunks[start+i],
				Embedding: v,
			})
		}
		log.Debug().Int("done", end).Int("total", len(chunks)).Msg("Embedded batch")
	}
	return records, nil
}

type normalizedEmbedder struct {
	inner embeddings.Embedder
}

// Normalize wraps e so that every returned vector is scaled to unit length.
func Normalize(e embeddings.Embedder) embeddings.Embedder {
	if n, ok := e.(*normalizedEmbedder); ok {
		return n
	}
	return &normalizedEmbedder{inner: e}
}

func (n *normalizedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := n.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range vectors {
		vectors[i] = NormalizeVector(vectors[i])
	}
	return vectors, nil
}

func (n *normalizedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := n.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return NormalizeVector(v), nil
}

// NormalizeVector returns v scaled to unit length. A zero vector is returned
// unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
