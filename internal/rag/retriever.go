package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Retriever embeds a query, pulls fetchK nearest candidates from the store
// and re-ranks them with MMR down to k.
type Retriever struct {
	store    Store
	embedder embeddings.Embedder
	k        int
	fetchK   int
	lambda   float64
}

func NewRetriever(store Store, embedder embeddings.Embedder, cfg *config.RAGConfig) *Retriever {
	if cfg == nil {
		cfg = &config.Default().RAG
	}
	k := cfg.K
	if k <= 0 {
		k = config.DefaultK
	}
	lambda := cfg.LambdaMult
	if lambda <= 0 || lambda > 1 {
		lambda = config.DefaultLambdaMult
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		k:        k,
		fetchK:   max(cfg.FetchK, k),
		lambda:   lambda,
	}
}

func (r *Retriever) K() int      { return r.k }
func (r *Retriever) FetchK() int { return r.fetchK }

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := r.store.Candidates(ctx, vector, r.fetchK)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	selected := MaxMarginalRelevance(vector, candidates, r.k, r.lambda)
	log.Debug().
		Int("candidates", len(candidates)).
		Int("selected", len(selected)).
		Msg("Retrieved context")
	return selected, nil
}
