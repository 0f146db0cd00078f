package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/embedding"
	"document-qa/internal/models"
)

// Indexer rebuilds a store from extracted document units.
type Indexer struct {
	splitter  Splitter
	embedder  embeddings.Embedder
	store     Store
	batchSize int
}

func NewIndexer(splitter Splitter, embedder embeddings.Embedder, store Store, batchSize int) *Indexer {
	return &Indexer{splitter: splitter, embedder: embedder, store: store, batchSize: batchSize}
}

// Build replaces the store contents with the chunks of units and returns the
// number of chunks stored.
func (ix *Indexer) Build(ctx context.Context, units []models.DocumentUnit) (int, error) {
	if err := ix.store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset store: %w", err)
	}

	chunks, err := ix.splitter.Split(units)
	if err != nil {
		return 0, fmt.Errorf("split documents: %w", err)
	}
	if len(chunks) == 0 {
		log.Warn().Int("units", len(units)).Msg("No text to index")
		return 0, nil
	}

	records, err := embedding.GenerateEmbedding(ctx, ix.embedder, chunks, ix.batchSize)
	if err != nil {
		return 0, err
	}
	if err := ix.store.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("store embeddings: %w", err)
	}

	log.Info().Int("units", len(units)).Int("chunks", len(records)).Msg("Index built")
	return len(records), nil
}
