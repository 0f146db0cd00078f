package rag

import (
	"context"

	"document-qa/internal/models"
)

// Store is the vector index of one session.
type Store interface {
	// Reset removes every stored record.
	Reset(ctx context.Context) error
	Add(ctx context.Context, records []models.ChunkEmbedding) error
	// Candidates returns up to n records ordered by descending cosine
	// similarity to query, embeddings included. An empty index returns no
	// results and no error.
	Candidates(ctx context.Context, query []float32, n int) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Splitter turns extracted units into chunks.
type Splitter interface {
	Split(units []models.DocumentUnit) ([]models.Chunk, error)
}
