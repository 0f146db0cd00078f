package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/uptrace/bun"

	"document-qa/internal/chromemdb"
	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/embedding"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

// DocumentLoader persists uploads and extracts their text.
type DocumentLoader interface {
	Load(ctx context.Context, uploads []parser.Upload) ([]models.DocumentUnit, error)
}

// Engine holds the components shared by every session. The factory fields
// may be replaced before the engine is used.
type Engine struct {
	Config   *config.Config
	Loader   DocumentLoader
	Splitter rag.Splitter
	Embedder embeddings.Embedder
	// NewStore opens the vector store for one index generation.
	NewStore func(ctx context.Context, name string) (rag.Store, error)
	// NewModel builds the generative model for a user supplied API key.
	NewModel func(ctx context.Context, apiKey string) (llms.Model, error)

	bunDB *bun.DB
}

// NewEngine wires the loader, chunker, embedder, vector store backend and
// model factory selected by cfg.
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	splitter, err := chunker.New(&cfg.RAG)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Config:   cfg,
		Loader:   parser.NewLoader(&cfg.Loader),
		Splitter: splitter,
		Embedder: embedder,
		NewModel: func(ctx context.Context, apiKey string) (llms.Model, error) {
			return llmservice.NewModel(ctx, &cfg.LLM, apiKey)
		},
	}

	switch strings.ToLower(cfg.VectorStore.Backend) {
	case "chromem", "":
		embed := func(ctx context.Context, text string) ([]float32, error) {
			return embedder.EmbedQuery(ctx, text)
		}
		chromemDB, err := chromemdb.OpenDB(cfg.VectorStore.Path, cfg.VectorStore.Compress)
		if err != nil {
			return nil, err
		}
		e.NewStore = func(ctx context.Context, name string) (rag.Store, error) {
			store, err := chromemdb.NewCollectionManager(chromemDB, cfg.VectorStore.Path, name, cfg.VectorStore.Compress, cfg.RAG.EncryptionKey, embed)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	case "postgres":
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		e.bunDB = db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, e.bunDB); err != nil {
			e.bunDB.Close()
			return nil, err
		}
		e.NewStore = func(ctx context.Context, name string) (rag.Store, error) {
			return db.NewStore(e.bunDB, name), nil
		}
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.VectorStore.Backend)
	}

	log.Info().
		Str("vector_store", cfg.VectorStore.Backend).
		Str("embed_provider", cfg.EmbedLLM.Provider).
		Str("llm_provider", cfg.LLM.Provider).
		Msg("Engine ready")
	return e, nil
}

// ResetRecords drops and recreates the postgres records table, discarding
// indexes left behind by earlier runs. Other backends keep nothing between
// runs and are left alone.
func (e *Engine) ResetRecords(ctx context.Context) error {
	if e.bunDB == nil {
		return nil
	}
	if err := db.DropRecords(ctx, e.bunDB); err != nil {
		return fmt.Errorf("drop records: %w", err)
	}
	if err := db.InitDB(ctx, e.bunDB); err != nil {
		return err
	}
	log.Info().Msg("Postgres records reset")
	return nil
}

func (e *Engine) Close() error {
	if e.bunDB != nil {
		return e.bunDB.Close()
	}
	return nil
}
