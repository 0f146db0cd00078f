package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

type EmbeddingRecord struct {
	bun.BaseModel `bun:"table:embedding_records,alias:er"`
	ID            int64           `bun:"id,pk,autoincrement"`
	SessionID     string          `bun:"session_id,notnull"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source,notnull"`
	Page          int             `bun:"page,notnull"`
	ChunkID       int             `bun:"chunk_id,notnull"`
	Tokens        int             `bun:"tokens,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// InitDB enables pgvector and creates the records table.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*EmbeddingRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*EmbeddingRecord)(nil)).
		Index("embedding_records_session_idx").
		Column("session_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// DropRecords drops the embedding_records table.
func DropRecords(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*EmbeddingRecord)(nil)).IfExists().Exec(ctx)
	return err
}

// Store keeps the records of one session in the shared table.
type Store struct {
	db        *bun.DB
	sessionID string
}

func NewStore(db *bun.DB, sessionID string) *Store {
	return &Store{db: db, sessionID: sessionID}
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*EmbeddingRecord)(nil)).
		Where("session_id = ?", s.sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reset session records: %w", err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, records []models.ChunkEmbedding) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]EmbeddingRecord, len(records))
	for i, r := range records {
		rows[i] = EmbeddingRecord{
			SessionID: s.sessionID,
			Content:   r.Content,
			Source:    r.Source,
			Page:      r.Page,
			ChunkID:   r.ChunkID,
			Tokens:    r.Tokens,
			Embedding: pgvector.NewVector(r.Embedding),
		}
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	log.Debug().Str("session", s.sessionID).Int("records", len(rows)).Msg("Stored records")
	return nil
}

// Candidates orders the session records by cosine distance to query.
func (s *Store) Candidates(ctx context.Context, query []float32, n int) ([]models.ScoredChunk, error) {
	if n <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)

	var rows []EmbeddingRecord
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "content", "source", "page", "chunk_id", "tokens", "embedding").
		ColumnExpr("embedding <=> ? AS distance", vec).
		Where("session_id = ?", s.sessionID).
		OrderExpr("embedding <=> ?", vec).
		Limit(n).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}

	out := make([]models.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ScoredChunk{
			ChunkEmbedding: models.ChunkEmbedding{
				Chunk: models.Chunk{
					Content: r.Content,
					Source:  r.Source,
					Page:    r.Page,
					ChunkID: r.ChunkID,
					Tokens:  r.Tokens,
				},
				Embedding: r.Embedding.Slice(),
			},
			Similarity: float32(1 - r.Distance),
		})
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().
		Model((*EmbeddingRecord)(nil)).
		Where("session_id = ?", s.sessionID).
		Count(ctx)
}

// Close removes the session records; the shared connection stays open.
func (s *Store) Close() error {
	return s.Reset(context.Background())
}
