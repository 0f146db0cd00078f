package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// VectorDBManager encapsulates one chromem-go collection holding the chunks
// of a single index.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embed         chromem.EmbeddingFunc
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// OpenDB opens an in-memory database when dbPath is empty, otherwise a
// persistent one rooted at dbPath. One DB is shared by every manager of a
// process so collections are loaded once.
func OpenDB(dbPath string, compress bool) (*chromem.DB, error) {
	if dbPath == "" {
		return chromem.NewDB(), nil
	}
	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return db, nil
}

// NewVectorDBManager opens its own database with OpenDB and creates the
// collection. embed is only used by chromem for text queries; stored records
// and Candidates queries carry their own vectors.
func NewVectorDBManager(dbPath, collectionName string, compress bool, encryptionKey string, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	db, err := OpenDB(dbPath, compress)
	if err != nil {
		return nil, err
	}
	return NewCollectionManager(db, dbPath, collectionName, compress, encryptionKey, embed)
}

// NewCollectionManager creates collectionName in an already open database.
func NewCollectionManager(db *chromem.DB, dbPath, collectionName string, compress bool, encryptionKey string, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	m := &VectorDBManager{
		db:            db,
		embed:         embed,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
		filePath:      filepath.Join(dbPath, collectionName+".chromem"),
	}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, m.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) CollectionName() string {
	return m.collection.Name
}

// Reset drops every record of the collection.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	name := m.collection.Name
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection(name)
	return err
}

// Add stores records with their precomputed embeddings.
func (m *VectorDBManager) Add(ctx context.Context, records []models.ChunkEmbedding) error {
	if len(records) == 0 {
		return nil
	}
	offset := m.collection.Count()
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("chunk-%06d", offset+i),
			Content:   r.Content,
			Metadata:  CreateMetadata(r.Chunk),
			Embedding: r.Embedding,
		}
	}
	return m.CreateDocs(ctx, docs)
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Candidates returns up to n records nearest to query by cosine similarity.
// An empty collection yields no results.
func (m *VectorDBManager) Candidates(ctx context.Context, query []float32, n int) ([]models.ScoredChunk, error) {
	count := m.collection.Count()
	if count == 0 || n <= 0 {
		return nil, nil
	}
	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       min(n, count),
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		out = append(out, models.ScoredChunk{
			ChunkEmbedding: models.ChunkEmbedding{
				Chunk:     ChunkFromMetadata(r.Content, r.Metadata),
				Embedding: r.Embedding,
			},
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Read retrieves documents by similarity search
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Close drops the collection, removing it from disk for persistent
// databases. The index lives only as long as its session.
func (m *VectorDBManager) Close() error {
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes the collection to an encrypted file. An empty path uses
// <dbPath>/<collection>.chromem.
func (m *VectorDBManager) Export(ctx context.Context, path string) error {
	if len(m.encryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(m.encryptionKey))
	}
	if path == "" {
		path = m.filePath
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", path).
		Bool("compress", m.compress).
		Msg("Exporting collection")

	err := m.db.ExportToFile(path, m.compress, m.encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import replaces the collection with the one stored in an exported file.
func (m *VectorDBManager) Import(ctx context.Context, path string) error {
	if path == "" {
		path = m.filePath
	}
	name := m.collection.Name
	if err := m.db.ImportFromFile(path, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err := m.GetOrCreateCollection(name)
	return err
}

// meta data will have source filename, page number, chunk id and token count
func CreateMetadata(c models.Chunk) map[string]string {
	return map[string]string{
		models.MetaSource:  c.Source,
		models.MetaPage:    strconv.Itoa(c.Page),
		models.MetaChunkID: strconv.Itoa(c.ChunkID),
		models.MetaTokens:  strconv.Itoa(c.Tokens),
	}
}

func ChunkFromMetadata(content string, meta map[string]string) models.Chunk {
	page, _ := strconv.Atoi(meta[models.MetaPage])
	chunkID, _ := strconv.Atoi(meta[models.MetaChunkID])
	tokens, _ := strconv.Atoi(meta[models.MetaTokens])
	return models.Chunk{
		Content: content,
		Source:  meta[models.MetaSource],
		Page:    page,
		ChunkID: chunkID,
		Tokens:  tokens,
	}
}
