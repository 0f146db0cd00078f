package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

const metaUnit = "unit"

var loaderOnce sync.Once

// Splitter cuts document units into overlapping chunks whose length is
// measured in tokenizer tokens rather than characters.
type Splitter struct {
	encoding *tiktoken.Tiktoken
	splitter textsplitter.RecursiveCharacter
	size     int
	overlap  int
}

func New(cfg *config.RAGConfig) (*Splitter, error) {
	if cfg == nil {
		cfg = &config.Default().RAG
	}
	// BPE ranks ship with the binary so splitting works offline
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	encoding, err := tiktoken.GetEncoding(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %s: %w", cfg.Encoding, err)
	}

	s := &Splitter{
		encoding: encoding,
		size:     cfg.ChunkSize,
		overlap:  cfg.ChunkOverlap,
	}
	s.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithLenFunc(s.CountTokens),
	)
	return s, nil
}

// CountTokens returns the token length of text.
func (s *Splitter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(s.encoding.Encode(text, nil, nil))
}

// Split returns the chunks of every unit in order. Each chunk keeps the
// source metadata of its unit; ChunkID restarts at 1 for every unit.
func (s *Splitter) Split(units []models.DocumentUnit) ([]models.Chunk, error) {
	if len(units) == 0 {
		return nil, nil
	}

	docs := make([]schema.Document, 0, len(units))
	for i, u := range units {
		docs = append(docs, schema.Document{
			PageContent: u.Content,
			Metadata: map[string]any{
				models.MetaSource: u.Source,
				models.MetaPage:   u.Page,
				metaUnit:          i,
			},
		})
	}

	split, err := textsplitter.SplitDocuments(s.splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("split documents: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(split))
	lastUnit, chunkID := -1, 0
	for _, doc := range split {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		unit, _ := doc.Metadata[metaUnit].(int)
		if unit != lastUnit {
			lastUnit, chunkID = unit, 0
		}
		chunkID++

		source, _ := doc.Metadata[models.MetaSource].(string)
		page, _ := doc.Metadata[models.MetaPage].(int)
		chunks = append(chunks, models.Chunk{
			Content: doc.PageContent,
			Source:  source,
			Page:    page,
			ChunkID: chunkID,
			Tokens:  s.CountTokens(doc.PageContent),
		})
	}

	log.Debug().
		Int("units", len(units)).
		Int("chunks", len(chunks)).
		Int("chunk_size", s.size).
		Int("chunk_overlap", s.overlap).
		Msg("Split documents")
	return chunks, nil
}
