// Package session holds the per-user chat state: the transcript, the
// conversation pipeline built by the last Process call and the turn memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

var (
	ErrMissingAPIKey = errors.New("please add your API key to continue")
	ErrNotReady      = errors.New("please process your documents first")
	ErrEmptyQuestion = errors.New("question is empty")
)

// ProcessResult summarizes a successful Process call.
type ProcessResult struct {
	Files  int
	Units  int
	Chunks int
}

type Session struct {
	ID string

	mu         sync.Mutex
	engine     *Engine
	transcript []models.Turn
	memory     *rag.Memory
	pipeline   *rag.Pipeline
	store      rag.Store
	generation int
	lastUsed   atomic.Int64 // unix nanoseconds
}

func newSession(id string, engine *Engine) *Session {
	s := &Session{
		ID:         id,
		engine:     engine,
		transcript: []models.Turn{{Role: models.RoleAssistant, Content: models.Greeting}},
		memory:     rag.NewMemory(engine.Config.RAG.MemoryTurns),
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// Process builds a fresh index from uploads and replaces the session
// pipeline. On any error the previous pipeline stays in place.
func (s *Session) Process(ctx context.Context, apiKey string, uploads []parser.Upload) (*ProcessResult, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if err := parser.Validate(uploads); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	model, err := s.engine.NewModel(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	units, err := s.engine.Loader.Load(ctx, uploads)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("session-%s-%d", s.ID, s.generation+1)
	store, err := s.engine.NewStore(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	cfg := s.engine.Config
	n, err := rag.NewIndexer(s.engine.Splitter, s.engine.Embedder, store, cfg.EmbedLLM.BatchSize).Build(ctx, units)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	retriever := rag.NewRetriever(store, s.engine.Embedder, &cfg.RAG)
	pipeline := rag.NewPipeline(retriever, model, &cfg.LLM)

	if s.store != nil {
		closeStore(s.store)
	}
	s.generation++
	s.store = store
	s.pipeline = pipeline
	// earlier turns refer to the replaced documents
	s.memory.Clear()

	log.Info().
		Str("session", s.ID).
		Int("files", len(uploads)).
		Int("units", len(units)).
		Int("chunks", n).
		Msg("Documents processed")
	return &ProcessResult{Files: len(uploads), Units: len(units), Chunks: n}, nil
}

// Ask records the question, answers it and records the answer. The user turn
// is kept even when answering fails; the assistant turn only on success. The
// session lock is not held while the model runs, so Transcript stays
// responsive.
func (s *Session) Ask(ctx context.Context, question string) (*models.PromptResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	s.touch()

	userTurn := models.Turn{Role: models.RoleUser, Content: question}
	s.mu.Lock()
	s.transcript = append(s.transcript, userTurn)
	pipeline, memory := s.pipeline, s.memory
	s.mu.Unlock()

	if pipeline == nil {
		return nil, ErrNotReady
	}

	resp, err := pipeline.Answer(ctx, question, memory.Turns())
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("Failed to answer question")
		return nil, err
	}

	assistantTurn := models.Turn{Role: models.RoleAssistant, Content: resp.Answer}
	s.mu.Lock()
	s.transcript = append(s.transcript, assistantTurn)
	s.mu.Unlock()
	memory.Add(userTurn, assistantTurn)
	return resp, nil
}

func (s *Session) Transcript() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.transcript...)
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline != nil
}

// Store returns the vector store of the current index, nil before Process.
func (s *Session) Store() rag.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// UsePipeline makes the session ready with a pipeline built elsewhere, such
// as one over an imported index. store is closed with the session.
func (s *Session) UsePipeline(pipeline *rag.Pipeline, store rag.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil && s.store != store {
		closeStore(s.store)
	}
	s.generation++
	s.pipeline = pipeline
	s.store = store
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = nil
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

func closeStore(store rag.Store) {
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing vector store")
	}
}
