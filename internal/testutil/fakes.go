// Package testutil holds deterministic stand-ins for the embedding model, the
// generative model and the vector store, shared by package tests.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/models"
)

const FakeDimension = 64

// FakeEmbedder maps text to a normalized bag-of-words vector. Identical texts
// get identical vectors; texts sharing words get positive similarity.
type FakeEmbedder struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (e *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (e *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Vector is the embedding FakeEmbedder returns for text.
func Vector(text string) []float32 {
	v := make([]float32, FakeDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%FakeDimension]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// FakeModel is a scripted llms.Model that records every prompt.
type FakeModel struct {
	mu           sync.Mutex
	Prompts      []string
	Temperatures []float64
	Reply        func(prompt string) (string, error)
}

func (m *FakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				prompt.WriteString(tc.Text)
			}
		}
	}

	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt.String())
	m.Temperatures = append(m.Temperatures, opts.Temperature)
	m.mu.Unlock()

	reply := "ok"
	if m.Reply != nil {
		var err error
		reply, err = m.Reply(prompt.String())
		if err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *FakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *FakeModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}

// MemoryStore is a brute-force cosine store.
type MemoryStore struct {
	mu             sync.Mutex
	records        []models.ChunkEmbedding
	Resets         int
	CandidateCalls int
	LastN          int
	Closed         bool
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.Resets++
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, records []models.ChunkEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *MemoryStore) Candidates(ctx context.Context, query []float32, n int) ([]models.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CandidateCalls++
	s.LastN = n
	if n <= 0 {
		return nil, errors.New("n must be positive")
	}

	scored := make([]models.ScoredChunk, 0, len(s.records))
	for _, r := range s.records {
		var dot float32
		for i := range query {
			dot += query[i] * r.Embedding[i]
		}
		scored = append(scored, models.ScoredChunk{ChunkEmbedding: r, Similarity: dot})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
