package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/chromemdb"
	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/testutil"
)

// textLoader treats every upload as a single page of plain text.
type textLoader struct{}

func (textLoader) Load(ctx context.Context, uploads []parser.Upload) ([]models.DocumentUnit, error) {
	units := make([]models.DocumentUnit, 0, len(uploads))
	for _, u := range uploads {
		units = append(units, models.DocumentUnit{Content: string(u.Data), Source: u.Name, Page: 1})
	}
	return units, nil
}

type fixture struct {
	engine *Engine
	model  *testutil.FakeModel
	stores []*testutil.MemoryStore
	keys   []string
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	for _, fn := range mutate {
		fn(cfg)
	}
	splitter, err := chunker.New(&cfg.RAG)
	require.NoError(t, err)

	f := &fixture{model: &testutil.FakeModel{}}
	f.engine = &Engine{
		Config:   cfg,
		Loader:   textLoader{},
		Splitter: splitter,
		Embedder: &testutil.FakeEmbedder{},
		NewStore: func(ctx context.Context, name string) (rag.Store, error) {
			s := &testutil.MemoryStore{}
			f.stores = append(f.stores, s)
			return s, nil
		},
		NewModel: func(ctx context.Context, apiKey string) (llms.Model, error) {
			f.keys = append(f.keys, apiKey)
			return f.model, nil
		},
	}
	return f
}

func lggUpload() []parser.Upload {
	return []parser.Upload{{Name: "lgg.pdf", Data: []byte("LGG is a probiotic strain.")}}
}

func TestSession_EmptyAPIKeyBuildsNothing(t *testing.T) {
	f := newFixture(t)
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	for _, key := range []string{"", "   "} {
		_, err := s.Process(context.Background(), key, lggUpload())
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	}

	assert.False(t, s.Ready())
	assert.Empty(t, f.stores)
	assert.Empty(t, f.keys)
	assert.Equal(t, []models.Turn{{Role: models.RoleAssistant, Content: models.Greeting}}, s.Transcript())
}

func TestSession_UnsupportedFileRejected(t *testing.T) {
	f := newFixture(t)
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	_, err = s.Process(context.Background(), "key", []parser.Upload{{Name: "notes.txt", Data: []byte("x")}})
	assert.ErrorIs(t, err, parser.ErrUnsupportedFileType)
	assert.False(t, s.Ready())
	assert.Empty(t, f.stores)
}

func TestSession_AskBeforeProcess(t *testing.T) {
	f := newFixture(t)
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "What is LGG?")
	assert.ErrorIs(t, err, ErrNotReady)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "What is LGG?"}, transcript[1])
}

func TestSession_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.model.Reply = func(prompt string) (string, error) {
		if strings.Contains(prompt, "LGG is a probiotic strain.") {
			return "LGG is a probiotic strain.", nil
		}
		return "I don't know.", nil
	}
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	res, err := s.Process(context.Background(), " my-key ", lggUpload())
	require.NoError(t, err)
	assert.Equal(t, &ProcessResult{Files: 1, Units: 1, Chunks: 1}, res)
	assert.Equal(t, []string{"my-key"}, f.keys)
	assert.True(t, s.Ready())

	resp, err := s.Ask(context.Background(), "What is LGG?")
	require.NoError(t, err)
	assert.Equal(t, "LGG is a probiotic strain.", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "lgg.pdf", resp.Sources[0].Source)
	assert.Equal(t, 1, resp.Sources[0].Page)

	assert.Equal(t, []models.Turn{
		{Role: models.RoleAssistant, Content: models.Greeting},
		{Role: models.RoleUser, Content: "What is LGG?"},
		{Role: models.RoleAssistant, Content: "LGG is a probiotic strain."},
	}, s.Transcript())
	assert.Equal(t, []float64{0}, f.model.Temperatures)
}

func TestSession_ModelFailureKeepsOnlyUserTurn(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("rate limited")
	f.model.Reply = func(string) (string, error) { return "", boom }

	s, err := NewManager(f.engine).New()
	require.NoError(t, err)
	_, err = s.Process(context.Background(), "key", lggUpload())
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "What is LGG?")
	assert.ErrorIs(t, err, boom)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.RoleUser, transcript[1].Role)
}

func TestSession_ReprocessReplacesIndex(t *testing.T) {
	f := newFixture(t)
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	_, err = s.Process(context.Background(), "key", lggUpload())
	require.NoError(t, err)
	_, err = s.Process(context.Background(), "key", []parser.Upload{{Name: "b.docx", Data: []byte("Another document.")}})
	require.NoError(t, err)

	require.Len(t, f.stores, 2)
	assert.True(t, f.stores[0].Closed)
	assert.False(t, f.stores[1].Closed)
	assert.Same(t, f.stores[1], s.Store())

	require.NoError(t, s.Close())
	assert.True(t, f.stores[1].Closed)
	assert.False(t, s.Ready())
}

func TestSession_MemoryWindowReachesPrompt(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.RAG.MemoryTurns = 2 })
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)
	_, err = s.Process(context.Background(), "key", lggUpload())
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "first question")
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "second question")
	require.NoError(t, err)
	assert.Contains(t, f.model.LastPrompt(), "Human: first question\nAI: ok")

	_, err = s.Ask(context.Background(), "third question")
	require.NoError(t, err)
	assert.NotContains(t, f.model.LastPrompt(), "first question")
	assert.Contains(t, f.model.LastPrompt(), "Human: second question")
}

func TestSession_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Len(t, s.Transcript(), 1)
}

func TestManager_Lifecycle(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.engine)

	s, created, err := m.GetOrCreate("unknown")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "unknown", s.ID)

	same, created, err := m.GetOrCreate(s.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, same)
	assert.Equal(t, 1, m.Len())

	assert.Zero(t, m.Expire(time.Hour))
	assert.Equal(t, 1, m.Expire(-time.Second))
	_, ok := m.Get(s.ID)
	assert.False(t, ok)
}

func TestManager_CloseClosesStores(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.engine)
	s, err := m.New()
	require.NoError(t, err)
	_, err = s.Process(context.Background(), "key", lggUpload())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.True(t, f.stores[0].Closed)
	assert.Zero(t, m.Len())
}

func TestSession_TranscriptAvailableWhileAnswering(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.model.Reply = func(string) (string, error) {
		close(started)
		<-release
		return "done", nil
	}

	s, err := NewManager(f.engine).New()
	require.NoError(t, err)
	_, err = s.Process(context.Background(), "key", lggUpload())
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Ask(context.Background(), "What is LGG?")
		errs <- err
	}()
	<-started

	transcript := make(chan []models.Turn, 1)
	go func() { transcript <- s.Transcript() }()
	select {
	case turns := <-transcript:
		require.Len(t, turns, 2)
		assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "What is LGG?"}, turns[1])
	case <-time.After(time.Second):
		t.Fatal("Transcript blocked while the model was answering")
	}

	close(release)
	require.NoError(t, <-errs)
	assert.Len(t, s.Transcript(), 3)
}

func TestSession_ReprocessClearsMemory(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.RAG.MemoryTurns = 4 })
	s, err := NewManager(f.engine).New()
	require.NoError(t, err)

	_, err = s.Process(context.Background(), "key", lggUpload())
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "question about the first upload")
	require.NoError(t, err)

	_, err = s.Process(context.Background(), "key", []parser.Upload{{Name: "b.docx", Data: []byte("Another document.")}})
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "question about the second upload")
	require.NoError(t, err)

	assert.NotContains(t, f.model.LastPrompt(), "first upload")
	assert.NotContains(t, f.model.LastPrompt(), "Conversation so far")
	assert.Len(t, s.Transcript(), 5, "the transcript itself is kept")
}

func TestEngine_PersistentChromemKeepsOneIndexPerSession(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.VectorStore.Path = dir
	cfg.Loader.UploadDir = t.TempDir()

	engine, err := NewEngine(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	require.NoError(t, engine.ResetRecords(context.Background()), "no-op without postgres")

	model := &testutil.FakeModel{}
	engine.Loader = textLoader{}
	engine.Embedder = &testutil.FakeEmbedder{}
	engine.NewModel = func(ctx context.Context, apiKey string) (llms.Model, error) { return model, nil }

	m := NewManager(engine)
	s, err := m.New()
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := s.Process(context.Background(), "key", lggUpload())
		require.NoError(t, err)

		onDisk, err := chromemdb.OpenDB(dir, false)
		require.NoError(t, err)
		assert.Len(t, onDisk.ListCollections(), 1, "after process %d", i+1)
	}

	resp, err := s.Ask(context.Background(), "What is LGG?")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "lgg.pdf", resp.Sources[0].Source)

	require.NoError(t, m.Close())
	onDisk, err := chromemdb.OpenDB(dir, false)
	require.NoError(t, err)
	assert.Empty(t, onDisk.ListCollections())
}
