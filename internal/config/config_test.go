package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "cl100k_base", cfg.RAG.Encoding)
	assert.Equal(t, 3, cfg.RAG.K)
	assert.Equal(t, 10, cfg.RAG.FetchK)
	assert.Equal(t, 0.5, cfg.RAG.LambdaMult)
	assert.Equal(t, 0, cfg.RAG.MemoryTurns)
	assert.Equal(t, "googleai", cfg.LLM.Provider)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, "chromem", cfg.VectorStore.Backend)
	assert.Equal(t, ".", cfg.Loader.UploadDir)
	assert.Equal(t, 2*time.Hour, cfg.Server.SessionIdle)
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCQA_TEST_EMBED_KEY", "secret-value")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embed_llm:
  provider: openai
  model: text-embedding-3-small
  key: ${DOCQA_TEST_EMBED_KEY}
llm:
  provider: openai
  model: gpt-4o-mini
  timeout: 45s
rag:
  k: 4
  fetch_k: 2
  memory_turns: 6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-value", cfg.EmbedLLM.Key)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.RAG.K)
	assert.Equal(t, 10, cfg.RAG.FetchK, "fetch_k below k is raised")
	assert.Equal(t, 6, cfg.RAG.MemoryTurns)
	assert.Empty(t, cfg.EmbedLLM.BaseURL, "openai provider keeps the client default base url")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [unterminated"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyDefaults_OverlapNotLargerThanSize(t *testing.T) {
	cfg := &Config{RAG: RAGConfig{ChunkSize: 50, ChunkOverlap: 80}}
	applyDefaults(cfg)

	assert.Equal(t, 50, cfg.RAG.ChunkSize)
	assert.Equal(t, 25, cfg.RAG.ChunkOverlap)
}
