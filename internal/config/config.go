package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Loader      LoaderConfig      `yaml:"loader"`
	RAG         RAGConfig         `yaml:"rag"`
	EmbedLLM    EmbedConfig       `yaml:"embed_llm"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Database    DatabaseConfig    `yaml:"database"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	Title          string        `yaml:"title"`
	SessionIdle    time.Duration `yaml:"session_idle"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

type LoaderConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// RAGConfig holds chunking and retrieval parameters. Chunk sizes are in
// cl100k_base tokens.
type RAGConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`
	ChunkOverlap  int     `yaml:"chunk_overlap"`
	Encoding      string  `yaml:"encoding"`
	K             int     `yaml:"k"`
	FetchK        int     `yaml:"fetch_k"`
	LambdaMult    float64 `yaml:"lambda_mult"`
	MemoryTurns   int     `yaml:"memory_turns"`
	SourceDisplay int     `yaml:"source_display"`
	EncryptionKey string  `yaml:"encryption_key"`
}

type EmbedConfig struct {
	Provider  string `yaml:"provider"` // "ollama" or "openai"
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Key       string `yaml:"key"`
	BatchSize int    `yaml:"batch_size"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "googleai", "openai" or "ollama"
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type VectorStoreConfig struct {
	Backend  string `yaml:"backend"` // "chromem" or "postgres"
	Path     string `yaml:"path"`    // empty keeps chromem in memory
	Compress bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultK            = 3
	DefaultFetchK       = 10
	DefaultLambdaMult   = 0.5
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads the YAML file at path. A missing file yields defaults.
// Variables from a .env file next to the working directory are loaded first
// and ${VAR} references in the file are expanded.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8501"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = "Private Data QA Chat"
	}
	if cfg.Server.SessionIdle <= 0 {
		cfg.Server.SessionIdle = 2 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Loader.UploadDir == "" {
		cfg.Loader.UploadDir = "."
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = DefaultChunkSize
	}
	if cfg.RAG.ChunkOverlap <= 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = min(DefaultChunkOverlap, cfg.RAG.ChunkSize/2)
	}
	if cfg.RAG.Encoding == "" {
		cfg.RAG.Encoding = "cl100k_base"
	}
	if cfg.RAG.K <= 0 {
		cfg.RAG.K = DefaultK
	}
	if cfg.RAG.FetchK < cfg.RAG.K {
		cfg.RAG.FetchK = max(DefaultFetchK, cfg.RAG.K)
	}
	if cfg.RAG.LambdaMult <= 0 || cfg.RAG.LambdaMult > 1 {
		cfg.RAG.LambdaMult = DefaultLambdaMult
	}
	if cfg.RAG.MemoryTurns < 0 {
		cfg.RAG.MemoryTurns = 0
	}
	if cfg.RAG.SourceDisplay <= 0 {
		cfg.RAG.SourceDisplay = 3
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "bge-m3"
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.BatchSize <= 0 {
		cfg.EmbedLLM.BatchSize = 32
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "googleai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-1.5-flash"
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "chromem"
	}
}
