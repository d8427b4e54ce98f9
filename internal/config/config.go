package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// LLMConfig configures one remote model endpoint (embedding or generation).
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "ollama"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

// StorageConfig configures the object store for raw uploads.
type StorageConfig struct {
	BasePath string `yaml:"base_path"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// QdrantConfig configures the Qdrant REST backend.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	Backend        string         `yaml:"backend"` // "chromem" or "qdrant"
	Collection     string         `yaml:"collection"`
	Dimension      int            `yaml:"dimension"`
	DeletePageSize int            `yaml:"delete_page_size"`
	Chromem        *ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant         *QdrantConfig  `yaml:"qdrant,omitempty"`
}

// RAGConfig holds the chunking, batching and retrieval tunables.
type RAGConfig struct {
	ChunkTokens   int    `yaml:"chunk_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens"`
	Tokenizer     string `yaml:"tokenizer"` // "words" or a tiktoken encoding name
	BatchSize     int    `yaml:"batch_size"`
	TopK          int    `yaml:"top_k"`
	MaxRetries    int    `yaml:"max_retries"`
	BaseDelayMS   int    `yaml:"base_delay_ms"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	GenLLM   LLMConfig      `yaml:"gen_llm"`
	Vector   VectorConfig   `yaml:"vector"`
	RAG      RAGConfig      `yaml:"rag"`
}

const (
	defaultChunkTokens    = 250
	defaultOverlapTokens  = 25
	defaultBatchSize      = 128
	defaultTopK           = 5
	defaultMaxRetries     = 3
	defaultBaseDelayMS    = 1000
	defaultDimension      = 768
	defaultCollection     = "document_chunks"
	defaultDeletePageSize = 1000
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RAG.ChunkTokens == 0 {
		c.RAG.ChunkTokens = defaultChunkTokens
	}
	if c.RAG.OverlapTokens == 0 {
		c.RAG.OverlapTokens = defaultOverlapTokens
	}
	if c.RAG.BatchSize == 0 {
		c.RAG.BatchSize = defaultBatchSize
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.MaxRetries == 0 {
		c.RAG.MaxRetries = defaultMaxRetries
	}
	if c.RAG.BaseDelayMS == 0 {
		c.RAG.BaseDelayMS = defaultBaseDelayMS
	}
	if c.Vector.Dimension == 0 {
		c.Vector.Dimension = defaultDimension
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = defaultCollection
	}
	if c.Vector.DeletePageSize == 0 {
		c.Vector.DeletePageSize = defaultDeletePageSize
	}
	if c.Vector.Backend == "" {
		c.Vector.Backend = "chromem"
	}
	if c.Storage.BasePath == "" {
		c.Storage.BasePath = "./uploads"
	}
}

func (c *Config) validate() error {
	if c.RAG.OverlapTokens >= c.RAG.ChunkTokens {
		return fmt.Errorf("overlap_tokens (%d) must be smaller than chunk_tokens (%d)",
			c.RAG.OverlapTokens, c.RAG.ChunkTokens)
	}
	switch c.Vector.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector backend: %s", c.Vector.Backend)
	}
	return nil
}
