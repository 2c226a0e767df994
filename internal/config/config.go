// Package config provides configuration loading for superdaddy.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. Every tunable of the ingestion and retrieval pipeline lives here
// so the mutually exclusive pipeline variants (pure vector, hybrid, entity
// graph) are selected by configuration rather than by code edits.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Retrieval modes.
const (
	ModeVector = "vector"
	ModeHybrid = "hybrid"
	ModeEntity = "entity"
)

// Vector store providers.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Config holds the complete superdaddy configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	LLM         LLMConfig         `koanf:"llm"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Ingestion   IngestionConfig   `koanf:"ingestion"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Entities    EntitiesConfig    `koanf:"entities"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// LLMConfig holds language-model capability configuration.
type LLMConfig struct {
	// Provider is "googleai" (Gemini) or "openai" (OpenAI-compatible endpoint).
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	BaseURL string   `koanf:"base_url"`
	Timeout Duration `koanf:"timeout"`
	// MaxRetries bounds local retries for transient call failures.
	MaxRetries int `koanf:"max_retries"`
	// RequestsPerMinute throttles outbound calls.
	RequestsPerMinute float64 `koanf:"requests_per_minute"`
}

// EmbeddingConfig holds embedding capability configuration.
type EmbeddingConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	// Dimension is the fixed embedding dimension shared by documents and
	// queries. A store collection created with a different size is a fatal
	// configuration error.
	Dimension int `koanf:"dimension"`
}

// VectorStoreConfig holds vector store configuration.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	// Collection is the chunk collection name.
	Collection string `koanf:"collection"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the external Qdrant store.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RetryAttempts  int      `koanf:"retry_attempts"`
}

// IngestionConfig holds ingestion pipeline configuration.
type IngestionConfig struct {
	// SourcePath is the guidebook text file (page-level extraction output).
	SourcePath string `koanf:"source_path"`
	// SourceID identifies the document in the store. Defaults to the
	// source file base name.
	SourceID string `koanf:"source_id"`
	// RunOnStart triggers ingestion when the server starts.
	RunOnStart bool `koanf:"run_on_start"`

	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	RefineBatchSize  int      `koanf:"refine_batch_size"`
	RefinePause      Duration `koanf:"refine_pause"`
	PersistBatchSize int      `koanf:"persist_batch_size"`
	PersistPause     Duration `koanf:"persist_pause"`
}

// RetrievalConfig holds query-time retrieval configuration.
type RetrievalConfig struct {
	// Mode selects the retrieval strategy: vector, hybrid or entity.
	Mode string `koanf:"mode"`
	// TopK is the number of candidates returned to the selector.
	TopK int `koanf:"top_k"`
	// CandidatePool is the broadened vector-search size used by the hybrid
	// and entity modes before re-scoring.
	CandidatePool int `koanf:"candidate_pool"`
	// SimilarityThreshold drops candidates below this cosine similarity.
	SimilarityThreshold float32 `koanf:"similarity_threshold"`
	// KeywordWeight is the per-match bonus added to the vector score. Kept
	// small so similarity stays the dominant signal.
	KeywordWeight float32 `koanf:"keyword_weight"`
}

// EntitiesConfig holds entity-graph mode configuration.
type EntitiesConfig struct {
	Enabled bool `koanf:"enabled"`
	// Collection is the entity record collection name.
	Collection string `koanf:"collection"`
	// MaxKeywords bounds extraction output per query or chunk.
	MaxKeywords int `koanf:"max_keywords"`
}

// NewDefaultConfig returns the configuration defaults. The pipeline tunables
// match the guidebook ingestion the system was built around: chunks of 500
// words with 150 overlap, batches of 5 against the model and the store, and
// hybrid retrieval pulling 10 candidates down to 5.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: true,
		},
		LLM: LLMConfig{
			Provider:          "googleai",
			Model:             "gemini-2.5-flash",
			Timeout:           Duration(60 * time.Second),
			MaxRetries:        3,
			RequestsPerMinute: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:  "googleai",
			Model:     "text-embedding-004",
			Dimension: 768,
		},
		VectorStore: VectorStoreConfig{
			Provider:   ProviderChromem,
			Collection: "guidebook_chunks",
			Chromem: ChromemConfig{
				Path: "~/.local/share/superdaddy/vectorstore",
			},
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				RequestTimeout: Duration(30 * time.Second),
				RetryAttempts:  3,
			},
		},
		Ingestion: IngestionConfig{
			SourcePath:       "parenting_guide.txt",
			RunOnStart:       true,
			ChunkSize:        500,
			ChunkOverlap:     150,
			RefineBatchSize:  5,
			RefinePause:      Duration(1 * time.Second),
			PersistBatchSize: 5,
			PersistPause:     Duration(5 * time.Second),
		},
		Retrieval: RetrievalConfig{
			Mode:                ModeHybrid,
			TopK:                5,
			CandidatePool:       10,
			SimilarityThreshold: 0.5,
			KeywordWeight:       0.1,
		},
		Entities: EntitiesConfig{
			Enabled:     false,
			Collection:  "guidebook_entities",
			MaxKeywords: 5,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.LLM.Provider {
	case "googleai", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm model is required")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}

	switch c.Embedding.Provider {
	case "googleai", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}

	switch c.VectorStore.Provider {
	case ProviderChromem, ProviderQdrant:
	default:
		return fmt.Errorf("unknown vectorstore provider %q", c.VectorStore.Provider)
	}
	if c.VectorStore.Collection == "" {
		return errors.New("vectorstore collection is required")
	}

	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Ingestion.ChunkOverlap)
	}
	if c.Ingestion.RefineBatchSize <= 0 {
		return fmt.Errorf("refine_batch_size must be positive, got %d", c.Ingestion.RefineBatchSize)
	}
	if c.Ingestion.PersistBatchSize <= 0 {
		return fmt.Errorf("persist_batch_size must be positive, got %d", c.Ingestion.PersistBatchSize)
	}

	switch c.Retrieval.Mode {
	case ModeVector, ModeHybrid, ModeEntity:
	default:
		return fmt.Errorf("unknown retrieval mode %q", c.Retrieval.Mode)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.CandidatePool < c.Retrieval.TopK {
		return fmt.Errorf("candidate_pool (%d) must be >= top_k (%d)", c.Retrieval.CandidatePool, c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %f", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.KeywordWeight < 0 {
		return fmt.Errorf("keyword_weight must be >= 0, got %f", c.Retrieval.KeywordWeight)
	}

	if c.Retrieval.Mode == ModeEntity && !c.Entities.Enabled {
		return errors.New("retrieval mode 'entity' requires entities.enabled")
	}
	if c.Entities.Enabled && c.Entities.Collection == "" {
		return errors.New("entities collection is required when entities are enabled")
	}

	return nil
}
