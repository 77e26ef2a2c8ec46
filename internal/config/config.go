package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/citewise/internal/chunker"
	"github.com/dgallion1/citewise/internal/domain"
	"github.com/joho/godotenv"
)

const (
	ProviderHashing = "hashing"
	ProviderRemote  = "remote"

	// DefaultRemoteModel is used when the remote provider is chosen
	// without EMBEDDING_MODEL.
	DefaultRemoteModel = "all-mpnet-base-v2"

	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
	StoreQdrant   = "qdrant"
	StorePgvector = "pgvector"
)

type Config struct {
	Port string

	// Logging
	LogLevel string
	LogFile  string // Rotated JSON log in addition to stdout; empty disables.

	// Auth; empty disables bearer checks on the API.
	APIKey string

	// Chunking
	ChunkSize    int
	ChunkOverlap int
	ChunkUnit    string

	// Embedding
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingURL       string
	EmbeddingAPIKey    string
	EmbeddingDims      int
	EmbeddingBatchSize int
	EmbeddingRPS       float64
	EmbeddingTimeout   time.Duration
	QueryCacheTTL      time.Duration // Zero disables the query vector cache.

	// Vector store
	VectorStore         string
	VectorStoreLocation string
	QdrantURL           string
	QdrantAPIKey        string
	PostgresDSN         string

	// Query
	DefaultTopK int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first; variables already set win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		LogLevel: envOr("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		APIKey: os.Getenv("CITEWISE_API_KEY"),

		ChunkSize:    envInt("CHUNK_SIZE", 1000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),
		ChunkUnit:    envOr("CHUNK_UNIT", string(chunker.UnitRune)),

		EmbeddingProvider:  strings.ToLower(envOr("EMBEDDING_PROVIDER", ProviderHashing)),
		EmbeddingModel:     os.Getenv("EMBEDDING_MODEL"),
		EmbeddingURL:       envOr("EMBEDDING_URL", "http://localhost:11434/v1"),
		EmbeddingAPIKey:    os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingDims:      envInt("EMBEDDING_DIMS", 384),
		EmbeddingBatchSize: envInt("EMBEDDING_BATCH_SIZE", 32),
		EmbeddingRPS:       envFloat("EMBEDDING_RPS", 0),
		EmbeddingTimeout:   envDuration("EMBEDDING_TIMEOUT", 60*time.Second),
		QueryCacheTTL:      envDuration("QUERY_CACHE_TTL", 10*time.Minute),

		VectorStore:         strings.ToLower(envOr("VECTOR_STORE", StoreSQLite)),
		VectorStoreLocation: envOr("VECTOR_DB_PATH", "./citewise_db"),
		QdrantURL:           envOr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:        os.Getenv("QDRANT_API_KEY"),
		PostgresDSN:         os.Getenv("DATABASE_URL"),

		DefaultTopK: envInt("DEFAULT_TOP_K", 5),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.EmbeddingProvider == ProviderRemote && cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultRemoteModel
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.EmbeddingBatchSize <= 0 {
		cfg.EmbeddingBatchSize = 32
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

// Chunk returns the chunker settings.
func (c Config) Chunk() chunker.Config {
	return chunker.Config{
		Size:    c.ChunkSize,
		Overlap: c.ChunkOverlap,
		Unit:    chunker.Unit(c.ChunkUnit),
	}
}

func (c Config) Validate() error {
	if err := c.Chunk().Validate(); err != nil {
		return err
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("%w: DEFAULT_TOP_K must be positive, got %d", domain.ErrConfiguration, c.DefaultTopK)
	}

	switch c.EmbeddingProvider {
	case ProviderHashing:
		if c.EmbeddingDims <= 0 {
			return fmt.Errorf("%w: EMBEDDING_DIMS must be positive", domain.ErrConfiguration)
		}
		if c.EmbeddingModel != "" {
			return fmt.Errorf("%w: EMBEDDING_MODEL %q needs EMBEDDING_PROVIDER=remote; the hashing provider has no model", domain.ErrConfiguration, c.EmbeddingModel)
		}
	case ProviderRemote:
		if c.EmbeddingURL == "" {
			return fmt.Errorf("%w: EMBEDDING_URL is required for the remote provider", domain.ErrConfiguration)
		}
		if c.EmbeddingModel == "" {
			return fmt.Errorf("%w: EMBEDDING_MODEL is required for the remote provider", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown EMBEDDING_PROVIDER %q", domain.ErrConfiguration, c.EmbeddingProvider)
	}

	switch c.VectorStore {
	case StoreMemory:
	case StoreSQLite:
		if c.VectorStoreLocation == "" {
			return fmt.Errorf("%w: VECTOR_DB_PATH is required for the sqlite store", domain.ErrConfiguration)
		}
	case StoreQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("%w: QDRANT_URL is required for the qdrant store", domain.ErrConfiguration)
		}
	case StorePgvector:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the pgvector store", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown VECTOR_STORE %q", domain.ErrConfiguration, c.VectorStore)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
