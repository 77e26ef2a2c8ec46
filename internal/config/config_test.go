package config

import (
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/citewise/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here
	for _, k := range []string{"CHUNK_SIZE", "CHUNK_OVERLAP", "CHUNK_UNIT", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "VECTOR_STORE", "DEFAULT_TOP_K", "VECTOR_DB_PATH"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 200 {
		t.Errorf("chunking = %d/%d, want 1000/200", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.EmbeddingProvider != ProviderHashing {
		t.Errorf("provider = %q", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingModel != "" {
		t.Errorf("hashing provider should have no model, got %q", cfg.EmbeddingModel)
	}
	if cfg.VectorStore != StoreSQLite || cfg.VectorStoreLocation != "./citewise_db" {
		t.Errorf("store = %q at %q", cfg.VectorStore, cfg.VectorStoreLocation)
	}
	if cfg.DefaultTopK != 5 {
		t.Errorf("top k = %d", cfg.DefaultTopK)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("CHUNK_UNIT", "word")
	t.Setenv("VECTOR_STORE", "Memory")
	t.Setenv("EMBEDDING_RPS", "2.5")
	t.Setenv("JOB_TTL", "10m")
	t.Setenv("WORKER_COUNT", "not-a-number")

	cfg := Load()
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 || cfg.ChunkUnit != "word" {
		t.Errorf("chunking = %+v", cfg.Chunk())
	}
	if cfg.VectorStore != StoreMemory {
		t.Errorf("store = %q", cfg.VectorStore)
	}
	if cfg.EmbeddingRPS != 2.5 {
		t.Errorf("rps = %v", cfg.EmbeddingRPS)
	}
	if cfg.JobTTL != 10*time.Minute {
		t.Errorf("ttl = %v", cfg.JobTTL)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("unparseable WORKER_COUNT should fall back, got %d", cfg.WorkerCount)
	}
}

func TestLoadRemoteModelDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMBEDDING_PROVIDER", "remote")
	t.Setenv("EMBEDDING_MODEL", "")

	cfg := Load()
	if cfg.EmbeddingModel != DefaultRemoteModel {
		t.Errorf("model = %q, want %q", cfg.EmbeddingModel, DefaultRemoteModel)
	}

	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")
	if got := Load().EmbeddingModel; got != "nomic-embed-text" {
		t.Errorf("model = %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		ChunkSize:         1000,
		ChunkOverlap:      200,
		DefaultTopK:       5,
		EmbeddingProvider: ProviderHashing,
		EmbeddingDims:     384,
		VectorStore:       StoreMemory,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"zero size", func(c *Config) { c.ChunkSize = 0 }},
		{"bad unit", func(c *Config) { c.ChunkUnit = "sentence" }},
		{"zero top k", func(c *Config) { c.DefaultTopK = 0 }},
		{"unknown provider", func(c *Config) { c.EmbeddingProvider = "magic" }},
		{"model under hashing", func(c *Config) { c.EmbeddingModel = "all-mpnet-base-v2" }},
		{"remote without url", func(c *Config) { c.EmbeddingProvider = ProviderRemote; c.EmbeddingModel = "m" }},
		{"unknown store", func(c *Config) { c.VectorStore = "chroma" }},
		{"sqlite without path", func(c *Config) { c.VectorStore = StoreSQLite }},
		{"qdrant without url", func(c *Config) { c.VectorStore = StoreQdrant }},
		{"pgvector without dsn", func(c *Config) { c.VectorStore = StorePgvector }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("Validate() = %v, want ErrConfiguration", err)
			}
		})
	}
}
