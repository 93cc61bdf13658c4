// Package config defines the single configuration surface the core reads
// at startup. Every enumerated key from spec.md §6.4 has a field here; no
// component reads the process environment directly — the outer cmd/
// binary is the only place permitted to do that, and only to resolve this
// file's path and any secret overrides.
package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

type EmbeddingConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimension  int    `yaml:"dimension,omitempty"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
	BatchSize  int    `yaml:"batch_size"`
}

// VectorStoreMode selects which vectorstore backend is constructed.
type VectorStoreMode string

const (
	VectorStoreModeServer   VectorStoreMode = "server"
	VectorStoreModeFile     VectorStoreMode = "file"
	VectorStoreModeEmbedded VectorStoreMode = "embedded"
)

// Distance selects the collection's distance metric at creation.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceDot       Distance = "dot"
	DistanceEuclid    Distance = "euclid"
	DistanceManhattan Distance = "manhattan"
)

type VectorStoreConfig struct {
	Mode             VectorStoreMode `yaml:"mode"`
	URL              string          `yaml:"url,omitempty"`
	APIKey           string          `yaml:"api_key,omitempty"`
	Root             string          `yaml:"root,omitempty"`
	CollectionPrefix string          `yaml:"collection_prefix"`
	Distance         Distance        `yaml:"distance"`
}

type ChunkerConfig struct {
	MaxChunkSize       int  `yaml:"max_chunk_size"`
	OverlapSize        int  `yaml:"overlap_size"`
	PreserveBoundaries bool `yaml:"preserve_boundaries"`
	AddContextInfo     bool `yaml:"add_context_info"`
}

type PerfConfig struct {
	MaxConcurrent   int  `yaml:"max_concurrent"`
	CacheSize       int  `yaml:"cache_size"`
	CacheTTLSeconds int  `yaml:"cache_ttl_s"`
	WarmupCacheSize int  `yaml:"warmup_cache_size"`
	EnableMetrics   bool `yaml:"enable_metrics"`
}

type RerankConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TopK           int     `yaml:"top_k"`
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	TimeoutMS      int     `yaml:"timeout_ms"`
}

type OrchestratorConfig struct {
	RelevanceFloor float64      `yaml:"relevance_floor"`
	DefaultLimit   int          `yaml:"default_limit"`
	Rerank         RerankConfig `yaml:"rerank"`
}

type Config struct {
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Perf         PerfConfig         `yaml:"perf"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// LogPath and LogLevel configure internal/observability.InitLogger;
	// they are not part of spec.md §6.4's core-relevant surface but the
	// outer binary needs somewhere to read them from.
	LogPath  string `yaml:"log_path,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// applyDefaults applies spec.md §4's defaults for fields left unset after
// unmarshaling. Unknown keys in the YAML are ignored by yaml.Unmarshal
// itself; this only fills in zero values for keys the spec assigns a
// default.
func (c *Config) applyDefaults() {
	if c.Embedding.TimeoutMS <= 0 {
		c.Embedding.TimeoutMS = 30_000
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.VectorStore.CollectionPrefix == "" {
		c.VectorStore.CollectionPrefix = "docs_"
	}
	if c.VectorStore.Distance == "" {
		c.VectorStore.Distance = DistanceCosine
	}
	if c.VectorStore.Mode == "" {
		c.VectorStore.Mode = VectorStoreModeEmbedded
	}
	if c.Chunker.MaxChunkSize <= 0 {
		c.Chunker.MaxChunkSize = 10 * 1024
	}
	if c.Chunker.OverlapSize <= 0 {
		c.Chunker.OverlapSize = 512
	}
	if c.Perf.MaxConcurrent <= 0 {
		c.Perf.MaxConcurrent = 8
	}
	if c.Perf.CacheSize <= 0 {
		c.Perf.CacheSize = 10_000
	}
	if c.Perf.CacheTTLSeconds <= 0 {
		c.Perf.CacheTTLSeconds = 3600
	}
	if c.Orchestrator.RelevanceFloor <= 0 {
		c.Orchestrator.RelevanceFloor = 0.5
	}
	if c.Orchestrator.DefaultLimit <= 0 {
		c.Orchestrator.DefaultLimit = 10
	}
	if c.Orchestrator.Rerank.TopK <= 0 {
		c.Orchestrator.Rerank.TopK = 20
	}
	if c.Orchestrator.Rerank.TimeoutMS <= 0 {
		c.Orchestrator.Rerank.TimeoutMS = 10_000
	}
	if c.Orchestrator.Rerank.ScoreThreshold <= 0 {
		c.Orchestrator.Rerank.ScoreThreshold = 0.0
	}
}

// Load reads filename, unmarshals it as YAML, applies defaults, and fails
// fast when a required key is missing. embedding.api_key is the only key
// the spec names as required at startup.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config %q: %w", filename, err)
	}

	cfg.applyDefaults()

	// embedded mode runs entirely offline (in-memory vector store, a
	// deterministic embedder with no outbound calls), so it's the one mode
	// that doesn't need a live embedding.api_key.
	if cfg.VectorStore.Mode != VectorStoreModeEmbedded && cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("config: embedding.api_key is required")
	}

	log.Info().Str("vector_store_mode", string(cfg.VectorStore.Mode)).Msg("configuration loaded")
	return &cfg, nil
}
