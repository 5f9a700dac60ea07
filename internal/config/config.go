// Package config loads Momo's configuration from environment variables with
// the MOMO_ prefix, following sensible defaults for every option. There is no
// config file parser here by design — CLI/config parsing belongs to an
// external layer; this package only builds the in-process Config struct a
// library caller constructs directly.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every configuration option the Momo core recognizes.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Embedding   EmbeddingConfig
	Processing  ProcessingConfig
	Lifecycle   LifecycleConfig
	Inference   InferenceConfig
	Rerank      RerankConfig
	LLM         LLMConfig
	Features    FeaturesConfig
}

// ServerConfig is consumed by the (out-of-scope) HTTP layer; the core only
// carries it through so one application context can be constructed.
type ServerConfig struct {
	Host    string
	Port    int
	APIKeys []string // comma-separated in env; empty = auth off
}

// DatabaseConfig describes the embedded SQL database's location.
type DatabaseConfig struct {
	URL         string // path to the sqlite file, or ":memory:"
	AuthToken   string // optional, for remote-backed setups
	ReplicaPath string // optional local replica path for cloud-backed setups
}

// EmbeddingConfig configures the Embedder capability.
type EmbeddingConfig struct {
	Model      string // "provider/model", e.g. "ollama/nomic-embed-text"
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64 // requests per second, 0 = unlimited
}

// ProcessingConfig configures the Chunker Registry and ingestion guards.
type ProcessingConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	MaxContentLength int
}

// LifecycleConfig configures the Forgetting Manager and episode decay.
type LifecycleConfig struct {
	EpisodeDecayDays        float64
	EpisodeDecayFactor      float64
	EpisodeDecayThreshold   float64
	EpisodeForgetGraceDays  float64
	ForgettingCheckInterval time.Duration
}

// InferenceConfig configures the Inference Engine.
type InferenceConfig struct {
	Enabled             bool
	IntervalSecs        int
	ConfidenceThreshold float64
	MaxPerRun           int
	SeedLimit           int
	CandidateCount      int
}

// RerankConfig configures the optional cross-encoder rerank pass.
type RerankConfig struct {
	Enabled bool
	Model   string
	TopK    int
}

// LLMConfig configures the LLM capability and the feature toggles that
// depend on it.
type LLMConfig struct {
	Provider                     string // "provider/model" string
	APIKey                       string
	BaseURL                      string
	Timeout                      time.Duration
	MaxRetries                   int
	EnableContradictionDetection bool
	EnableQueryRewrite           bool
	EnableAutoRelations          bool
	QueryRewriteCacheSize        int
	QueryRewriteTimeout          time.Duration
}

// FeaturesConfig carries miscellaneous feature flags not specific to one
// subsystem.
type FeaturesConfig struct {
	RebuildEmbeddings bool // --rebuild-embeddings: non-interactive dimension-mismatch migration
}

// Load builds a Config from environment variables and defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    getEnv("MOMO_HOST", "127.0.0.1"),
			Port:    getEnvInt("MOMO_PORT", 8384),
			APIKeys: getEnvList("MOMO_API_KEYS", nil),
		},
		Database: DatabaseConfig{
			URL:         getEnv("MOMO_DATABASE_URL", "./data/momo.db"),
			AuthToken:   getEnv("MOMO_DATABASE_AUTH_TOKEN", ""),
			ReplicaPath: getEnv("MOMO_DATABASE_REPLICA_PATH", ""),
		},
		Embedding: EmbeddingConfig{
			Model:      getEnv("MOMO_EMBEDDING_MODEL", "ollama/nomic-embed-text"),
			Dimensions: getEnvInt("MOMO_EMBEDDING_DIMENSIONS", 768),
			BatchSize:  getEnvInt("MOMO_EMBEDDING_BATCH_SIZE", 32),
			Timeout:    getEnvDuration("MOMO_EMBEDDING_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvInt("MOMO_EMBEDDING_MAX_RETRIES", 3),
			RateLimit:  getEnvFloat("MOMO_EMBEDDING_RATE_LIMIT", 0),
		},
		Processing: ProcessingConfig{
			ChunkSize:        getEnvInt("MOMO_CHUNK_SIZE", 512),
			ChunkOverlap:     getEnvInt("MOMO_CHUNK_OVERLAP", 64),
			MaxContentLength: getEnvInt("MOMO_MAX_CONTENT_LENGTH", 1_000_000),
		},
		Lifecycle: LifecycleConfig{
			EpisodeDecayDays:        getEnvFloat("MOMO_EPISODE_DECAY_DAYS", 7),
			EpisodeDecayFactor:      getEnvFloat("MOMO_EPISODE_DECAY_FACTOR", 0.9),
			EpisodeDecayThreshold:   getEnvFloat("MOMO_EPISODE_DECAY_THRESHOLD", 0.2),
			EpisodeForgetGraceDays:  getEnvFloat("MOMO_EPISODE_FORGET_GRACE_DAYS", 14),
			ForgettingCheckInterval: getEnvDuration("MOMO_FORGETTING_CHECK_INTERVAL", 1*time.Hour),
		},
		Inference: InferenceConfig{
			Enabled:             getEnvBool("MOMO_ENABLE_INFERENCES", false),
			IntervalSecs:        getEnvInt("MOMO_INFERENCE_INTERVAL_SECS", 3600),
			ConfidenceThreshold: getEnvFloat("MOMO_INFERENCE_CONFIDENCE_THRESHOLD", 0.7),
			MaxPerRun:           getEnvInt("MOMO_INFERENCE_MAX_PER_RUN", 10),
			SeedLimit:           getEnvInt("MOMO_INFERENCE_SEED_LIMIT", 50),
			CandidateCount:      getEnvInt("MOMO_INFERENCE_CANDIDATE_COUNT", 5),
		},
		Rerank: RerankConfig{
			Enabled: getEnvBool("MOMO_RERANK_ENABLED", false),
			Model:   getEnv("MOMO_RERANK_MODEL", ""),
			TopK:    getEnvInt("MOMO_RERANK_TOP_K", 20),
		},
		LLM: LLMConfig{
			Provider:                     getEnv("MOMO_LLM_PROVIDER", "ollama/qwen2.5:7b"),
			APIKey:                       getEnv("MOMO_LLM_API_KEY", ""),
			BaseURL:                      getEnv("MOMO_LLM_BASE_URL", "http://localhost:11434"),
			Timeout:                      getEnvDuration("MOMO_LLM_TIMEOUT", 60*time.Second),
			MaxRetries:                   getEnvInt("MOMO_LLM_MAX_RETRIES", 3),
			EnableContradictionDetection: getEnvBool("MOMO_ENABLE_CONTRADICTION_DETECTION", true),
			EnableQueryRewrite:           getEnvBool("MOMO_ENABLE_QUERY_REWRITE", false),
			EnableAutoRelations:          getEnvBool("MOMO_ENABLE_AUTO_RELATIONS", true),
			QueryRewriteCacheSize:        getEnvInt("MOMO_QUERY_REWRITE_CACHE_SIZE", 256),
			QueryRewriteTimeout:          getEnvDuration("MOMO_QUERY_REWRITE_TIMEOUT_SECS", 3*time.Second),
		},
		Features: FeaturesConfig{
			RebuildEmbeddings: getEnvBool("MOMO_REBUILD_EMBEDDINGS", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
