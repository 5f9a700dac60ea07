// Package engine implements the memory system's operational core: the
// ingestion pipeline, the memory-creation sub-pipeline (contradiction
// resolution and relationship detection), the search service, the
// forgetting manager, the inference engine, and the profile/graph views.
// Every exported type here is a plain Go method surface; no HTTP transport
// lives in this package.
package engine

import (
	"fmt"
	"time"

	"github.com/momo-mem/momo/internal/config"
)

// IngestionJob is a queued unit of ingestion work: one document working its
// way through extract→chunk→embed→index→post-process. Jobs are queued when
// a document is created and processed by ingestion worker goroutines.
type IngestionJob struct {
	DocumentID string
	Timestamp  time.Time
	Attempt    int
}

// Config holds the engine's tunables, flattened from config.Config into the
// shape each subsystem reads directly.
type Config struct {
	NumWorkers      int
	QueueSize       int
	ShutdownTimeout time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration

	ChunkSize        int
	ChunkOverlap     int
	MaxContentLength int

	EpisodeDecayDays       float64
	EpisodeDecayFactor     float64
	EpisodeDecayThreshold  float64
	EpisodeForgetGraceDays float64
	ForgettingInterval     time.Duration

	InferenceEnabled        bool
	InferenceInterval       time.Duration
	InferenceConfidenceMin  float64
	InferenceMaxPerRun      int
	InferenceSeedLimit      int
	InferenceCandidateCount int

	RerankEnabled bool
	RerankTopK    int

	EnableContradictionDetection bool
	EnableQueryRewrite           bool
	EnableAutoRelations          bool
	QueryRewriteCacheSize        int
	QueryRewriteTimeout          time.Duration
}

// DefaultConfig returns a Config with sensible defaults, matching
// config.Load()'s own defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      4,
		QueueSize:       1000,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      3,
		RetryBaseDelay:  100 * time.Millisecond,

		ChunkSize:        512,
		ChunkOverlap:     64,
		MaxContentLength: 1_000_000,

		EpisodeDecayDays:       7,
		EpisodeDecayFactor:     0.9,
		EpisodeDecayThreshold:  0.2,
		EpisodeForgetGraceDays: 14,
		ForgettingInterval:     time.Hour,

		InferenceInterval:       time.Hour,
		InferenceConfidenceMin:  0.7,
		InferenceMaxPerRun:      10,
		InferenceSeedLimit:      50,
		InferenceCandidateCount: 5,

		RerankTopK: 20,

		EnableContradictionDetection: true,
		EnableAutoRelations:          true,
		QueryRewriteCacheSize:        256,
		QueryRewriteTimeout:          3 * time.Second,
	}
}

// NewConfig builds a Config from a loaded application config.Config.
func NewConfig(c *config.Config) Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = c.Processing.ChunkSize
	cfg.ChunkOverlap = c.Processing.ChunkOverlap
	cfg.MaxContentLength = c.Processing.MaxContentLength

	cfg.EpisodeDecayDays = c.Lifecycle.EpisodeDecayDays
	cfg.EpisodeDecayFactor = c.Lifecycle.EpisodeDecayFactor
	cfg.EpisodeDecayThreshold = c.Lifecycle.EpisodeDecayThreshold
	cfg.EpisodeForgetGraceDays = c.Lifecycle.EpisodeForgetGraceDays
	cfg.ForgettingInterval = c.Lifecycle.ForgettingCheckInterval

	cfg.InferenceEnabled = c.Inference.Enabled
	cfg.InferenceInterval = time.Duration(c.Inference.IntervalSecs) * time.Second
	cfg.InferenceConfidenceMin = c.Inference.ConfidenceThreshold
	cfg.InferenceMaxPerRun = c.Inference.MaxPerRun
	cfg.InferenceSeedLimit = c.Inference.SeedLimit
	cfg.InferenceCandidateCount = c.Inference.CandidateCount

	cfg.RerankEnabled = c.Rerank.Enabled
	cfg.RerankTopK = c.Rerank.TopK

	cfg.EnableContradictionDetection = c.LLM.EnableContradictionDetection
	cfg.EnableQueryRewrite = c.LLM.EnableQueryRewrite
	cfg.EnableAutoRelations = c.LLM.EnableAutoRelations
	cfg.QueryRewriteCacheSize = c.LLM.QueryRewriteCacheSize
	cfg.QueryRewriteTimeout = c.LLM.QueryRewriteTimeout
	return cfg
}

// Validate checks that the config is usable before the engine starts.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("engine: NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("engine: QueueSize must be >= 1, got %d", c.QueueSize)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("engine: ChunkSize must be >= 1, got %d", c.ChunkSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("engine: MaxRetries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}
