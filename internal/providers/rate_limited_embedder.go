package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder wraps an Embedder so every EmbedBatch call is split
// into sub-batches of at most BatchSize texts, each gated by a requests-
// per-second limiter and retried with exponential backoff up to MaxRetries
// on error. It is the one place EMBEDDING_BATCH_SIZE, EMBEDDING_RATE_LIMIT,
// and EMBEDDING_MAX_RETRIES take effect, regardless of which call site
// (ingestion, memory creation, search, inference) is embedding.
type RateLimitedEmbedder struct {
	inner      Embedder
	limiter    *rate.Limiter
	batchSize  int
	maxRetries int
	baseDelay  time.Duration
}

// RateLimitConfig tunes a RateLimitedEmbedder. BatchSize <= 0 disables
// batching (one call per EmbedBatch invocation); RatePerSecond <= 0 means
// unlimited.
type RateLimitConfig struct {
	BatchSize     int
	MaxRetries    int
	RatePerSecond float64
}

// NewRateLimitedEmbedder wraps inner with batching/rate-limiting/retry per
// cfg. Called once at provider-construction time so every engine component
// sharing this Embedder instance shares the same limiter.
func NewRateLimitedEmbedder(inner Embedder, cfg RateLimitConfig) *RateLimitedEmbedder {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &RateLimitedEmbedder{
		inner:      inner,
		limiter:    limiter,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		baseDelay:  100 * time.Millisecond,
	}
}

func (r *RateLimitedEmbedder) Dimension() int {
	return r.inner.Dimension()
}

func (r *RateLimitedEmbedder) Model() string {
	return r.inner.Model()
}

func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := r.batchSize
	if batchSize <= 0 || batchSize > len(texts) {
		batchSize = len(texts)
	}
	if batchSize == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := r.embedOneBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedOneBatch waits for rate-limiter capacity, then calls inner.EmbedBatch
// with exponential backoff retries on error.
func (r *RateLimitedEmbedder) embedOneBatch(ctx context.Context, texts []string) ([][]float32, error) {
	delay := r.baseDelay
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("providers: embed rate limiter: %w", err)
			}
		}
		vectors, err := r.inner.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("providers: embed failed after %d attempt(s): %w", r.maxRetries+1, lastErr)
}

var _ Embedder = (*RateLimitedEmbedder)(nil)
