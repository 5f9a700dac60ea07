// Package resilience wraps provider calls with circuit-breaker protection
// so a failing Embedder/LLM backend degrades into a DependencyUnavailable
// error instead of cascading retries into the caller.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/momo-mem/momo/pkg/errs"
)

// Config holds circuit breaker tuning parameters.
type Config struct {
	MaxFailures          uint32        // consecutive failures required to trip, default 3
	Timeout              time.Duration // time open before half-open, default 30s
	HalfOpenMaxSuccesses uint32        // requests allowed through in half-open, default 2
}

// Metrics is a point-in-time snapshot of a Breaker's call counts.
type Metrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker wraps gobreaker with the three standard states (closed, open,
// half-open) and maps a tripped circuit to errs.ErrDependencyUnavailable.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	mu      sync.RWMutex
	metrics Metrics
}

// New creates a Breaker with default tuning: 3 consecutive failures trips
// it, it stays open 30s, and 2 successes in half-open close it again.
func New(name string) *Breaker {
	return NewWithConfig(name, Config{MaxFailures: 3, Timeout: 30 * time.Second, HalfOpenMaxSuccesses: 2})
}

func NewWithConfig(name string, cfg Config) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	b := &Breaker{name: name}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	})
	return b
}

// Execute runs fn through the breaker. A tripped circuit short-circuits to
// errs.ErrDependencyUnavailable without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		b.recordFailure()
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})

	if err != nil {
		b.recordFailure()
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("%s: circuit breaker open: %w", b.name, errs.ErrDependencyUnavailable)
		}
		return nil, err
	}
	b.recordSuccess()
	return result, nil
}

// State returns "closed", "open", or "half-open".
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (b *Breaker) Metrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := b.breaker.Counts()
	m := b.metrics
	m.ConsecutiveSuccesses = counts.ConsecutiveSuccesses
	m.ConsecutiveFailures = counts.ConsecutiveFailures
	return m
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	b.metrics.TotalSuccesses++
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	b.metrics.TotalFailures++
}
