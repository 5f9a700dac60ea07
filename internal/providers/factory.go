package providers

import (
	"fmt"
	"strings"
	"time"
)

// splitProviderModel parses a "provider/model" config string, e.g.
// "ollama/qwen2.5:7b" or "openai/gpt-4o-mini". A string with no slash is
// treated as a bare model name on the default "ollama" provider.
func splitProviderModel(s string) (provider, model string) {
	provider, model, ok := strings.Cut(s, "/")
	if !ok {
		return "ollama", s
	}
	return provider, model
}

// LLMFactoryConfig is the subset of config.LLMConfig the factory needs.
type LLMFactoryConfig struct {
	Provider   string // "provider/model"
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// NewLLM builds an LLM from a "provider/model" config string, with ollama
// as the zero-value default.
func NewLLM(cfg LLMFactoryConfig) (LLM, error) {
	provider, model := splitProviderModel(cfg.Provider)
	switch provider {
	case "openai":
		return NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, CompletionModel: model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case "anthropic":
		return NewAnthropic(AnthropicConfig{APIKey: cfg.APIKey, Model: model, Timeout: cfg.Timeout}), nil
	case "ollama", "":
		return NewOllama(OllamaConfig{BaseURL: cfg.BaseURL, CompletionModel: model, Timeout: cfg.Timeout}), nil
	case "local":
		return NewLocal(0), nil
	default:
		return nil, fmt.Errorf("providers: unsupported LLM provider %q", provider)
	}
}

// EmbeddingFactoryConfig is the subset of config.EmbeddingConfig the
// factory needs, alongside the LLM config it shares a base URL/key with
// for providers (ollama, openai) that serve both capabilities.
type EmbeddingFactoryConfig struct {
	Model      string // "provider/model"
	Dimensions int
	Timeout    time.Duration
	APIKey     string
	BaseURL    string

	// BatchSize, MaxRetries, and RateLimit configure the RateLimitedEmbedder
	// wrapper every concrete provider below is returned through.
	BatchSize  int
	MaxRetries int
	RateLimit  float64 // requests per second, 0 = unlimited
}

// NewEmbedder builds an Embedder from a "provider/model" config string,
// wrapped in a RateLimitedEmbedder so every caller's EmbedBatch is batched,
// rate-limited, and retried the same way regardless of backend. Anthropic
// has no embeddings endpoint; requesting it is a config error the caller
// should surface at startup, not a runtime DependencyUnavailable.
func NewEmbedder(cfg EmbeddingFactoryConfig) (Embedder, error) {
	provider, model := splitProviderModel(cfg.Model)
	var inner Embedder
	switch provider {
	case "openai":
		inner = NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, EmbeddingModel: model, CompletionModel: model, BaseURL: cfg.BaseURL, Dimension: cfg.Dimensions, Timeout: cfg.Timeout})
	case "ollama", "":
		inner = NewOllama(OllamaConfig{BaseURL: cfg.BaseURL, EmbeddingModel: model, CompletionModel: model, Dimension: cfg.Dimensions, Timeout: cfg.Timeout})
	case "local":
		inner = NewLocal(cfg.Dimensions)
	case "anthropic":
		return nil, fmt.Errorf("providers: anthropic does not support embeddings")
	default:
		return nil, fmt.Errorf("providers: unsupported embedding provider %q", provider)
	}
	return NewRateLimitedEmbedder(inner, RateLimitConfig{
		BatchSize:     cfg.BatchSize,
		MaxRetries:    cfg.MaxRetries,
		RatePerSecond: cfg.RateLimit,
	}), nil
}
