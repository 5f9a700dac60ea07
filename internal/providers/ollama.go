package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/momo-mem/momo/internal/resilience"
)

// OllamaConfig configures an Ollama-backed Embedder/LLM pair.
type OllamaConfig struct {
	BaseURL         string
	CompletionModel string
	EmbeddingModel  string
	Dimension       int
	Timeout         time.Duration
}

// Ollama talks to a local Ollama daemon's /api/generate and /api/embed
// endpoints. Every HTTP call is wrapped by a circuit breaker so a daemon
// that is down or overloaded degrades into ErrDependencyUnavailable
// instead of blocking ingestion indefinitely.
type Ollama struct {
	cfg     OllamaConfig
	client  *http.Client
	breaker *resilience.Breaker
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = "qwen2.5:7b"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}
	return &Ollama{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.New("ollama"),
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := o.breaker.Execute(ctx, func() (interface{}, error) {
		return o.complete(ctx, prompt, "")
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// CompleteStructured asks Ollama for a JSON-formatted response (via the
// "format":"json" request field) and decodes it into out. schema is only
// used to render a description of the expected shape into the prompt,
// since Ollama's JSON mode does not accept a schema directly.
func (o *Ollama) CompleteStructured(ctx context.Context, prompt string, schema any, out any) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("providers: marshal schema: %w", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\nRespond with JSON matching this shape:\n%s", prompt, string(schemaJSON))

	result, err := o.breaker.Execute(ctx, func() (interface{}, error) {
		return o.complete(ctx, fullPrompt, "json")
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(result.(string)), out); err != nil {
		return fmt.Errorf("providers: decode structured response: %w", err)
	}
	return nil
}

func (o *Ollama) complete(ctx context.Context, prompt, format string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: o.cfg.CompletionModel, Prompt: prompt, Stream: false, Format: format})
	if err != nil {
		return "", fmt.Errorf("providers: marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("providers: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("providers: ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("providers: ollama generate returned %d: %s", resp.StatusCode, string(b))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("providers: decode generate response: %w", err)
	}
	return out.Response, nil
}

func (o *Ollama) Model() string {
	return o.cfg.CompletionModel
}

// EmbedBatch embeds each text individually since Ollama's /api/embed takes
// a single input per call; the circuit breaker wraps the whole batch so a
// mid-batch failure trips once rather than per text.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := o.breaker.Execute(ctx, func() (interface{}, error) {
		vectors := make([][]float32, 0, len(texts))
		for _, text := range texts {
			vec, err := o.embed(ctx, text)
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, vec)
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (o *Ollama) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.cfg.EmbeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("providers: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("providers: ollama embed returned %d: %s", resp.StatusCode, string(b))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("providers: decode embed response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("providers: ollama returned empty embedding vector")
	}
	return out.Embeddings[0], nil
}

func (o *Ollama) Dimension() int {
	return o.cfg.Dimension
}

// HealthCheck hits /api/version without circuit breaker protection, since
// it is itself a health probe.
func (o *Ollama) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.BaseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("providers: build health check request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("providers: ollama health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("providers: ollama health check returned %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Embedder = (*Ollama)(nil)
	_ LLM      = (*Ollama)(nil)
)
