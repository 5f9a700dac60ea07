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
	"github.com/momo-mem/momo/pkg/errs"
)

// OpenAIConfig configures an OpenAI-backed LLM and Embedder.
type OpenAIConfig struct {
	APIKey          string
	CompletionModel string // default: gpt-4o-mini
	EmbeddingModel  string // default: text-embedding-3-small
	BaseURL         string // default: https://api.openai.com
	Dimension       int
	Timeout         time.Duration
}

// OpenAI talks to the OpenAI chat completions and embeddings APIs. With no
// API key configured it still constructs, but every call fails fast with
// ErrDependencyUnavailable rather than attempting an unauthenticated request.
type OpenAI struct {
	cfg     OpenAIConfig
	client  *http.Client
	breaker *resilience.Breaker
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	return &OpenAI{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.New("openai"),
	}
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	if o.cfg.APIKey == "" {
		return "", fmt.Errorf("providers: openai: %w", errs.ErrDependencyUnavailable)
	}
	result, err := o.breaker.Execute(ctx, func() (interface{}, error) {
		return o.complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (o *OpenAI) CompleteStructured(ctx context.Context, prompt string, schema any, out any) error {
	if o.cfg.APIKey == "" {
		return fmt.Errorf("providers: openai: %w", errs.ErrDependencyUnavailable)
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("providers: marshal schema: %w", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\nRespond with JSON matching this shape, and nothing else:\n%s", prompt, string(schemaJSON))

	result, err := o.breaker.Execute(ctx, func() (interface{}, error) {
		return o.complete(ctx, fullPrompt)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(result.(string)), out); err != nil {
		return fmt.Errorf("providers: decode structured response: %w", err)
	}
	return nil
}

func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := openAIChatRequest{
		Model:       o.cfg.CompletionModel,
		Messages:    []openAIChatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("providers: marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("providers: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("providers: openai chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("providers: openai chat returned %d: %s", resp.StatusCode, string(b))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("providers: decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("providers: openai returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func (o *OpenAI) Model() string {
	return o.cfg.CompletionModel
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if o.cfg.APIKey == "" {
		return nil, fmt.Errorf("providers: openai: %w", errs.ErrDependencyUnavailable)
	}
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

func (o *OpenAI) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{Model: o.cfg.EmbeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("providers: marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: openai embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("providers: openai embed returned %d: %s", resp.StatusCode, string(b))
	}

	var out openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("providers: decode embedding response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("providers: openai returned empty embedding")
	}

	raw := out.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAI) Dimension() int {
	return o.cfg.Dimension
}

var (
	_ Embedder = (*OpenAI)(nil)
	_ LLM      = (*OpenAI)(nil)
)
