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

// AnthropicConfig configures an Anthropic-backed LLM. Anthropic has no
// embeddings endpoint, so Anthropic only implements LLM, never Embedder.
type AnthropicConfig struct {
	APIKey  string
	Model   string // default: claude-haiku-4-5-20251001
	Timeout time.Duration
}

type Anthropic struct {
	cfg     AnthropicConfig
	client  *http.Client
	breaker *resilience.Breaker
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Anthropic{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.New("anthropic"),
	}
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	if a.cfg.APIKey == "" {
		return "", fmt.Errorf("providers: anthropic: %w", errs.ErrDependencyUnavailable)
	}
	result, err := a.breaker.Execute(ctx, func() (interface{}, error) {
		return a.complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (a *Anthropic) CompleteStructured(ctx context.Context, prompt string, schema any, out any) error {
	if a.cfg.APIKey == "" {
		return fmt.Errorf("providers: anthropic: %w", errs.ErrDependencyUnavailable)
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("providers: marshal schema: %w", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\nRespond with JSON matching this shape, and nothing else:\n%s", prompt, string(schemaJSON))

	result, err := a.breaker.Execute(ctx, func() (interface{}, error) {
		return a.complete(ctx, fullPrompt)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(result.(string)), out); err != nil {
		return fmt.Errorf("providers: decode structured response: %w", err)
	}
	return nil
}

func (a *Anthropic) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicMessagesRequest{
		Model:     a.cfg.Model,
		MaxTokens: 4096,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("providers: marshal messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("providers: build messages request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("providers: anthropic messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("providers: anthropic messages returned %d: %s", resp.StatusCode, string(b))
	}

	var out anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("providers: decode messages response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("providers: anthropic returned empty content")
	}
	return out.Content[0].Text, nil
}

func (a *Anthropic) Model() string {
	return a.cfg.Model
}

var _ LLM = (*Anthropic)(nil)
