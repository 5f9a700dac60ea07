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

// HTTPRerankerConfig configures a cross-encoder reranker served behind an
// HTTP endpoint (e.g. a local llama.cpp or TEI reranker server).
type HTTPRerankerConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

type HTTPReranker struct {
	cfg     HTTPRerankerConfig
	client  *http.Client
	breaker *resilience.Breaker
}

func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPReranker{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.New("reranker"),
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank scores each passage against query and returns scores in the same
// order as passages (not reordered) so the caller can zip scores back
// against whatever else it is tracking per passage.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	result, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return r.rerank(ctx, query, passages)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

func (r *HTTPReranker) rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: r.cfg.Model, Query: query, TopN: len(passages), Documents: passages})
	if err != nil {
		return nil, fmt.Errorf("providers: marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("providers: rerank returned %d: %s", resp.StatusCode, string(b))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("providers: decode rerank response: %w", err)
	}

	scores := make([]float64, len(passages))
	for _, res := range out.Results {
		if res.Index >= 0 && res.Index < len(scores) {
			scores[res.Index] = res.RelevanceScore
		}
	}
	return scores, nil
}

var _ Reranker = (*HTTPReranker)(nil)
