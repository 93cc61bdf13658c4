package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/fragmentsearch/fragmentsearch/internal/observability"
)

// request is the wire shape sent to the cross-encoder endpoint, grounded
// on the teacher's llama.cpp reranker payload: one query, all documents
// of the batch, top_n equal to the full candidate count (the orchestrator
// truncates after, not the reranker).
type request struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type responseResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type response struct {
	Model   string           `json:"model"`
	Object  string           `json:"object"`
	Results []responseResult `json:"results"`
}

// HTTPClient calls a cross-encoder reranker over HTTP. Its score scale is
// not guaranteed to be [0, 1] similarity by the backend, so every batch is
// min-max normalized client-side against the batch's own min/max before
// the score_threshold cut and before being returned, per spec.md §9's
// reranker-score-scale decision.
type HTTPClient struct {
	Endpoint       string
	Model          string
	ScoreThreshold float64
	Timeout        time.Duration
	Metrics        observability.Metrics

	httpClient *http.Client
}

// NewHTTPClient builds a reranker client. metrics may be nil, in which
// case observability.NoopMetrics{} is used.
func NewHTTPClient(endpoint, model string, scoreThreshold float64, timeout time.Duration, metrics observability.Metrics) *HTTPClient {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &HTTPClient{
		Endpoint:       endpoint,
		Model:          model,
		ScoreThreshold: scoreThreshold,
		Timeout:        timeout,
		Metrics:        metrics,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// Rerank batches every candidate of the query into a single call. On any
// transport, status, or decode error it fails closed: returns the input
// order unchanged (uniform score 1) and records the failure in metrics,
// per spec.md §4.6.
func (c *HTTPClient) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	results, err := c.rerank(ctx, query, candidates)
	if err != nil {
		c.Metrics.IncCounter("rerank_failures_total", map[string]string{"reason": "error"})
		return passthrough(candidates), nil
	}
	return results, nil
}

func (c *HTTPClient) rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, error) {
	documents := make([]string, len(candidates))
	for i, cand := range candidates {
		documents[i] = cand.Content
	}

	body, err := json.Marshal(request{
		Model:     c.Model,
		Query:     query,
		TopN:      len(documents),
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()
	c.Metrics.ObserveHistogram("rerank_latency_ms", float64(time.Since(start).Milliseconds()), nil)

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("rerank: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	if len(parsed.Results) != len(candidates) {
		return nil, fmt.Errorf("rerank: expected %d results, got %d", len(candidates), len(parsed.Results))
	}

	scoreByIndex := make(map[int]float64, len(parsed.Results))
	for _, r := range parsed.Results {
		scoreByIndex[r.Index] = r.RelevanceScore
	}
	normalized := normalizeMinMax(scoreByIndex)

	out := make([]Result, 0, len(candidates))
	for i, cand := range candidates {
		score := normalized[i]
		if score < c.ScoreThreshold {
			continue
		}
		out = append(out, Result{Index: cand.Index, Content: cand.Content, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// normalizeMinMax maps raw backend scores onto [0, 1] similarity via
// min-max scaling against the batch's own range. A batch with zero range
// (all scores equal) maps every score to 1, treating the candidates as
// equally relevant rather than dividing by zero.
func normalizeMinMax(raw map[int]float64) map[int]float64 {
	if len(raw) == 0 {
		return raw
	}
	min, max := rawRange(raw)
	out := make(map[int]float64, len(raw))
	if max == min {
		for idx := range raw {
			out[idx] = 1
		}
		return out
	}
	for idx, v := range raw {
		out[idx] = (v - min) / (max - min)
	}
	return out
}

func rawRange(raw map[int]float64) (min, max float64) {
	first := true
	for _, v := range raw {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
