// Package embedclient implements the batched, retrying (uncached; caching
// is layered on by internal/cache) text-to-vector conversion client against an OpenAI-compatible
// embeddings endpoint (C4).
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
)

// InputType distinguishes a passage (document) embedding call from a
// query embedding call, per spec.md §4.4's embed_query path.
type InputType string

const (
	InputTypePassage InputType = "passage"
	InputTypeQuery   InputType = "query"
)

// Embedder is the interface the orchestrator and cache layer depend on.
// EmbedBatch preserves input order and length: len(out) == len(texts).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
	Ping(ctx context.Context) error
}

// maxCharBudget bounds a single normalized input before it is sent,
// preserving word boundaries as spec.md §4.4 step 1 requires.
const maxCharBudget = 32_000

// Client is the live HTTP embedder against <endpoint>/embeddings.
type Client struct {
	cfg  config.EmbeddingConfig
	http *http.Client
}

// New constructs a Client from the embedding section of Config.
func New(cfg config.EmbeddingConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
	}
}

func (c *Client) Name() string { return c.cfg.Model }

func (c *Client) Dimension() int { return c.cfg.Dimension }

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"}, InputTypeQuery)
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text}, InputTypeQuery)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch implements the §4.4 algorithm: normalize, partition into
// groups of at most batch_size, POST each group with retry-on-5xx /
// fail-fast-on-4xx, and concatenate in request order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.NewInvalidParameter("embed: no inputs")
	}

	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = normalize(t)
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	out := make([][]float32, 0, len(normalized))
	for start := 0; start < len(normalized); start += batchSize {
		end := start + batchSize
		if end > len(normalized) {
			end = len(normalized)
		}
		group := normalized[start:end]
		vectors, err := c.callWithRetry(ctx, group, inputType)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}

	if len(out) != len(texts) {
		return nil, apperr.NewInternal(fmt.Sprintf("embed: short response: got %d vectors for %d inputs", len(out), len(texts)), nil)
	}
	return out, nil
}

func (c *Client) callWithRetry(ctx context.Context, group []string, inputType InputType) ([][]float32, error) {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		vectors, status, body, err := c.call(ctx, group, inputType)
		if err == nil {
			return vectors, nil
		}

		if status >= 400 && status < 500 {
			return nil, apperr.NewBackendError(status, truncateBody(body), err)
		}

		lastErr = err
		if attempt > maxRetries {
			break
		}

		delay := baseDelay * time.Duration(attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("embedding call failed, retrying")
		select {
		case <-ctx.Done():
			return nil, apperr.NewTimeout("embed: context cancelled during retry backoff")
		case <-time.After(delay):
		}
	}

	if status, ok := statusOf(lastErr); ok {
		return nil, apperr.NewBackendError(status, truncateBody(errBody(lastErr)), lastErr)
	}
	return nil, apperr.NewTransient("embed: retries exhausted", lastErr)
}

type embedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     *int     `json:"dimensions,omitempty"`
	InputType      string   `json:"input_type,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// httpStatusError carries the HTTP status and a body fragment so
// callWithRetry can decide retriability without re-parsing the response.
type httpStatusError struct {
	status int
	body   string
	err    error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }

func statusOf(err error) (int, bool) {
	if se, ok := err.(*httpStatusError); ok {
		return se.status, true
	}
	return 0, false
}

func errBody(err error) string {
	if se, ok := err.(*httpStatusError); ok {
		return se.body
	}
	return ""
}

func (c *Client) call(ctx context.Context, texts []string, inputType InputType) ([][]float32, int, string, error) {
	timeout := time.Duration(c.cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody := embedRequest{
		Input:          texts,
		Model:          c.cfg.Model,
		EncodingFormat: "float",
		InputType:      string(inputType),
	}
	if c.cfg.Dimension > 0 {
		dim := c.cfg.Dimension
		reqBody.Dimensions = &dim
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, "", fmt.Errorf("marshal embed request: %w", err)
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, "", fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if cctx.Err() != nil {
			return nil, 0, "", &httpStatusError{status: 0, err: fmt.Errorf("embed request timed out: %w", cctx.Err())}
		}
		return nil, 0, "", &httpStatusError{status: 0, err: fmt.Errorf("embed request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", &httpStatusError{status: resp.StatusCode, err: fmt.Errorf("read embed response: %w", err)}
	}

	if resp.StatusCode/100 != 2 {
		e := fmt.Errorf("embed endpoint returned %s", resp.Status)
		return nil, resp.StatusCode, string(body), &httpStatusError{status: resp.StatusCode, body: string(body), err: e}
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, string(body), &httpStatusError{status: resp.StatusCode, body: string(body), err: fmt.Errorf("parse embed response: %w", err)}
	}
	if len(parsed.Data) != len(texts) {
		e := fmt.Errorf("embed response count mismatch: got %d, want %d", len(parsed.Data), len(texts))
		return nil, resp.StatusCode, string(body), &httpStatusError{status: resp.StatusCode, body: string(body), err: e}
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, resp.StatusCode, "", nil
}

func truncateBody(body string) string {
	const max = 500
	if len(body) <= max {
		return body
	}
	return body[:max]
}

// normalize trims, collapses internal whitespace runs, and hard-truncates
// to maxCharBudget at a word boundary.
func normalize(s string) string {
	fields := strings.Fields(s)
	joined := strings.Join(fields, " ")
	if len(joined) <= maxCharBudget {
		return joined
	}
	cut := joined[:maxCharBudget]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut
}
