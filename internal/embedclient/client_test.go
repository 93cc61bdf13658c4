package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
)

type embedRespData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

func writeEmbedResponse(w http.ResponseWriter, count int) {
	data := make([]embedRespData, count)
	for i := range data {
		data[i] = embedRespData{Embedding: []float32{float32(i), float32(i) + 0.5}, Index: i}
	}
	body, _ := json.Marshal(map[string]any{"data": data})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func newTestClient(t *testing.T, url string, overrides func(*config.EmbeddingConfig)) *Client {
	t.Helper()
	cfg := config.EmbeddingConfig{
		Endpoint:   url,
		APIKey:     "secret",
		Model:      "test-model",
		TimeoutMS:  2000,
		MaxRetries: 2,
		BatchSize:  2,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return New(cfg)
}

func TestEmbedBatchPreservesOrderAndLength(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEmbedResponse(w, len(req.Input))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	out, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, InputTypePassage)
	require.NoError(t, err)
	require.Len(t, out, 5)
}

func TestEmbedBatchSendsBearerAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEmbedResponse(w, len(req.Input))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, err := c.EmbedBatch(context.Background(), []string{"x"}, InputTypeQuery)
	require.NoError(t, err)
}

func TestEmbedBatch4xxFailsFastNoRetry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, err := c.EmbedBatch(context.Background(), []string{"x"}, InputTypePassage)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	appErr, ok := apperr.Of(err)
	require.True(t, ok)
	require.Equal(t, apperr.BackendError, appErr.Kind)
	require.False(t, appErr.Retriable)
}

func TestEmbedBatchRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("server error"))
			return
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEmbedResponse(w, len(req.Input))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, func(cfg *config.EmbeddingConfig) { cfg.MaxRetries = 3 })
	out, err := c.EmbedBatch(context.Background(), []string{"x"}, InputTypePassage)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestPingUsesQueryInputType(t *testing.T) {
	var seenInputType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seenInputType = req.InputType
		writeEmbedResponse(w, len(req.Input))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	require.NoError(t, c.Ping(context.Background()))
	require.Equal(t, string(InputTypeQuery), seenInputType)
}

func TestDeterministicEmbedderIsStable(t *testing.T) {
	d := NewDeterministic(32, true, 7)
	v1, err := d.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := d.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Len(t, v1, 32)
}
