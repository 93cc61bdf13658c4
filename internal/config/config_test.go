package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
embedding:
  endpoint: https://example.com/v1
  api_key: secret
  model: text-embed-3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30_000, cfg.Embedding.TimeoutMS)
	require.Equal(t, 3, cfg.Embedding.MaxRetries)
	require.Equal(t, 32, cfg.Embedding.BatchSize)
	require.Equal(t, VectorStoreModeEmbedded, cfg.VectorStore.Mode)
	require.Equal(t, DistanceCosine, cfg.VectorStore.Distance)
	require.Equal(t, 0.5, cfg.Orchestrator.RelevanceFloor)
	require.Equal(t, 10, cfg.Orchestrator.DefaultLimit)
	require.Equal(t, 20, cfg.Orchestrator.Rerank.TopK)
}

func TestLoadFailsFastOnMissingAPIKey(t *testing.T) {
	path := writeTempConfig(t, `
embedding:
  endpoint: https://example.com/v1
  model: text-embed-3
vector_store:
  mode: server
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEmbeddedModeDoesNotRequireAPIKey(t *testing.T) {
	path := writeTempConfig(t, `
embedding:
  endpoint: https://example.com/v1
  model: text-embed-3
vector_store:
  mode: embedded
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, VectorStoreModeEmbedded, cfg.VectorStore.Mode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := writeTempConfig(t, `
embedding:
  api_key: secret
totally_unknown_section:
  foo: bar
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.Embedding.APIKey)
}
