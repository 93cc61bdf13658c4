// Command ingestctl drives the orchestrator's generation path for a
// single package without a caller-facing query, for warming the vector
// store ahead of time instead of paying the first search's ingest cost.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fragmentsearch/fragmentsearch/internal/cache"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
	"github.com/fragmentsearch/fragmentsearch/internal/embedclient"
	"github.com/fragmentsearch/fragmentsearch/internal/observability"
	"github.com/fragmentsearch/fragmentsearch/internal/orchestrator"
	"github.com/fragmentsearch/fragmentsearch/internal/rerank"
	"github.com/fragmentsearch/fragmentsearch/internal/sources"
	"github.com/fragmentsearch/fragmentsearch/internal/sources/goadapter"
	"github.com/fragmentsearch/fragmentsearch/internal/sources/npmadapter"
	"github.com/fragmentsearch/fragmentsearch/internal/sources/pyadapter"
	"github.com/fragmentsearch/fragmentsearch/internal/vectorstore"
)

func main() {
	log.SetFlags(0)
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
		language   = flag.String("language", "", "ecosystem identifier (go, python, npm)")
		pkg        = flag.String("package", "", "package identifier to ingest")
		version    = flag.String("version", "", "pin to a specific version instead of the latest")
	)
	flag.Parse()

	if *language == "" || *pkg == "" {
		log.Fatal("ingestctl: -language and -package are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ingestctl: %v", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		log.Fatalf("ingestctl: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Embedding.TimeoutMS)*time.Millisecond*4)
	defer cancel()

	result, err := orch.Find(ctx, *language, *pkg, *version, fmt.Sprintf("package overview of %s", *pkg))
	if err != nil {
		log.Fatalf("ingestctl: ingest failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("ingestctl: encode result: %v", err)
	}
}

// buildOrchestrator wires the same collaborators cmd/docsearchd does,
// minus the tool facade and transport, since ingestctl only ever drives
// one Find call per invocation.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	var metrics observability.Metrics = observability.NoopMetrics{}
	if cfg.Perf.EnableMetrics {
		metrics = observability.NewOtelMetrics("ingestctl")
	}

	var store vectorstore.Store
	var err error
	switch cfg.VectorStore.Mode {
	case config.VectorStoreModeServer:
		store, err = vectorstore.NewQdrant(cfg.VectorStore.URL, cfg.VectorStore.APIKey, cfg.Embedding.Dimension, cfg.VectorStore.Distance, cfg.VectorStore.CollectionPrefix)
	case config.VectorStoreModeFile:
		store, err = vectorstore.NewFileStore(cfg.VectorStore.Root)
	default:
		store = vectorstore.NewMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	layer := cache.New(cache.Config{
		MaxConcurrent:   cfg.Perf.MaxConcurrent,
		CacheSize:       cfg.Perf.CacheSize,
		CacheTTL:        time.Duration(cfg.Perf.CacheTTLSeconds) * time.Second,
		WarmupCacheSize: cfg.Perf.WarmupCacheSize,
	}, metrics)

	var inner embedclient.Embedder
	if cfg.VectorStore.Mode == config.VectorStoreModeEmbedded {
		inner = embedclient.NewDeterministic(cfg.Embedding.Dimension, true, 0)
	} else {
		inner = embedclient.New(cfg.Embedding)
	}
	embedder := cache.NewCachedEmbedder(inner, layer)

	registry := sources.NewRegistry()
	registry.Register("go", goadapter.New("", ""))
	registry.Register("python", pyadapter.New(""))
	registry.Register("npm", npmadapter.New(""))

	var reranker rerank.Reranker = rerank.Noop{}
	if cfg.Orchestrator.Rerank.Enabled {
		reranker = rerank.NewHTTPClient(
			cfg.Orchestrator.Rerank.Endpoint,
			cfg.Orchestrator.Rerank.Model,
			cfg.Orchestrator.Rerank.ScoreThreshold,
			time.Duration(cfg.Orchestrator.Rerank.TimeoutMS)*time.Millisecond,
			metrics,
		)
	}

	return orchestrator.New(registry, store, embedder, reranker, cfg.Orchestrator, cfg.Chunker, metrics), nil
}
