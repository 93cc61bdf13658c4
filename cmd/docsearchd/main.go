// Command docsearchd is the process entrypoint: it loads configuration,
// wires the core's collaborators, and serves the three tool-facade
// operations (C9) over an MCP stdio transport.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

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
	"github.com/fragmentsearch/fragmentsearch/internal/toolfacade"
	"github.com/fragmentsearch/fragmentsearch/internal/vectorstore"
)

const (
	serverName    = "docsearchd"
	serverVersion = "0.1.0"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docsearchd: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	facade, err := buildFacade(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("docsearchd: failed to wire components")
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	registerTools(server, facade)

	log.Info().Msg("docsearchd: serving MCP tools over stdio")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal().Err(err).Msg("docsearchd: MCP server error")
	}
}

// buildFacade constructs every C1-C9 collaborator from cfg and returns
// the Facade cmd/docsearchd exposes over MCP.
func buildFacade(cfg *config.Config) (*toolfacade.Facade, error) {
	var metrics observability.Metrics = observability.NoopMetrics{}
	if cfg.Perf.EnableMetrics {
		metrics = observability.NewOtelMetrics(serverName)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	layer := cache.New(cache.Config{
		MaxConcurrent:   cfg.Perf.MaxConcurrent,
		CacheSize:       cfg.Perf.CacheSize,
		CacheTTL:        time.Duration(cfg.Perf.CacheTTLSeconds) * time.Second,
		WarmupCacheSize: cfg.Perf.WarmupCacheSize,
	}, metrics)

	embedder := cache.NewCachedEmbedder(buildEmbedder(cfg), layer)

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

	orch := orchestrator.New(registry, store, embedder, reranker, cfg.Orchestrator, cfg.Chunker, metrics)
	return toolfacade.New(orch, registry), nil
}

// buildStore selects the vectorstore.Store implementation per
// vector_store.mode, as spec.md §6.4 enumerates it.
func buildStore(cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Mode {
	case config.VectorStoreModeServer:
		return vectorstore.NewQdrant(cfg.VectorStore.URL, cfg.VectorStore.APIKey, cfg.Embedding.Dimension, cfg.VectorStore.Distance, cfg.VectorStore.CollectionPrefix)
	case config.VectorStoreModeFile:
		return vectorstore.NewFileStore(cfg.VectorStore.Root)
	default:
		return vectorstore.NewMemory(), nil
	}
}

// buildEmbedder selects a live or deterministic embedder per
// vector_store.mode: embedded mode runs the whole pipeline without live
// embedding credentials, matching embedclient.Deterministic's purpose.
func buildEmbedder(cfg *config.Config) embedclient.Embedder {
	if cfg.VectorStore.Mode == config.VectorStoreModeEmbedded {
		return embedclient.NewDeterministic(cfg.Embedding.Dimension, true, 0)
	}
	return embedclient.New(cfg.Embedding)
}

// registerTools exposes the three C9 operations as MCP tools. Input
// schemas are left for the SDK to infer from each handler's argument
// type rather than built by hand, since nothing in this repo otherwise
// calls a JSON-schema-reflection library directly.
func registerTools(server *mcp.Server, facade *toolfacade.Facade) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search indexed API documentation for a package by natural-language query",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args toolfacade.SearchDocsArgs) (*mcp.CallToolResult, toolfacade.Response, error) {
		return nil, facade.SearchDocs(ctx, args), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_api_docs",
		Description: "Fetch documentation for a specific package, optionally scoped to a symbol",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args toolfacade.GetAPIDocsArgs) (*mcp.CallToolResult, toolfacade.Response, error) {
		return nil, facade.GetAPIDocs(ctx, args), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_latest_version",
		Description: "Report the latest published version of a package and its known version history",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args toolfacade.CheckLatestVersionArgs) (*mcp.CallToolResult, toolfacade.Response, error) {
		return nil, facade.CheckLatestVersion(ctx, args), nil
	})
}
