// Package orchestrator implements the search orchestrator (C7): the
// find(language, package, version?, query) operation that ties the
// source adapters, chunker, embedding client, vector store, and reranker
// into the single pipeline every tool-facade operation ultimately calls.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/chunker"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
	"github.com/fragmentsearch/fragmentsearch/internal/embedclient"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
	"github.com/fragmentsearch/fragmentsearch/internal/observability"
	"github.com/fragmentsearch/fragmentsearch/internal/rerank"
	"github.com/fragmentsearch/fragmentsearch/internal/sources"
	"github.com/fragmentsearch/fragmentsearch/internal/vectorstore"
)

// Source labels where a Find's results were served from, per spec.md
// §4.7 steps 5 and 7.
type Source string

const (
	SourceStore     Source = "store"
	SourceGenerated Source = "generated"
)

// Result is Find's successful outcome. PartialSuccess is set when
// generation ran but the re-search still came back empty (step 7's
// explicit "PartialSuccess(fragments_indexed=N, results=[])" case); in
// that case Results is always empty and callers should not treat it as
// an error.
type Result struct {
	Source             Source
	Results             []vectorstore.SearchResult
	VersionResolved     string
	PartialSuccess      bool
	GeneratedFragments  int
}

// Orchestrator wires the collaborators C7 depends on. Construct one per
// process; it is safe for concurrent use.
type Orchestrator struct {
	adapters *sources.Registry
	store    vectorstore.Store
	embedder embedclient.Embedder
	reranker rerank.Reranker
	cfg      config.OrchestratorConfig
	chunkCfg config.ChunkerConfig
	metrics  observability.Metrics

	// sf is the per-key single-flight barrier from spec.md §4.7's
	// concurrency contract: concurrent find calls for the same
	// (language, package, version) must not trigger concurrent ingests.
	// The query is deliberately excluded from the key.
	sf singleflight.Group
}

// New constructs an Orchestrator. reranker may be nil (defaults to
// rerank.Noop{}); metrics may be nil (defaults to observability.NoopMetrics{}).
func New(
	adapters *sources.Registry,
	store vectorstore.Store,
	embedder embedclient.Embedder,
	reranker rerank.Reranker,
	cfg config.OrchestratorConfig,
	chunkCfg config.ChunkerConfig,
	metrics observability.Metrics,
) *Orchestrator {
	if reranker == nil {
		reranker = rerank.Noop{}
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Orchestrator{
		adapters: adapters,
		store:    store,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		chunkCfg: chunkCfg,
		metrics:  metrics,
	}
}

// Find implements the nine-step contract of spec.md §4.7.
func (o *Orchestrator) Find(ctx context.Context, language, pkg, version, query string) (Result, error) {
	start := time.Now()
	defer func() {
		o.metrics.ObserveHistogram("orchestrator_find_ms", float64(time.Since(start).Milliseconds()), map[string]string{"language": language})
	}()

	adapter, ok := o.adapters.Get(language)
	if !ok {
		return Result{}, apperr.NewInvalidParameter(fmt.Sprintf("orchestrator: no source adapter registered for language %q", language))
	}

	// Step 1: resolve version.
	resolvedVersion := version
	if resolvedVersion == "" {
		v, err := adapter.LatestVersion(ctx, pkg)
		if err != nil {
			// Per spec.md §4.7 step 1: a NotFound resolving the version
			// (no published versions) is reported to the caller as
			// PackageUnknown, same as an adapter-confirmed 404.
			if ae, ok := apperr.Of(err); ok && ae.Kind == apperr.NotFound {
				return Result{}, apperr.NewPackageUnknown(ae.Message).WithContext("language", language).WithContext("package", pkg)
			}
			return Result{}, attachContext(err, language, pkg, "")
		}
		resolvedVersion = v
	}

	// Step 2: build the filter.
	filter := vectorstore.HierarchyFilter{
		Language: language,
		Package:  pkg,
		Version:  resolvedVersion,
		Limit:    o.topK(),
	}

	// Step 3: embed the query.
	queryVector, err := o.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Result{}, attachContext(err, language, pkg, resolvedVersion)
	}

	// Step 4: search_filtered.
	results, err := o.store.SearchFiltered(ctx, queryVector, filter)
	if err != nil {
		// A language collection that does not exist yet (nothing ingested
		// for this language) is a miss, not a failure: fall through to
		// generation, whose upsert creates the collection.
		if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.NotFound {
			return Result{}, attachContext(err, language, pkg, resolvedVersion)
		}
		results = nil
	}

	source := SourceStore

	// Step 5: relevance-floor check.
	if len(results) == 0 || results[0].Score < o.relevanceFloor() {
		// Step 6: generate-if-missing.
		fragmentsIndexed, genErr := o.generate(ctx, adapter, language, pkg, resolvedVersion)
		if genErr != nil {
			return Result{}, attachContext(genErr, language, pkg, resolvedVersion)
		}
		source = SourceGenerated

		// Step 7: re-search.
		results, err = o.store.SearchFiltered(ctx, queryVector, filter)
		if err != nil {
			return Result{}, attachContext(err, language, pkg, resolvedVersion)
		}
		if len(results) == 0 {
			return Result{
				Source:             source,
				VersionResolved:    resolvedVersion,
				PartialSuccess:     true,
				GeneratedFragments: fragmentsIndexed,
			}, nil
		}
	}

	// Step 8: optional rerank.
	if o.cfg.Rerank.Enabled {
		results = o.rerankResults(ctx, query, results)
	}

	// Step 9: truncate and return.
	limit := o.cfg.DefaultLimit
	if limit <= 0 {
		limit = 10
	}
	if len(results) > limit {
		results = results[:limit]
	}

	return Result{
		Source:          source,
		Results:         results,
		VersionResolved: resolvedVersion,
	}, nil
}

// generate fetches, chunks, embeds, and upserts pkg@version's fragments,
// deduping concurrent callers for the same (language, package, version)
// through the single-flight barrier. It returns the number of vector
// records upserted.
func (o *Orchestrator) generate(ctx context.Context, adapter sources.Adapter, language, pkg, version string) (int, error) {
	key := language + "/" + pkg + "/" + version
	v, err, _ := o.sf.Do(key, func() (any, error) {
		return o.doGenerate(ctx, adapter, language, pkg, version)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

type chunkedFragment struct {
	base  fragment.Fragment
	chunk chunker.Chunk
}

func (o *Orchestrator) doGenerate(ctx context.Context, adapter sources.Adapter, language, pkg, version string) (int, error) {
	fragments, err := adapter.Fetch(ctx, pkg, version)
	if err != nil {
		return 0, err
	}

	var chunked []chunkedFragment
	var texts []string
	for _, frag := range fragments {
		opt := chunker.Options{
			Mode:           chunker.ModeSemantic,
			MaxChunkSize:   o.chunkCfg.MaxChunkSize,
			OverlapSize:    o.chunkCfg.OverlapSize,
			AddContextInfo: o.chunkCfg.AddContextInfo,
			Language:       frag.Language,
			Package:        frag.Package,
			Version:        frag.Version,
			FilePath:       frag.FilePath,
		}
		if opt.MaxChunkSize <= 0 {
			opt.MaxChunkSize = chunker.DefaultMaxChunkSize(frag.Language)
		}
		if opt.OverlapSize <= 0 {
			opt.OverlapSize = chunker.DefaultOverlapSize(len(frag.Content))
		}
		for _, c := range chunker.Split(frag.Content, opt) {
			chunked = append(chunked, chunkedFragment{base: frag, chunk: c})
			texts = append(texts, c.Content)
		}
	}

	if len(texts) == 0 {
		return 0, apperr.NewNotFound(fmt.Sprintf("orchestrator: adapter produced no content for %s/%s@%s", language, pkg, version))
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts, embedclient.InputTypePassage)
	if err != nil {
		return 0, err
	}

	pairs := make([]vectorstore.Pair, len(chunked))
	for i, cf := range chunked {
		filePath := cf.base.FilePath
		if cf.chunk.Total > 1 {
			filePath = fmt.Sprintf("%s#chunk-%d", cf.base.FilePath, cf.chunk.Index)
		}
		pairs[i] = vectorstore.Pair{
			Fragment: fragment.New(cf.base.Language, cf.base.Package, cf.base.Version, filePath, cf.chunk.Content),
			Vector:   vectors[i],
		}
	}

	if err := o.store.UpsertBatch(ctx, pairs); err != nil {
		return 0, err
	}
	return len(pairs), nil
}

func (o *Orchestrator) rerankResults(ctx context.Context, query string, results []vectorstore.SearchResult) []vectorstore.SearchResult {
	candidates := make([]rerank.Candidate, len(results))
	for i, r := range results {
		candidates[i] = rerank.Candidate{Index: i, Content: r.Fragment.Content}
	}

	reranked, err := o.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		o.metrics.IncCounter("orchestrator_rerank_errors_total", nil)
		return results
	}

	out := make([]vectorstore.SearchResult, len(reranked))
	for i, rr := range reranked {
		sr := results[rr.Index]
		sr.Score = rr.Score
		out[i] = sr
	}
	return out
}

func (o *Orchestrator) topK() int {
	if o.cfg.Rerank.TopK > 0 {
		return o.cfg.Rerank.TopK
	}
	return 20
}

func (o *Orchestrator) relevanceFloor() float64 {
	if o.cfg.RelevanceFloor > 0 {
		return o.cfg.RelevanceFloor
	}
	return 0.5
}

// attachContext maps a collaborator's error onto an *apperr.Error
// carrying {language, package, version?}, per spec.md §7's propagation
// policy. Errors that are not already typed become Internal.
func attachContext(err error, language, pkg, version string) error {
	ae, ok := apperr.Of(err)
	if !ok {
		ae = apperr.NewInternal("orchestrator: unmapped collaborator error", err)
	}
	ae = ae.WithContext("language", language).WithContext("package", pkg)
	if version != "" {
		ae = ae.WithContext("version", version)
	}
	return ae
}
