package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
	"github.com/fragmentsearch/fragmentsearch/internal/embedclient"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
	"github.com/fragmentsearch/fragmentsearch/internal/rerank"
	"github.com/fragmentsearch/fragmentsearch/internal/sources"
	"github.com/fragmentsearch/fragmentsearch/internal/vectorstore"
)

// fakeAdapter lets each test control LatestVersion/Fetch behavior and count
// how many times Fetch is actually invoked (to assert single-flight dedup).
type fakeAdapter struct {
	version    string
	versionErr error

	mu         sync.Mutex
	fetchCalls int
	fetchFrags []fragment.Fragment
	fetchErr   error
}

func (a *fakeAdapter) LatestVersion(_ context.Context, _ string) (string, error) {
	return a.version, a.versionErr
}

func (a *fakeAdapter) Fetch(_ context.Context, _, _ string) ([]fragment.Fragment, error) {
	a.mu.Lock()
	a.fetchCalls++
	a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.fetchFrags, nil
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetchCalls
}

func newTestOrchestrator(t *testing.T, adapter sources.Adapter) (*Orchestrator, vectorstore.Store) {
	t.Helper()
	registry := sources.NewRegistry()
	registry.Register("go", adapter)

	store := vectorstore.NewMemory()
	embedder := embedclient.NewDeterministic(16, true, 0)
	cfg := config.OrchestratorConfig{RelevanceFloor: 0.5, DefaultLimit: 10, Rerank: config.RerankConfig{TopK: 20}}
	chunkCfg := config.ChunkerConfig{MaxChunkSize: 1024, OverlapSize: 64}

	return New(registry, store, embedder, rerank.Noop{}, cfg, chunkCfg, nil), store
}

func TestFindGeneratesOnColdStoreThenServesFromStore(t *testing.T) {
	// The fragment's sole content is exactly the query text, so the
	// deterministic embedder produces an identical vector for both: after
	// generation the re-search is guaranteed a cosine score of 1.0, safely
	// above the relevance floor, without depending on any particular
	// hash-collision behavior for partial text overlap.
	adapter := &fakeAdapter{
		version: "v1.0.0",
		fetchFrags: []fragment.Fragment{
			fragment.New("go", "example.com/pkg", "v1.0.0", "package_overview.md", "widgets"),
		},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	res, err := orch.Find(context.Background(), "go", "example.com/pkg", "", "widgets")
	require.NoError(t, err)
	require.Equal(t, SourceGenerated, res.Source)
	require.Equal(t, "v1.0.0", res.VersionResolved)
	require.Equal(t, 1, adapter.calls())

	// Re-run: this time it serves from the store without calling Fetch
	// again.
	res2, err := orch.Find(context.Background(), "go", "example.com/pkg", "v1.0.0", "widgets")
	require.NoError(t, err)
	require.Equal(t, SourceStore, res2.Source)
	require.Equal(t, 1, adapter.calls())
}

func TestFindUnknownPackageReturnsPackageUnknown(t *testing.T) {
	adapter := &fakeAdapter{versionErr: apperr.NewNotFound("no versions")}
	orch, _ := newTestOrchestrator(t, adapter)

	_, err := orch.Find(context.Background(), "go", "example.com/missing", "", "anything")
	require.Error(t, err)
	require.Equal(t, apperr.PackageUnknown, apperr.KindOf(err))
}

func TestFindAdapterNotFoundDuringGenerateIsNotFound(t *testing.T) {
	adapter := &fakeAdapter{version: "v1.0.0", fetchErr: apperr.NewNotFound("no docs found")}
	orch, _ := newTestOrchestrator(t, adapter)

	_, err := orch.Find(context.Background(), "go", "example.com/pkg", "", "anything")
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestFindVersionResolutionUsesAdapterLatestVersion(t *testing.T) {
	adapter := &fakeAdapter{
		version: "v2.3.4",
		fetchFrags: []fragment.Fragment{
			fragment.New("go", "example.com/pkg", "v2.3.4", "package_overview.md", "overview content about caching layers"),
		},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	res, err := orch.Find(context.Background(), "go", "example.com/pkg", "", "caching")
	require.NoError(t, err)
	require.Equal(t, "v2.3.4", res.VersionResolved)
}

func TestFindConcurrentColdStartGeneratesExactlyOnce(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		version: "v1.0.0",
		fetchFrags: []fragment.Fragment{
			fragment.New("go", "example.com/pkg", "v1.0.0", "package_overview.md", "concurrent generation content for testing dedup"),
		},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	const n = 8
	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			res, err := orch.Find(context.Background(), "go", "example.com/pkg", "v1.0.0", "dedup")
			if err == nil && res.Source == SourceGenerated {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	require.Equal(t, 1, adapter.calls(), "Fetch should run exactly once for concurrent callers sharing the same key")
}

func TestFindMissingAdapterIsInvalidParameter(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeAdapter{})
	orch.adapters = sources.NewRegistry() // no "go" registered

	_, err := orch.Find(context.Background(), "go", "example.com/pkg", "v1.0.0", "query")
	require.Error(t, err)
	require.Equal(t, apperr.InvalidParameter, apperr.KindOf(err))
}

func TestFindRerankReordersResults(t *testing.T) {
	adapter := &fakeAdapter{
		version: "v1.0.0",
		fetchFrags: []fragment.Fragment{
			fragment.New("go", "example.com/pkg", "v1.0.0", "a.md", "alpha content about sorting algorithms"),
			fragment.New("go", "example.com/pkg", "v1.0.0", "b.md", "beta content about sorting algorithms"),
		},
	}
	registry := sources.NewRegistry()
	registry.Register("go", adapter)
	store := vectorstore.NewMemory()
	embedder := embedclient.NewDeterministic(16, true, 0)
	cfg := config.OrchestratorConfig{RelevanceFloor: 0.5, DefaultLimit: 10, Rerank: config.RerankConfig{TopK: 20, Enabled: true}}
	chunkCfg := config.ChunkerConfig{MaxChunkSize: 1024, OverlapSize: 64}

	// reverse reranker: flips result order deterministically so the test
	// can assert the orchestrator actually applies the reranker's order.
	orch := New(registry, store, embedder, reverseReranker{}, cfg, chunkCfg, nil)

	res, err := orch.Find(context.Background(), "go", "example.com/pkg", "", "sorting")
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	// reverseReranker assigns score 0 to the first candidate scored and a
	// higher score to the last, so whichever vector-store hit came first
	// out of SearchFiltered should now come last.
	require.Greater(t, res.Results[0].Score, res.Results[1].Score)
}

// reverseReranker reverses candidate order and assigns descending scores,
// used to verify the orchestrator honors the reranker's output ordering.
type reverseReranker struct{}

func (reverseReranker) Rerank(_ context.Context, _ string, candidates []rerank.Candidate) ([]rerank.Result, error) {
	out := make([]rerank.Result, len(candidates))
	for i, c := range candidates {
		j := len(candidates) - 1 - i
		out[j] = rerank.Result{Index: c.Index, Content: c.Content, Score: float64(i) / float64(len(candidates))}
	}
	return out, nil
}
