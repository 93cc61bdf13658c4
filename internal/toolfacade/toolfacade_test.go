package toolfacade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
	"github.com/fragmentsearch/fragmentsearch/internal/embedclient"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
	"github.com/fragmentsearch/fragmentsearch/internal/orchestrator"
	"github.com/fragmentsearch/fragmentsearch/internal/rerank"
	"github.com/fragmentsearch/fragmentsearch/internal/sources"
	"github.com/fragmentsearch/fragmentsearch/internal/vectorstore"
)

type fakeAdapter struct {
	version    string
	versionErr error
	fetchFrags []fragment.Fragment
	fetchErr   error

	versions      []string
	repositoryURL string
}

func (a *fakeAdapter) LatestVersion(_ context.Context, _ string) (string, error) {
	return a.version, a.versionErr
}

func (a *fakeAdapter) Fetch(_ context.Context, _, _ string) ([]fragment.Fragment, error) {
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.fetchFrags, nil
}

func (a *fakeAdapter) Versions(_ context.Context, _ string) ([]string, error) {
	return a.versions, nil
}

func (a *fakeAdapter) RepositoryURL(_ context.Context, _ string) (string, error) {
	return a.repositoryURL, nil
}

func newTestFacade(t *testing.T, adapter sources.Adapter) *Facade {
	t.Helper()
	registry := sources.NewRegistry()
	registry.Register("go", adapter)

	store := vectorstore.NewMemory()
	embedder := embedclient.NewDeterministic(16, true, 0)
	cfg := config.OrchestratorConfig{RelevanceFloor: 0.5, DefaultLimit: 10, Rerank: config.RerankConfig{TopK: 20}}
	chunkCfg := config.ChunkerConfig{MaxChunkSize: 1024, OverlapSize: 64}

	orch := orchestrator.New(registry, store, embedder, rerank.Noop{}, cfg, chunkCfg, nil)
	return New(orch, registry)
}

func TestSearchDocsRejectsMissingPackage(t *testing.T) {
	facade := newTestFacade(t, &fakeAdapter{version: "v1.0.0"})

	resp := facade.SearchDocs(context.Background(), SearchDocsArgs{
		Query:    "widgets",
		Language: "go",
		Filters:  SearchDocsFilters{},
	})

	failure, ok := resp.(FailureResponse)
	require.True(t, ok, "expected a FailureResponse, got %T", resp)
	require.Equal(t, "invalid_parameter", failure.Kind)
	require.False(t, failure.Retriable)
}

func TestSearchDocsGeneratesThenSucceeds(t *testing.T) {
	adapter := &fakeAdapter{
		version: "v1.0.0",
		fetchFrags: []fragment.Fragment{
			fragment.New("go", "example.com/pkg", "v1.0.0", "package_overview.md", "widgets"),
		},
	}
	facade := newTestFacade(t, adapter)

	resp := facade.SearchDocs(context.Background(), SearchDocsArgs{
		Query:    "widgets",
		Language: "go",
		Filters:  SearchDocsFilters{Package: "example.com/pkg"},
	})

	success, ok := resp.(SuccessResponse)
	require.True(t, ok, "expected a SuccessResponse, got %T", resp)
	require.Equal(t, "success", success.Status)
	require.Equal(t, "generated", success.Source)
	require.Equal(t, "v1.0.0", success.VersionResolved)
	require.NotEmpty(t, success.Results)
}

func TestSearchDocsUnknownPackageIsFailure(t *testing.T) {
	adapter := &fakeAdapter{versionErr: apperr.NewNotFound("no versions")}
	facade := newTestFacade(t, adapter)

	resp := facade.SearchDocs(context.Background(), SearchDocsArgs{
		Query:    "widgets",
		Language: "go",
		Filters:  SearchDocsFilters{Package: "example.com/missing"},
	})

	failure, ok := resp.(FailureResponse)
	require.True(t, ok, "expected a FailureResponse, got %T", resp)
	require.Equal(t, "package_unknown", failure.Kind)
}

func TestGetAPIDocsSynthesizesSymbolQuery(t *testing.T) {
	adapter := &fakeAdapter{
		version: "v1.0.0",
		fetchFrags: []fragment.Fragment{
			fragment.New("go", "example.com/pkg", "v1.0.0", "funcs/Foo.md", "Foo in example.com/pkg"),
		},
	}
	facade := newTestFacade(t, adapter)

	resp := facade.GetAPIDocs(context.Background(), GetAPIDocsArgs{
		Language: "go",
		Package:  "example.com/pkg",
		Symbol:   "Foo",
	})

	success, ok := resp.(SuccessResponse)
	require.True(t, ok, "expected a SuccessResponse, got %T", resp)
	require.NotEmpty(t, success.Results)
}

func TestGetAPIDocsMissingPackageIsFailure(t *testing.T) {
	facade := newTestFacade(t, &fakeAdapter{version: "v1.0.0"})

	resp := facade.GetAPIDocs(context.Background(), GetAPIDocsArgs{Language: "go"})

	failure, ok := resp.(FailureResponse)
	require.True(t, ok, "expected a FailureResponse, got %T", resp)
	require.Equal(t, "invalid_parameter", failure.Kind)
}

func TestCheckLatestVersionReturnsAvailableVersions(t *testing.T) {
	adapter := &fakeAdapter{
		version:       "v2.0.0",
		versions:      []string{"v1.0.0", "v2.0.0"},
		repositoryURL: "https://example.com/pkg",
	}
	facade := newTestFacade(t, adapter)

	resp := facade.CheckLatestVersion(context.Background(), CheckLatestVersionArgs{
		Type: "go",
		Name: "example.com/pkg",
	})

	result, ok := resp.(CheckLatestVersionResponse)
	require.True(t, ok, "expected a CheckLatestVersionResponse, got %T", resp)
	require.Equal(t, "v2.0.0", result.LatestStable)
	require.Equal(t, []string{"v1.0.0", "v2.0.0"}, result.AvailableVersions)
	require.Equal(t, "https://example.com/pkg", result.RepositoryURL)
}

func TestCheckLatestVersionUnknownTypeIsFailure(t *testing.T) {
	facade := newTestFacade(t, &fakeAdapter{version: "v1.0.0"})

	resp := facade.CheckLatestVersion(context.Background(), CheckLatestVersionArgs{
		Type: "rust",
		Name: "tokio",
	})

	failure, ok := resp.(FailureResponse)
	require.True(t, ok, "expected a FailureResponse, got %T", resp)
	require.Equal(t, "invalid_parameter", failure.Kind)
}

func TestCheckLatestVersionNoVersionsIsPackageUnknown(t *testing.T) {
	adapter := &fakeAdapter{versionErr: apperr.NewNotFound("no versions")}
	facade := newTestFacade(t, adapter)

	resp := facade.CheckLatestVersion(context.Background(), CheckLatestVersionArgs{
		Type: "go",
		Name: "example.com/missing",
	})

	failure, ok := resp.(FailureResponse)
	require.True(t, ok, "expected a FailureResponse, got %T", resp)
	require.Equal(t, "package_unknown", failure.Kind)
}
