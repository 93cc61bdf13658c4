// Package toolfacade implements the tool facade (C9): the three
// uniform operations exposed to whatever transport addresses the core
// (spec.md §4.9). Each operation validates its parameters against a
// typed schema before any I/O, calls into the orchestrator or source
// registry, and produces one of the response shapes spec.md §7 defines.
package toolfacade

import (
	"context"
	"fmt"
	"sort"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/orchestrator"
	"github.com/fragmentsearch/fragmentsearch/internal/sources"
)

// Facade wires the collaborators every C9 operation calls into.
type Facade struct {
	orch     *orchestrator.Orchestrator
	adapters *sources.Registry
}

// New constructs a Facade. adapters is used directly by
// check_latest_version; search_docs and get_api_docs reach adapters
// only indirectly, through orch.
func New(orch *orchestrator.Orchestrator, adapters *sources.Registry) *Facade {
	return &Facade{orch: orch, adapters: adapters}
}

// SearchDocsFilters scopes a search_docs call to a specific package,
// optionally pinned to a version. C7's find operation has no meaning
// without a package to search, so Package is required even though the
// wire-level "filters" object itself is optional per spec.md §4.9.
type SearchDocsFilters struct {
	Package string `json:"package" jsonschema:"required,description=Package identifier to search within"`
	Version string `json:"version,omitempty" jsonschema:"description=Pin to a specific version instead of the latest"`
}

// SearchDocsArgs is search_docs{query, language, limit?, filters?}.
type SearchDocsArgs struct {
	Query    string            `json:"query" jsonschema:"required,description=Natural-language search query"`
	Language string            `json:"language" jsonschema:"required,description=Ecosystem identifier (go, python, npm)"`
	Limit    int               `json:"limit,omitempty" jsonschema:"description=Maximum results to return (default 10)"`
	Filters  SearchDocsFilters `json:"filters" jsonschema:"required,description=Package/version scoping for this search"`
}

// SearchDocs validates args and performs a direct C7 find call with the
// caller's query.
func (f *Facade) SearchDocs(ctx context.Context, args SearchDocsArgs) Response {
	if err := validateRequired(args); err != nil {
		return newFailure(apperr.NewInvalidParameter(fmt.Sprintf("search_docs: %v", err)))
	}
	if err := validateRequired(args.Filters); err != nil {
		return newFailure(apperr.NewInvalidParameter(fmt.Sprintf("search_docs: %v", err)))
	}

	res, err := f.orch.Find(ctx, args.Language, args.Filters.Package, args.Filters.Version, args.Query)
	if err != nil {
		return newFailure(err)
	}
	return newResultResponse(res, args.Limit)
}

// GetAPIDocsArgs is get_api_docs{language, package, symbol?, version?}.
type GetAPIDocsArgs struct {
	Language string `json:"language" jsonschema:"required,description=Ecosystem identifier (go, python, npm)"`
	Package  string `json:"package" jsonschema:"required,description=Package identifier"`
	Symbol   string `json:"symbol,omitempty" jsonschema:"description=Function/type/symbol name, or \"*\" / empty for a package overview"`
	Version  string `json:"version,omitempty" jsonschema:"description=Pin to a specific version instead of the latest"`
}

// GetAPIDocs synthesizes a query from symbol/package per spec.md §4.9
// and delegates to C7.
func (f *Facade) GetAPIDocs(ctx context.Context, args GetAPIDocsArgs) Response {
	if err := validateRequired(args); err != nil {
		return newFailure(apperr.NewInvalidParameter(fmt.Sprintf("get_api_docs: %v", err)))
	}

	query := fmt.Sprintf("package overview of %s", args.Package)
	if args.Symbol != "" && args.Symbol != "*" {
		query = fmt.Sprintf("%s in %s", args.Symbol, args.Package)
	}

	res, err := f.orch.Find(ctx, args.Language, args.Package, args.Version, query)
	if err != nil {
		return newFailure(err)
	}
	return newResultResponse(res, 0)
}

// CheckLatestVersionArgs is check_latest_version{type, name}.
type CheckLatestVersionArgs struct {
	Type string `json:"type" jsonschema:"required,description=Ecosystem identifier (go, python, npm)"`
	Name string `json:"name" jsonschema:"required,description=Package identifier"`
}

// CheckLatestVersion calls the adapter's LatestVersion directly,
// without touching the vector store, per spec.md §4.9.
func (f *Facade) CheckLatestVersion(ctx context.Context, args CheckLatestVersionArgs) Response {
	if err := validateRequired(args); err != nil {
		return newFailure(apperr.NewInvalidParameter(fmt.Sprintf("check_latest_version: %v", err)))
	}

	adapter, ok := f.adapters.Get(args.Type)
	if !ok {
		return newFailure(apperr.NewInvalidParameter(fmt.Sprintf("check_latest_version: no source adapter registered for type %q", args.Type)))
	}

	latest, err := adapter.LatestVersion(ctx, args.Name)
	if err != nil {
		// Same reclassification C7 applies at its step 1: a registry
		// reporting no versions at all means the package is unknown,
		// not merely "not found right now".
		if ae, ok := apperr.Of(err); ok && ae.Kind == apperr.NotFound {
			return newFailure(apperr.NewPackageUnknown(ae.Message))
		}
		return newFailure(err)
	}

	resp := CheckLatestVersionResponse{
		LatestStable:      latest,
		AvailableVersions: []string{latest},
	}

	if lister, ok := adapter.(sources.VersionLister); ok {
		if versions, lerr := lister.Versions(ctx, args.Name); lerr == nil && len(versions) > 0 {
			sort.Strings(versions)
			resp.AvailableVersions = versions
		}
	}
	if linker, ok := adapter.(sources.RepositoryLinker); ok {
		if url, lerr := linker.RepositoryURL(ctx, args.Name); lerr == nil {
			resp.RepositoryURL = url
		}
	}

	return resp
}
