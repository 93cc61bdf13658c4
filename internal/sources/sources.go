// Package sources implements the source-adapter layer (C2): one adapter
// per supported ecosystem, each resolving a package's latest version and
// fetching its documentation as a sequence of fragments.
package sources

import (
	"context"

	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
)

// Adapter is the uniform operation set every ecosystem implements, per
// spec.md §4.2.
type Adapter interface {
	// LatestVersion resolves package's newest version from the
	// ecosystem's registry. Returns an *apperr.Error of kind NotFound if
	// the registry has no versions for package.
	LatestVersion(ctx context.Context, pkg string) (string, error)

	// Fetch produces the package's documentation fragments at version.
	// Returns an *apperr.Error on failure: NotFound, PackageUnknown (the
	// registry answered 404), BackendError (another non-200 status) or
	// Transient;
	// adapters never fabricate content when both primary and secondary
	// sources fail.
	Fetch(ctx context.Context, pkg, version string) ([]fragment.Fragment, error)
}

// VersionLister is an optional capability an Adapter may implement when
// its registry exposes the full set of known versions, not just the
// latest. C9's check_latest_version degrades to a single-element
// available_versions list for adapters that don't implement it.
type VersionLister interface {
	Versions(ctx context.Context, pkg string) ([]string, error)
}

// RepositoryLinker is an optional capability an Adapter may implement
// when its registry records a canonical project/repository URL.
type RepositoryLinker interface {
	RepositoryURL(ctx context.Context, pkg string) (string, error)
}

// Registry maps a language identifier to its Adapter, keyed the same way
// as vectorstore collections and fragment.Fragment.Language.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for language.
func (r *Registry) Register(language string, adapter Adapter) {
	r.adapters[language] = adapter
}

// Get returns the adapter registered for language, if any.
func (r *Registry) Get(language string) (Adapter, bool) {
	a, ok := r.adapters[language]
	return a, ok
}

// Languages returns every registered language identifier.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.adapters))
	for lang := range r.adapters {
		out = append(out, lang)
	}
	return out
}
