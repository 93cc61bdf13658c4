// Package vectorstore implements the persistent ANN index plus payload
// store (C5): a uniform VectorStore interface with hierarchical filters
// and batch upsert, and three conforming backends (Qdrant-backed,
// file-backed, and an in-memory backend for tests).
package vectorstore

import (
	"context"
	"time"

	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
)

// Record is one stored vector plus the fragment metadata payload it was
// derived from, the unit every backend persists and returns.
type Record struct {
	Fragment fragment.Fragment
	Vector   []float32

	Keywords      []string
	ContentHash   string
	ContentLength int
	UpdatedAt     time.Time
}

// HierarchyFilter is the conjunctive predicate from spec.md §3: all
// specified fields must match; unspecified (zero-value) fields are
// wildcards. Limit and SimilarityThreshold configure the search call
// rather than the predicate itself.
type HierarchyFilter struct {
	Language         string
	Package          string
	Version          string
	FilePathPrefix   string
	Kind             fragment.Kind
	HierarchyLevel   int // 0 means "not constrained"
	Limit            int
	SimilarityThreshold float64
}

// SearchResult is one scored hit, per spec.md §3: content_preview is
// truncated to 500 chars with a trailing "…" when truncated.
type SearchResult struct {
	Fragment        fragment.Fragment
	Score           float64
	ContentPreview  string
	MatchedKeywords []string
}

// Stats is the read-only snapshot from the stats() operation.
type Stats struct {
	TotalVectors     int
	PerLanguage      map[string]int
	PerPackage       map[string]int
}

// Pair is one (id, vector, fragment) to upsert as part of a batch.
type Pair struct {
	Fragment fragment.Fragment
	Vector   []float32
}

// Store is the uniform operation set every backend implements.
type Store interface {
	// EnsureCollection is idempotent; creates the language's collection
	// if missing.
	EnsureCollection(ctx context.Context, language string) error

	// Upsert replaces any existing point with the same fragment id.
	Upsert(ctx context.Context, pair Pair) error

	// UpsertBatch groups pairs by language and issues one request per
	// collection; atomic per group. Partial failure of one group does
	// not roll back other groups, and is reported via the returned error,
	// which names the failed groups.
	UpsertBatch(ctx context.Context, pairs []Pair) error

	// Search runs across every collection matching the store's prefix,
	// merge-sorting by descending score with a lexicographic-id
	// tiebreak, truncated to limit.
	Search(ctx context.Context, queryVector []float32, limit int, scoreThreshold *float64) ([]SearchResult, error)

	// SearchFiltered restricts the search to filter.Language's
	// collection; a missing language is an error.
	SearchFiltered(ctx context.Context, queryVector []float32, filter HierarchyFilter) ([]SearchResult, error)

	Get(ctx context.Context, language, pkg, version, filePath string) (*fragment.Fragment, error)
	Exists(ctx context.Context, language, pkg, version, filePath string) (bool, error)

	DeletePackage(ctx context.Context, language, pkg, version string) error
	DeleteFragment(ctx context.Context, language, pkg, version, filePath string) error

	ListPackageFiles(ctx context.Context, language, pkg, version string) ([]string, error)

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// ContentPreview truncates content to at most 500 chars, appending "…"
// when truncated, per spec.md §3's SearchResult definition.
func ContentPreview(content string) string {
	const max = 500
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
