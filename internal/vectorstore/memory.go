package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
)

// Memory is an in-process backend, grounded on the teacher's linear-scan
// cosine-similarity store, generalized from one flat map to one
// collection (map) per language so per-language operations hold even
// without a real backing service; collections are keyed by the bare
// language name, with no collection prefix. Suitable for tests and for vector_store.mode=embedded.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record // language -> id -> Record
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Record)}
}

func (m *Memory) EnsureCollection(_ context.Context, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[language]; !ok {
		m.collections[language] = make(map[string]Record)
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, pair Pair) error {
	if err := m.EnsureCollection(ctx, pair.Fragment.Language); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[pair.Fragment.Language][pair.Fragment.ID] = Record{
		Fragment: pair.Fragment,
		Vector:   append([]float32(nil), pair.Vector...),
	}
	return nil
}

func (m *Memory) UpsertBatch(ctx context.Context, pairs []Pair) error {
	var errs []error
	byLanguage := map[string][]Pair{}
	for _, p := range pairs {
		byLanguage[p.Fragment.Language] = append(byLanguage[p.Fragment.Language], p)
	}
	for lang, group := range byLanguage {
		if err := m.EnsureCollection(ctx, lang); err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		for _, p := range group {
			m.collections[lang][p.Fragment.ID] = Record{
				Fragment: p.Fragment,
				Vector:   append([]float32(nil), p.Vector...),
			}
		}
		m.mu.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("upsert_batch: %d of %d language groups failed: %v", len(errs), len(byLanguage), errs)
	}
	return nil
}

func (m *Memory) Search(_ context.Context, queryVector []float32, limit int, scoreThreshold *float64) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []SearchResult
	for _, coll := range m.collections {
		for _, rec := range coll {
			score := cosine(queryVector, rec.Vector)
			if scoreThreshold != nil && score < *scoreThreshold {
				continue
			}
			all = append(all, toSearchResult(rec, score))
		}
	}
	sortResults(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) SearchFiltered(_ context.Context, queryVector []float32, filter HierarchyFilter) ([]SearchResult, error) {
	if filter.Language == "" {
		return nil, apperr.NewInvalidParameter("search_filtered: language is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll, ok := m.collections[filter.Language]
	if !ok {
		return nil, apperr.NewNotFound(fmt.Sprintf("search_filtered: unknown language collection %q", filter.Language))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	for _, rec := range coll {
		if !matchesHierarchy(rec.Fragment, filter) {
			continue
		}
		score := cosine(queryVector, rec.Vector)
		if filter.SimilarityThreshold > 0 && score < filter.SimilarityThreshold {
			continue
		}
		results = append(results, toSearchResult(rec, score))
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *Memory) Get(_ context.Context, language, pkg, version, filePath string) (*fragment.Fragment, error) {
	id := fragment.New(language, pkg, version, filePath, "").ID
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[language]
	if !ok {
		return nil, nil
	}
	rec, ok := coll[id]
	if !ok {
		return nil, nil
	}
	f := rec.Fragment
	return &f, nil
}

func (m *Memory) Exists(ctx context.Context, language, pkg, version, filePath string) (bool, error) {
	f, err := m.Get(ctx, language, pkg, version, filePath)
	return f != nil, err
}

func (m *Memory) DeletePackage(_ context.Context, language, pkg, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[language]
	if !ok {
		return nil
	}
	for id, rec := range coll {
		if rec.Fragment.Package == pkg && rec.Fragment.Version == version {
			delete(coll, id)
		}
	}
	return nil
}

func (m *Memory) DeleteFragment(_ context.Context, language, pkg, version, filePath string) error {
	id := fragment.New(language, pkg, version, filePath, "").ID
	m.mu.Lock()
	defer m.mu.Unlock()
	if coll, ok := m.collections[language]; ok {
		delete(coll, id)
	}
	return nil
}

func (m *Memory) ListPackageFiles(_ context.Context, language, pkg, version string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[language]
	if !ok {
		return nil, nil
	}
	var files []string
	for _, rec := range coll {
		if rec.Fragment.Package == pkg && rec.Fragment.Version == version {
			files = append(files, rec.Fragment.FilePath)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{PerLanguage: map[string]int{}, PerPackage: map[string]int{}}
	for lang, coll := range m.collections {
		stats.PerLanguage[lang] = len(coll)
		stats.TotalVectors += len(coll)
		for _, rec := range coll {
			key := lang + "/" + rec.Fragment.Package
			stats.PerPackage[key]++
		}
	}
	return stats, nil
}

func (m *Memory) Close() error { return nil }

func matchesHierarchy(f fragment.Fragment, filter HierarchyFilter) bool {
	if filter.Package != "" && f.Package != filter.Package {
		return false
	}
	if filter.Version != "" && f.Version != filter.Version {
		return false
	}
	if filter.FilePathPrefix != "" && !strings.HasPrefix(f.FilePath, filter.FilePathPrefix) {
		return false
	}
	if filter.Kind != "" && f.Kind != filter.Kind {
		return false
	}
	if filter.HierarchyLevel > 0 && len(f.HierarchyPath) < filter.HierarchyLevel {
		return false
	}
	return true
}

func toSearchResult(rec Record, score float64) SearchResult {
	return SearchResult{
		Fragment:       rec.Fragment,
		Score:          score,
		ContentPreview: ContentPreview(rec.Fragment.Content),
	}
}

// sortResults orders by descending score, tiebreaking on ascending
// lexicographic id, per spec.md §4.5's determinism requirement.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Fragment.ID < results[j].Fragment.ID
	})
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
