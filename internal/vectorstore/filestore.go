package vectorstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
)

// fileIndex is the on-disk index.json: document id -> payload path, plus
// the language/type/package secondary indices spec.md §6.3 names for
// filtering without a full scan.
type fileIndex struct {
	Paths      map[string]string            `json:"paths"`
	ByLanguage map[string][]string          `json:"by_language"`
	ByKind     map[string][]string          `json:"by_kind"`
	ByPackage  map[string][]string          `json:"by_package"`
}

func newFileIndex() *fileIndex {
	return &fileIndex{
		Paths:      map[string]string{},
		ByLanguage: map[string][]string{},
		ByKind:     map[string][]string{},
		ByPackage:  map[string][]string{},
	}
}

type filePayload struct {
	ID            string    `json:"id"`
	Language      string    `json:"language"`
	Package       string    `json:"package"`
	Version       string    `json:"version"`
	FilePath      string    `json:"file_path"`
	HierarchyPath []string  `json:"hierarchy_path"`
	Kind          string    `json:"kind"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	Vector        []float32 `json:"vector"`
}

// FileStore is the process-local backend whose index and payloads live
// under a root directory, matching spec.md §6.3's on-disk layout. Search
// is a linear scan over loaded payloads, per the Open Question decision
// recorded in DESIGN.md — acceptable at this performance target.
type FileStore struct {
	mu   sync.Mutex
	root string
}

// NewFileStore constructs a FileStore rooted at root, creating the
// directory tree if it does not already exist.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "documents"), 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create root: %w", err)
	}
	fs := &FileStore{root: root}
	if _, err := fs.loadIndex(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) indexPath() string { return filepath.Join(fs.root, "index.json") }

func (fs *FileStore) loadIndex() (*fileIndex, error) {
	data, err := os.ReadFile(fs.indexPath())
	if os.IsNotExist(err) {
		idx := newFileIndex()
		if werr := fs.writeIndex(idx); werr != nil {
			return nil, werr
		}
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read index: %w", err)
	}
	idx := newFileIndex()
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("filestore: parse index: %w", err)
	}
	return idx, nil
}

// writeIndex rewrites index.json atomically: write to a temp file in the
// same directory, then rename over the target.
func (fs *FileStore) writeIndex(idx *fileIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal index: %w", err)
	}
	tmp := fs.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write index tmp: %w", err)
	}
	return os.Rename(tmp, fs.indexPath())
}

// relPathFor derives the documents/<XX>/<encoded-id>.json path. The
// fragment id contains '/', which is not filesystem-safe as a bare
// filename, so the id is URL-safe base64 encoded; XX is the first two
// characters of that encoding, preserving the "two-char shard prefix"
// structure spec.md §6.3 describes without colliding on path separators.
func relPathFor(id string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(id))
	shard := encoded
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join("documents", shard, encoded+".json")
}

func (fs *FileStore) EnsureCollection(_ context.Context, _ string) error {
	return nil // collections are implicit in the index's by_language bucket
}

func (fs *FileStore) Upsert(ctx context.Context, pair Pair) error {
	return fs.UpsertBatch(ctx, []Pair{pair})
}

func (fs *FileStore) UpsertBatch(_ context.Context, pairs []Pair) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.loadIndex()
	if err != nil {
		return err
	}

	for _, p := range pairs {
		payload := filePayload{
			ID:            p.Fragment.ID,
			Language:      p.Fragment.Language,
			Package:       p.Fragment.Package,
			Version:       p.Fragment.Version,
			FilePath:      p.Fragment.FilePath,
			HierarchyPath: p.Fragment.HierarchyPath,
			Kind:          string(p.Fragment.Kind),
			Content:       p.Fragment.Content,
			CreatedAt:     p.Fragment.CreatedAt,
			Vector:        p.Vector,
		}
		rel := relPathFor(p.Fragment.ID)
		abs := filepath.Join(fs.root, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("filestore: mkdir: %w", err)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("filestore: marshal payload: %w", err)
		}
		tmp := abs + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("filestore: write payload: %w", err)
		}
		if err := os.Rename(tmp, abs); err != nil {
			return fmt.Errorf("filestore: commit payload: %w", err)
		}

		idx.Paths[p.Fragment.ID] = rel
		appendUnique(idx.ByLanguage, p.Fragment.Language, p.Fragment.ID)
		appendUnique(idx.ByKind, string(p.Fragment.Kind), p.Fragment.ID)
		appendUnique(idx.ByPackage, p.Fragment.Language+"/"+p.Fragment.Package, p.Fragment.ID)
	}

	return fs.writeIndex(idx)
}

func appendUnique(m map[string][]string, key, id string) {
	for _, existing := range m[key] {
		if existing == id {
			return
		}
	}
	m[key] = append(m[key], id)
}

func (fs *FileStore) loadPayload(idx *fileIndex, id string) (*filePayload, error) {
	rel, ok := idx.Paths[id]
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(fs.root, rel))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read payload %s: %w", id, err)
	}
	var p filePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("filestore: parse payload %s: %w", id, err)
	}
	return &p, nil
}

func (fs *FileStore) Search(_ context.Context, queryVector []float32, limit int, scoreThreshold *float64) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.loadIndex()
	if err != nil {
		return nil, err
	}

	var all []SearchResult
	for id := range idx.Paths {
		p, err := fs.loadPayload(idx, id)
		if err != nil || p == nil {
			continue
		}
		score := cosine(queryVector, p.Vector)
		if scoreThreshold != nil && score < *scoreThreshold {
			continue
		}
		all = append(all, toFileSearchResult(*p, score))
	}
	sortResults(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (fs *FileStore) SearchFiltered(_ context.Context, queryVector []float32, filter HierarchyFilter) ([]SearchResult, error) {
	if filter.Language == "" {
		return nil, apperr.NewInvalidParameter("search_filtered: language is required")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.loadIndex()
	if err != nil {
		return nil, err
	}
	ids, ok := idx.ByLanguage[filter.Language]
	if !ok {
		return nil, apperr.NewNotFound(fmt.Sprintf("search_filtered: unknown language collection %q", filter.Language))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	for _, id := range ids {
		p, err := fs.loadPayload(idx, id)
		if err != nil || p == nil {
			continue
		}
		if filter.Package != "" && p.Package != filter.Package {
			continue
		}
		if filter.Version != "" && p.Version != filter.Version {
			continue
		}
		if filter.FilePathPrefix != "" && !strings.HasPrefix(p.FilePath, filter.FilePathPrefix) {
			continue
		}
		if filter.Kind != "" && p.Kind != string(filter.Kind) {
			continue
		}
		score := cosine(queryVector, p.Vector)
		if filter.SimilarityThreshold > 0 && score < filter.SimilarityThreshold {
			continue
		}
		results = append(results, toFileSearchResult(*p, score))
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (fs *FileStore) Get(_ context.Context, language, pkg, version, filePath string) (*fragment.Fragment, error) {
	id := fragment.New(language, pkg, version, filePath, "").ID
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.loadIndex()
	if err != nil {
		return nil, err
	}
	p, err := fs.loadPayload(idx, id)
	if err != nil || p == nil {
		return nil, err
	}
	f := payloadToFragment(*p)
	return &f, nil
}

func (fs *FileStore) Exists(ctx context.Context, language, pkg, version, filePath string) (bool, error) {
	f, err := fs.Get(ctx, language, pkg, version, filePath)
	return f != nil, err
}

func (fs *FileStore) DeletePackage(_ context.Context, language, pkg, version string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.loadIndex()
	if err != nil {
		return err
	}

	var remaining []string
	for _, id := range idx.ByLanguage[language] {
		p, err := fs.loadPayload(idx, id)
		if err != nil || p == nil {
			continue
		}
		if p.Package == pkg && p.Version == version {
			fs.removeIDLocked(idx, id)
			continue
		}
		remaining = append(remaining, id)
	}
	idx.ByLanguage[language] = remaining
	return fs.writeIndex(idx)
}

func (fs *FileStore) DeleteFragment(_ context.Context, language, pkg, version, filePath string) error {
	id := fragment.New(language, pkg, version, filePath, "").ID
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.loadIndex()
	if err != nil {
		return err
	}
	fs.removeIDLocked(idx, id)
	idx.ByLanguage[language] = removeString(idx.ByLanguage[language], id)
	return fs.writeIndex(idx)
}

func (fs *FileStore) removeIDLocked(idx *fileIndex, id string) {
	if rel, ok := idx.Paths[id]; ok {
		_ = os.Remove(filepath.Join(fs.root, rel))
		delete(idx.Paths, id)
	}
	for k, ids := range idx.ByKind {
		idx.ByKind[k] = removeString(ids, id)
	}
	for k, ids := range idx.ByPackage {
		idx.ByPackage[k] = removeString(ids, id)
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (fs *FileStore) ListPackageFiles(_ context.Context, language, pkg, version string) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.loadIndex()
	if err != nil {
		return nil, err
	}
	var files []string
	for _, id := range idx.ByPackage[language+"/"+pkg] {
		p, err := fs.loadPayload(idx, id)
		if err != nil || p == nil {
			continue
		}
		if p.Version == version {
			files = append(files, p.FilePath)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (fs *FileStore) Stats(_ context.Context) (Stats, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.loadIndex()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{PerLanguage: map[string]int{}, PerPackage: map[string]int{}}
	for lang, ids := range idx.ByLanguage {
		stats.PerLanguage[lang] = len(ids)
		stats.TotalVectors += len(ids)
	}
	for key, ids := range idx.ByPackage {
		stats.PerPackage[key] = len(ids)
	}
	return stats, nil
}

func (fs *FileStore) Close() error { return nil }

func toFileSearchResult(p filePayload, score float64) SearchResult {
	f := payloadToFragment(p)
	return SearchResult{Fragment: f, Score: score, ContentPreview: ContentPreview(f.Content)}
}

func payloadToFragment(p filePayload) fragment.Fragment {
	f := fragment.New(p.Language, p.Package, p.Version, p.FilePath, p.Content)
	if p.Kind != "" {
		f.Kind = fragment.Kind(p.Kind)
	}
	f.CreatedAt = p.CreatedAt
	return f
}
