package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestFileStoreUpsertAndGetRoundTrip(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	p := mustPair(t, "go", "fmt", "v1", "print.go", "hello world", []float32{1, 0, 0})
	require.NoError(t, fs.Upsert(ctx, p))

	got, err := fs.Get(ctx, "go", "fmt", "v1", "print.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello world", got.Content)
}

func TestFileStoreIndexPersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	fs1, err := NewFileStore(root)
	require.NoError(t, err)
	require.NoError(t, fs1.Upsert(context.Background(), mustPair(t, "go", "fmt", "v1", "print.go", "hello", []float32{1, 0})))

	fs2, err := NewFileStore(root)
	require.NoError(t, err)
	got, err := fs2.Get(context.Background(), "go", "fmt", "v1", "print.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Content)
}

func TestFileStoreUpsertBatchIsIdempotentOnStats(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	pairs := []Pair{
		mustPair(t, "go", "fmt", "v1", "a.go", "a", []float32{1, 0}),
		mustPair(t, "go", "fmt", "v1", "b.go", "b", []float32{0, 1}),
		mustPair(t, "python", "requests", "v1", "c.py", "c", []float32{1, 1}),
	}
	require.NoError(t, fs.UpsertBatch(ctx, pairs))
	stats, err := fs.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalVectors)

	require.NoError(t, fs.UpsertBatch(ctx, pairs))
	stats2, err := fs.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats2.TotalVectors)
}

func TestFileStoreSearchFilteredRestrictsToPackageAndVersion(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, fs.UpsertBatch(ctx, []Pair{
		mustPair(t, "go", "pkgA", "v1", "a.go", "a", []float32{1, 0}),
		mustPair(t, "go", "pkgA", "v1", "b.go", "b", []float32{0.9, 0.1}),
		mustPair(t, "go", "pkgB", "v1", "c.go", "c", []float32{1, 0}),
	}))

	results, err := fs.SearchFiltered(ctx, []float32{1, 0}, HierarchyFilter{
		Language: "go", Package: "pkgA", Version: "v1", Limit: 2,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 2)
	for _, r := range results {
		require.Equal(t, "pkgA", r.Fragment.Package)
	}
}

func TestFileStoreSearchFilteredUnknownLanguageIsError(t *testing.T) {
	fs := newTestFileStore(t)
	_, err := fs.SearchFiltered(context.Background(), []float32{1}, HierarchyFilter{Language: "nonexistent"})
	require.Error(t, err)
}

func TestFileStoreGlobalTopKMergesAcrossLanguages(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, fs.UpsertBatch(ctx, []Pair{
		mustPair(t, "go", "pkg", "v1", "a.go", "a", []float32{1, 0}),
		mustPair(t, "python", "pkg", "v1", "a.py", "a", []float32{1, 0}),
	}))

	results, err := fs.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestFileStoreDeletePackageThenSearchIsEmpty(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, fs.Upsert(ctx, mustPair(t, "go", "pkg", "v1", "a.go", "a", []float32{1, 0})))
	require.NoError(t, fs.DeletePackage(ctx, "go", "pkg", "v1"))

	results, err := fs.SearchFiltered(ctx, []float32{1, 0}, HierarchyFilter{Language: "go", Package: "pkg", Version: "v1"})
	require.NoError(t, err)
	require.Empty(t, results)

	exists, err := fs.Exists(ctx, "go", "pkg", "v1", "a.go")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFileStoreListPackageFilesIsOrdered(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, fs.UpsertBatch(ctx, []Pair{
		mustPair(t, "go", "pkg", "v1", "z.go", "z", []float32{1}),
		mustPair(t, "go", "pkg", "v1", "a.go", "a", []float32{1}),
	}))
	files, err := fs.ListPackageFiles(ctx, "go", "pkg", "v1")
	require.NoError(t, err)
	require.Equal(t, []string{"a.go", "z.go"}, files)
}

func TestRelPathForShardsByEncodedPrefix(t *testing.T) {
	rel := relPathFor("go/fmt/v1.0.0/print.go")
	dir := filepath.Dir(rel)
	require.Equal(t, "documents", filepath.Base(filepath.Dir(dir)))
	require.Len(t, filepath.Base(dir), 2)
}
