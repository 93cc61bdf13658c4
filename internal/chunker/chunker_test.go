package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEmptyContentProducesOneChunk(t *testing.T) {
	chunks := Split("", Options{Mode: ModeSemantic, MaxChunkSize: 100, OverlapSize: 10})
	require.Len(t, chunks, 1)
	require.Equal(t, "", chunks[0].Content)
}

func TestSplitAtExactBoundaryProducesOneChunk(t *testing.T) {
	content := strings.Repeat("a", 100)
	chunks := Split(content, Options{Mode: ModeFixed, MaxChunkSize: 100, OverlapSize: 10})
	require.Len(t, chunks, 1)
}

func TestSplitOverBoundaryProducesAtLeastTwoChunksWithOverlap(t *testing.T) {
	content := strings.Repeat("a", 101)
	chunks := Split(content, Options{Mode: ModeFixed, MaxChunkSize: 100, OverlapSize: 10})
	require.GreaterOrEqual(t, len(chunks), 2)
}

func TestSplitIsDeterministic(t *testing.T) {
	content := strings.Repeat("line one\nline two\nline three\n", 50)
	opt := Options{Mode: ModeSemantic, MaxChunkSize: 200, OverlapSize: 20}

	first := Split(content, opt)
	second := Split(content, opt)
	require.Equal(t, first, second)
}

func TestSplitSemanticPreservesLineIntegrity(t *testing.T) {
	content := "alpha\nbeta\ngamma\ndelta\nepsilon\n"
	chunks := Split(content, Options{Mode: ModeSemantic, MaxChunkSize: 12, OverlapSize: 0})
	for _, c := range chunks {
		for _, line := range strings.Split(strings.TrimRight(c.Content, "\n"), "\n") {
			require.NotEmpty(t, line)
		}
	}
}

func TestSplitSemanticFallsBackToFixedForOverlongLine(t *testing.T) {
	overlong := strings.Repeat("x", 500)
	content := "alpha\n" + overlong + "\nbeta\n"
	chunks := Split(content, Options{Mode: ModeSemantic, MaxChunkSize: 100, OverlapSize: 10})

	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Content), 100)
	}
}

func TestSplitNoChunkExceedsMaxPlusPrefix(t *testing.T) {
	content := strings.Repeat("word ", 1000)
	opt := Options{
		Mode: ModeFixed, MaxChunkSize: 64, OverlapSize: 8,
		AddContextInfo: true, Language: "go", Package: "pkg", Version: "v1", FilePath: "a.go",
	}
	chunks := Split(content, opt)
	prefixLen := len(contextPrefix(opt, 0, len(chunks)))
	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Content), opt.MaxChunkSize+prefixLen+1)
	}
}

func TestContextPrefixFormat(t *testing.T) {
	chunks := Split("hello world", Options{
		Mode: ModeFixed, MaxChunkSize: 100, OverlapSize: 0,
		AddContextInfo: true, Language: "go", Package: "fmt", Version: "v1.0.0", FilePath: "print.go",
	})
	require.Len(t, chunks, 1)
	require.True(t, strings.HasPrefix(chunks[0].Content, "Package: fmt | Version: v1.0.0 | Language: go | File: print.go | Chunk: 1/1\n"))
}

func TestDefaultMaxChunkSizeByLanguageClass(t *testing.T) {
	require.Equal(t, compiledMaxChunkSize, DefaultMaxChunkSize("go"))
	require.Equal(t, scriptingMaxChunkSize, DefaultMaxChunkSize("python"))
	require.Equal(t, markupMaxChunkSize, DefaultMaxChunkSize("markdown"))
	require.Equal(t, configMaxChunkSize, DefaultMaxChunkSize("yaml"))
	require.Equal(t, scriptingMaxChunkSize, DefaultMaxChunkSize("unknown-language"))
}

func TestDefaultOverlapSizeScalesWithFileSize(t *testing.T) {
	require.Equal(t, 256, DefaultOverlapSize(1024))
	require.Equal(t, 1024, DefaultOverlapSize(60*1024))
	mid := DefaultOverlapSize(27 * 1024)
	require.Greater(t, mid, 256)
	require.Less(t, mid, 1024)
}
