package htmlsrc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchParsesHTMLAndTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Hello</title></head><body><article><p>Some content here.</p></article></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Hello", page.Title)
	require.NotNil(t, page.Doc)
}

func TestFetchReturnsErrorOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestReadableMarkdownProducesNonEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><article><h1>Title</h1><p>Body text that is long enough to be considered an article by the readability heuristics used here.</p></article></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	md, err := page.ReadableMarkdown()
	require.NoError(t, err)
	require.NotEmpty(t, md)
}

func TestWalkSectionsFindsIDHeadings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
<h4 id="Foo">func Foo()</h4>
<p>doc for foo</p>
<h4 id="Bar">func Bar()</h4>
<p>doc for bar</p>
</body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	sections := WalkSections(page.Doc, "h4")
	require.Len(t, sections, 2)
	require.Equal(t, "Foo", sections[0].ID)
	require.Contains(t, sections[0].HTML, "doc for foo")
	require.Equal(t, "Bar", sections[1].ID)
	require.Contains(t, sections[1].HTML, "doc for bar")
}
