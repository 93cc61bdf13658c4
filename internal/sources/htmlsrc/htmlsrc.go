// Package htmlsrc holds the HTML-fetching and extraction helpers shared
// by source adapters that scrape a documentation website rather than
// calling a JSON API or invoking a native tool.
package htmlsrc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Fetcher retrieves a page and extracts its readable content as
// Markdown, grounded on the teacher's web.Fetcher but narrowed to the
// one content type source adapters need (HTML documentation pages).
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	userAgent string
}

// NewFetcher builds a Fetcher with a bounded timeout and response size,
// matching the teacher's hardened defaults.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  8 * 1000 * 1000,
		userAgent: "fragmentsearch-docsearchd/1.0",
	}
}

// Page is one fetched and parsed documentation page.
type Page struct {
	URL   string
	Title string
	HTML  string
	Doc   *html.Node
}

// Fetch retrieves rawURL and parses it as HTML. Returns an error for
// non-2xx responses, oversized bodies, or unparseable HTML.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("htmlsrc: invalid url %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("htmlsrc: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("htmlsrc: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("htmlsrc: %s not found", rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("htmlsrc: %s returned status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("htmlsrc: read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("htmlsrc: %s exceeds max bytes (%d)", rawURL, f.maxBytes)
	}

	content := string(body)
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("htmlsrc: parse html: %w", err)
	}

	return &Page{URL: resp.Request.URL.String(), Title: extractTitle(doc), HTML: content, Doc: doc}, nil
}

// ReadableMarkdown extracts the page's main article content via
// go-readability and converts it to Markdown, falling back to
// converting the full document when readability finds nothing.
func (p *Page) ReadableMarkdown() (string, error) {
	base, _ := url.Parse(p.URL)
	articleHTML := p.HTML
	if art, err := readability.FromReader(strings.NewReader(p.HTML), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(p.URL)))
	if err != nil {
		return "", fmt.Errorf("htmlsrc: html to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func baseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func extractTitle(n *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return title
}

// Section is one heading-delimited region of a documentation page: a
// heading element carrying an id attribute, its text, and (in the HTML
// field) the plain text of the sibling nodes between it and the next
// matched heading of any of the requested tag names.
type Section struct {
	ID   string
	Text string
	HTML string
}

// WalkSections finds every element among tagNames that carries a
// non-empty id attribute and collects the text between it and the
// next such element, matching the heading-per-symbol structure
// documentation-generator output commonly uses (one heading per
// function/type/variable/constant).
func WalkSections(doc *html.Node, tagNames ...string) []Section {
	wanted := make(map[string]struct{}, len(tagNames))
	for _, t := range tagNames {
		wanted[t] = struct{}{}
	}

	var headings []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, ok := wanted[n.Data]; ok {
				if id := attr(n, "id"); id != "" {
					headings = append(headings, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	sections := make([]Section, 0, len(headings))
	for i, h := range headings {
		var buf strings.Builder
		renderText(h, &buf)
		text := strings.TrimSpace(buf.String())

		var htmlBuf strings.Builder
		collectUntilNext(h, nextOf(headings, i), &htmlBuf)

		sections = append(sections, Section{ID: attr(h, "id"), Text: text, HTML: strings.TrimSpace(htmlBuf.String())})
	}
	return sections
}

func nextOf(nodes []*html.Node, i int) *html.Node {
	if i+1 < len(nodes) {
		return nodes[i+1]
	}
	return nil
}

// collectUntilNext renders the text of every node following from
// immediately after from (a sibling-order walk across its subsequent
// siblings) up to, but excluding, until.
func collectUntilNext(from, until *html.Node, buf *strings.Builder) {
	n := from.NextSibling
	for n != nil && n != until {
		renderText(n, buf)
		buf.WriteString(" ")
		n = n.NextSibling
	}
}

func renderText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, buf)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
