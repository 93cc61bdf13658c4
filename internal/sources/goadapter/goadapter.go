// Package goadapter implements the Go ecosystem source adapter: version
// resolution against the module proxy's @v/list endpoint and
// documentation fetch by scraping pkg.go.dev, per spec.md §4.2 strategy
// (b) "scrape the ecosystem's canonical documentation website".
package goadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
	"github.com/fragmentsearch/fragmentsearch/internal/sources/htmlsrc"
)

const (
	defaultProxyBase  = "https://proxy.golang.org"
	defaultDocsBase   = "https://pkg.go.dev"
	versionListTimeout = 10 * time.Second
	docsFetchTimeout   = 30 * time.Second
)

// headingTags are the elements pkg.go.dev marks up one per documented
// symbol (function, type, variable, constant); each carries an id.
var headingTags = []string{"h2", "h3", "h4"}

// stdlibVersion stands in for the standard library's "latest version":
// the library ships with the Go toolchain rather than through the module
// proxy, so there is no semver to resolve.
const stdlibVersion = "latest"

// isStdlibPackage reports whether pkg is a standard-library import path:
// no dot appears in its first slash-delimited segment (third-party
// module paths are always hostnames, e.g. "github.com/...").
func isStdlibPackage(pkg string) bool {
	first := pkg
	if i := strings.Index(pkg, "/"); i >= 0 {
		first = pkg[:i]
	}
	return !strings.Contains(first, ".")
}

// Adapter implements sources.Adapter for language "go".
type Adapter struct {
	proxyBase string
	docsBase  string
	client    *http.Client
	fetcher   *htmlsrc.Fetcher
}

// New builds the Go adapter. Empty proxyBase/docsBase fall back to the
// public module proxy and pkg.go.dev.
func New(proxyBase, docsBase string) *Adapter {
	if proxyBase == "" {
		proxyBase = defaultProxyBase
	}
	if docsBase == "" {
		docsBase = defaultDocsBase
	}
	return &Adapter{
		proxyBase: proxyBase,
		docsBase:  docsBase,
		client:    &http.Client{Timeout: versionListTimeout},
		fetcher:   htmlsrc.NewFetcher(docsFetchTimeout),
	}
}

// LatestVersion calls <proxy>/<module>/@v/list and returns the
// highest semver-valid version in the response, per spec.md §4.2: "no
// value is fabricated... if the registry returns no versions, fail with
// NotFound."
func (a *Adapter) LatestVersion(ctx context.Context, pkg string) (string, error) {
	if isStdlibPackage(pkg) {
		return stdlibVersion, nil
	}

	versions, err := a.listVersions(ctx, pkg)
	if err != nil {
		return "", err
	}
	return versions[len(versions)-1], nil
}

// Versions implements sources.VersionLister, returning every semver-valid
// line the module proxy's @v/list reports, ascending.
func (a *Adapter) Versions(ctx context.Context, pkg string) ([]string, error) {
	if isStdlibPackage(pkg) {
		return []string{stdlibVersion}, nil
	}
	return a.listVersions(ctx, pkg)
}

// listVersions fetches and sorts <proxy>/<module>/@v/list ascending by
// semver; the caller picks off the tail for "latest".
func (a *Adapter) listVersions(ctx context.Context, pkg string) ([]string, error) {
	listURL := fmt.Sprintf("%s/%s/@v/list", a.proxyBase, url.PathEscape(pkg))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, apperr.NewTransient("goadapter: build version list request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, versionListTimeout)
	defer cancel()
	resp, err := a.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, apperr.NewTransient(fmt.Sprintf("goadapter: version list request for %s", pkg), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, apperr.NewPackageUnknown(fmt.Sprintf("goadapter: package %q not found", pkg))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, apperr.NewBackendError(resp.StatusCode, string(body), fmt.Errorf("goadapter: list versions"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewTransient("goadapter: read version list body", err)
	}

	var versions []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && isValidSemver(line) {
			versions = append(versions, line)
		}
	}
	if len(versions) == 0 {
		return nil, apperr.NewNotFound(fmt.Sprintf("goadapter: package %q has no published versions", pkg))
	}
	sort.Slice(versions, func(i, j int) bool { return semverLess(versions[i], versions[j]) })
	return versions, nil
}

// isValidSemver and semverLess implement the minimal subset of Go's
// module version ordering this adapter needs (numeric major.minor.patch
// comparison; a pre-release sorts before the release it modifies, and
// pre-releases of one release sort lexicographically). No third-party semver library appears anywhere
// in the retrieved example corpus, so this stays on the standard
// library rather than reaching for an ungrounded dependency.
func isValidSemver(v string) bool {
	if !strings.HasPrefix(v, "v") {
		return false
	}
	core, _, _ := strings.Cut(strings.TrimPrefix(v, "v"), "-")
	core, _, _ = strings.Cut(core, "+")
	parts := strings.Split(core, ".")
	if len(parts) < 3 {
		return false
	}
	for _, p := range parts[:3] {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

func semverLess(a, b string) bool {
	ma, pa := semverCore(a)
	mb, pb := semverCore(b)
	for i := 0; i < 3; i++ {
		if ma[i] != mb[i] {
			return ma[i] < mb[i]
		}
	}
	// No pre-release sorts after any pre-release (v1.0.0 > v1.0.0-rc1).
	if pa == "" || pb == "" {
		return pa != "" && pb == ""
	}
	return pa < pb
}

func semverCore(v string) ([3]int, string) {
	body, pre, hasPre := strings.Cut(strings.TrimPrefix(v, "v"), "-")
	if !hasPre {
		body, pre, _ = strings.Cut(body, "+")
	}
	var out [3]int
	for i, p := range strings.SplitN(body, ".", 3) {
		if i >= 3 {
			break
		}
		n, _ := strconv.Atoi(p)
		out[i] = n
	}
	return out, pre
}

// Fetch scrapes pkg.go.dev/<pkg>@<version> and produces one overview
// fragment plus one fragment per documented symbol section.
func (a *Adapter) Fetch(ctx context.Context, pkg, version string) ([]fragment.Fragment, error) {
	docURL := fmt.Sprintf("%s/%s@%s", a.docsBase, pkg, version)
	if isStdlibPackage(pkg) {
		// The standard library isn't versioned on pkg.go.dev; it always
		// serves the docs for the toolchain currently deployed there.
		docURL = fmt.Sprintf("%s/%s", a.docsBase, pkg)
	}
	ctx, cancel := context.WithTimeout(ctx, docsFetchTimeout)
	defer cancel()

	page, err := a.fetcher.Fetch(ctx, docURL)
	if err != nil {
		return nil, apperr.NewTransient(fmt.Sprintf("goadapter: fetch docs for %s@%s", pkg, version), err)
	}

	markdown, err := page.ReadableMarkdown()
	if err != nil {
		return nil, apperr.NewTransient("goadapter: convert docs to markdown", err)
	}

	var fragments []fragment.Fragment
	overview := fmt.Sprintf("# Package %s\n\nVersion: %s\n\n## Overview\n\n%s", pkg, version, markdown)
	fragments = append(fragments, fragment.New("go", pkg, version, "package_overview.md", overview))

	for _, section := range htmlsrc.WalkSections(page.Doc, headingTags...) {
		kind, name, ok := classifySection(section.Text)
		if !ok {
			continue
		}
		content := fmt.Sprintf("# %s: %s\n\nPackage: %s\nVersion: %s\n\n%s", capitalize(kind), name, pkg, version, cleanSectionText(section.HTML))
		filePath := fmt.Sprintf("%ss/%s.md", kind, sanitizeFileName(name))
		fragments = append(fragments, fragment.New("go", pkg, version, filePath, content))
	}

	if len(fragments) == 1 {
		return nil, apperr.NewNotFound(fmt.Sprintf("goadapter: no documentation sections found for %s@%s", pkg, version))
	}
	return fragments, nil
}

// classifySection recognizes pkg.go.dev's "func Foo", "type Foo", "var
// Foo", "const Foo" heading text, per the original generator's
// documented heading convention.
func classifySection(text string) (kind, name string, ok bool) {
	for _, prefix := range []string{"func", "type", "var", "const"} {
		rest, found := strings.CutPrefix(text, prefix+" ")
		if !found {
			continue
		}
		end := strings.IndexAny(rest, " (")
		if end == -1 {
			end = len(rest)
		}
		name = rest[:end]
		kind = prefix
		if kind == "var" {
			kind = "variable"
		}
		if kind == "const" {
			kind = "constant"
		}
		return kind, name, name != ""
	}
	return "", "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func cleanSectionText(html string) string {
	return strings.Join(strings.Fields(html), " ")
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", " ", "_", "*", "star", "(", "", ")", "")
	return replacer.Replace(name)
}
