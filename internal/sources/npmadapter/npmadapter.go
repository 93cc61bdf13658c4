// Package npmadapter implements the npm ecosystem source adapter
// against the public npm registry JSON API, per spec.md §4.2 strategy
// (c) "call the ecosystem's JSON API".
package npmadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
)

const (
	defaultBase    = "https://registry.npmjs.org"
	requestTimeout = 15 * time.Second
)

// packageDoc mirrors the subset of the npm registry's package document
// this adapter reads (GET /<package>).
type packageDoc struct {
	Name     string `json:"name"`
	DistTags struct {
		Latest string `json:"latest"`
	} `json:"dist-tags"`
	Versions map[string]struct {
		Version     string `json:"version"`
		Description string `json:"description"`
		Homepage    string `json:"homepage"`
		License     string `json:"license"`
		Readme      string `json:"readme"`
	} `json:"versions"`
	Readme string `json:"readme"`
}

// Adapter implements sources.Adapter for language "npm".
type Adapter struct {
	base   string
	client *http.Client
}

func New(base string) *Adapter {
	if base == "" {
		base = defaultBase
	}
	return &Adapter{base: base, client: &http.Client{Timeout: requestTimeout}}
}

func (a *Adapter) LatestVersion(ctx context.Context, pkg string) (string, error) {
	doc, err := a.fetchPackage(ctx, pkg)
	if err != nil {
		return "", err
	}
	if doc.DistTags.Latest == "" {
		return "", apperr.NewNotFound(fmt.Sprintf("npmadapter: package %q has no dist-tags.latest", pkg))
	}
	return doc.DistTags.Latest, nil
}

func (a *Adapter) Fetch(ctx context.Context, pkg, version string) ([]fragment.Fragment, error) {
	doc, err := a.fetchPackage(ctx, pkg)
	if err != nil {
		return nil, err
	}

	ver, ok := doc.Versions[version]
	if !ok {
		return nil, apperr.NewNotFound(fmt.Sprintf("npmadapter: version %s not found for %q", version, pkg))
	}

	var fragments []fragment.Fragment
	overview := buildOverview(pkg, version, ver.Description, ver.Homepage, ver.License)
	fragments = append(fragments, fragment.New("npm", pkg, version, "package.md", overview))

	readme := strings.TrimSpace(ver.Readme)
	if readme == "" {
		readme = strings.TrimSpace(doc.Readme)
	}
	if readme != "" && readme != "ERROR: No README data found!" {
		fragments = append(fragments, fragment.New("npm", pkg, version, "README.md", readme))
	}

	return fragments, nil
}

// Versions implements sources.VersionLister: the registry document's
// "versions" map is keyed by every published version string.
func (a *Adapter) Versions(ctx context.Context, pkg string) ([]string, error) {
	doc, err := a.fetchPackage(ctx, pkg)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// RepositoryURL implements sources.RepositoryLinker using the latest
// version's homepage field.
func (a *Adapter) RepositoryURL(ctx context.Context, pkg string) (string, error) {
	doc, err := a.fetchPackage(ctx, pkg)
	if err != nil {
		return "", err
	}
	if ver, ok := doc.Versions[doc.DistTags.Latest]; ok {
		return ver.Homepage, nil
	}
	return "", nil
}

func (a *Adapter) fetchPackage(ctx context.Context, pkg string) (*packageDoc, error) {
	reqURL := fmt.Sprintf("%s/%s", a.base, url.PathEscape(pkg))
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.NewTransient("npmadapter: build request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperr.NewTransient(fmt.Sprintf("npmadapter: request for %s", pkg), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NewPackageUnknown(fmt.Sprintf("npmadapter: package %q not found", pkg))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, apperr.NewBackendError(resp.StatusCode, string(body), fmt.Errorf("npmadapter: fetch package"))
	}

	var doc packageDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperr.NewTransient("npmadapter: decode response", err)
	}
	return &doc, nil
}

func buildOverview(pkg, version, description, homepage, license string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Package %s\n\nVersion: %s\n", pkg, version)
	if description != "" {
		fmt.Fprintf(&b, "\n## Description\n\n%s\n", description)
	}
	if homepage != "" {
		fmt.Fprintf(&b, "\nHomepage: %s\n", homepage)
	}
	if license != "" {
		fmt.Fprintf(&b, "\nLicense: %s\n", license)
	}
	return b.String()
}
