// Package pyadapter implements the Python ecosystem source adapter
// against the PyPI JSON API, per spec.md §4.2 strategy (c) "call the
// ecosystem's JSON API".
package pyadapter

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
	defaultBase    = "https://pypi.org/pypi"
	requestTimeout = 15 * time.Second
)

// pypiProject mirrors the subset of PyPI's JSON API response this
// adapter reads (https://pypi.org/pypi/<name>/json).
type pypiProject struct {
	Info struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Summary     string `json:"summary"`
		Description string `json:"description"`
		HomePage    string `json:"home_page"`
		ProjectURL  string `json:"project_url"`
		Author      string `json:"author"`
		License     string `json:"license"`
	} `json:"info"`
	Releases map[string][]struct {
		UploadTime string `json:"upload_time"`
	} `json:"releases"`
}

// Adapter implements sources.Adapter for language "python".
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
	proj, err := a.fetchProject(ctx, pkg, "")
	if err != nil {
		return "", err
	}
	if proj.Info.Version == "" {
		return "", apperr.NewNotFound(fmt.Sprintf("pyadapter: package %q has no published versions", pkg))
	}
	return proj.Info.Version, nil
}

func (a *Adapter) Fetch(ctx context.Context, pkg, version string) ([]fragment.Fragment, error) {
	proj, err := a.fetchProject(ctx, pkg, version)
	if err != nil {
		return nil, err
	}

	var fragments []fragment.Fragment
	overview := buildOverview(pkg, version, proj)
	fragments = append(fragments, fragment.New("python", pkg, version, "README.md", overview))

	if desc := strings.TrimSpace(proj.Info.Description); desc != "" && desc != proj.Info.Summary {
		fragments = append(fragments, fragment.New("python", pkg, version, "long_description.md", desc))
	}

	if len(fragments) == 0 {
		return nil, apperr.NewNotFound(fmt.Sprintf("pyadapter: no documentation content for %s==%s", pkg, version))
	}
	return fragments, nil
}

// Versions implements sources.VersionLister: PyPI's project JSON reports
// every release as a key of the "releases" map.
func (a *Adapter) Versions(ctx context.Context, pkg string) ([]string, error) {
	proj, err := a.fetchProject(ctx, pkg, "")
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(proj.Releases))
	for v := range proj.Releases {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// RepositoryURL implements sources.RepositoryLinker using PyPI's
// home_page metadata field.
func (a *Adapter) RepositoryURL(ctx context.Context, pkg string) (string, error) {
	proj, err := a.fetchProject(ctx, pkg, "")
	if err != nil {
		return "", err
	}
	return proj.Info.HomePage, nil
}

func (a *Adapter) fetchProject(ctx context.Context, pkg, version string) (*pypiProject, error) {
	reqURL := fmt.Sprintf("%s/%s/json", a.base, url.PathEscape(pkg))
	if version != "" {
		reqURL = fmt.Sprintf("%s/%s/%s/json", a.base, url.PathEscape(pkg), url.PathEscape(version))
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.NewTransient("pyadapter: build request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperr.NewTransient(fmt.Sprintf("pyadapter: request for %s", pkg), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NewPackageUnknown(fmt.Sprintf("pyadapter: package %q not found", pkg))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, apperr.NewBackendError(resp.StatusCode, string(body), fmt.Errorf("pyadapter: fetch project"))
	}

	var proj pypiProject
	if err := json.NewDecoder(resp.Body).Decode(&proj); err != nil {
		return nil, apperr.NewTransient("pyadapter: decode response", err)
	}
	return &proj, nil
}

func buildOverview(pkg, version string, proj *pypiProject) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Package %s\n\nVersion: %s\n", pkg, version)
	if proj.Info.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", proj.Info.Summary)
	}
	if proj.Info.HomePage != "" {
		fmt.Fprintf(&b, "\nHome page: %s\n", proj.Info.HomePage)
	}
	if proj.Info.License != "" {
		fmt.Fprintf(&b, "\nLicense: %s\n", proj.Info.License)
	}
	return b.String()
}
