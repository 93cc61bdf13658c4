package toolfacade

import (
	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/orchestrator"
	"github.com/fragmentsearch/fragmentsearch/internal/vectorstore"
)

// Response is whichever of the three response shapes spec.md §7
// mandates; the failure, partial-success and success types below carry
// their own "status" json tag so marshaling any of them produces the
// single JSON object the tool-invocation protocol expects.
// CheckLatestVersionResponse carries no status field.
type Response any

// FailureResponse is `Failure(kind)` from spec.md §7.
type FailureResponse struct {
	Status    string `json:"status"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// PartialSuccessResponse is the "generated but still nothing found"
// outcome from C7 step 7.
type PartialSuccessResponse struct {
	Status             string       `json:"status"`
	Source             string       `json:"source"`
	GeneratedFragments int          `json:"generated_fragments"`
	Results            []ResultView `json:"results"`
}

// SuccessResponse is the common case: at least one result, whether
// served from the store or freshly generated.
type SuccessResponse struct {
	Status          string       `json:"status"`
	Source          string       `json:"source"`
	Results         []ResultView `json:"results"`
	VersionResolved string       `json:"version_resolved"`
}

// CheckLatestVersionResponse is check_latest_version's dedicated
// response shape, per spec.md §4.9 (it carries no "status" field since
// spec.md describes it as the operation's sole return value, not one of
// the generic find()-derived shapes).
type CheckLatestVersionResponse struct {
	LatestStable      string   `json:"latest_stable"`
	ReleaseDate       string   `json:"release_date,omitempty"`
	DownloadURL       string   `json:"download_url,omitempty"`
	RepositoryURL     string   `json:"repository_url,omitempty"`
	AvailableVersions []string `json:"available_versions"`
}

// ResultView is a vectorstore.SearchResult projected onto the
// user-visible response surface.
type ResultView struct {
	Language        string   `json:"language"`
	Package         string   `json:"package"`
	Version         string   `json:"version"`
	FilePath        string   `json:"file_path"`
	Score           float64  `json:"score"`
	ContentPreview  string   `json:"content_preview"`
	MatchedKeywords []string `json:"matched_keywords"`
}

func newResultView(r vectorstore.SearchResult) ResultView {
	return ResultView{
		Language:        r.Fragment.Language,
		Package:         r.Fragment.Package,
		Version:         r.Fragment.Version,
		FilePath:        r.Fragment.FilePath,
		Score:           r.Score,
		ContentPreview:  r.ContentPreview,
		MatchedKeywords: r.MatchedKeywords,
	}
}

// newFailure maps a collaborator error onto FailureResponse per
// spec.md §7's table, defaulting to Internal (non-retriable) for
// anything not already in the apperr taxonomy.
func newFailure(err error) FailureResponse {
	ae, ok := apperr.Of(err)
	if !ok {
		ae = apperr.NewInternal("toolfacade: unmapped error", err)
	}
	return FailureResponse{
		Status:    "failure",
		Kind:      string(ae.Kind),
		Message:   ae.Message,
		Retriable: ae.Retriable,
	}
}

// newResultResponse maps an orchestrator.Result onto the
// PartialSuccess/Success shapes, applying the caller's own limit on top
// of whatever C7 already truncated to (limit <= 0 leaves C7's results
// as-is).
func newResultResponse(res orchestrator.Result, limit int) Response {
	if res.PartialSuccess {
		return PartialSuccessResponse{
			Status:             "partial_success",
			Source:             string(res.Source),
			GeneratedFragments: res.GeneratedFragments,
			Results:            []ResultView{},
		}
	}

	results := res.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	views := make([]ResultView, len(results))
	for i, r := range results {
		views[i] = newResultView(r)
	}

	return SuccessResponse{
		Status:          "success",
		Source:          string(res.Source),
		Results:         views,
		VersionResolved: res.VersionResolved,
	}
}
