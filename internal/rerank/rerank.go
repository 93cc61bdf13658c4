// Package rerank implements the optional cross-encoder reranking stage
// (C6): given a query and a candidate set of passages, return a
// reordered list scored in [0, 1], batched into a single call per query,
// failing closed (input order unchanged, failure recorded in metrics) on
// any error.
package rerank

import "context"

// Candidate is one passage to score against a query, carrying an
// explicit index so callers can match rerank output back onto whatever
// richer structure (e.g. vectorstore.SearchResult) it came from.
type Candidate struct {
	Index   int
	Content string
}

// Result is one reranked candidate: its original index, the passage,
// and its new similarity score in [0, 1].
type Result struct {
	Index   int
	Content string
	Score   float64
}

// Reranker reorders a candidate batch for one query. Implementations may
// drop candidates that score below a threshold; every returned Candidate
// appears at most once, ordered by descending Score.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, error)
}

// Noop leaves candidate order unchanged with a uniform score, for
// rerank.enabled=false, and the orchestrator's default when it is
// constructed with a nil Reranker.
type Noop struct{}

func (Noop) Rerank(_ context.Context, _ string, candidates []Candidate) ([]Result, error) {
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{Index: c.Index, Content: c.Content, Score: 1}
	}
	return out, nil
}

// passthrough converts candidates to identically-ordered, identically
// scored results; used by the HTTP client's fail-closed path.
func passthrough(candidates []Candidate) []Result {
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{Index: c.Index, Content: c.Content, Score: 1}
	}
	return out
}
