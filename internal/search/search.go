// Package search provides project/file search for the portal, backed by
// Meilisearch with a data-layer fallback.
package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultFile    ResultType = "file"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet,omitempty"`
	ProjectID string     `json:"project_id"`
}

// Query describes a search request. CompanyID scopes every hit to the actor's
// tenant; it is never optional.
type Query struct {
	Text      string
	CompanyID string
	Limit     int
}

// Response is the envelope returned by the search action.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Record is the data indexed per project or file.
type Record struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	CompanyID   string `json:"company_id"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Fallback executes a search against the data layer when Meilisearch is
// unavailable.
type Fallback interface {
	SearchFallback(ctx context.Context, q Query) ([]Result, error)
}
