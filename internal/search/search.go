package search

// Result is a single published-project hit returned to the caller.
type Result struct {
	ProjectID   string   `json:"projectId"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genres      []string `json:"genres"`
	Snippet     string   `json:"snippet"`
	Image       string   `json:"image"`
	URL         string   `json:"url"`
}

// Query describes a search request over the published catalog.
type Query struct {
	Text        string
	FilterGenre string // empty = all genres
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push projects into a search index.
type Indexer interface {
	IndexProject(p ProjectRecord) error
	DeleteProject(projectID string) error
}

// ProjectRecord is the data we index for a published project.
type ProjectRecord struct {
	ProjectID   string   `json:"projectId"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genres      []string `json:"genres"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	URL         string   `json:"url"`
}
