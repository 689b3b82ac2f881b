package search

import "github.com/pders01/headlines/internal/fetch"

// Result is one article hit.
type Result struct {
	URL     string
	Title   string
	Authors string
	Date    string
	Score   float64
	Snippet string
}

// Searcher defines the query API used by the CLI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// Indexer is implemented by engines that ingest fetched articles.
type Indexer interface {
	Index(records []fetch.Record, date string) (int, error)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}
