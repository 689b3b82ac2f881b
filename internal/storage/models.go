package storage

import (
	"time"
)

// Run is the ledger entry for one articles job, keyed by snapshot date.
type Run struct {
	Date         string    `json:"date"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Total        int       `json:"total"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	SnapshotPath string    `json:"snapshot_path"`
}

// ArticleState tracks what is known about one URL across runs.
type ArticleState struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	FetchOK         bool      `json:"fetch_ok"`
	Attempts        int       `json:"attempts"`
	LastFetched     time.Time `json:"last_fetched"`
	LastSucceeded   time.Time `json:"last_succeeded,omitempty"`
	FirstAppearedAt time.Time `json:"first_appeared_at"`
}
