package listing

import (
	"time"
)

// Entry is one row of a listing file: a story URL seen on the homepage at a
// point in time. The same URL appears once per scrape that saw it.
type Entry struct {
	URL        string    `json:"url"`
	ObservedAt time.Time `json:"observed_at"`
}

// DedupedURL is a distinct URL with the earliest time it was observed.
type DedupedURL struct {
	URL             string    `json:"url"`
	FirstAppearedAt time.Time `json:"first_appeared_at"`
}

// Story is one headline extracted from the homepage.
type Story struct {
	Rank  int    `json:"rank"`
	Title string `json:"title"`
	Link  string `json:"link"`
}
