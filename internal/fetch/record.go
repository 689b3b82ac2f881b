package fetch

import "time"

// Record is the outcome of fetching one logged URL. A failed fetch keeps the
// requested URL and FirstAppearedAt and leaves every text field empty.
type Record struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	ArticleHTML     string    `json:"article_html"`
	ArticleText     string    `json:"article_text"`
	FetchOK         bool      `json:"fetch_ok"`
	FirstAppearedAt time.Time `json:"first_appeared_at"`
}

func failed(url string, firstAppearedAt time.Time) Record {
	return Record{
		URL:             url,
		FetchOK:         false,
		FirstAppearedAt: firstAppearedAt,
	}
}

// Succeeded counts the records with FetchOK set.
func Succeeded(records []Record) int {
	n := 0
	for _, r := range records {
		if r.FetchOK {
			n++
		}
	}
	return n
}
