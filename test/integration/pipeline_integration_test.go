package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/pipeline"
	"github.com/pders01/headlines/internal/search"
	"github.com/pders01/headlines/internal/snapshot"
	"github.com/pders01/headlines/internal/storage"
)

var newsServer *httptest.Server

func TestMain(m *testing.M) {
	newsServer = httptest.NewServer(newsSite())
	code := m.Run()
	newsServer.Close()
	os.Exit(code)
}

// newsSite serves a small homepage, an RSS feed and the articles they link to.
func newsSite() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<div data-testid="edinburgh-card"><a data-testid="internal-link" href="/news/articles/a1"><h2 data-testid="card-headline">Storm warning issued</h2></a></div>
<div data-testid="edinburgh-card"><a data-testid="internal-link" href="/news/articles/a3"><h2 data-testid="card-headline">Election results</h2></a></div>
<div data-component="mostRead"><ol class="ssrcss-1020bd1-Stack">
<li><a class="ssrcss-qseizj-HeadlineLink" href="/news/articles/a1">Storm warning issued</a></li>
<li><a class="ssrcss-qseizj-HeadlineLink" href="/news/articles/gone">Removed story</a></li>
</ol></div>
</body></html>`)
	})
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>News</title>
<item><title>Rail strike called off</title><link>http://%s/news/articles/a2</link></item>
</channel></rss>`, r.Host)
	})
	article := func(title, author, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><head><link rel="canonical" href="%s"><meta property="og:title" content="%s"><meta name="byl" content="%s"></head>
<body><main><div data-component="text-block"><p>%s</p></div></main></body></html>`, r.URL.Path, title, author, body)
		}
	}
	mux.HandleFunc("/news/articles/a1", article("Storm warning issued", "Weather Desk", "Gales are expected across the north."))
	mux.HandleFunc("/news/articles/a2", article("Rail strike called off", "Transport Team", "Unions accepted the offer."))
	mux.HandleFunc("/news/articles/a3", article("Election results", "Politics Unit", "Turnout was higher than forecast."))
	return mux
}

func setupTestEnvironment(t *testing.T) (*config.Config, *storage.Store, *search.BleveEngine, *pipeline.Runner) {
	t.Helper()

	cfg := config.TestConfig(t.TempDir())
	cfg.Homepage.URL = newsServer.URL + "/news"
	cfg.Homepage.BaseURL = newsServer.URL
	cfg.Homepage.FeedURL = newsServer.URL + "/rss.xml"

	store, err := storage.NewStore(cfg.Data.StatePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	idx, err := search.NewBleveEngine(cfg.Data.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	runner, err := pipeline.NewRunner(cfg, pipeline.WithStore(store), pipeline.WithIndex(idx))
	if err != nil {
		t.Fatal(err)
	}

	return cfg, store, idx, runner
}

func TestIntegration_ListingsThenArticles(t *testing.T) {
	cfg, store, idx, runner := setupTestEnvironment(t)
	ctx := context.Background()

	morning := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{morning, evening} {
		if _, err := runner.CollectListings(ctx, at); err != nil {
			t.Fatalf("collecting listings at %v: %v", at, err)
		}
	}

	urls, err := listing.NewLoader(cfg.Data.Dir, cfg.Data.ListingPrefixes).Load(morning)
	if err != nil {
		t.Fatalf("loading listings: %v", err)
	}
	// a1 (most read + promo), gone, a3, a2; every one first seen in the morning
	if len(urls) != 4 {
		t.Fatalf("expected 4 distinct URLs, got %d: %+v", len(urls), urls)
	}
	for _, u := range urls {
		if !u.FirstAppearedAt.Equal(morning) {
			t.Errorf("expected %s first seen at %v, got %v", u.URL, morning, u.FirstAppearedAt)
		}
	}

	summary, err := runner.Run(ctx, morning)
	if err != nil {
		t.Fatalf("running articles job: %v", err)
	}
	if summary.Total != 4 || summary.Succeeded != 3 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	records, err := snapshot.ReadRecords(summary.SnapshotPath)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.FetchOK && rec.ArticleText == "" {
			t.Errorf("record %s fetched but has no text", rec.URL)
		}
		if !rec.FetchOK && rec.URL != newsServer.URL+"/news/articles/gone" {
			t.Errorf("unexpected failure for %s", rec.URL)
		}
	}

	runs, err := store.ListRuns(0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %d (%v)", len(runs), err)
	}

	hits, err := idx.Search("turnout", 5)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Election results" {
		t.Errorf("unexpected search hits: %+v", hits)
	}
}

func TestIntegration_RerunIsIdempotent(t *testing.T) {
	_, store, idx, runner := setupTestEnvironment(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	if _, err := runner.CollectListings(ctx, day); err != nil {
		t.Fatal(err)
	}

	first, err := runner.Run(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	second, err := runner.Run(ctx, day)
	if err != nil {
		t.Fatal(err)
	}

	a, err := snapshot.Read(first.SnapshotPath)
	if err != nil {
		t.Fatal(err)
	}
	b, err := snapshot.Read(second.SnapshotPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("rerun changed record count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].URL != b[i].URL || a[i].ArticleText != b[i].ArticleText || a[i].FetchOK != b[i].FetchOK {
			t.Errorf("record %d differs after rerun", i)
		}
	}

	count, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 indexed articles after rerun, got %d", count)
	}

	state, err := store.GetArticleState(newsServer.URL + "/news/articles/gone")
	if err != nil {
		t.Fatal(err)
	}
	if state.Attempts != 2 {
		t.Errorf("expected 2 attempts for failing URL, got %d", state.Attempts)
	}
}
