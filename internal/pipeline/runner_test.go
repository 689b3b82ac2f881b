package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/search"
	"github.com/pders01/headlines/internal/snapshot"
	"github.com/pders01/headlines/internal/storage"
)

var runDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const homepageHTML = `<html><body>
<div data-testid="edinburgh-card"><a data-testid="internal-link" href="/news/articles/p1"><h2 data-testid="card-headline">Promo one</h2></a></div>
<div data-component="mostRead"><ol>
<li><a class="ssrcss-qseizj-HeadlineLink" href="/news/articles/m1">Read one</a></li>
<li><a class="ssrcss-qseizj-HeadlineLink" href="/news/articles/m2">Read two</a></li>
</ol></div>
</body></html>`

const feedXML = `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>Feed one</title><link>https://www.bbc.co.uk/news/articles/f1</link></item>
</channel></rss>`

func newNewsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Budget day"><meta name="byl" content="Author A"></head>
<body><div data-component="text-block"><p>The budget was announced.</p></div></body></html>`)
	})
	mux.HandleFunc("/article/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, homepageHTML)
	})
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, server *httptest.Server) *config.Config {
	t.Helper()
	cfg := config.TestConfig(t.TempDir())
	cfg.Homepage.URL = server.URL + "/news"
	cfg.Homepage.BaseURL = "https://www.bbc.co.uk"
	cfg.Homepage.FeedURL = server.URL + "/rss.xml"
	return cfg
}

func writeListing(t *testing.T, cfg *config.Config, prefix string, rows ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.Data.Dir, 0o755))
	content := "timestamp,rank,title,link\n"
	for _, row := range rows {
		content += row + "\n"
	}
	path := filepath.Join(cfg.Data.Dir, listing.FileName(prefix, runDate))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestYesterday(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)

	tests := []struct {
		now      time.Time
		expected time.Time
	}{
		{time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		// 22:00 on Jan 1 in UTC-5 is already Jan 2 in UTC.
		{time.Date(2024, 1, 1, 22, 0, 0, 0, loc), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Yesterday(tt.now))
	}
}

func TestRun_NoListings(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", summary.Date)
	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.SnapshotPath)

	_, statErr := os.Stat(cfg.Data.SnapshotDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_EndToEnd(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)

	ok := server.URL + "/article/ok"
	fail := server.URL + "/article/fail"
	writeListing(t, cfg, config.PrefixMostRead,
		"2024-01-01 08:00:00 UTC,1,Budget,"+ok,
		"2024-01-01 09:00:00 UTC,2,Broken,"+fail,
	)
	writeListing(t, cfg, config.PrefixFrontPagePromos,
		"2024-01-01 07:00:00 UTC,1,Budget,"+ok,
	)

	store, err := storage.NewStore(cfg.Data.StatePath)
	require.NoError(t, err)
	defer store.Close()

	idx, err := search.NewBleveEngine(cfg.Data.IndexPath)
	require.NoError(t, err)
	defer idx.Close()

	runner, err := NewRunner(cfg, WithStore(store), WithIndex(idx))
	require.NoError(t, err)

	summary, err := runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, filepath.Join(cfg.Data.SnapshotDir, "2024-01-01.parquet"), summary.SnapshotPath)

	records, err := snapshot.ReadRecords(summary.SnapshotPath)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, ok, records[0].URL)
	assert.True(t, records[0].FetchOK)
	assert.Equal(t, "Budget day", records[0].Title)
	assert.Equal(t, []string{"Author A"}, records[0].Authors)
	assert.True(t, records[0].FirstAppearedAt.Equal(time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)))

	assert.Equal(t, fail, records[1].URL)
	assert.False(t, records[1].FetchOK)
	assert.Empty(t, records[1].ArticleText)

	run, err := store.GetRun("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, summary.SnapshotPath, run.SnapshotPath)

	state, err := store.GetArticleState(fail)
	require.NoError(t, err)
	assert.False(t, state.FetchOK)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Search("budget", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ok, hits[0].URL)
}

func TestRun_RerunOverwrites(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)
	writeListing(t, cfg, config.PrefixMostRead, "2024-01-01 08:00:00 UTC,1,Budget,"+server.URL+"/article/ok")

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	first, err := runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotPath, second.SnapshotPath)

	rows, err := snapshot.Read(second.SnapshotPath)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRun_CancelledWritesNothing(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)
	writeListing(t, cfg, config.PrefixMostRead, "2024-01-01 08:00:00 UTC,1,Budget,"+server.URL+"/article/ok")

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx, runDate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, statErr := os.Stat(filepath.Join(cfg.Data.SnapshotDir, "2024-01-01.parquet"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_MalformedListing(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)
	require.NoError(t, os.MkdirAll(cfg.Data.Dir, 0o755))
	path := filepath.Join(cfg.Data.Dir, listing.FileName(config.PrefixMostRead, runDate))
	require.NoError(t, os.WriteFile(path, []byte("when,where\n1,2\n"), 0o644))

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), runDate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, listing.ErrMissingColumn))
}

func TestCollectListings(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	counts, err := runner.CollectListings(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		config.PrefixMostRead:        2,
		config.PrefixFrontPagePromos: 1,
		config.PrefixFeed:            1,
	}, counts)

	urls, err := listing.NewLoader(cfg.Data.Dir, cfg.Data.ListingPrefixes).Load(at)
	require.NoError(t, err)
	assert.Len(t, urls, 4)
	for _, u := range urls {
		assert.True(t, at.Equal(u.FirstAppearedAt))
	}
}

func TestCollectListings_PartialFailure(t *testing.T) {
	server := newNewsServer(t)
	cfg := testConfig(t, server)
	cfg.Homepage.FeedURL = server.URL + "/missing.xml"

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	counts, err := runner.CollectListings(context.Background(), runDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.PrefixFeed)
	assert.Equal(t, 2, counts[config.PrefixMostRead])
	assert.NotContains(t, counts, config.PrefixFeed)
}
