package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/fetch"
	"github.com/pders01/headlines/internal/homepage"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/logging"
	"github.com/pders01/headlines/internal/search"
	"github.com/pders01/headlines/internal/snapshot"
	"github.com/pders01/headlines/internal/storage"
)

// Summary describes one articles run.
type Summary struct {
	Date         string
	Total        int
	Succeeded    int
	Failed       int
	SnapshotPath string
	Duration     time.Duration
}

type Option func(*Runner)

// WithStore records runs and per-URL state in store.
func WithStore(store *storage.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithIndex adds fetched articles to a search index.
func WithIndex(idx search.Indexer) Option {
	return func(r *Runner) { r.index = idx }
}

// WithHTTPClient routes article and homepage requests through client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) { r.client = client }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner wires the listing loader, fetcher, snapshot writer and the optional
// state store and search index into the two batch jobs.
type Runner struct {
	cfg       *config.Config
	loader    *listing.Loader
	listings  *listing.Writer
	fetcher   *fetch.Fetcher
	snapshots *snapshot.Writer
	scraper   *homepage.Scraper
	store     *storage.Store
	index     search.Indexer
	client    *http.Client
	now       func() time.Time
	log       *logging.FieldLogger
}

func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg: cfg,
		now: time.Now,
		log: logging.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}

	var fetchOpts []fetch.Option
	if r.client != nil {
		fetchOpts = append(fetchOpts, fetch.WithClient(r.client))
	}

	scraper, err := homepage.NewScraper(cfg.Homepage, r.client)
	if err != nil {
		return nil, fmt.Errorf("creating homepage scraper: %w", err)
	}

	r.loader = listing.NewLoader(cfg.Data.Dir, cfg.Data.ListingPrefixes)
	r.listings = listing.NewWriter(cfg.Data.Dir)
	r.fetcher = fetch.NewFetcher(cfg.Fetch, fetchOpts...)
	r.snapshots = snapshot.NewWriter(cfg.Data.SnapshotDir)
	r.scraper = scraper

	return r, nil
}

// Yesterday returns the UTC calendar day before now.
func Yesterday(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// Run fetches every URL logged on date and writes its snapshot. A date with
// no listing files is not an error: the summary is empty and nothing is
// written.
func (r *Runner) Run(ctx context.Context, date time.Time) (*Summary, error) {
	started := r.now()
	day := date.UTC().Format(listing.DateLayout)
	log := r.log.With("date", day)

	summary := &Summary{Date: day}

	urls, err := r.loader.Load(date)
	if err != nil {
		return nil, fmt.Errorf("loading listings: %w", err)
	}
	if len(urls) == 0 {
		log.Infof("no URLs to process for %s", day)
		return summary, nil
	}

	log.Infof("fetching %d urls", len(urls))
	records := r.fetcher.FetchAll(ctx, urls)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch interrupted, snapshot not written: %w", err)
	}

	path, err := r.snapshots.Write(records, date)
	if err != nil {
		return nil, err
	}

	summary.Total = len(records)
	summary.Succeeded = fetch.Succeeded(records)
	summary.Failed = summary.Total - summary.Succeeded
	summary.SnapshotPath = path
	summary.Duration = r.now().Sub(started)

	r.record(summary, records, started)

	log.Infof("saved %d articles (%d ok, %d failed) to %s", summary.Total, summary.Succeeded, summary.Failed, path)
	return summary, nil
}

// record updates the optional store and index. Failures are logged only; the
// snapshot on disk is the result of record.
func (r *Runner) record(summary *Summary, records []fetch.Record, started time.Time) {
	if r.store != nil {
		run := &storage.Run{
			Date:         summary.Date,
			StartedAt:    started.UTC(),
			FinishedAt:   r.now().UTC(),
			Total:        summary.Total,
			Succeeded:    summary.Succeeded,
			Failed:       summary.Failed,
			SnapshotPath: summary.SnapshotPath,
		}
		if err := r.store.SaveRun(run); err != nil {
			r.log.Warnf("saving run: %v", err)
		}

		fetched := r.now().UTC()
		states := make([]*storage.ArticleState, len(records))
		for i, rec := range records {
			states[i] = &storage.ArticleState{
				URL:             rec.URL,
				Title:           rec.Title,
				FetchOK:         rec.FetchOK,
				LastFetched:     fetched,
				FirstAppearedAt: rec.FirstAppearedAt,
			}
		}
		if err := r.store.SaveArticleStates(states); err != nil {
			r.log.Warnf("saving article states: %v", err)
		}
	}

	if r.index != nil {
		n, err := r.index.Index(records, summary.Date)
		if err != nil {
			r.log.Warnf("indexing articles: %v", err)
		} else {
			r.log.Debugf("indexed %d articles", n)
		}
	}
}

type extractor func(context.Context) ([]listing.Story, error)

// CollectListings scrapes each configured listing source once and appends
// the stories to the listing files for the day of at. Sources fail
// independently; their errors are joined.
func (r *Runner) CollectListings(ctx context.Context, at time.Time) (map[string]int, error) {
	extractors := map[string]extractor{
		config.PrefixMostRead:        r.scraper.MostRead,
		config.PrefixFrontPagePromos: r.scraper.FrontPagePromos,
		config.PrefixFeed:            r.scraper.FeedStories,
	}

	counts := make(map[string]int)
	var errs []error

	for _, prefix := range r.cfg.Data.ListingPrefixes {
		extract, ok := extractors[prefix]
		if !ok {
			r.log.Warnf("no collector for listing %q", prefix)
			continue
		}

		stories, err := extract(ctx)
		if err != nil {
			r.log.With("listing", prefix).Errorf("scrape failed: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			continue
		}

		path, err := r.listings.Append(prefix, stories, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			continue
		}

		counts[prefix] = len(stories)
		r.log.With("listing", prefix).Infof("appended %d stories to %s", len(stories), path)
	}

	return counts, errors.Join(errs...)
}
