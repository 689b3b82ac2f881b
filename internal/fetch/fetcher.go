package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pders01/headlines/internal/article"
	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/logging"
	"github.com/pders01/headlines/internal/validation"
)

// ErrUnexpectedStatus is returned for any response other than 200 OK.
var ErrUnexpectedStatus = errors.New("unexpected status code")

type Option func(*Fetcher)

// WithClient replaces the HTTP client built from the config.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// Fetcher downloads and parses article pages with a bounded worker pool.
type Fetcher struct {
	client      *http.Client
	concurrency int
	delay       time.Duration
	timeout     time.Duration
	userAgent   string
	maxBody     int64
	log         *logging.FieldLogger
}

func NewFetcher(cfg config.FetchConfig, opts ...Option) *Fetcher {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = concurrency
	transport.MaxIdleConnsPerHost = concurrency

	f := &Fetcher{
		client:      &http.Client{Transport: transport},
		concurrency: concurrency,
		delay:       cfg.RequestDelay,
		timeout:     cfg.Timeout,
		userAgent:   cfg.UserAgent,
		maxBody:     cfg.MaxBodyBytes,
		log:         logging.Component("fetch"),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

type result struct {
	index  int
	record Record
}

// FetchAll fetches every URL and returns one Record per input, in input order.
// Individual failures become records with FetchOK unset. When ctx is
// cancelled the remaining jobs fail fast; callers should check ctx.Err().
func (f *Fetcher) FetchAll(ctx context.Context, urls []listing.DedupedURL) []Record {
	records := make([]Record, len(urls))
	if len(urls) == 0 {
		return records
	}

	jobs := make(chan int, len(urls))
	results := make(chan result, f.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < f.concurrency && i < len(urls); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- result{index: idx, record: f.FetchOne(ctx, urls[idx])}
			}
		}()
	}

	for i := range urls {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for res := range results {
		records[res.index] = res.record
		done++
		if done%50 == 0 {
			f.log.Debugf("fetched %d/%d", done, len(urls))
		}
	}

	f.log.Infof("fetched %d urls, %d ok", len(records), Succeeded(records))
	return records
}

// FetchOne waits the configured delay, then fetches and parses a single URL.
func (f *Fetcher) FetchOne(ctx context.Context, u listing.DedupedURL) Record {
	log := f.log.With("url", u.URL)

	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debugf("skipped: %v", ctx.Err())
			return failed(u.URL, u.FirstAppearedAt)
		case <-timer.C:
		}
	}

	body, finalURL, err := f.get(ctx, u.URL)
	if err != nil {
		log.Warnf("fetch failed: %v", err)
		return failed(u.URL, u.FirstAppearedAt)
	}

	parsed := article.Parse(body)

	return Record{
		URL:             resolveURL(parsed.Canonical, finalURL),
		Title:           parsed.Title,
		Authors:         parsed.Authors,
		ArticleHTML:     parsed.HTML,
		ArticleText:     parsed.Text,
		FetchOK:         true,
		FirstAppearedAt: u.FirstAppearedAt,
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, string, error) {
	if err := validation.IsFetchable(rawURL); err != nil {
		return "", "", err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("requesting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if f.maxBody > 0 {
		reader = io.LimitReader(reader, f.maxBody)
	}

	decoded, err := charset.NewReader(reader, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", "", fmt.Errorf("decoding body: %w", err)
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", "", fmt.Errorf("reading body: %w", err)
	}

	return string(body), resp.Request.URL.String(), nil
}

// resolveURL prefers the page's canonical link, resolved against the final
// response URL. Unusable canonicals fall back to the final URL.
func resolveURL(canonical, finalURL string) string {
	if canonical == "" {
		return finalURL
	}
	v, err := validation.NewLinkValidator(finalURL)
	if err != nil {
		return finalURL
	}
	resolved, err := v.Resolve(canonical)
	if err != nil {
		return finalURL
	}
	return resolved
}
