package homepage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/logging"
	"github.com/pders01/headlines/internal/validation"
)

// ErrUnexpectedStatus is returned when the homepage or feed answers with
// anything but 200 OK.
var ErrUnexpectedStatus = errors.New("unexpected status code")

const maxPageBytes = 10 * 1024 * 1024

var mostReadLists = []string{
	`div[data-component="mostRead"] ol.ssrcss-1020bd1-Stack`,
	`div[data-component="mostRead"] ol`,
}

var mostReadLinks = []string{
	`a.ssrcss-qseizj-HeadlineLink`,
	`a[href]`,
}

// promoSelector pairs a card container with the headline link inside it.
type promoSelector struct {
	card  string
	link  string
	title string
}

var promoSelectors = []promoSelector{
	{card: `[data-testid="edinburgh-card"], [data-testid="london-card"], [data-testid="dundee-card"]`, link: `a[data-testid="internal-link"]`, title: `[data-testid="card-headline"]`},
	{card: `div[data-component="promo"]`, link: `a[href]`, title: `h2, h3`},
	{card: `.gs-c-promo`, link: `a.gs-c-promo-heading`, title: `.gs-c-promo-heading__title`},
}

// Scraper extracts story listings from the news homepage and its feed.
type Scraper struct {
	client *http.Client
	cfg    config.HomepageConfig
	links  *validation.LinkValidator
	log    *logging.FieldLogger
}

func NewScraper(cfg config.HomepageConfig, client *http.Client) (*Scraper, error) {
	base := cfg.BaseURL
	if base == "" {
		base = cfg.URL
	}
	links, err := validation.NewLinkValidator(base)
	if err != nil {
		return nil, fmt.Errorf("homepage base URL: %w", err)
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Scraper{
		client: client,
		cfg:    cfg,
		links:  links,
		log:    logging.Component("homepage"),
	}, nil
}

func (s *Scraper) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	return resp.Body, nil
}

func (s *Scraper) document(ctx context.Context) (*goquery.Document, error) {
	body, err := s.get(ctx, s.cfg.URL, "text/html")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing homepage: %w", err)
	}
	return doc, nil
}

// MostRead returns up to TopN stories from the "Most Read" panel.
func (s *Scraper) MostRead(ctx context.Context) ([]listing.Story, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	return s.mostRead(doc), nil
}

func (s *Scraper) mostRead(doc *goquery.Document) []listing.Story {
	var list *goquery.Selection
	for i, selector := range mostReadLists {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			list = sel
			break
		}
		if i == 0 {
			s.log.Warnf("primary most-read selector failed, trying fallback")
		}
	}
	if list == nil {
		s.log.Warnf("most-read list not found; page structure may have changed")
		return []listing.Story{}
	}

	stories := []listing.Story{}
	list.Find("li").EachWithBreak(func(i int, item *goquery.Selection) bool {
		if s.cfg.TopN > 0 && i >= s.cfg.TopN {
			return false
		}

		link := firstMatch(item, mostReadLinks)
		if link == nil {
			s.log.Warnf("most-read item %d has no headline link", i+1)
			return true
		}

		title := normalizeSpace(link.Text())
		href, _ := link.Attr("href")
		resolved, err := s.links.Resolve(href)
		if title == "" || err != nil {
			s.log.Warnf("most-read item %d skipped: title=%q href=%q", i+1, title, href)
			return true
		}

		stories = append(stories, listing.Story{Rank: i + 1, Title: title, Link: resolved})
		return true
	})

	return stories
}

// FrontPagePromos returns the promo cards on the homepage in document order,
// one per distinct link, capped at PromoLimit.
func (s *Scraper) FrontPagePromos(ctx context.Context) ([]listing.Story, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	return s.promos(doc), nil
}

func (s *Scraper) promos(doc *goquery.Document) []listing.Story {
	for _, selector := range promoSelectors {
		stories := s.collectPromos(doc, selector)
		if len(stories) > 0 {
			return stories
		}
	}
	s.log.Warnf("no promo cards matched any known selector")
	return []listing.Story{}
}

func (s *Scraper) collectPromos(doc *goquery.Document, selector promoSelector) []listing.Story {
	seen := make(map[string]bool)
	stories := []listing.Story{}

	doc.Find(selector.card).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if s.cfg.PromoLimit > 0 && len(stories) >= s.cfg.PromoLimit {
			return false
		}

		link := card.Find(selector.link).First()
		if link.Length() == 0 && card.Is(selector.link) {
			link = card
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		resolved, err := s.links.Resolve(href)
		if err != nil || seen[resolved] {
			return true
		}

		title := normalizeSpace(card.Find(selector.title).First().Text())
		if title == "" {
			title = normalizeSpace(link.Text())
		}
		if title == "" {
			return true
		}

		seen[resolved] = true
		stories = append(stories, listing.Story{Rank: len(stories) + 1, Title: title, Link: resolved})
		return true
	})

	return stories
}

func firstMatch(sel *goquery.Selection, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if match := sel.Find(selector).First(); match.Length() > 0 {
			return match
		}
	}
	return nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
