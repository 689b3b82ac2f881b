package homepage

import (
	"context"
	"fmt"
	"io"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/headlines/internal/listing"
)

// FeedStories returns the items of the news RSS feed ranked in feed order.
// Items without a usable link are dropped.
func (s *Scraper) FeedStories(ctx context.Context) ([]listing.Story, error) {
	if s.cfg.FeedURL == "" {
		return []listing.Story{}, nil
	}

	body, err := s.get(ctx, s.cfg.FeedURL, "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return s.parseFeed(io.LimitReader(body, maxPageBytes))
}

func (s *Scraper) parseFeed(r io.Reader) ([]listing.Story, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	seen := make(map[string]bool, len(feed.Items))
	stories := make([]listing.Story, 0, len(feed.Items))
	for _, item := range feed.Items {
		link, err := s.links.Resolve(item.Link)
		if err != nil {
			s.log.Debugf("feed item %q skipped: %v", item.Title, err)
			continue
		}
		if seen[link] {
			continue
		}
		seen[link] = true

		stories = append(stories, listing.Story{
			Rank:  len(stories) + 1,
			Title: normalizeSpace(item.Title),
			Link:  link,
		})
	}

	return stories, nil
}
