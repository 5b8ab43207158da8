package discovery

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/newsfeed"
)

// FeedExtractor reads item records from an RSS or Atom document. Feeds are
// not paginated, so it never returns next links and a traversal over a feed
// stops after one page.
type FeedExtractor struct {
	log logger.Logger
}

// NewFeedExtractor creates a feed extractor.
func NewFeedExtractor(log logger.Logger) *FeedExtractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &FeedExtractor{log: log}
}

// Extract parses page as a feed. The gofeed library detects RSS and Atom and
// normalizes both into the same structure.
func (e *FeedExtractor) Extract(page *Page) ([]newsfeed.Item, []string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page URL: %w", err)
	}

	items := make([]newsfeed.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		item := FeedItemToItem(fi, base)
		if err := ValidateItem(item); err != nil {
			e.log.Debug("skipping invalid feed entry",
				logger.String("page", page.URL),
				logger.String("link", fi.Link),
				logger.Error(err),
			)
			continue
		}
		items = append(items, item)
	}

	return items, []string{}, nil
}

// FeedItemToItem maps a feed entry onto an item record. Relative links are
// resolved against base.
func FeedItemToItem(fi *gofeed.Item, base *url.URL) newsfeed.Item {
	item := newsfeed.Item{
		Title: normalizeSpace(fi.Title),
	}

	// Link: <link> (RSS) or <link rel="alternate"> (Atom)
	if link := strings.TrimSpace(fi.Link); link != "" {
		item.URL = resolve(base, link)
	}

	// Date: <pubDate> (RSS) or <published>/<updated> (Atom)
	if fi.PublishedParsed != nil {
		item.Date = fi.PublishedParsed.Format(time.RFC3339)
	} else if fi.UpdatedParsed != nil {
		item.Date = fi.UpdatedParsed.Format(time.RFC3339)
	}

	if len(fi.Categories) > 0 {
		item.Category = strings.TrimSpace(fi.Categories[0])
	}

	if fi.Image != nil && fi.Image.URL != "" {
		item.Image = resolve(base, fi.Image.URL)
	} else {
		for _, enc := range fi.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
				item.Image = resolve(base, enc.URL)
				break
			}
		}
	}

	return item
}
