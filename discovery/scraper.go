package discovery

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/newsfeed"
	"github.com/pevans/newsharvest/scraper"
)

// ListingExtractor pulls item records and pagination links out of an HTML
// listing page using CSS selectors.
type ListingExtractor struct {
	config scraper.ListConfig
	log    logger.Logger
}

// NewListingExtractor creates an extractor for the given selectors.
func NewListingExtractor(config scraper.ListConfig, log logger.Logger) (*ListingExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid list config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ListingExtractor{config: config, log: log}, nil
}

// Extract returns the page's records in document order and every pagination
// link, resolved against the page URL. Records without a title or link are
// skipped.
func (e *ListingExtractor) Extract(page *Page) ([]newsfeed.Item, []string, error) {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	items := []newsfeed.Item{}
	doc.Find(e.config.ItemSelector).Each(func(i int, s *goquery.Selection) {
		item, ok := e.extractItem(s, base)
		if !ok {
			return
		}
		if err := ValidateItem(item); err != nil {
			e.log.Debug("skipping invalid record",
				logger.String("page", page.URL),
				logger.Int("index", i),
				logger.Error(err),
			)
			return
		}
		items = append(items, item)
	})

	return items, e.extractNextLinks(doc, base), nil
}

func (e *ListingExtractor) extractItem(s *goquery.Selection, base *url.URL) (newsfeed.Item, bool) {
	title := normalizeSpace(s.Find(e.config.TitleSelector).First().Text())
	link := strings.TrimSpace(valueOf(s, e.config.LinkSelector, e.config.LinkAttr))
	if title == "" || link == "" {
		return newsfeed.Item{}, false
	}

	item := newsfeed.Item{
		Title: title,
		URL:   resolve(base, link),
	}

	if e.config.DateSelector != "" {
		item.Date = strings.TrimSpace(valueOf(s, e.config.DateSelector, e.config.DateAttr))
	}
	if e.config.CategorySelector != "" {
		item.Category = normalizeSpace(s.Find(e.config.CategorySelector).First().Text())
	}
	if e.config.ImageSelector != "" {
		if image := strings.TrimSpace(valueOf(s, e.config.ImageSelector, e.config.ImageAttr)); image != "" {
			item.Image = resolve(base, image)
		}
	}

	return item, true
}

func (e *ListingExtractor) extractNextLinks(doc *goquery.Document, base *url.URL) []string {
	links := []string{}
	if e.config.PaginationSelector == "" {
		return links
	}

	doc.Find(e.config.PaginationSelector).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		if e.config.PaginationContains != "" && !strings.Contains(href, e.config.PaginationContains) {
			return
		}
		links = append(links, resolve(base, href))
	})

	return links
}

// valueOf reads attr from the first match of selector inside s, or its text
// when attr is empty.
func valueOf(s *goquery.Selection, selector, attr string) string {
	match := s.Find(selector).First()
	if attr == "" {
		return match.Text()
	}
	return match.AttrOr(attr, "")
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidateItem checks that an extracted record can be stored: a non-empty
// title and an absolute http(s) URL.
func ValidateItem(item newsfeed.Item) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title is empty")
	}

	itemURL, err := url.Parse(item.URL)
	if err != nil {
		return fmt.Errorf("invalid item URL: %w", err)
	}
	if itemURL.Scheme != "http" && itemURL.Scheme != "https" {
		return fmt.Errorf("item URL must use http or https scheme")
	}
	if itemURL.Host == "" {
		return fmt.Errorf("item URL must be absolute")
	}

	return nil
}
