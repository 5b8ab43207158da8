package crawl

import (
	"context"
	"fmt"
	"sync"

	"github.com/pevans/newsharvest/discovery"
	"github.com/pevans/newsharvest/newsfeed"
)

const archiveURL = "https://www.example.gob.mx/archivo/prensa"

func pageURL(n int) string {
	if n == 1 {
		return archiveURL
	}
	return fmt.Sprintf("%s?page=%d", archiveURL, n)
}

func item(id int) newsfeed.Item {
	return newsfeed.Item{
		Title: fmt.Sprintf("Boletín %d", id),
		URL:   fmt.Sprintf("https://www.example.gob.mx/prensa/boletin-%d", id),
		Date:  fmt.Sprintf("2025-01-%02dT10:00:00-06:00", id%28+1),
	}
}

// seq returns items hi down to lo, newest first as the archive lists them.
func seq(hi, lo int) []newsfeed.Item {
	items := []newsfeed.Item{}
	for id := hi; id >= lo; id-- {
		items = append(items, item(id))
	}
	return items
}

type sitePage struct {
	items []newsfeed.Item
	links []string
}

// fakeSite serves an in-memory archive. It implements both Fetcher and
// Extractor so traversal tests never touch the network.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string]sitePage
	failOn  map[string]error
	fetched []string
	// block, when set, holds every fetch until it is closed or the context
	// ends.
	block chan struct{}
	// entered receives once per fetch that reaches the block.
	entered chan struct{}
}

// newArchive paginates items perPage at a time. Each page links to every
// earlier page and then to the next one, so the "next" link comes last.
func newArchive(items []newsfeed.Item, perPage int) *fakeSite {
	site := &fakeSite{
		pages:  map[string]sitePage{},
		failOn: map[string]error{},
	}

	total := (len(items) + perPage - 1) / perPage
	if total == 0 {
		total = 1
	}
	for n := 1; n <= total; n++ {
		lo := (n - 1) * perPage
		hi := min(lo+perPage, len(items))

		var links []string
		for prev := 1; prev < n; prev++ {
			links = append(links, pageURL(prev))
		}
		if n < total {
			links = append(links, pageURL(n+1))
		}

		site.pages[pageURL(n)] = sitePage{items: items[lo:hi], links: links}
	}

	return site
}

func (s *fakeSite) Fetch(ctx context.Context, url string) (*discovery.Page, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, url)
	block, entered := s.block, s.entered
	s.mu.Unlock()

	if block != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[url]; err != nil {
		return nil, err
	}
	if _, ok := s.pages[url]; !ok {
		return nil, &discovery.HTTPStatusError{StatusCode: 404, Status: "Not Found"}
	}
	return &discovery.Page{URL: url, ContentType: "text/html"}, nil
}

func (s *fakeSite) Extract(page *discovery.Page) ([]newsfeed.Item, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pages[page.URL]
	return p.items, p.links, nil
}

func (s *fakeSite) fetchedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

func urlsOf(items []newsfeed.Item) []string {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	return urls
}
