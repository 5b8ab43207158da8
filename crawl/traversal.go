// Package crawl drives incremental harvesting: it walks the paginated
// listing, stops at the watermark, merges what it found into the store and
// records the new watermark.
package crawl

import (
	"context"
	"errors"

	"github.com/pevans/newsharvest/discovery"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/newsfeed"
)

// Fetcher downloads a listing page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*discovery.Page, error)
}

// Extractor turns a page into item records, in page order, plus the
// candidate next-page links in document order.
type Extractor interface {
	Extract(page *discovery.Page) ([]newsfeed.Item, []string, error)
}

// StopReason is the terminal state of a traversal.
type StopReason string

const (
	StopPageLimit      StopReason = "page_limit_reached"
	StopWatermarkFound StopReason = "watermark_found"
	StopNoMorePages    StopReason = "no_more_pages"
	StopFetchError     StopReason = "fetch_error"
	StopCancelled      StopReason = "cancelled"
)

// WalkOptions configures a traversal.
type WalkOptions struct {
	StartURL string
	// StopURL is the watermark; empty disables the early stop.
	StopURL string
	// MaxPages bounds the pages attempted; zero or less means unbounded.
	MaxPages int
}

// Outcome describes how a traversal ended.
type Outcome struct {
	Reason       StopReason `json:"reason"`
	PagesFetched int        `json:"pages_fetched"`
	Emitted      int        `json:"emitted"`
	// LastURL is the last page fetched, or the page that failed.
	LastURL string `json:"last_url,omitempty"`
}

// Traverser walks listing pages one at a time. Decisions about the
// watermark, the page ceiling and the next page are made on the caller's
// goroutine so records are emitted strictly in page order.
type Traverser struct {
	fetcher   Fetcher
	extractor Extractor
	log       logger.Logger
}

// NewTraverser creates a traverser over the given collaborators.
func NewTraverser(fetcher Fetcher, extractor Extractor, log logger.Logger) *Traverser {
	if log == nil {
		log = logger.NewNop()
	}
	return &Traverser{
		fetcher:   fetcher,
		extractor: extractor,
		log:       log,
	}
}

// Walk fetches pages starting at opts.StartURL and passes each record to emit
// as soon as it is extracted. The watermark record itself is never emitted.
// A fetch or extract failure ends the walk with StopFetchError and a
// *FetchError; an error from emit ends it with that error.
func (t *Traverser) Walk(ctx context.Context, opts WalkOptions, emit func(newsfeed.Item) error) (Outcome, error) {
	var out Outcome
	visited := make(map[string]struct{})
	pageURL := opts.StartURL

	for n := 1; ; n++ {
		// The ceiling bounds pages attempted, so it is checked before fetching
		if opts.MaxPages > 0 && n > opts.MaxPages {
			out.Reason = StopPageLimit
			return out, nil
		}

		if err := ctx.Err(); err != nil {
			out.Reason = StopCancelled
			return out, err
		}

		visited[pageURL] = struct{}{}
		out.LastURL = pageURL

		page, err := t.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			out.Reason = StopFetchError
			if errors.Is(err, context.Canceled) {
				out.Reason = StopCancelled
			}
			return out, &FetchError{URL: pageURL, Page: n, Err: err}
		}
		out.PagesFetched++

		records, nextLinks, err := t.extractor.Extract(page)
		if err != nil {
			out.Reason = StopFetchError
			return out, &FetchError{URL: pageURL, Page: n, Err: err}
		}

		t.log.Debug("page extracted",
			logger.Int("page", n),
			logger.String("url", pageURL),
			logger.Int("records", len(records)),
			logger.Int("next_links", len(nextLinks)),
		)

		for _, record := range records {
			if opts.StopURL != "" && record.URL == opts.StopURL {
				out.Reason = StopWatermarkFound
				return out, nil
			}
			if err := emit(record); err != nil {
				return out, err
			}
			out.Emitted++
		}

		if len(nextLinks) == 0 {
			out.Reason = StopNoMorePages
			return out, nil
		}

		// The archive places the "next" link last among the pagination anchors
		next := nextLinks[len(nextLinks)-1]
		if _, seen := visited[next]; seen {
			out.Reason = StopNoMorePages
			return out, nil
		}
		pageURL = next
	}
}
