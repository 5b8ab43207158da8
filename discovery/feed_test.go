package discovery

import (
	"net/url"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
	<channel>
		<title>Prensa SEP</title>
		<item>
			<title>Boletín 2</title>
			<link>https://www.gob.mx/sep/prensa/2</link>
			<pubDate>Fri, 17 Oct 2025 10:00:00 GMT</pubDate>
			<category>Prensa</category>
			<enclosure url="https://www.gob.mx/img/2.jpg" type="image/jpeg" length="10"/>
		</item>
		<item>
			<title>Boletín 1</title>
			<link>/sep/prensa/1</link>
		</item>
		<item>
			<title></title>
			<link>https://www.gob.mx/sep/prensa/0</link>
		</item>
	</channel>
</rss>`

// TestFeedExtractor_RSS verifies feed entries become records with no next links
func TestFeedExtractor_RSS(t *testing.T) {
	e := NewFeedExtractor(nil)

	items, next, err := e.Extract(&Page{URL: "https://www.gob.mx/sep/rss", Body: []byte(rssFeed)})
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, items, 2, "entry without title is skipped")

	assert.Equal(t, "Boletín 2", items[0].Title)
	assert.Equal(t, "https://www.gob.mx/sep/prensa/2", items[0].URL)
	assert.Equal(t, "2025-10-17T10:00:00Z", items[0].Date)
	assert.Equal(t, "Prensa", items[0].Category)
	assert.Equal(t, "https://www.gob.mx/img/2.jpg", items[0].Image)

	assert.Equal(t, "https://www.gob.mx/sep/prensa/1", items[1].URL)
	assert.Empty(t, items[1].Date)
}

// TestFeedExtractor_InvalidFeed verifies parse errors are returned
func TestFeedExtractor_InvalidFeed(t *testing.T) {
	_, _, err := NewFeedExtractor(nil).Extract(&Page{URL: "https://example.com", Body: []byte("not a feed")})
	assert.ErrorContains(t, err, "failed to parse feed")
}

// TestFeedItemToItem_UpdatedFallback verifies Atom updated dates are used
func TestFeedItemToItem_UpdatedFallback(t *testing.T) {
	updated := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	base, _ := url.Parse("https://example.com/")

	item := FeedItemToItem(&gofeed.Item{
		Title:         " Atom  entry ",
		Link:          "entry",
		UpdatedParsed: &updated,
		Image:         &gofeed.Image{URL: "/i.png"},
	}, base)

	assert.Equal(t, "Atom entry", item.Title)
	assert.Equal(t, "https://example.com/entry", item.URL)
	assert.Equal(t, "2025-01-02T03:04:05Z", item.Date)
	assert.Equal(t, "https://example.com/i.png", item.Image)
}
