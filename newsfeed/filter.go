package newsfeed

// ListFilter narrows a store listing. Zero values disable each filter.
type ListFilter struct {
	// DateFrom keeps items whose Date sorts at or after it. Dates are compared
	// as strings, which is correct for ISO 8601 dates.
	DateFrom string
	// Limit caps the number of returned items after filtering.
	Limit int
}

// Filter applies f to items and returns a new slice.
func Filter(items []Item, f ListFilter) []Item {
	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		if f.DateFrom != "" && item.Date < f.DateFrom {
			continue
		}
		filtered = append(filtered, item)
	}

	if f.Limit > 0 && len(filtered) > f.Limit {
		filtered = filtered[:f.Limit]
	}

	return filtered
}

// Newest returns the first n items, the ones added by the most recent run
// when n is that run's new-item count.
func Newest(items []Item, n int) []Item {
	if n <= 0 {
		return []Item{}
	}
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
