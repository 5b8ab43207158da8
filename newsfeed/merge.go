package newsfeed

// Merge prepends the items of newItems whose URL is not already in existing.
// The relative order of newItems is kept and existing is never reordered or
// modified. It returns the merged list and how many items were added.
//
// Merge does not collapse duplicates inside newItems; run DedupeByURL first
// when the input may repeat a URL.
func Merge(newItems, existing []Item) ([]Item, int) {
	seen := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		seen[item.URL] = struct{}{}
	}

	fresh := make([]Item, 0, len(newItems))
	for _, item := range newItems {
		if _, ok := seen[item.URL]; ok {
			continue
		}
		fresh = append(fresh, item)
	}

	merged := make([]Item, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)

	return merged, len(fresh)
}

// DedupeByURL drops repeated URLs from items. The first occurrence wins.
func DedupeByURL(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	unique := make([]Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.URL]; ok {
			continue
		}
		seen[item.URL] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}

// ContainsURL reports whether any item in items has the given URL.
func ContainsURL(items []Item, url string) bool {
	for _, item := range items {
		if item.URL == url {
			return true
		}
	}
	return false
}
