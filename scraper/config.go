package scraper

import "fmt"

// DefaultStartURL is the press archive harvested when no source is
// configured.
const DefaultStartURL = "https://www.gob.mx/sep/archivo/prensa"

// ListConfig defines how to pull item records and pagination links out of a
// listing page. Selectors are CSS selectors evaluated with goquery; an Attr
// field names the attribute read from the matched element, and an empty Attr
// means the element's text.
type ListConfig struct {
	ItemSelector string `yaml:"item" json:"item_selector"`

	TitleSelector    string `yaml:"title" json:"title_selector"`
	LinkSelector     string `yaml:"link" json:"link_selector"`
	LinkAttr         string `yaml:"link_attr" json:"link_attr"`
	DateSelector     string `yaml:"date" json:"date_selector,omitempty"`
	DateAttr         string `yaml:"date_attr" json:"date_attr,omitempty"`
	CategorySelector string `yaml:"category" json:"category_selector,omitempty"`
	ImageSelector    string `yaml:"image" json:"image_selector,omitempty"`
	ImageAttr        string `yaml:"image_attr" json:"image_attr,omitempty"`

	// PaginationSelector matches candidate "next page" anchors. The last
	// match in document order is followed.
	PaginationSelector string `yaml:"pagination" json:"pagination_selector,omitempty"`
	// PaginationContains, when set, must appear in a pagination href.
	PaginationContains string `yaml:"pagination_contains" json:"pagination_contains,omitempty"`
}

// NewListConfig returns the selectors for the gob.mx press archive.
func NewListConfig() *ListConfig {
	return &ListConfig{
		ItemSelector:       "article",
		TitleSelector:      "h2",
		LinkSelector:       "a.small-link",
		LinkAttr:           "href",
		DateSelector:       "time",
		DateAttr:           "datetime",
		CategorySelector:   ".tag-presses",
		ImageSelector:      "img",
		ImageAttr:          "src",
		PaginationSelector: `a[href*="page="]`,
		PaginationContains: "page=",
	}
}

// Validate checks that the required selectors are present.
func (c *ListConfig) Validate() error {
	if c.ItemSelector == "" {
		return fmt.Errorf("item selector is required")
	}
	if c.TitleSelector == "" {
		return fmt.Errorf("title selector is required")
	}
	if c.LinkSelector == "" {
		return fmt.Errorf("link selector is required")
	}
	return nil
}

// WithDefaults fills empty fields of c from NewListConfig.
func (c ListConfig) WithDefaults() ListConfig {
	d := NewListConfig()
	if c.ItemSelector == "" {
		c.ItemSelector = d.ItemSelector
	}
	if c.TitleSelector == "" {
		c.TitleSelector = d.TitleSelector
	}
	if c.LinkSelector == "" {
		c.LinkSelector = d.LinkSelector
	}
	if c.LinkAttr == "" {
		c.LinkAttr = d.LinkAttr
	}
	if c.DateSelector == "" {
		c.DateSelector = d.DateSelector
		c.DateAttr = d.DateAttr
	}
	if c.CategorySelector == "" {
		c.CategorySelector = d.CategorySelector
	}
	if c.ImageSelector == "" {
		c.ImageSelector = d.ImageSelector
		c.ImageAttr = d.ImageAttr
	}
	if c.PaginationSelector == "" {
		c.PaginationSelector = d.PaginationSelector
		c.PaginationContains = d.PaginationContains
	}
	return c
}
