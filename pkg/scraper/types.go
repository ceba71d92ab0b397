package scraper

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gocolly/colly/v2"
)

type Scraper struct {
	colly   *colly.Collector
	threads int
	logger  *slog.Logger
}

// CatalogEntry is the flat record extracted from one product page.
type CatalogEntry struct {
	ProductPageURL     string
	UPC                string
	Title              string
	PriceIncludingTax  string
	PriceExcludingTax  string
	NumberAvailable    int
	ProductDescription string
	Category           string
	ReviewRating       string
	ImageURL           string
}

type column struct {
	name string
	get  func(e *CatalogEntry) string
	set  func(e *CatalogEntry, v string) error
}

// columns is the output field order.
var columns = []column{
	{
		name: "product_page_url",
		get:  func(e *CatalogEntry) string { return e.ProductPageURL },
		set:  func(e *CatalogEntry, v string) error { e.ProductPageURL = v; return nil },
	},
	{
		name: "upc",
		get:  func(e *CatalogEntry) string { return e.UPC },
		set:  func(e *CatalogEntry, v string) error { e.UPC = v; return nil },
	},
	{
		name: "title",
		get:  func(e *CatalogEntry) string { return e.Title },
		set:  func(e *CatalogEntry, v string) error { e.Title = v; return nil },
	},
	{
		name: "price_including_tax",
		get:  func(e *CatalogEntry) string { return e.PriceIncludingTax },
		set:  func(e *CatalogEntry, v string) error { e.PriceIncludingTax = v; return nil },
	},
	{
		name: "price_excluding_tax",
		get:  func(e *CatalogEntry) string { return e.PriceExcludingTax },
		set:  func(e *CatalogEntry, v string) error { e.PriceExcludingTax = v; return nil },
	},
	{
		name: "number_available",
		get:  func(e *CatalogEntry) string { return strconv.Itoa(e.NumberAvailable) },
		set: func(e *CatalogEntry, v string) error {
			if v == "" {
				e.NumberAvailable = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("number_available %q: %w", v, err)
			}
			e.NumberAvailable = n
			return nil
		},
	},
	{
		name: "product_description",
		get:  func(e *CatalogEntry) string { return e.ProductDescription },
		set:  func(e *CatalogEntry, v string) error { e.ProductDescription = v; return nil },
	},
	{
		name: "category",
		get:  func(e *CatalogEntry) string { return e.Category },
		set:  func(e *CatalogEntry, v string) error { e.Category = v; return nil },
	},
	{
		name: "review_rating",
		get:  func(e *CatalogEntry) string { return e.ReviewRating },
		set:  func(e *CatalogEntry, v string) error { e.ReviewRating = v; return nil },
	},
	{
		name: "image_url",
		get:  func(e *CatalogEntry) string { return e.ImageURL },
		set:  func(e *CatalogEntry, v string) error { e.ImageURL = v; return nil },
	},
}

// Columns returns the field names of a CatalogEntry in output order.
func Columns() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// Values returns the entry's fields as strings, in Columns order.
func (e CatalogEntry) Values() []string {
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = c.get(&e)
	}
	return values
}

// EntryFromRecord rebuilds an entry from a delimited row. Columns missing
// from header are left at their zero value; unknown header names are ignored.
func EntryFromRecord(header, record []string) (CatalogEntry, error) {
	var e CatalogEntry
	if len(record) != len(header) {
		return e, fmt.Errorf("record has %d fields, header has %d", len(record), len(header))
	}
	for i, name := range header {
		for _, c := range columns {
			if c.name != name {
				continue
			}
			if err := c.set(&e, record[i]); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

type Category struct {
	Name string
	URL  string
}

// Slug is the lowercased, space-to-underscore form used in output paths.
func (c Category) Slug() string {
	return CategorySlug(c.Name)
}

func CategorySlug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// CategoryMap maps category display names to listing URLs, keeping the
// order in which the landing page lists them.
type CategoryMap struct {
	order  []Category
	byName map[string]string
}

func (m *CategoryMap) add(name, url string) {
	if name == "" || url == "" {
		return
	}
	if m.byName == nil {
		m.byName = make(map[string]string)
	}
	if _, ok := m.byName[name]; ok {
		return
	}
	m.byName[name] = url
	m.order = append(m.order, Category{Name: name, URL: url})
}

func (m CategoryMap) Len() int {
	return len(m.order)
}

func (m CategoryMap) All() []Category {
	out := make([]Category, len(m.order))
	copy(out, m.order)
	return out
}

func (m CategoryMap) Lookup(name string) (string, bool) {
	u, ok := m.byName[name]
	return u, ok
}

// PageLink is one listing page and the page its "next" control points to.
type PageLink struct {
	URL  string
	Next string
}

// ProductResult is the outcome of fetching one product page.
type ProductResult struct {
	URL   string
	Entry CatalogEntry
	Err   error
}
