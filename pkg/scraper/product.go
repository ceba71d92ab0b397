package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

var digitsRegex = regexp.MustCompile(`\d+`)

var (
	titleSel         = cascadia.MustCompile("div.product_main h1")
	headingSel       = cascadia.MustCompile("h1")
	descriptionMeta  = cascadia.MustCompile(`meta[name="description"]`)
	descriptionPara  = cascadia.MustCompile("#product_description + p")
	breadcrumbSel    = cascadia.MustCompile("ul.breadcrumb li")
	ratingSel        = cascadia.MustCompile("p.star-rating")
	activeImageSel   = cascadia.MustCompile("div.item.active img")
	fallbackImageSel = cascadia.MustCompile("article.product_page img")
)

// productPage is a parsed product page. doc and root share one node tree.
type productPage struct {
	doc  *goquery.Document
	root *html.Node
	url  *url.URL
}

// productField is one row of the extraction table. extract returns false
// when the field's anchor element is missing from the page.
type productField struct {
	column   string
	anchor   string
	required bool
	extract  func(p *productPage) (string, bool)
	assign   func(e *CatalogEntry, v string)
}

var productFields = []productField{
	{
		column:   "upc",
		anchor:   labelXPath("UPC"),
		required: true,
		extract:  labelCell("UPC"),
		assign:   func(e *CatalogEntry, v string) { e.UPC = v },
	},
	{
		column:   "title",
		anchor:   "div.product_main h1",
		required: true,
		extract:  title,
		assign:   func(e *CatalogEntry, v string) { e.Title = v },
	},
	{
		column:   "price_including_tax",
		anchor:   labelXPath("Price (incl. tax)"),
		required: true,
		extract:  labelCell("Price (incl. tax)"),
		assign:   func(e *CatalogEntry, v string) { e.PriceIncludingTax = v },
	},
	{
		column:   "price_excluding_tax",
		anchor:   labelXPath("Price (excl. tax)"),
		required: true,
		extract:  labelCell("Price (excl. tax)"),
		assign:   func(e *CatalogEntry, v string) { e.PriceExcludingTax = v },
	},
	{
		column:   "number_available",
		anchor:   labelXPath("Availability"),
		required: true,
		extract:  labelCell("Availability"),
		assign:   func(e *CatalogEntry, v string) { e.NumberAvailable = ParseAvailability(v) },
	},
	{
		column:  "product_description",
		anchor:  `meta[name="description"]`,
		extract: description,
		assign:  func(e *CatalogEntry, v string) { e.ProductDescription = v },
	},
	{
		column:   "category",
		anchor:   "ul.breadcrumb li",
		required: true,
		extract:  category,
		assign:   func(e *CatalogEntry, v string) { e.Category = v },
	},
	{
		column:   "review_rating",
		anchor:   "p.star-rating",
		required: true,
		extract:  rating,
		assign:   func(e *CatalogEntry, v string) { e.ReviewRating = v },
	},
	{
		column:   "image_url",
		anchor:   "div.item.active img",
		required: true,
		extract:  imageURL,
		assign:   func(e *CatalogEntry, v string) { e.ImageURL = v },
	},
}

// Product fetches the product page at rawURL and extracts its entry.
func (s *Scraper) Product(rawURL string) (CatalogEntry, error) {
	var (
		entry      CatalogEntry
		extractErr error
	)
	err := s.fetch(rawURL, func(c *colly.Collector) {
		c.OnResponse(func(r *colly.Response) {
			entry, extractErr = extractResponse(r)
		})
	})
	if err != nil {
		return CatalogEntry{}, err
	}
	return entry, extractErr
}

func extractResponse(r *colly.Response) (CatalogEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return CatalogEntry{}, &MalformedPageError{URL: r.Request.URL.String(), Field: "document", Selector: "html", Err: err}
	}
	return ExtractProduct(doc, r.Request.URL)
}

// ExtractProduct applies the field table to a parsed product page located at pageURL.
func ExtractProduct(doc *goquery.Document, pageURL *url.URL) (CatalogEntry, error) {
	if len(doc.Nodes) == 0 {
		return CatalogEntry{}, &MalformedPageError{URL: pageURL.String(), Field: "document", Selector: "html"}
	}
	p := &productPage{doc: doc, root: doc.Nodes[0], url: pageURL}

	e := CatalogEntry{ProductPageURL: pageURL.String()}
	for _, f := range productFields {
		v, ok := f.extract(p)
		if !ok && f.required {
			return CatalogEntry{}, &MalformedPageError{URL: pageURL.String(), Field: f.column, Selector: f.anchor}
		}
		f.assign(&e, v)
	}
	return e, nil
}

// ParseAvailability returns the first run of digits in s, or 0 if there is none.
func ParseAvailability(s string) int {
	m := digitsRegex.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func labelXPath(label string) string {
	return fmt.Sprintf(`//tr[th[normalize-space(.)=%q]]/td`, label)
}

// labelCell finds the table row whose header cell reads exactly label and
// returns the text of the cell next to it.
func labelCell(label string) func(p *productPage) (string, bool) {
	expr := xpath.MustCompile(labelXPath(label))
	return func(p *productPage) (string, bool) {
		n := htmlquery.QuerySelector(p.root, expr)
		if n == nil {
			return "", false
		}
		return strings.TrimSpace(htmlquery.InnerText(n)), true
	}
}

func title(p *productPage) (string, bool) {
	sel := p.doc.FindMatcher(titleSel).First()
	if sel.Length() == 0 {
		sel = p.doc.FindMatcher(headingSel).First()
	}
	t := strings.TrimSpace(sel.Text())
	return t, t != ""
}

func description(p *productPage) (string, bool) {
	if content, ok := p.doc.FindMatcher(descriptionMeta).First().Attr("content"); ok {
		if d := strings.TrimSpace(content); d != "" {
			return d, true
		}
	}
	if para := p.doc.FindMatcher(descriptionPara).First(); para.Length() > 0 {
		return strings.TrimSpace(para.Text()), true
	}
	return "", false
}

// category is the second-to-last breadcrumb entry, the last being the book itself.
func category(p *productPage) (string, bool) {
	items := p.doc.FindMatcher(breadcrumbSel)
	if items.Length() < 2 {
		return "", false
	}
	c := strings.TrimSpace(items.Eq(items.Length() - 2).Text())
	return c, c != ""
}

// rating keeps the class token as written on the page ("One" to "Five").
func rating(p *productPage) (string, bool) {
	class, ok := p.doc.FindMatcher(ratingSel).First().Attr("class")
	if !ok {
		return "", false
	}
	for _, token := range strings.Fields(class) {
		if token != "star-rating" {
			return token, true
		}
	}
	return "", false
}

// imageURL resolves the cover image against the product page, whose depth
// differs from the listing pages.
func imageURL(p *productPage) (string, bool) {
	img := p.doc.FindMatcher(activeImageSel).First()
	if img.Length() == 0 {
		img = p.doc.FindMatcher(fallbackImageSel).First()
	}
	src, ok := img.Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" {
		return "", false
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	return p.url.ResolveReference(ref).String(), true
}
