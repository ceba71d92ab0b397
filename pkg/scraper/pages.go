package scraper

import (
	"github.com/gocolly/colly/v2"
)

const (
	productLinkSelector = "article.product_pod h3 a"
	nextLinkSelector    = "li.next a"
)

// PageWalker iterates over the product URLs of a listing, following its
// "next" links. Pages are fetched lazily as the iteration reaches them.
//
//	w := s.Walk(listingURL)
//	for w.Next() {
//		use(w.URL())
//	}
//	if err := w.Err(); err != nil { ... }
type PageWalker struct {
	s *Scraper

	next    string
	pending []string
	current string
	page    PageLink
	pages   int
	err     error

	seen    map[string]struct{}
	visited map[string]struct{}
}

func (s *Scraper) Walk(listingURL string) *PageWalker {
	return &PageWalker{
		s:       s,
		next:    listingURL,
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// Next advances to the next product URL, fetching listing pages as needed.
// It returns false when the listing is exhausted or a page failed.
func (w *PageWalker) Next() bool {
	for len(w.pending) == 0 {
		if w.err != nil || w.next == "" {
			return false
		}
		if err := w.load(w.next); err != nil {
			w.err = err
			w.next = ""
			return false
		}
	}
	w.current, w.pending = w.pending[0], w.pending[1:]
	return true
}

// URL is the product URL the last call to Next advanced to.
func (w *PageWalker) URL() string { return w.current }

// Page is the most recently fetched listing page.
func (w *PageWalker) Page() PageLink { return w.page }

// Pages is the number of listing pages fetched so far.
func (w *PageWalker) Pages() int { return w.pages }

func (w *PageWalker) Err() error { return w.err }

// Collect drains the walker.
func (w *PageWalker) Collect() ([]string, error) {
	var urls []string
	for w.Next() {
		urls = append(urls, w.URL())
	}
	return urls, w.Err()
}

func (w *PageWalker) load(pageURL string) error {
	w.visited[pageURL] = struct{}{}

	link := PageLink{URL: pageURL}
	var products []string

	err := w.s.fetch(pageURL, func(c *colly.Collector) {
		c.OnHTML(productLinkSelector, func(e *colly.HTMLElement) {
			if u := e.Request.AbsoluteURL(e.Attr("href")); u != "" {
				products = append(products, u)
			}
		})
		// relative to the current page, listing pages nest under their category
		c.OnHTML(nextLinkSelector, func(e *colly.HTMLElement) {
			link.Next = e.Request.AbsoluteURL(e.Attr("href"))
		})
	})
	if err != nil {
		return err
	}

	w.pages++
	w.page = link

	for _, u := range products {
		if _, ok := w.seen[u]; ok {
			continue
		}
		w.seen[u] = struct{}{}
		w.pending = append(w.pending, u)
	}

	w.next = link.Next
	if _, ok := w.visited[w.next]; ok && w.next != "" {
		w.s.logger.Warn("next link points to a visited page, stopping", "page", pageURL, "next", w.next)
		w.next = ""
	}

	w.s.logger.Debug("listing page", "url", pageURL, "products", len(products), "next", link.Next)
	return nil
}
