package scraper

import (
	"strings"

	"github.com/gocolly/colly/v2"
)

const categoryLinkSelector = "div.side_categories ul li ul li a"

// Categories reads the sidebar of the landing page at siteURL.
func (s *Scraper) Categories(siteURL string) (CategoryMap, error) {
	var m CategoryMap

	err := s.fetch(siteURL, func(c *colly.Collector) {
		c.OnHTML(categoryLinkSelector, func(e *colly.HTMLElement) {
			m.add(strings.TrimSpace(e.Text), e.Request.AbsoluteURL(e.Attr("href")))
		})
	})
	if err != nil {
		return CategoryMap{}, err
	}

	if m.Len() == 0 {
		return CategoryMap{}, &MalformedPageError{URL: siteURL, Field: "category links", Selector: categoryLinkSelector}
	}

	s.logger.Info("found categories", "count", m.Len(), "url", siteURL)
	return m, nil
}
