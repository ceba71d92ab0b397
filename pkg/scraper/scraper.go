package scraper

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

const maxRedirects = 10

type Options struct {
	// UserAgent is sent with every request; empty keeps colly's default.
	UserAgent string
	// CacheDir can be empty to disable caching.
	CacheDir string
	// Timeout bounds a single request, zero keeps the transport default.
	Timeout time.Duration
	// Threads is the number of product pages fetched at once.
	Threads int
	// RespectRobots makes requests disallowed by robots.txt fail.
	RespectRobots bool
	// AllowedDomains restricts requests to these hosts when not empty.
	AllowedDomains []string
}

func NewScraper(opts Options, logger *slog.Logger) *Scraper {
	options := []colly.CollectorOption{
		colly.AllowURLRevisit(),
	}
	if opts.UserAgent != "" {
		options = append(options, colly.UserAgent(opts.UserAgent))
	}
	if len(opts.AllowedDomains) > 0 {
		options = append(options, colly.AllowedDomains(opts.AllowedDomains...))
	}
	if opts.CacheDir != "" {
		options = append(options, colly.CacheDir(opts.CacheDir))
	}

	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}

	s := &Scraper{
		colly:   colly.NewCollector(options...),
		threads: threads,
		logger:  logger.With("component", "scraper"),
	}

	s.colly.IgnoreRobotsTxt = !opts.RespectRobots
	if opts.Timeout > 0 {
		s.colly.SetRequestTimeout(opts.Timeout)
	}

	s.colly.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		s.logger.Debug("redirecting", "from", via[len(via)-1].URL.String(), "to", req.URL.String())
		return nil
	})

	return s
}

// AllowedDomain returns the host of rawURL, for use in Options.AllowedDomains.
func AllowedDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Hostname(), nil
}

// clone returns a collector sharing the HTTP backend and cache of the base one.
// Every response reaches OnResponse, statusError decides which ones failed:
// colly alone would reject 203 and up.
func (s *Scraper) clone() *colly.Collector {
	c := s.colly.Clone()
	c.ParseHTTPErrorResponse = true
	return c
}

// statusError is a FetchError for any status outside 2xx.
func statusError(rawURL string, status int) error {
	if status/100 == 2 {
		return nil
	}
	return &FetchError{URL: rawURL, StatusCode: status, Err: fmt.Errorf("unexpected status %d %s", status, http.StatusText(status))}
}

// fetch visits rawURL on a fresh clone of the base collector. setup registers
// the page callbacks, whose results are discarded when an error is returned.
func (s *Scraper) fetch(rawURL string, setup func(c *colly.Collector)) error {
	c := s.clone()

	c.OnRequest(func(r *colly.Request) {
		s.logger.Debug("visiting", "url", r.URL.String())
	})

	status := 0
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})
	// registered ahead of setup so it runs before the page callbacks
	var respErr error
	c.OnResponse(func(r *colly.Response) {
		if respErr == nil {
			respErr = statusError(rawURL, r.StatusCode)
		}
	})

	setup(c)

	if err := c.Visit(rawURL); err != nil {
		return &FetchError{URL: rawURL, StatusCode: status, Err: err}
	}
	return respErr
}
