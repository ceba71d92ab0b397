package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/queue"
)

const indexCtxKey = "product_index"

var errNotFetched = errors.New("product page was not fetched")

// Products fetches every product page in urls. Results are returned in the
// order of urls whatever the number of threads; a failed page only sets the
// Err of its own result. done, if not nil, is called once per finished page
// and may be called from several goroutines.
func (s *Scraper) Products(ctx context.Context, urls []string, done func(ProductResult)) []ProductResult {
	if done == nil {
		done = func(ProductResult) {}
	}

	results := make([]ProductResult, len(urls))
	for i, u := range urls {
		results[i].URL = u
	}

	if s.threads == 1 || len(urls) <= 1 {
		for i, u := range urls {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				continue
			}
			results[i].Entry, results[i].Err = s.Product(u)
			done(results[i])
		}
		return results
	}

	s.productsConcurrently(ctx, urls, results, done)
	return results
}

func (s *Scraper) productsConcurrently(ctx context.Context, urls []string, results []ProductResult, done func(ProductResult)) {
	var mu sync.Mutex
	finished := make([]bool, len(urls))

	finish := func(r *colly.Request, entry CatalogEntry, err error) {
		i, convErr := strconv.Atoi(r.Ctx.Get(indexCtxKey))
		if convErr != nil || i < 0 || i >= len(results) {
			s.logger.Error("response without a product index", "url", r.URL.String())
			return
		}
		mu.Lock()
		results[i].Entry, results[i].Err = entry, err
		finished[i] = true
		res := results[i]
		mu.Unlock()
		done(res)
	}

	c := s.clone()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		s.logger.Debug("visiting", "url", r.URL.String())
	})
	c.OnResponse(func(r *colly.Response) {
		if err := statusError(r.Request.URL.String(), r.StatusCode); err != nil {
			finish(r.Request, CatalogEntry{}, err)
			return
		}
		entry, err := extractResponse(r)
		finish(r.Request, entry, err)
	})
	c.OnError(func(r *colly.Response, err error) {
		finish(r.Request, CatalogEntry{}, &FetchError{URL: r.Request.URL.String(), StatusCode: r.StatusCode, Err: err})
	})

	// fifoQueueStorage Init can't fail
	q, _ := queue.New(s.threads, &fifoQueueStorage{})

	for i, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil {
			results[i].Err = &FetchError{URL: u, Err: err}
			finished[i] = true
			done(results[i])
			continue
		}
		reqCtx := colly.NewContext()
		reqCtx.Put(indexCtxKey, strconv.Itoa(i))
		err = q.AddRequest(&colly.Request{
			URL:     parsed,
			Method:  http.MethodGet,
			Ctx:     reqCtx,
			Headers: &http.Header{},
		})
		if err != nil {
			results[i].Err = &FetchError{URL: u, Err: err}
			finished[i] = true
			done(results[i])
		}
	}

	if err := q.Run(c); err != nil {
		s.logger.Error("product queue stopped", "error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range results {
		if finished[i] {
			continue
		}
		// aborted in OnRequest, or dropped by the queue
		if err := ctx.Err(); err != nil {
			results[i].Err = err
		} else {
			results[i].Err = &FetchError{URL: results[i].URL, Err: errNotFetched}
		}
	}
}
