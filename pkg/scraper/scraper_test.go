package scraper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geniass/bookscrape/pkg/scraper/scrapertest"
)

func newTestScraper(threads int) *Scraper {
	return NewScraper(Options{Threads: threads}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWalkFollowsNextLinks(t *testing.T) {
	books := scrapertest.MakeBooks("art", 4)
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Sequential Art", Slug: "sequential-art_5", Books: books, PageSize: 3},
	}})
	defer ts.Close()

	w := newTestScraper(1).Walk(ts.CategoryURL("sequential-art_5"))
	urls, err := w.Collect()
	require.NoError(t, err)

	expected := []string{}
	for _, b := range books {
		expected = append(expected, ts.ProductURL(b.Slug))
	}
	assert.Equal(t, expected, urls)
	assert.Equal(t, 2, w.Pages())
	assert.Equal(t, 1, ts.Hits(scrapertest.ListingPath("sequential-art_5", 1)))
	assert.Equal(t, 1, ts.Hits(scrapertest.ListingPath("sequential-art_5", 2)))
	assert.Equal(t, 0, ts.Hits(scrapertest.ListingPath("sequential-art_5", 3)))
	assert.Empty(t, w.Page().Next)
}

func TestWalkIsLazy(t *testing.T) {
	books := scrapertest.MakeBooks("lazy", 4)
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Lazy", Slug: "lazy_2", Books: books, PageSize: 2},
	}})
	defer ts.Close()

	w := newTestScraper(1).Walk(ts.CategoryURL("lazy_2"))
	require.True(t, w.Next())
	require.True(t, w.Next())
	assert.Equal(t, 0, ts.Hits(scrapertest.ListingPath("lazy_2", 2)))

	require.True(t, w.Next())
	assert.Equal(t, ts.ProductURL(books[2].Slug), w.URL())
	assert.Equal(t, 1, ts.Hits(scrapertest.ListingPath("lazy_2", 2)))
}

func TestWalkFailsOnBrokenPage(t *testing.T) {
	books := scrapertest.MakeBooks("broken", 2)
	ts := scrapertest.NewServer(scrapertest.Catalog{Pages: map[string]string{
		scrapertest.ListingPath("broken_3", 1): scrapertest.ListingPage("Broken", books, "page-9.html"),
	}})
	defer ts.Close()

	w := newTestScraper(1).Walk(ts.CategoryURL("broken_3"))
	urls, err := w.Collect()
	assert.Len(t, urls, 2)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.True(t, strings.HasSuffix(fetchErr.URL, "/page-9.html"))
}

func TestWalkStopsOnNextCycle(t *testing.T) {
	books := scrapertest.MakeBooks("loop", 1)
	ts := scrapertest.NewServer(scrapertest.Catalog{Pages: map[string]string{
		scrapertest.ListingPath("loop_4", 1): scrapertest.ListingPage("Loop", books, "index.html"),
	}})
	defer ts.Close()

	urls, err := newTestScraper(1).Walk(ts.CategoryURL("loop_4")).Collect()
	require.NoError(t, err)
	assert.Len(t, urls, 1)
	assert.Equal(t, 1, ts.Hits(scrapertest.ListingPath("loop_4", 1)))
}

func TestWalkSuppressesDuplicates(t *testing.T) {
	books := scrapertest.MakeBooks("dup", 3)
	ts := scrapertest.NewServer(scrapertest.Catalog{Pages: map[string]string{
		scrapertest.ListingPath("dup_6", 1): scrapertest.ListingPage("Dup", books[:2], "page-2.html"),
		scrapertest.ListingPath("dup_6", 2): scrapertest.ListingPage("Dup", books[1:], ""),
	}})
	defer ts.Close()

	w := newTestScraper(1).Walk(ts.CategoryURL("dup_6"))
	urls, err := w.Collect()
	require.NoError(t, err)

	assert.Equal(t, []string{
		ts.ProductURL(books[0].Slug),
		ts.ProductURL(books[1].Slug),
		ts.ProductURL(books[2].Slug),
	}, urls)
	assert.Equal(t, 2, w.Pages())
}

func TestCategories(t *testing.T) {
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Travel", Slug: "travel_2"},
		{Name: "Sequential Art", Slug: "sequential-art_5"},
	}})
	defer ts.Close()

	m, err := newTestScraper(1).Categories(ts.URL + "/")
	require.NoError(t, err)

	assert.Equal(t, []Category{
		{Name: "Travel", URL: ts.CategoryURL("travel_2")},
		{Name: "Sequential Art", URL: ts.CategoryURL("sequential-art_5")},
	}, m.All())

	u, ok := m.Lookup("Sequential Art")
	assert.True(t, ok)
	assert.Equal(t, ts.CategoryURL("sequential-art_5"), u)
}

func TestCategoriesWithoutSidebar(t *testing.T) {
	ts := scrapertest.NewServer(scrapertest.Catalog{Pages: map[string]string{
		"/": "<html><body><p>maintenance</p></body></html>",
	}})
	defer ts.Close()

	_, err := newTestScraper(1).Categories(ts.URL + "/")
	var malformed *MalformedPageError
	assert.ErrorAs(t, err, &malformed)
}

func TestCategoriesUnreachable(t *testing.T) {
	ts := scrapertest.NewServer(scrapertest.Catalog{})
	siteURL := ts.URL + "/"
	ts.Close()

	_, err := newTestScraper(1).Categories(siteURL)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, siteURL, fetchErr.URL)
}

func TestProduct(t *testing.T) {
	book := scrapertest.Book{
		Slug:         "a-light-in-the-attic_1000",
		Title:        "A Light in the Attic",
		UPC:          "a897fe39b1053632",
		PriceIncl:    "£51.77",
		PriceExcl:    "£51.77",
		Availability: "In stock (22 available)",
		Description:  "It's hard to imagine a world without A Light in the Attic.",
		Rating:       "Three",
	}
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Poetry", Slug: "poetry_23", Books: []scrapertest.Book{book}},
	}})
	defer ts.Close()

	e, err := newTestScraper(1).Product(ts.ProductURL(book.Slug))
	require.NoError(t, err)

	assert.Equal(t, CatalogEntry{
		ProductPageURL:     ts.ProductURL(book.Slug),
		UPC:                "a897fe39b1053632",
		Title:              "A Light in the Attic",
		PriceIncludingTax:  "£51.77",
		PriceExcludingTax:  "£51.77",
		NumberAvailable:    22,
		ProductDescription: "It's hard to imagine a world without A Light in the Attic.",
		Category:           "Poetry",
		ReviewRating:       "Three",
		ImageURL:           ts.ImageURL(book.Slug),
	}, e)

	for i, v := range e.Values() {
		assert.NotEmpty(t, v, Columns()[i])
	}
}

func TestProductNotFound(t *testing.T) {
	ts := scrapertest.NewServer(scrapertest.Catalog{})
	defer ts.Close()

	_, err := newTestScraper(1).Product(ts.ProductURL("missing_1"))
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestProductMissingUPC(t *testing.T) {
	page := scrapertest.ProductPage(scrapertest.MakeBooks("odd", 1)[0], "Poetry")
	page = strings.Replace(page, "<tr><th>UPC</th>", "<tr><th>Code</th>", 1)
	ts := scrapertest.NewServer(scrapertest.Catalog{Pages: map[string]string{
		scrapertest.ProductPath("odd_1"): page,
	}})
	defer ts.Close()

	_, err := newTestScraper(1).Product(ts.ProductURL("odd_1"))
	var malformed *MalformedPageError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "upc", malformed.Field)
}

func TestProductsKeepOrderWithThreads(t *testing.T) {
	books := scrapertest.MakeBooks("many", 12)
	books[5].Status = http.StatusInternalServerError
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Many", Slug: "many_7", Books: books},
	}})
	defer ts.Close()

	urls := []string{}
	for _, b := range books {
		urls = append(urls, ts.ProductURL(b.Slug))
	}

	var calls atomic.Int32
	results := newTestScraper(4).Products(context.Background(), urls, func(ProductResult) { calls.Add(1) })
	require.Len(t, results, len(books))
	assert.Equal(t, int32(len(books)), calls.Load())

	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		if i == 5 {
			var fetchErr *FetchError
			require.ErrorAs(t, r.Err, &fetchErr)
			assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, books[i].Title, r.Entry.Title)
		assert.Equal(t, urls[i], r.Entry.ProductPageURL)
	}
}

func TestProductsStopWhenCancelled(t *testing.T) {
	books := scrapertest.MakeBooks("cancel", 3)
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Cancel", Slug: "cancel_8", Books: books},
	}})
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := []string{ts.ProductURL(books[0].Slug), ts.ProductURL(books[1].Slug)}
	for _, r := range newTestScraper(1).Products(ctx, urls, nil) {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Equal(t, 0, ts.Hits(scrapertest.ProductPath(books[0].Slug)))
}

func TestProductsStopWhenCancelledWithThreads(t *testing.T) {
	books := scrapertest.MakeBooks("cancel", 4)
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Cancel", Slug: "cancel_8", Books: books},
	}})
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := []string{}
	for _, b := range books {
		urls = append(urls, ts.ProductURL(b.Slug))
	}
	results := newTestScraper(3).Products(ctx, urls, nil)
	require.Len(t, results, len(urls))
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	for _, b := range books {
		assert.Equal(t, 0, ts.Hits(scrapertest.ProductPath(b.Slug)))
	}
}

func TestAllowedDomainsRejectOffHostProducts(t *testing.T) {
	book := scrapertest.MakeBooks("home", 1)[0]
	ts := scrapertest.NewServer(scrapertest.Catalog{Categories: []scrapertest.Category{
		{Name: "Home", Slug: "home_1", Books: []scrapertest.Book{book}},
	}})
	defer ts.Close()

	host, err := AllowedDomain(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	s := NewScraper(Options{Threads: 1, AllowedDomains: []string{host}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	offHost := "http://books.example.invalid/catalogue/away_1/index.html"
	results := s.Products(context.Background(), []string{ts.ProductURL(book.Slug), offHost}, nil)

	require.NoError(t, results[0].Err)
	var fetchErr *FetchError
	require.ErrorAs(t, results[1].Err, &fetchErr)
	assert.Equal(t, offHost, fetchErr.URL)
	assert.ErrorIs(t, results[1].Err, colly.ErrForbiddenDomain)

	_, err = AllowedDomain("/catalogue/index.html")
	assert.Error(t, err)
}

func TestProductAcceptsAnySuccessStatus(t *testing.T) {
	books := scrapertest.MakeBooks("partial", 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, b := range books {
			if r.URL.Path == scrapertest.ProductPath(b.Slug) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusNonAuthoritativeInfo)
				w.Write([]byte(scrapertest.ProductPage(b, "Poetry")))
				return
			}
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	urls := []string{srv.URL + scrapertest.ProductPath(books[0].Slug), srv.URL + scrapertest.ProductPath(books[1].Slug)}

	e, err := newTestScraper(1).Product(urls[0])
	require.NoError(t, err)
	assert.Equal(t, books[0].Title, e.Title)

	for i, r := range newTestScraper(2).Products(context.Background(), urls, nil) {
		require.NoError(t, r.Err)
		assert.Equal(t, books[i].Title, r.Entry.Title)
	}
}

func TestParseAvailability(t *testing.T) {
	cases := map[string]int{
		"In stock (22 available)": 22,
		"In stock":                0,
		"":                        0,
		"Only 3 left, 5 on order": 3,
	}
	for in, expected := range cases {
		assert.Equal(t, expected, ParseAvailability(in), in)
	}
}

func TestExtractProductDescriptionFallback(t *testing.T) {
	pageURL, err := url.Parse("https://books.toscrape.com/catalogue/x_1/index.html")
	require.NoError(t, err)

	book := scrapertest.MakeBooks("x", 1)[0]
	page := scrapertest.ProductPage(book, "Fiction")

	noMeta := strings.Replace(page, `name="description"`, `name="keywords"`, 1)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(noMeta))
	require.NoError(t, err)
	e, err := ExtractProduct(doc, pageURL)
	require.NoError(t, err)
	assert.Equal(t, book.Description, e.ProductDescription)
	assert.Equal(t, "https://books.toscrape.com/media/cache/x-1_1000.jpg", e.ImageURL)

	book.Description = ""
	doc, err = goquery.NewDocumentFromReader(strings.NewReader(scrapertest.ProductPage(book, "Fiction")))
	require.NoError(t, err)
	e, err = ExtractProduct(doc, pageURL)
	require.NoError(t, err)
	assert.Equal(t, "", e.ProductDescription)
}

func TestEntryFromRecord(t *testing.T) {
	e := CatalogEntry{ProductPageURL: "u", Title: "Tipping the Velvet", NumberAvailable: 20, ReviewRating: "One"}

	got, err := EntryFromRecord(Columns(), e.Values())
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = EntryFromRecord([]string{"number_available"}, []string{"many"})
	assert.Error(t, err)
}

func TestCategorySlug(t *testing.T) {
	assert.Equal(t, "sequential_art", CategorySlug("Sequential Art"))
	assert.Equal(t, "add_a_comment", Category{Name: " Add a comment "}.Slug())
}

func TestFifoQueueStorage(t *testing.T) {
	s := &fifoQueueStorage{}
	require.NoError(t, s.Init())

	require.NoError(t, s.AddRequest([]byte("a")))
	require.NoError(t, s.AddRequest([]byte("b")))
	n, err := s.QueueSize()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, err := s.GetRequest()
	require.NoError(t, err)
	assert.Equal(t, "a", string(r))
	r, err = s.GetRequest()
	require.NoError(t, err)
	assert.Equal(t, "b", string(r))

	_, err = s.GetRequest()
	assert.ErrorIs(t, err, errQueueEmpty)
}
