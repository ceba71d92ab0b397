// Package scrapertest serves a small fake book catalogue with the same page
// layout as books.toscrape.com, for tests.
package scrapertest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

type Book struct {
	Slug         string
	Title        string
	UPC          string
	PriceIncl    string
	PriceExcl    string
	Availability string
	Description  string
	Rating       string

	// Status, when set, is returned instead of the product page.
	Status int
	// ImageStatus, when set, is returned instead of the cover image.
	ImageStatus int
}

type Category struct {
	Name  string
	Slug  string
	Books []Book
	// PageSize is the number of books per listing page, 0 means all on one page.
	PageSize int
}

type Catalog struct {
	Categories []Category
	// Pages are served verbatim, keyed by path.
	Pages map[string]string
}

type Server struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func NewServer(c Catalog) *Server {
	s := &Server{hits: make(map[string]int)}

	pages := make(map[string]string)
	status := make(map[string]int)

	pages["/index.html"] = LandingPage(c.Categories)
	pages["/"] = pages["/index.html"]

	for _, cat := range c.Categories {
		listings := paginate(cat.Books, cat.PageSize)
		for i, books := range listings {
			next := ""
			if i+1 < len(listings) {
				next = fmt.Sprintf("page-%d.html", i+2)
			}
			pages[ListingPath(cat.Slug, i+1)] = ListingPage(cat.Name, books, next)
		}
		for _, b := range cat.Books {
			pages[ProductPath(b.Slug)] = ProductPage(b, cat.Name)
			if b.Status != 0 {
				status[ProductPath(b.Slug)] = b.Status
			}
			if b.ImageStatus != 0 {
				status[ImagePath(b.Slug)] = b.ImageStatus
			} else {
				pages[ImagePath(b.Slug)] = "JPEG:" + b.Slug
			}
		}
	}
	for p, body := range c.Pages {
		pages[p] = body
	}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		if code, ok := status[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/media/") {
			w.Header().Set("Content-Type", "image/jpeg")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		w.Write([]byte(body))
	}))
	return s
}

// Hits is the number of requests received for path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) CategoryURL(slug string) string {
	return s.URL + ListingPath(slug, 1)
}

func (s *Server) ProductURL(slug string) string {
	return s.URL + ProductPath(slug)
}

func (s *Server) ImageURL(slug string) string {
	return s.URL + ImagePath(slug)
}

// ListingPath is the path of a category listing page, counting from 1.
func ListingPath(slug string, page int) string {
	if page == 1 {
		return "/catalogue/category/books/" + slug + "/index.html"
	}
	return fmt.Sprintf("/catalogue/category/books/%s/page-%d.html", slug, page)
}

func ProductPath(slug string) string {
	return "/catalogue/" + slug + "/index.html"
}

func ImagePath(slug string) string {
	return "/media/cache/" + slug + ".jpg"
}

func paginate(books []Book, size int) [][]Book {
	if size <= 0 || len(books) <= size {
		return [][]Book{books}
	}
	var pages [][]Book
	for len(books) > 0 {
		n := size
		if len(books) < n {
			n = len(books)
		}
		pages = append(pages, books[:n])
		books = books[n:]
	}
	return pages
}

func LandingPage(cats []Category) string {
	links := []string{}
	for _, c := range cats {
		links = append(links, fmt.Sprintf(`
					<li>
						<a href="catalogue/category/books/%s/index.html">
							%s
						</a>
					</li>`, c.Slug, html.EscapeString(c.Name)))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en-us">
	<body>
		<div class="side_categories">
			<ul class="nav nav-list">
				<li>
					<a href="catalogue/category/books_1/index.html">Books</a>
					<ul>%s
					</ul>
				</li>
			</ul>
		</div>
	</body>
</html>`, strings.Join(links, ""))
}

func ListingPage(category string, books []Book, next string) string {
	pods := []string{}
	for _, b := range books {
		pods = append(pods, fmt.Sprintf(`
				<li class="col-xs-6 col-sm-4 col-md-3 col-lg-3">
					<article class="product_pod">
						<div class="image_container">
							<a href="../../../%[1]s/index.html"><img src="../../../../media/cache/%[1]s.jpg" alt="%[2]s" class="thumbnail"></a>
						</div>
						<p class="star-rating %[3]s"></p>
						<h3><a href="../../../%[1]s/index.html" title="%[2]s">%[2]s</a></h3>
					</article>
				</li>`, b.Slug, html.EscapeString(b.Title), b.Rating))
	}
	pager := ""
	if next != "" {
		pager = fmt.Sprintf(`<ul class="pager"><li class="next"><a href="%s">next</a></li></ul>`, next)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en-us">
	<body>
		<div class="page-header action"><h1>%s</h1></div>
		<section>
			<ol class="row">%s
			</ol>
			<div>%s</div>
		</section>
	</body>
</html>`, html.EscapeString(category), strings.Join(pods, ""), pager)
}

func ProductPage(b Book, category string) string {
	meta := ""
	if b.Description != "" {
		meta = fmt.Sprintf(`<meta name="description" content="
    %s
">`, html.EscapeString(b.Description))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en-us">
	<head>
		<title>%[1]s | Books to Scrape - Sandbox</title>
		%[2]s
	</head>
	<body>
		<ul class="breadcrumb">
			<li><a href="../../index.html">Home</a></li>
			<li><a href="../category/books_1/index.html">Books</a></li>
			<li><a href="../category/books/x/index.html">%[3]s</a></li>
			<li class="active">%[1]s</li>
		</ul>
		<article class="product_page">
			<div class="row">
				<div class="col-sm-6">
					<div id="product_gallery" class="carousel">
						<div class="thumbnail">
							<div class="carousel-inner">
								<div class="item active">
									<img src="../../media/cache/%[4]s.jpg" alt="%[1]s" />
								</div>
							</div>
						</div>
					</div>
				</div>
				<div class="col-sm-6 product_main">
					<h1>%[1]s</h1>
					<p class="price_color">%[5]s</p>
					<p class="star-rating %[6]s">
						<i class="icon-star"></i>
					</p>
				</div>
			</div>
			<div id="product_description" class="sub-header"><h2>Product Description</h2></div>
			<p>%[7]s</p>
			<div class="sub-header"><h2>Product Information</h2></div>
			<table class="table table-striped">
				<tr><th>UPC</th><td>%[8]s</td></tr>
				<tr><th>Product Type</th><td>Books</td></tr>
				<tr><th>Price (excl. tax)</th><td>%[9]s</td></tr>
				<tr><th>Price (incl. tax)</th><td>%[5]s</td></tr>
				<tr><th>Tax</th><td>£0.00</td></tr>
				<tr><th>Availability</th><td>%[10]s</td></tr>
				<tr><th>Number of reviews</th><td>0</td></tr>
			</table>
		</article>
	</body>
</html>`,
		html.EscapeString(b.Title),
		meta,
		html.EscapeString(category),
		b.Slug,
		b.PriceIncl,
		b.Rating,
		html.EscapeString(b.Description),
		b.UPC,
		b.PriceExcl,
		b.Availability,
	)
}

// MakeBooks returns n complete books whose slugs start with prefix.
func MakeBooks(prefix string, n int) []Book {
	books := make([]Book, n)
	for i := range books {
		books[i] = Book{
			Slug:         fmt.Sprintf("%s-%d_%d", prefix, i+1, 1000+i),
			Title:        fmt.Sprintf("%s Book %d", prefix, i+1),
			UPC:          fmt.Sprintf("a%015d", i+1),
			PriceIncl:    fmt.Sprintf("£%d.10", 10+i),
			PriceExcl:    fmt.Sprintf("£%d.10", 10+i),
			Availability: fmt.Sprintf("In stock (%d available)", 20+i),
			Description:  fmt.Sprintf("Description of %s book %d.", prefix, i+1),
			Rating:       []string{"One", "Two", "Three", "Four", "Five"}[i%5],
		}
	}
	return books
}
