// Package runner drives the three scraping modes: one category, every
// category of the site, or a single product page.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/geniass/bookscrape/pkg/config"
	"github.com/geniass/bookscrape/pkg/images"
	dataio "github.com/geniass/bookscrape/pkg/io"
	"github.com/geniass/bookscrape/pkg/scraper"
)

const (
	categoryFile = "books.csv"
	productFile  = "data.csv"
)

type ImageDownloader interface {
	Download(ctx context.Context, rawURL, dest string) error
}

type Runner struct {
	cfg      *config.Config
	scraper  *scraper.Scraper
	images   ImageDownloader
	encoding dataio.Encoding
	filter   glob.Glob
	out      io.Writer
	logger   *slog.Logger
}

func New(cfg *config.Config, s *scraper.Scraper, downloader ImageDownloader, logger *slog.Logger) (*Runner, error) {
	enc, err := cfg.OutputEncoding()
	if err != nil {
		return nil, err
	}
	filter, err := cfg.CategoryFilter()
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:      cfg,
		scraper:  s,
		images:   downloader,
		encoding: enc,
		filter:   filter,
		out:      os.Stdout,
		logger:   logger.With("component", "runner"),
	}, nil
}

// SetOutput sets where progress bars are drawn.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// CategoryFileName is the CSV file of a category in all-categories mode.
func CategoryFileName(category string) string {
	return "books_" + scraper.CategorySlug(category) + ".csv"
}

// RunCategory scrapes every product of one category listing into books.csv.
// Covers are saved only when the configuration asks for it.
func (r *Runner) RunCategory(ctx context.Context, listingURL string) (*Summary, error) {
	sum := newSummary("category")
	defer sum.finish()

	if err := r.prepare(); err != nil {
		return sum, err
	}
	board := r.progress()
	defer board.stop()

	entries, err := r.scrapeCategory(ctx, listingURL, listingURL, r.cfg.CategoryImages, sum, board)
	if err != nil {
		return sum, err
	}
	sum.Categories = 1

	return sum, r.write(filepath.Join(r.cfg.OutputDir, categoryFile), entries, sum)
}

// RunAll scrapes every category of the site whose name matches the
// configured pattern, one CSV file and one image directory per category.
func (r *Runner) RunAll(ctx context.Context, siteURL string) (*Summary, error) {
	sum := newSummary("all")
	defer sum.finish()

	if err := r.prepare(); err != nil {
		return sum, err
	}

	cats, err := r.scraper.Categories(siteURL)
	if err != nil {
		return sum, fmt.Errorf("list categories: %w", err)
	}

	selected := []scraper.Category{}
	for _, c := range cats.All() {
		if r.filter.Match(strings.ToLower(c.Name)) {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return sum, fmt.Errorf("none of the %d categories matches %q", cats.Len(), r.cfg.Categories)
	}
	r.logger.Info("categories selected", "selected", len(selected), "total", cats.Len())

	board := r.progress()
	defer board.stop()

	for _, c := range selected {
		entries, err := r.scrapeCategory(ctx, c.Name, c.URL, true, sum, board)
		if err != nil {
			return sum, err
		}
		sum.Categories++

		if err := r.write(filepath.Join(r.cfg.OutputDir, CategoryFileName(c.Name)), entries, sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// RunProduct scrapes one product page into a one row data.csv. Unlike the
// other modes a failing product fails the run.
func (r *Runner) RunProduct(ctx context.Context, productURL string) (scraper.CatalogEntry, *Summary, error) {
	sum := newSummary("product")
	defer sum.finish()

	if err := r.prepare(); err != nil {
		return scraper.CatalogEntry{}, sum, err
	}
	if err := ctx.Err(); err != nil {
		return scraper.CatalogEntry{}, sum, err
	}

	entry, err := r.scraper.Product(productURL)
	if err != nil {
		sum.Failed++
		return entry, sum, err
	}
	sum.Found = 1

	path := filepath.Join(r.cfg.OutputDir, productFile)
	res, err := dataio.WriteCSV(path, []scraper.CatalogEntry{entry}, r.encoding)
	if err != nil {
		return entry, sum, err
	}
	if len(res.Skipped) > 0 {
		sum.Failed++
		return entry, sum, res.Skipped[0]
	}

	sum.Written = res.Rows
	sum.Files = append(sum.Files, path)
	r.logger.Info("csv written", "path", path, "rows", res.Rows)
	return entry, sum, nil
}

func (r *Runner) prepare() error {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

func (r *Runner) progress() *progressBoard {
	if !r.cfg.Progress {
		return nil
	}
	return newProgressBoard(r.out)
}

func (r *Runner) scrapeCategory(ctx context.Context, name, listingURL string, withImages bool, sum *Summary, board *progressBoard) ([]scraper.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := r.logger.With("category", name)

	w := r.scraper.Walk(listingURL)
	urls, err := w.Collect()
	sum.Pages += w.Pages()
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", listingURL, err)
	}
	sum.Found += len(urls)
	logger.Info("category listed", "pages", w.Pages(), "products", len(urls))

	tracker := board.track(name, len(urls))
	results := r.scraper.Products(ctx, urls, func(scraper.ProductResult) {
		tracker.Increment(1)
	})

	entries := make([]scraper.CatalogEntry, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			entries = append(entries, res.Entry)
			continue
		}
		if err := r.handle(itemPolicy, res.Err, "skipping product", "url", res.URL); err != nil {
			tracker.MarkAsErrored()
			return nil, err
		}
		sum.Failed++
	}
	tracker.MarkAsDone()

	if !withImages {
		return entries, nil
	}
	for _, e := range entries {
		if err := r.saveImage(ctx, e, sum); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *Runner) saveImage(ctx context.Context, e scraper.CatalogEntry, sum *Summary) error {
	dest := images.Path(r.cfg.OutputDir, e.Category, e.Title)
	err := r.images.Download(ctx, e.ImageURL, dest)
	if err == nil {
		sum.ImagesSaved++
		return nil
	}
	if err := r.handle(imagePolicy, err, "image not saved", "url", e.ImageURL, "product", e.ProductPageURL); err != nil {
		return err
	}
	sum.ImagesFailed++
	return nil
}

func (r *Runner) write(path string, entries []scraper.CatalogEntry, sum *Summary) error {
	res, err := dataio.WriteCSV(path, entries, r.encoding)
	if err != nil {
		return err
	}
	for _, encErr := range res.Skipped {
		if err := r.handle(itemPolicy, encErr, "product left out of csv", "path", path); err != nil {
			return err
		}
		sum.Failed++
	}
	sum.Written += res.Rows

	if !res.Written {
		r.logger.Info("no products, nothing written", "path", path)
		return nil
	}
	sum.Files = append(sum.Files, path)
	r.logger.Info("csv written", "path", path, "rows", res.Rows, "encoding", res.Encoding)
	return nil
}
