// Package images saves book cover images next to the scraped CSV files.
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kennygrant/sanitize"

	"github.com/geniass/bookscrape/pkg/scraper"
)

// maxFilenameRunes bounds the file name length on constrained filesystems.
const maxFilenameRunes = 100

type Downloader struct {
	client *resty.Client
	logger *slog.Logger
}

func NewDownloader(timeout time.Duration, userAgent string, logger *slog.Logger) *Downloader {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &Downloader{
		client: client,
		logger: logger.With("component", "image_downloader"),
	}
}

// Download streams the image at rawURL into dest, creating parent directories
// as needed. A failed download leaves no partial file behind.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string) error {
	res, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return &scraper.FetchError{URL: rawURL, Err: err}
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		return &scraper.FetchError{URL: rawURL, StatusCode: res.StatusCode(), Err: fmt.Errorf("unexpected status %q", res.Status())}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".image-*")
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		return &scraper.FetchError{URL: rawURL, StatusCode: res.StatusCode(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write image file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move image into place: %w", err)
	}

	d.logger.Debug("image saved", "url", rawURL, "path", dest, "bytes", n)
	return nil
}

// Path is where the cover of the book titled title is stored:
// <outputDir>/images/<category slug>/<file name>.jpg
func Path(outputDir, category, title string) string {
	return filepath.Join(outputDir, "images", scraper.CategorySlug(category), Filename(title)+".jpg")
}

// Filename turns a book title into a file name without extension. Distinct
// titles can map to the same name, in which case the last download wins.
func Filename(title string) string {
	name := sanitize.BaseName(sanitize.Accents(strings.TrimSpace(title)))
	name = strings.Trim(name, ".-")

	if r := []rune(name); len(r) > maxFilenameRunes {
		name = strings.TrimRight(string(r[:maxFilenameRunes]), ".-")
	}
	if name == "" {
		return "untitled"
	}
	return name
}
