// Package config holds the settings of a scraping run. Values come from
// BOOKSCRAPE_* environment variables, optionally loaded from a .env file,
// and command line flags override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	dataio "github.com/geniass/bookscrape/pkg/io"
	"github.com/geniass/bookscrape/pkg/scraper"
)

const envPrefix = "BOOKSCRAPE"

type Config struct {
	SiteURL     string `envconfig:"SITE_URL" default:"https://books.toscrape.com/"`
	CategoryURL string `envconfig:"CATEGORY_URL" default:"https://books.toscrape.com/catalogue/category/books/sequential-art_5/index.html"`
	ProductURL  string `envconfig:"PRODUCT_URL" default:"https://books.toscrape.com/catalogue/emma_17/index.html"`

	OutputDir string `envconfig:"OUTPUT_DIR" default:"output"`
	// Encoding of the CSV files, utf-8 or windows-1252.
	Encoding string `envconfig:"ENCODING" default:"utf-8"`

	// Threads is the number of product pages fetched at once.
	Threads   int           `envconfig:"THREADS" default:"1"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"USER_AGENT" default:"bookscrape/1.0"`
	CacheDir  string        `envconfig:"CACHE_DIR"`

	RespectRobots bool `envconfig:"RESPECT_ROBOTS"`

	// Categories is a glob matched against lowercased category names.
	Categories     string `envconfig:"CATEGORIES" default:"*"`
	CategoryImages bool   `envconfig:"CATEGORY_IMAGES"`

	Progress bool `envconfig:"PROGRESS" default:"true"`
	Verbose  bool `envconfig:"VERBOSE"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for name, u := range map[string]string{"site url": c.SiteURL, "category url": c.CategoryURL, "product url": c.ProductURL} {
		if err := checkURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := c.OutputEncoding(); err != nil {
		return err
	}
	if _, err := c.CategoryFilter(); err != nil {
		return err
	}
	return nil
}

func (c *Config) OutputEncoding() (dataio.Encoding, error) {
	return dataio.ParseEncoding(c.Encoding)
}

// CategoryFilter compiles the category glob. Matching is case insensitive,
// callers lowercase the name they test.
func (c *Config) CategoryFilter() (glob.Glob, error) {
	pattern := strings.ToLower(strings.TrimSpace(c.Categories))
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid category pattern %q: %w", c.Categories, err)
	}
	return g, nil
}

// ScraperOptions restricts requests to the host of startURL, the page a run
// starts from. An empty startURL allows every host.
func (c *Config) ScraperOptions(startURL string) (scraper.Options, error) {
	opts := scraper.Options{
		UserAgent:     c.UserAgent,
		CacheDir:      c.CacheDir,
		Timeout:       c.Timeout,
		Threads:       c.Threads,
		RespectRobots: c.RespectRobots,
	}
	if startURL == "" {
		return opts, nil
	}

	host, err := scraper.AllowedDomain(startURL)
	if err != nil {
		return opts, err
	}
	opts.AllowedDomains = []string{host}
	return opts, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
