package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/geniass/bookscrape/pkg/config"
	"github.com/geniass/bookscrape/pkg/images"
	dataio "github.com/geniass/bookscrape/pkg/io"
	"github.com/geniass/bookscrape/pkg/runner"
	"github.com/geniass/bookscrape/pkg/scraper"
	"github.com/geniass/bookscrape/pkg/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bookscrape: configuration:", err)
		os.Exit(1)
	}

	app := cli.App("bookscrape", "Scrape books.toscrape.com into CSV files and cover images")

	var (
		outputDir     = app.StringOpt("o output", cfg.OutputDir, "directory for CSV files and images")
		threads       = app.IntOpt("t threads", cfg.Threads, "product pages fetched at once")
		timeout       = app.StringOpt("timeout", cfg.Timeout.String(), "timeout of a single request")
		userAgent     = app.StringOpt("user-agent", cfg.UserAgent, "User-Agent header")
		cacheDir      = app.StringOpt("cache", cfg.CacheDir, "cache responses in this directory")
		encoding      = app.StringOpt("encoding", cfg.Encoding, "CSV encoding, utf-8 or windows-1252")
		respectRobots = app.BoolOpt("respect-robots", cfg.RespectRobots, "obey robots.txt")
		noProgress    = app.BoolOpt("no-progress", !cfg.Progress, "do not draw progress bars")
		verbose       = app.BoolOpt("v verbose", cfg.Verbose, "debug logging")
	)

	logger := setupLogger(cfg.Verbose)

	app.Before = func() {
		cfg.OutputDir = *outputDir
		cfg.Threads = *threads
		cfg.UserAgent = *userAgent
		cfg.CacheDir = *cacheDir
		cfg.Encoding = *encoding
		cfg.RespectRobots = *respectRobots
		cfg.Progress = !*noProgress
		cfg.Verbose = *verbose

		logger = setupLogger(cfg.Verbose)

		d, err := time.ParseDuration(*timeout)
		if err != nil {
			fail(logger, fmt.Errorf("invalid timeout %q: %w", *timeout, err))
		}
		cfg.Timeout = d

		if err := cfg.Validate(); err != nil {
			fail(logger, err)
		}
	}

	app.Command("category", "scrape one category listing into books.csv", func(cmd *cli.Cmd) {
		cmd.Spec = "[--images] [URL]"
		withImages := cmd.BoolOpt("images", cfg.CategoryImages, "also save cover images")
		listingURL := cmd.StringArg("URL", cfg.CategoryURL, "first page of the category listing")

		cmd.Action = func() {
			cfg.CategoryImages = *withImages
			run(cfg, logger, *listingURL, func(ctx context.Context, r *runner.Runner) (*runner.Summary, error) {
				return r.RunCategory(ctx, *listingURL)
			})
		}
	})

	app.Command("all", "scrape every category into books_<category>.csv with cover images", func(cmd *cli.Cmd) {
		cmd.Spec = "[--categories] [SITE]"
		categories := cmd.StringOpt("categories", cfg.Categories, "only categories whose name matches this glob")
		siteURL := cmd.StringArg("SITE", cfg.SiteURL, "home page listing the categories")

		cmd.Action = func() {
			cfg.Categories = *categories
			if _, err := cfg.CategoryFilter(); err != nil {
				fail(logger, err)
			}
			run(cfg, logger, *siteURL, func(ctx context.Context, r *runner.Runner) (*runner.Summary, error) {
				return r.RunAll(ctx, *siteURL)
			})
		}
	})

	app.Command("product", "scrape one product page into data.csv", func(cmd *cli.Cmd) {
		cmd.Spec = "[URL]"
		productURL := cmd.StringArg("URL", cfg.ProductURL, "product page")

		cmd.Action = func() {
			run(cfg, logger, *productURL, func(ctx context.Context, r *runner.Runner) (*runner.Summary, error) {
				entry, sum, err := r.RunProduct(ctx, *productURL)
				if err != nil {
					return sum, err
				}
				return sum, markdownTemplate.Execute(os.Stdout, entry)
			})
		}
	})

	app.Command("inspect", "read CSV files back and report their encoding and contents", func(cmd *cli.Cmd) {
		cmd.Spec = "FILE..."
		files := cmd.StringsArg("FILE", nil, "CSV files written by bookscrape")

		cmd.Action = func() {
			if err := inspect(os.Stdout, *files); err != nil {
				fail(logger, err)
			}
		}
	})

	app.Command("render", "write an HTML report of an output directory", func(cmd *cli.Cmd) {
		cmd.Spec = "[--title] [DIR]"
		title := cmd.StringOpt("title", "Books to Scrape", "report title")
		dir := cmd.StringArg("DIR", cfg.OutputDir, "output directory of a previous run")

		cmd.Action = func() {
			path, err := render(logger, *dir, *title)
			if err != nil {
				fail(logger, err)
			}
			logger.Info("report written", "path", path)
		}
	})

	if err := app.Run(os.Args); err != nil {
		fail(logger, err)
	}
}

// setupLogger creates a structured logger on stderr.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func fail(logger *slog.Logger, err error) {
	logger.Error("bookscrape failed", "error", err)
	cli.Exit(1)
}

// run scrapes with requests limited to the host of startURL.
func run(cfg *config.Config, logger *slog.Logger, startURL string, mode func(ctx context.Context, r *runner.Runner) (*runner.Summary, error)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.ScraperOptions(startURL)
	if err != nil {
		fail(logger, err)
	}
	s := scraper.NewScraper(opts, logger)
	d := images.NewDownloader(cfg.Timeout, cfg.UserAgent, logger)
	r, err := runner.New(cfg, s, d, logger)
	if err != nil {
		fail(logger, err)
	}

	sum, err := mode(ctx, r)
	if sum != nil {
		sum.Render(os.Stdout)
	}
	if err != nil {
		fail(logger, err)
	}
}

func inspect(w io.Writer, files []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"File", "Charset", "Confidence", "Rows", "Category", "Header"})

	for _, f := range files {
		ins, err := dataio.Inspect(f)
		if err != nil {
			return err
		}
		header := "ok"
		if !slices.Equal(ins.Header, scraper.Columns()) {
			header = fmt.Sprintf("unexpected: %v", ins.Header)
		}
		t.AppendRow(table.Row{f, ins.Charset, ins.Confidence, ins.Rows(), ins.Category(), header})
	}
	t.Render()
	return nil
}

func render(logger *slog.Logger, dir, title string) (string, error) {
	files, err := dataio.LoadFromDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("output directory does not exist, rendering an empty report", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	err = renderToFile(dir, "index.html", func(w io.Writer) error {
		return web.RenderReport(w, web.ReportContext{
			BaseContext: web.BaseContext{Title: title},
			LastUpdated: time.Now(),
			Files:       files,
		})
	})
	return filepath.Join(dir, "index.html"), err
}

func renderToFile(dir string, filename string, renderFunc func(w io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return err
	}
	defer f.Close()

	return renderFunc(f)
}
