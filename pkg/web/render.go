// Package web renders an HTML report of the CSV files in an output directory.
package web

import (
	"embed"
	"html/template"
	"io"
	"path/filepath"
	"time"

	"github.com/geniass/bookscrape/pkg/images"
	dataio "github.com/geniass/bookscrape/pkg/io"
	"github.com/geniass/bookscrape/pkg/scraper"
)

//go:embed templates
var templatesFs embed.FS

type BaseContext struct {
	Title string
}

type ReportContext struct {
	BaseContext
	LastUpdated time.Time
	Files       []dataio.Inspection
}

func (c ReportContext) FormattedLastUpdated() string {
	return c.LastUpdated.UTC().Format("2006-01-02T15:04:05 MST")
}

func (c ReportContext) TotalRows() int {
	n := 0
	for _, f := range c.Files {
		n += f.Rows()
	}
	return n
}

var funcs = template.FuncMap{
	"base": filepath.Base,
	// cover is the image path relative to the output directory.
	"cover": func(e scraper.CatalogEntry) string {
		return filepath.ToSlash(images.Path("", e.Category, e.Title))
	},
}

func RenderReport(w io.Writer, c ReportContext) error {
	t, err := template.New("report.html.tpl").Funcs(funcs).ParseFS(templatesFs, "templates/report.html.tpl")
	if err != nil {
		return err
	}
	t, err = t.ParseFS(templatesFs, "templates/common/*")
	if err != nil {
		return err
	}

	return t.Execute(w, c)
}
