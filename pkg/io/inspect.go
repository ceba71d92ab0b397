package io

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/geniass/bookscrape/pkg/scraper"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// Inspection describes an output file read back without knowing its encoding.
type Inspection struct {
	Path       string
	Charset    string
	Confidence int
	Header     []string
	Entries    []scraper.CatalogEntry
}

func (i Inspection) Rows() int {
	return len(i.Entries)
}

// Category is the category of the first entry, files hold a single category.
func (i Inspection) Category() string {
	if len(i.Entries) == 0 {
		return ""
	}
	return i.Entries[0].Category
}

// Inspect reads a delimited output file. Valid UTF-8 is taken as is; anything
// else is decoded with the charset chardet guesses, windows-1252 by default.
func Inspect(path string) (Inspection, error) {
	ins := Inspection{Path: path, Charset: "UTF-8", Confidence: 100}

	data, err := os.ReadFile(path)
	if err != nil {
		return ins, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		ins.Charset, ins.Confidence = string(Windows1252), 0
		if res, err := chardet.NewTextDetector().DetectBest(data); err == nil {
			ins.Charset, ins.Confidence = res.Charset, res.Confidence
		}
		data, _, err = transform.Bytes(decoderFor(ins.Charset), data)
		if err != nil {
			return ins, fmt.Errorf("decode %s as %s: %w", path, ins.Charset, err)
		}
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return ins, fmt.Errorf("read %s: %w", path, err)
	}
	ins.Header, ins.Entries, err = decodeRecords(records)
	if err != nil {
		return ins, fmt.Errorf("read %s: %w", path, err)
	}
	return ins, nil
}

func decoderFor(charset string) transform.Transformer {
	if enc, err := htmlindex.Get(charset); err == nil {
		return enc.NewDecoder()
	}
	return charmap.Windows1252.NewDecoder()
}

// LoadFromDir inspects every CSV file below dir, in lexical order.
func LoadFromDir(dir string) ([]Inspection, error) {
	var files []Inspection
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}

		ins, err := Inspect(path)
		if err != nil {
			return err
		}
		files = append(files, ins)
		return nil
	})

	if err != nil {
		return files, err
	}
	return files, nil
}
