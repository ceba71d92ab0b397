package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kennygrant/sanitize"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/geniass/bookscrape/pkg/scraper"
)

type Encoding string

const (
	UTF8        Encoding = "utf-8"
	Windows1252 Encoding = "windows-1252"
)

func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "windows-1252", "cp1252", "win1252":
		return Windows1252, nil
	}
	return "", fmt.Errorf("unsupported encoding %q, expected utf-8 or windows-1252", name)
}

type WriteResult struct {
	Path     string
	Encoding Encoding
	// Written is false when there was nothing to write and no file was created.
	Written bool
	Rows    int
	// Skipped are the records left out because the encoding cannot represent them.
	Skipped []*scraper.EncodingError
}

// WriteCSV writes a header row followed by one row per entry to path. When no
// entry is left to write, no file is created. The file is replaced atomically.
func WriteCSV(path string, entries []scraper.CatalogEntry, enc Encoding) (WriteResult, error) {
	res := WriteResult{Path: path, Encoding: enc}
	if len(entries) == 0 {
		return res, nil
	}

	// header follows the field order of the records
	rows := [][]string{scraper.Columns()}
	for _, e := range entries {
		values, err := encodable(e, enc)
		var encErr *scraper.EncodingError
		if errors.As(err, &encErr) {
			res.Skipped = append(res.Skipped, encErr)
			continue
		}
		if err != nil {
			return res, err
		}
		rows = append(rows, values)
	}
	if len(rows) == 1 {
		return res, nil
	}

	err := writeAtomic(path, func(w io.Writer) error {
		return writeRows(w, rows, enc)
	})
	if err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}

	res.Written = true
	res.Rows = len(rows) - 1
	return res, nil
}

// ReadCSV reads back a file written by WriteCSV with the same encoding.
func ReadCSV(path string, enc Encoding) ([]scraper.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if enc == Windows1252 {
		r = transform.NewReader(f, charmap.Windows1252.NewDecoder())
	}

	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	_, entries, err := decodeRecords(records)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

func decodeRecords(records [][]string) ([]string, []scraper.CatalogEntry, error) {
	if len(records) == 0 {
		return nil, nil, errors.New("no header row")
	}
	header := records[0]
	entries := make([]scraper.CatalogEntry, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := scraper.EntryFromRecord(header, rec)
		if err != nil {
			return header, entries, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return header, entries, nil
}

func writeRows(w io.Writer, rows [][]string, enc Encoding) error {
	var tw *transform.Writer
	if enc == Windows1252 {
		tw = transform.NewWriter(w, charmap.Windows1252.NewEncoder())
		w = tw
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

func writeAtomic(path string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// encodable returns the entry's values in a form the encoding can represent.
// Runes outside windows-1252 are transliterated when possible.
func encodable(e scraper.CatalogEntry, enc Encoding) ([]string, error) {
	values := e.Values()
	if enc != Windows1252 {
		return values, nil
	}

	cols := scraper.Columns()
	for i, v := range values {
		fixed, bad, ok := toWindows1252(v)
		if !ok {
			return nil, &scraper.EncodingError{URL: e.ProductPageURL, Column: cols[i], Rune: bad, Encoding: string(enc)}
		}
		values[i] = fixed
	}
	return values, nil
}

func toWindows1252(s string) (string, rune, bool) {
	var b strings.Builder
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteRune(r)
			continue
		}
		alt, ok := transliterate(r)
		if !ok {
			return "", r, false
		}
		b.WriteString(alt)
	}
	return b.String(), 0, true
}

// stripMarks decomposes a string and drops its combining marks, "ă" becomes "a".
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// transliterate replaces a rune outside windows-1252 with its base letter,
// or with the sanitize table for letters like "ł" that do not decompose.
func transliterate(r rune) (string, bool) {
	s := string(r)
	if base, _, err := transform.String(stripMarks(), s); err == nil && base != "" && base != s && inWindows1252(base) {
		return base, true
	}
	if alt := sanitize.Accents(s); alt != s && inWindows1252(alt) {
		return alt, true
	}
	return "", false
}

func inWindows1252(s string) bool {
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return false
		}
	}
	return true
}
