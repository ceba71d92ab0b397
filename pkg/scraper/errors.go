package scraper

import (
	"fmt"
)

// FetchError is a transport failure or a non-success response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedPageError reports a structural element missing from a page that
// was otherwise fetched successfully.
type MalformedPageError struct {
	URL      string
	Field    string
	Selector string
	Err      error
}

func (e *MalformedPageError) Error() string {
	msg := fmt.Sprintf("malformed page %s: no %s (selector %q)", e.URL, e.Field, e.Selector)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPageError) Unwrap() error { return e.Err }

// EncodingError is a record value that the output encoding cannot represent.
type EncodingError struct {
	URL      string
	Column   string
	Rune     rune
	Encoding string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("record %s: column %s: %q (%U) not representable in %s", e.URL, e.Column, e.Rune, e.Rune, e.Encoding)
}
