package runner

import (
	"context"
	"errors"

	"github.com/geniass/bookscrape/pkg/scraper"
)

type action int

const (
	skip action = iota
	abort
)

// policy decides what a per-item failure does to the run.
type policy func(err error) action

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// itemPolicy skips products that could not be fetched, parsed or encoded.
// Anything else stops the run.
func itemPolicy(err error) action {
	if cancelled(err) {
		return abort
	}

	var fetchErr *scraper.FetchError
	var malformedErr *scraper.MalformedPageError
	var encodingErr *scraper.EncodingError
	switch {
	case errors.As(err, &fetchErr), errors.As(err, &malformedErr), errors.As(err, &encodingErr):
		return skip
	}
	return abort
}

// imagePolicy never lets a missing cover stop the run.
func imagePolicy(err error) action {
	if cancelled(err) {
		return abort
	}
	return skip
}

// handle applies p to err. A skipped error is logged and nil is returned.
func (r *Runner) handle(p policy, err error, msg string, attrs ...any) error {
	if p(err) == abort {
		return err
	}
	r.logger.Warn(msg, append(attrs, "error", err)...)
	return nil
}
