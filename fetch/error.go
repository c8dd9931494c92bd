package fetch

import "pricewatch/outcome"

// Error carries the outcome.Kind classification for a failed fetch, so the
// Scrape Executor can map it straight onto a ScrapeOutcome without
// re-deriving the classification from an HTTP status or chromedp error
// string.
type Error struct {
	Kind   outcome.Kind
	Detail string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Detail }

func newError(kind outcome.Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}
