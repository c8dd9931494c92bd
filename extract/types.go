package extract

import "errors"

// Page is the raw input to a Price Extractor: the fetched body, its
// declared content type, and the URL it was fetched from. Adapters never
// perform I/O on a Page — they only read it.
type Page struct {
	HTML        []byte
	ContentType string
	URL         string
}

// ErrParseMiss is returned by an Adapter when it could not find a price on
// the page; the caller maps this to outcome.KindParseMiss.
type ErrParseMiss struct {
	Detail string
}

func (e *ErrParseMiss) Error() string { return "extract: parse miss: " + e.Detail }

func parseMiss(detail string) error { return &ErrParseMiss{Detail: detail} }

// IsParseMiss reports whether err is (or wraps) an ErrParseMiss.
func IsParseMiss(err error) bool {
	var pm *ErrParseMiss
	return errors.As(err, &pm)
}
