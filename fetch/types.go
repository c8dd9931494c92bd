// Package fetch implements the two-tier fetcher:
// HttpFetcher for static HTTP + HTML, BrowserFetcher for headless
// rendering. Both return a FetchResult or a classified outcome.Kind.
package fetch

import "time"

// FetchResult carries the raw page and its provenance back to the Scrape
// Executor.
type FetchResult struct {
	Status   int
	Headers  map[string][]string
	Body     []byte
	FinalURL string
	Elapsed  time.Duration
}
