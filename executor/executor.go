// Package executor composes the Fetcher and Extractor for a single job,
//: call HttpFetcher, extract, escalate to BrowserFetcher
// on a parse miss when permitted, and classify the final result into a
// ScrapeOutcome.
package executor

import (
	"context"
	"errors"
	"time"

	"pricewatch/canon"
	"pricewatch/extract"
	"pricewatch/fetch"
	"pricewatch/metrics"
	"pricewatch/models"
	"pricewatch/outcome"
)

// minConfidence is the floor below which an extracted signal is treated
// as a parse miss rather than a usable price.
const minConfidence = 0.4

// HttpFetcher and BrowserFetcher abstract fetch.HttpFetcher/BrowserFetcher
// so tests can supply fakes without touching the network.
type HttpFetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetch.FetchResult, error)
}

type BrowserFetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetch.FetchResult, error)
}

// Extractor is satisfied by *extract.Registry.
type Extractor interface {
	Extract(page extract.Page) (models.PriceSignal, error)
}

// Executor runs one scrape attempt end to end.
type Executor struct {
	HTTP      HttpFetcher
	Browser   BrowserFetcher
	Extractor Extractor

	// AllowedHosts, when non-empty, enforces the domain allowlist: a
	// host not in the list is rejected with HardFail(DOMAIN_BLOCKED)
	// before any network call.
	AllowedHosts map[string]struct{}

	Metrics *metrics.Registry
}

func New(http HttpFetcher, browser BrowserFetcher, ex Extractor) *Executor {
	return &Executor{HTTP: http, Browser: browser, Extractor: ex}
}

// WithMetrics attaches a metrics registry that Run records fetch latency
// against, labeled by tier; nil disables recording.
func (e *Executor) WithMetrics(m *metrics.Registry) *Executor {
	e.Metrics = m
	return e
}

// Run executes job.URL once, honoring ctx's deadline, and returns a
// ScrapeOutcome that is always one of Success/SoftFail/HardFail.
func (e *Executor) Run(ctx context.Context, job models.ScrapeJob) outcome.ScrapeOutcome {
	canonicalURL, err := canon.Canonicalize(job.URL)
	if err != nil {
		return outcome.HardFail(outcome.KindInvalidURL, err.Error())
	}

	if len(e.AllowedHosts) > 0 && !e.hostAllowed(canonicalURL) {
		return outcome.HardFail(outcome.KindDomainBlocked, "host not in allowlist")
	}

	res, ferr := e.HTTP.Fetch(ctx, canonicalURL)
	if ferr != nil {
		return classifyFetchError(ferr)
	}
	e.observeFetch("http", res.Elapsed)

	sig, eerr := e.Extractor.Extract(extract.Page{
		HTML:        res.Body,
		ContentType: contentType(res.Headers),
		URL:         res.FinalURL,
	})
	if eerr == nil && sig.Confidence >= minConfidence {
		sig.ExtractedFrom = models.SourceHTTP
		return outcome.Success(sig)
	}
	if eerr != nil && !extract.IsParseMiss(eerr) {
		return outcome.HardFail(outcome.KindParseMiss, eerr.Error())
	}

	if !job.AllowBrowserFallback || e.Browser == nil {
		return outcome.HardFail(outcome.KindParseMiss, "no price found and browser fallback disabled")
	}

	bres, berr := e.Browser.Fetch(ctx, canonicalURL)
	if berr != nil {
		return classifyFetchError(berr)
	}
	e.observeFetch("browser", bres.Elapsed)

	bsig, beerr := e.Extractor.Extract(extract.Page{
		HTML: bres.Body,
		URL:  bres.FinalURL,
	})
	if beerr != nil || bsig.Confidence < minConfidence {
		return outcome.HardFail(outcome.KindParseMiss, "browser fallback yielded no price")
	}
	bsig.ExtractedFrom = models.SourceBrowser
	return outcome.Success(bsig)
}

// classifyFetchError maps a *fetch.Error onto its retry classification:
// TIMEOUT, NETWORK_ERROR, RATE_LIMITED, BROWSER_ERROR are soft
// (retryable); HTTP_STATUS, BLOCKED, DOMAIN_BLOCKED, INVALID_URL are hard.
func classifyFetchError(err error) outcome.ScrapeOutcome {
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		return outcome.HardFail(outcome.KindInternal, err.Error())
	}

	switch fe.Kind {
	case outcome.KindTimeout, outcome.KindNetworkError, outcome.KindRateLimited, outcome.KindBrowserError:
		return outcome.SoftFail(fe.Kind, fe.Detail)
	default:
		return outcome.HardFail(fe.Kind, fe.Detail)
	}
}

func (e *Executor) observeFetch(tier string, elapsed time.Duration) {
	if e.Metrics != nil {
		e.Metrics.FetchDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
	}
}

func (e *Executor) hostAllowed(canonicalURL string) bool {
	host, err := extract.HostOf(canonicalURL)
	if err != nil {
		return false
	}
	_, ok := e.AllowedHosts[host]
	return ok
}

func contentType(headers map[string][]string) string {
	if headers == nil {
		return ""
	}
	if v := headers["Content-Type"]; len(v) > 0 {
		return v[0]
	}
	return ""
}
