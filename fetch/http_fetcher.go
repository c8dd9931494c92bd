package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"pricewatch/outcome"
)

// userAgents is the fixed small set HttpFetcher rotates through.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// HttpFetcherConfig configures HttpFetcher.
type HttpFetcherConfig struct {
	Timeout           time.Duration
	MaxIdleConnsPerHost int
	MaxRedirects      int
}

// HttpFetcher issues a static HTTP GET with a bounded timeout, pool-bounded
// connection reuse, and a rotating user-agent.
type HttpFetcher struct {
	client       *http.Client
	maxRedirects int
	uaIndex      atomic.Uint64
}

func NewHttpFetcher(cfg HttpFetcherConfig) *HttpFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 8
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}

	f := &HttpFetcher{maxRedirects: cfg.MaxRedirects}
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	f.client = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return f
}

// Fetch performs the GET and classifies the result:
// 2xx delivers the body; 429 -> RATE_LIMITED; 403/451 -> BLOCKED;
// 5xx -> NETWORK_ERROR; other non-2xx -> HTTP_STATUS; exceeded redirects
// -> NETWORK_ERROR; context deadline or client timeout -> TIMEOUT.
func (f *HttpFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, newError(outcome.KindInvalidURL, err.Error())
	}
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr net.Error
		if ctx.Err() == context.DeadlineExceeded || (errors.As(err, &netErr) && netErr.Timeout()) {
			return FetchResult{}, newError(outcome.KindTimeout, err.Error())
		}
		return FetchResult{}, newError(outcome.KindNetworkError, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		// CheckRedirect returned ErrUseLastResponse once the bound was hit.
		return FetchResult{}, newError(outcome.KindNetworkError, "redirect depth exceeded")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return FetchResult{}, newError(outcome.KindNetworkError, "reading body: "+err.Error())
	}

	elapsed := time.Since(start)
	result := FetchResult{
		Status:   resp.StatusCode,
		Headers:  resp.Header,
		Body:     body,
		FinalURL: resp.Request.URL.String(),
		Elapsed:  elapsed,
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return result, nil
	case resp.StatusCode == 429:
		return FetchResult{}, newError(outcome.KindRateLimited, "http 429")
	case resp.StatusCode == 403 || resp.StatusCode == 451:
		return FetchResult{}, newError(outcome.KindBlocked, httpStatusDetail(resp.StatusCode))
	case resp.StatusCode >= 500:
		return FetchResult{}, newError(outcome.KindNetworkError, httpStatusDetail(resp.StatusCode))
	default:
		return FetchResult{}, newError(outcome.KindHTTPStatus, httpStatusDetail(resp.StatusCode))
	}
}

func httpStatusDetail(status int) string {
	return "http status " + http.StatusText(status)
}

func (f *HttpFetcher) nextUserAgent() string {
	i := f.uaIndex.Add(1) - 1
	return userAgents[i%uint64(len(userAgents))]
}
