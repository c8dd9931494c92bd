package fetch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"pricewatch/outcome"
)

// BrowserFetcherConfig configures BrowserFetcher.
type BrowserFetcherConfig struct {
	Timeout     time.Duration
	NetworkIdle time.Duration
}

// BrowserFetcher renders a page with headless Chrome for hosts whose prices
// only appear after client-side execution. It is the
// escalation tier the Scrape Executor reaches for on a PARSE_MISS from
// HttpFetcher when the tracker allows it.
type BrowserFetcher struct {
	timeout     time.Duration
	networkIdle time.Duration
	allocOpts   []chromedp.ExecAllocatorOption
}

func NewBrowserFetcher(cfg BrowserFetcherConfig) *BrowserFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.NetworkIdle <= 0 {
		cfg.NetworkIdle = 2 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgents[0]),
	)

	return &BrowserFetcher{
		timeout:     cfg.Timeout,
		networkIdle: cfg.NetworkIdle,
		allocOpts:   opts,
	}
}

// Fetch starts a fresh headless browser, navigates to rawURL, waits a fixed
// NetworkIdle interval (network activity itself is not observed), and
// returns the rendered HTML. A blown deadline becomes TIMEOUT; a navigation
// error whose text names a blocked or denied load, or a 403, becomes
// BLOCKED; any other navigation failure becomes BROWSER_ERROR. The HTTP
// status of a page that loads is not inspected: Status is always 200.
func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	start := time.Now()
	var html string
	var status int64 = 200

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(f.networkIdle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return FetchResult{}, newError(outcome.KindTimeout, err.Error())
		}
		if isBlockedNavigationError(err) {
			return FetchResult{}, newError(outcome.KindBlocked, err.Error())
		}
		return FetchResult{}, newError(outcome.KindBrowserError, err.Error())
	}

	if html == "" {
		return FetchResult{}, newError(outcome.KindBrowserError, "empty document after render")
	}

	return FetchResult{
		Status:   int(status),
		Body:     []byte(html),
		FinalURL: rawURL,
		Elapsed:  elapsed,
	}, nil
}

func isBlockedNavigationError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "net::err_blocked_by_client") ||
		strings.Contains(msg, "net::err_access_denied") ||
		strings.Contains(msg, "403")
}
