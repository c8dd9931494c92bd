package extract

import (
	"net/url"
	"strings"

	"pricewatch/models"
)

// Adapter is a per-domain (or generic) price extractor. Adapters express
// their capability through Claims rather than reflection/duck-typing.
type Adapter interface {
	ID() string
	Claims(host string) bool
	Extract(page Page) (models.PriceSignal, error)
}

// Registry dispatches a Page to the first adapter that claims its host,
// falling back to the generic adapter.
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry builds a Registry from a set of domain adapters plus the
// generic fallback.
func NewRegistry(generic Adapter, adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters, generic: generic}
}

// Extract selects the claiming adapter for page.URL's host and runs it.
func (r *Registry) Extract(page Page) (models.PriceSignal, error) {
	host := hostOf(page.URL)
	for _, a := range r.adapters {
		if a.Claims(host) {
			return a.Extract(page)
		}
	}
	return r.generic.Extract(page)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HostOf exposes the same host-extraction logic to callers outside the
// package, such as the Scrape Executor's domain allowlist check.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}
