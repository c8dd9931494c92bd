package extract

import (
	"encoding/json"
	"strings"

	"pricewatch/models"
)

// StorefrontAdapter claims hosts running a common hosted-storefront
// platform that embeds a <script id="product-json"> block with a flat
// {price_cents, currency} shape instead of schema.org JSON-LD. It falls
// back to the generic cascade when that block is absent, so a storefront
// host still benefits from structured-data/microdata/heuristic extraction.
type StorefrontAdapter struct {
	Hosts           []string
	DefaultCurrency string
	fallback        GenericAdapter
}

func NewStorefrontAdapter(hosts []string, defaultCurrency string) *StorefrontAdapter {
	return &StorefrontAdapter{
		Hosts:           hosts,
		DefaultCurrency: defaultCurrency,
		fallback:        GenericAdapter{DefaultCurrency: defaultCurrency},
	}
}

func (a *StorefrontAdapter) ID() string { return "storefront" }

func (a *StorefrontAdapter) Claims(host string) bool {
	for _, h := range a.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

type storefrontProductJSON struct {
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Title      string `json:"title"`
	InStock    *bool  `json:"in_stock"`
}

func (a *StorefrontAdapter) Extract(page Page) (models.PriceSignal, error) {
	doc, err := parseHTML(page.HTML)
	if err != nil {
		return models.PriceSignal{}, parseMiss("invalid html: " + err.Error())
	}

	block := doc.Find(`script#product-json`).First()
	if block.Length() > 0 {
		var p storefrontProductJSON
		if err := json.Unmarshal([]byte(block.Text()), &p); err == nil && p.PriceCents > 0 {
			currency := p.Currency
			if currency == "" {
				currency = a.DefaultCurrency
			}
			if p.PriceCents < MinPriceCents || p.PriceCents > MaxPriceCents {
				return models.PriceSignal{}, parseMiss("storefront price out of bounds")
			}
			return models.PriceSignal{
				PriceCents: p.PriceCents,
				Currency:   currency,
				Title:      p.Title,
				InStock:    p.InStock,
				AdapterID:  a.ID(),
				Confidence: 1.0,
			}, nil
		}
	}

	return a.fallback.Extract(page)
}
