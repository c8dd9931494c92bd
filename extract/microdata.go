package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/models"
)

var metaSelectors = []string{
	`meta[property="og:price:amount"]`,
	`meta[itemprop="price"]`,
	`[itemprop="price"]`,
}

var currencySelectors = []string{
	`meta[property="og:price:currency"]`,
	`meta[itemprop="priceCurrency"]`,
	`[itemprop="priceCurrency"]`,
}

// extractMicrodata reads well-known microdata/meta tags (itemprop="price",
// og:price:amount), confidence 0.7.
func extractMicrodata(doc *goquery.Document, defaultCurrency string) (models.PriceSignal, error) {
	raw := ""
	for _, sel := range metaSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if v, ok := s.Attr("content"); ok && v != "" {
				raw = v
				break
			}
			if txt := strings.TrimSpace(s.Text()); txt != "" {
				raw = txt
				break
			}
		}
	}
	if raw == "" {
		return models.PriceSignal{}, parseMiss("no microdata price found")
	}

	currencyHint := defaultCurrency
	for _, sel := range currencySelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if v, ok := s.Attr("content"); ok && v != "" {
				currencyHint = v
				break
			}
		}
	}

	cents, currency, err := ParsePrice(raw, currencyHint)
	if err != nil {
		return models.PriceSignal{}, err
	}

	title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))

	return models.PriceSignal{
		PriceCents: cents,
		Currency:   currency,
		Title:      title,
		AdapterID:  "microdata",
		Confidence: 0.7,
	}, nil
}
