package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/models"
)

// GenericAdapter is the fallback adapter: it cascades through the three
// confidence tiers — structured data (1.0),
// microdata/meta tags (0.7), then a regex heuristic over a price-like
// container (0.4) — returning the first tier that succeeds. It claims
// every host, so the registry only reaches it after every domain-specific
// adapter has declined.
type GenericAdapter struct {
	DefaultCurrency string
}

func (a *GenericAdapter) ID() string             { return "generic" }
func (a *GenericAdapter) Claims(host string) bool { return true }

var priceContainerSelectors = []string{
	`[class*="price"]`,
	`[id*="price"]`,
	`[data-testid*="price"]`,
}

func (a *GenericAdapter) Extract(page Page) (models.PriceSignal, error) {
	doc, err := parseHTML(page.HTML)
	if err != nil {
		return models.PriceSignal{}, parseMiss("invalid html: " + err.Error())
	}

	if sig, err := extractStructuredData(doc, a.DefaultCurrency); err == nil {
		return sig, nil
	}
	if sig, err := extractMicrodata(doc, a.DefaultCurrency); err == nil {
		return sig, nil
	}
	return a.extractHeuristic(doc)
}

func (a *GenericAdapter) extractHeuristic(doc *goquery.Document) (models.PriceSignal, error) {
	var raw string
	for _, sel := range priceContainerSelectors {
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			txt := strings.TrimSpace(s.Text())
			if numberRe.MatchString(txt) {
				raw = txt
				return false
			}
			return true
		})
		if raw != "" {
			break
		}
	}
	if raw == "" {
		return models.PriceSignal{}, parseMiss("no price-like container with a number")
	}

	cents, currency, err := ParsePrice(raw, a.DefaultCurrency)
	if err != nil {
		return models.PriceSignal{}, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	inStock := !strings.Contains(strings.ToLower(doc.Text()), "out of stock")

	return models.PriceSignal{
		PriceCents: cents,
		Currency:   currency,
		Title:      title,
		InStock:    &inStock,
		AdapterID:  "generic",
		Confidence: 0.4,
	}, nil
}
