package extract

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/models"
)

type ldOffer struct {
	Price         json.Number `json:"price"`
	PriceCurrency string      `json:"priceCurrency"`
	Availability  string      `json:"availability"`
}

type ldProduct struct {
	Type   string  `json:"@type"`
	Name   string  `json:"name"`
	Offers ldOffer `json:"offers"`
}

// extractStructuredData reads schema.org Product JSON-LD blocks
// (<script type="application/ld+json">), the highest-confidence signal per
// (confidence 1.0). Used as the first tier of GenericAdapter's
// cascade and by any domain adapter that embeds the same schema.
func extractStructuredData(doc *goquery.Document, defaultCurrency string) (models.PriceSignal, error) {
	var found *ldProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var p ldProduct
		if err := json.Unmarshal([]byte(s.Text()), &p); err == nil && p.Offers.Price != "" {
			found = &p
			return false
		}
		var arr []ldProduct
		if err := json.Unmarshal([]byte(s.Text()), &arr); err == nil {
			for _, item := range arr {
				if item.Offers.Price != "" {
					found = &item
					return false
				}
			}
		}
		return true
	})

	if found == nil {
		return models.PriceSignal{}, parseMiss("no product json-ld with offers.price")
	}

	value, err := strconv.ParseFloat(found.Offers.Price.String(), 64)
	if err != nil {
		return models.PriceSignal{}, parseMiss("unparsable json-ld price")
	}
	cents := int64(value*100 + 0.5)
	if cents < MinPriceCents || cents > MaxPriceCents {
		return models.PriceSignal{}, parseMiss("json-ld price out of bounds")
	}

	currency := found.Offers.PriceCurrency
	if currency == "" {
		currency = defaultCurrency
	}
	inStock := containsInStock(found.Offers.Availability)

	return models.PriceSignal{
		PriceCents: cents,
		Currency:   currency,
		Title:      found.Name,
		InStock:    &inStock,
		AdapterID:  "jsonld",
		Confidence: 1.0,
	}, nil
}

func containsInStock(availability string) bool {
	return availability == "" || availability == "https://schema.org/InStock" || availability == "InStock"
}

func parseHTML(html []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(html))
}
