package extract

import (
	"testing"
)

func TestParsePriceLocales(t *testing.T) {
	tests := []struct {
		raw      string
		wantCent int64
		wantCur  string
	}{
		{"€19,90", 1990, "EUR"},
		{"$25.00", 2500, "USD"},
		{"1.200,50 EUR", 120050, "EUR"},
		{"1,200.50 USD", 120050, "USD"},
		{"฿3,500", 350000, "THB"},
	}
	for _, tt := range tests {
		cents, cur, err := ParsePrice(tt.raw, "USD")
		if err != nil {
			t.Fatalf("ParsePrice(%q): unexpected error: %v", tt.raw, err)
		}
		if cents != tt.wantCent {
			t.Errorf("ParsePrice(%q) cents = %d, want %d", tt.raw, cents, tt.wantCent)
		}
		if cur != tt.wantCur {
			t.Errorf("ParsePrice(%q) currency = %q, want %q", tt.raw, cur, tt.wantCur)
		}
	}
}

func TestParsePriceOutOfBounds(t *testing.T) {
	if _, _, err := ParsePrice("$0.00", "USD"); !IsParseMiss(err) {
		t.Error("expected parse miss for zero price")
	}
	if _, _, err := ParsePrice("$20000000", "USD"); !IsParseMiss(err) {
		t.Error("expected parse miss for price over bound")
	}
}

func TestGenericAdapterStructuredData(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">
		{"@type":"Product","name":"Widget","offers":{"@type":"Offer","price":"19.90","priceCurrency":"EUR","availability":"https://schema.org/InStock"}}
		</script>
	</head><body></body></html>`

	a := &GenericAdapter{DefaultCurrency: "USD"}
	sig, err := a.Extract(Page{HTML: []byte(html), URL: "https://shop.example.com/p/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.PriceCents != 1990 || sig.Currency != "EUR" {
		t.Errorf("got %+v", sig)
	}
	if sig.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", sig.Confidence)
	}
}

func TestGenericAdapterMicrodataFallback(t *testing.T) {
	html := `<html><head>
		<meta property="og:price:amount" content="25.00">
		<meta property="og:price:currency" content="USD">
		<meta property="og:title" content="Gadget">
	</head><body></body></html>`

	a := &GenericAdapter{DefaultCurrency: "USD"}
	sig, err := a.Extract(Page{HTML: []byte(html), URL: "https://shop.example.com/p/2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.PriceCents != 2500 {
		t.Errorf("got %+v", sig)
	}
	if sig.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", sig.Confidence)
	}
}

func TestGenericAdapterHeuristicFallback(t *testing.T) {
	html := `<html><body><div class="price-tag">$14.99</div></body></html>`

	a := &GenericAdapter{DefaultCurrency: "USD"}
	sig, err := a.Extract(Page{HTML: []byte(html), URL: "https://shop.example.com/p/3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.PriceCents != 1499 {
		t.Errorf("got %+v", sig)
	}
	if sig.Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4", sig.Confidence)
	}
}

func TestGenericAdapterParseMiss(t *testing.T) {
	html := `<html><body><p>No prices here</p></body></html>`
	a := &GenericAdapter{DefaultCurrency: "USD"}
	_, err := a.Extract(Page{HTML: []byte(html), URL: "https://shop.example.com/p/4"})
	if !IsParseMiss(err) {
		t.Errorf("expected parse miss, got %v", err)
	}
}

func TestRegistryDispatch(t *testing.T) {
	generic := &GenericAdapter{DefaultCurrency: "USD"}
	storefront := NewStorefrontAdapter([]string{"storefront.example.com"}, "USD")
	reg := NewRegistry(generic, storefront)

	html := `<html><head><script id="product-json">{"price_cents":4999,"currency":"USD","title":"Widget"}</script></head></html>`
	sig, err := reg.Extract(Page{HTML: []byte(html), URL: "https://storefront.example.com/p/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.PriceCents != 4999 || sig.AdapterID != "storefront" {
		t.Errorf("got %+v", sig)
	}
}
