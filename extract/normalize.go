package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// currencySymbols maps a currency glyph to its ISO-4217 code.
var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"฿": "THB",
}

var isoCodeRe = regexp.MustCompile(`\b([A-Z]{3})\b`)
var numberRe = regexp.MustCompile(`[\d.,\s]+\d`)

// MaxPriceCents and MinPriceCents bound the values accepted from extractors,
//: a value outside (0, 10_000_000] is a PARSE_MISS.
const (
	MinPriceCents int64 = 1
	MaxPriceCents int64 = 10_000_000 * 100
)

// ParsePrice normalizes a raw price string (with currency glyph/code,
// thousands separators, decimal-comma locales) into integer cents and an
// ISO-4217 currency code. defaultCurrency is used when no currency can be
// detected in the text. Returns ErrParseMiss when the text carries no
// usable number or the number is out of bounds.
func ParsePrice(raw, defaultCurrency string) (cents int64, currency string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", parseMiss("empty price text")
	}

	currency = detectCurrency(raw, defaultCurrency)

	numMatch := numberRe.FindString(raw)
	if numMatch == "" {
		return 0, "", parseMiss("no numeric value in " + raw)
	}

	value, err := parseLocaleNumber(numMatch)
	if err != nil {
		return 0, "", parseMiss("unparsable number " + numMatch)
	}

	c := int64(value*100 + 0.5)
	if c < MinPriceCents || c > MaxPriceCents {
		return 0, "", parseMiss("price out of bounds")
	}
	return c, currency, nil
}

func detectCurrency(raw, fallback string) string {
	for sym, code := range currencySymbols {
		if strings.Contains(raw, sym) {
			return code
		}
	}
	if m := isoCodeRe.FindString(strings.ToUpper(raw)); m != "" {
		return m
	}
	return fallback
}

// parseLocaleNumber normalizes "1.200,50" / "1,200.50" / "1200.50" /
// "1 200,50" into a float64.
func parseLocaleNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Whichever separator appears last is the decimal point.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Comma alone: decimal separator only if exactly 2 trailing digits.
		if len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	return strconv.ParseFloat(s, 64)
}
