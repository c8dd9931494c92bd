// Package rules implements the Rule Engine: given a product, its pricing
// rules, and a recent window of competitor price history, it produces one
// deterministic Recommendation. Evaluation is pure; it does no I/O and the
// same inputs always yield the same output.
package rules

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"pricewatch/models"
)

// Config holds the deployment-level defaults used when a PricingRule leaves
// a field unset.
type Config struct {
	DefaultMaxChangePct float64 // applied when a rule's MaxChangePct is nil
	DefaultMinMarginPct float64 // applied when a rule's MinMarginPct is nil
	CompetitiveWeight   float64 // w_c for DYNAMIC; w_m is 1 - w_c
	HistoryWindow       time.Duration
}

// DefaultConfig mirrors the deployment defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMaxChangePct: 20,
		DefaultMinMarginPct: 0,
		CompetitiveWeight:   0.6,
		HistoryWindow:       14 * 24 * time.Hour,
	}
}

// Evaluate sorts rules by (priority desc, id asc), picks the first matching
// ACTIVE one, applies its formula, clamps the result, and rounds to the
// nearest cent using banker's rounding. history should already be windowed
// to Config.HistoryWindow; Evaluate itself performs no time filtering.
func Evaluate(product models.Product, allRules []models.PricingRule, history []models.PricePoint, cfg Config, now time.Time) models.Recommendation {
	rec := models.Recommendation{
		ProductID:         product.ID,
		CurrentPriceCents: product.CurrentPrice,
		ComputedAt:        now,
	}

	avgCents, avgFloat, compCount := averageLatestCompetitorPrice(history)
	if compCount > 0 {
		rec.CompetitorCount = compCount
		rec.AvgCompetitorCents = &avgCents
	}

	rule, ok := selectRule(product, allRules)
	if !ok {
		rec.SuggestedPriceCents = product.CurrentPrice
		rec.Reason = "no matching rule"
		return rec
	}
	ruleID := rule.ID
	rec.RuleID = &ruleID

	var suggested float64
	switch rule.Type {
	case models.RuleFixed:
		suggested = float64(product.CurrentPrice) * (1 + rule.AdjustmentPct/100)
		rec.Reason = fmt.Sprintf("fixed adjustment of %.2f%%", rule.AdjustmentPct)

	case models.RuleClearance:
		suggested = float64(product.CurrentPrice) * (1 + rule.AdjustmentPct/100)
		rec.Reason = fmt.Sprintf("clearance adjustment of %.2f%%", rule.AdjustmentPct)

	case models.RuleCompetitive:
		if compCount == 0 {
			rec.SuggestedPriceCents = product.CurrentPrice
			rec.Reason = "no competitor data"
			return rec
		}
		suggested = avgFloat * (1 + rule.AdjustmentPct/100)
		rec.Reason = fmt.Sprintf("%d competitors, avg=%.2f", compCount, avgFloat/100)

	case models.RuleDynamic:
		if compCount == 0 {
			rec.SuggestedPriceCents = product.CurrentPrice
			rec.Reason = "no competitor data"
			return rec
		}
		wc := cfg.CompetitiveWeight
		if wc <= 0 {
			wc = 0.6
		}
		wm := 1 - wc
		suggested = wc*avgFloat + wm*float64(product.CurrentPrice)
		rec.Reason = fmt.Sprintf("%d competitors, avg=%.2f, blended %.0f/%.0f with current price", compCount, avgFloat/100, wc*100, wm*100)

	default:
		rec.SuggestedPriceCents = product.CurrentPrice
		rec.Reason = "unrecognized rule type"
		return rec
	}

	clamped, note := clamp(suggested, product, rule, cfg)
	rec.SuggestedPriceCents = roundCentsBankers(clamped)
	if note != "" {
		rec.Reason += "; " + note
	}
	return rec
}

// selectRule sorts allRules by (priority desc, id asc), filters to the
// rules that match product, and returns the first matching rule whose
// Status is ACTIVE. Inactive matches are skipped, not treated as a stop.
func selectRule(product models.Product, allRules []models.PricingRule) (models.PricingRule, bool) {
	matches := make([]models.PricingRule, 0, len(allRules))
	for _, r := range allRules {
		if r.Matches(product) {
			matches = append(matches, r)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].ID < matches[j].ID
	})
	for _, r := range matches {
		if r.Status == models.RuleActive {
			return r, true
		}
	}
	return models.PricingRule{}, false
}

// averageLatestCompetitorPrice takes the most recent PricePoint per tracker
// in history and averages those. Returns the rounded cents value (for
// display), the unrounded float (for formula precision), and the number of
// trackers that contributed.
func averageLatestCompetitorPrice(history []models.PricePoint) (avgCentsRounded int64, avgFloat float64, count int) {
	latest := make(map[uuid.UUID]models.PricePoint, len(history))
	for _, p := range history {
		cur, ok := latest[p.TrackerID]
		if !ok || p.CapturedAt.After(cur.CapturedAt) {
			latest[p.TrackerID] = p
		}
	}
	if len(latest) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, p := range latest {
		sum += float64(p.PriceCents)
	}
	avgFloat = sum / float64(len(latest))
	return roundCentsBankers(avgFloat), avgFloat, len(latest)
}

// clamp bounds suggested within the rule's change envelope: an upper bound
// of current_price*(1+max_change_pct/100), and a lower bound that is the
// largest of one cent, the rule's cost-margin floor (when the product's
// cost is known), and current_price*(1-max_change_pct/100).
func clamp(suggested float64, product models.Product, rule models.PricingRule, cfg Config) (float64, string) {
	maxChangePct := cfg.DefaultMaxChangePct
	if rule.MaxChangePct != nil {
		maxChangePct = *rule.MaxChangePct
	}
	minMarginPct := cfg.DefaultMinMarginPct
	if rule.MinMarginPct != nil {
		minMarginPct = *rule.MinMarginPct
	}

	current := float64(product.CurrentPrice)
	upper := current * (1 + maxChangePct/100)
	lower := current * (1 - maxChangePct/100)
	if product.Cost != nil {
		costFloor := float64(*product.Cost) * (1 + minMarginPct/100)
		if costFloor > lower {
			lower = costFloor
		}
	}
	if lower < 1 {
		lower = 1 // one cent floor
	}

	switch {
	case suggested > upper:
		return upper, fmt.Sprintf("clamped to +%.0f%% cap", maxChangePct)
	case suggested < lower:
		return lower, "clamped to price floor"
	default:
		return suggested, ""
	}
}

// roundCentsBankers rounds x (a cent count that may carry fractional
// remainder from percentage math) to the nearest integer cent, breaking
// exact .5 ties to the nearest even integer.
func roundCentsBankers(x float64) int64 {
	floor := math.Floor(x)
	diff := x - floor
	whole := int64(floor)
	switch {
	case diff < 0.5:
		return whole
	case diff > 0.5:
		return whole + 1
	default:
		if whole%2 == 0 {
			return whole
		}
		return whole + 1
	}
}
