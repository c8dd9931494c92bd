// Package models holds the domain types shared across the ingestion
// pipeline: catalog-owned products, trackers, jobs, price signals, history,
// and pricing rules. Nothing in this package performs I/O.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is owned by the external catalog; the core only reads it.
type Product struct {
	ID           uuid.UUID
	Name         string
	SKU          string
	Category     string
	Cost         *int64 // cents; nil when unknown
	CurrentPrice int64  // cents, >= 0
	Stock        *int
	Active       bool
}

// TrackerStatus is the lifecycle/health status of a CompetitorTracker.
type TrackerStatus string

const (
	TrackerNew              TrackerStatus = "NEW"
	TrackerOK               TrackerStatus = "OK"
	TrackerExtractionFailed TrackerStatus = "EXTRACTION_FAILED"
	TrackerNetworkError     TrackerStatus = "NETWORK_ERROR"
	TrackerBlocked          TrackerStatus = "BLOCKED"
	TrackerDead             TrackerStatus = "DEAD"
)

// CompetitorTracker is a persistent link between a product and a single
// canonical competitor URL. (product_id, canonical_url) is unique among
// active trackers.
type CompetitorTracker struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	CompetitorName   string
	RawURL           string
	CanonicalURL     string
	Active           bool
	LastPrice        *int64 // cents
	LastCurrency     string
	LastCheckedAt    *time.Time
	LastStatus       TrackerStatus
	FailureStreak    int
	IntervalOverride *time.Duration
	Notes            string
	Version          int64 // optimistic-concurrency CAS token
}

// JobOrigin records why a ScrapeJob exists.
type JobOrigin string

const (
	OriginScheduled JobOrigin = "SCHEDULED"
	OriginManual    JobOrigin = "MANUAL"
	OriginRetry     JobOrigin = "RETRY"
)

// ScrapeJob is a unit of work for the Worker Pool, owned by the Job Queue
// while in flight.
type ScrapeJob struct {
	ID                   uuid.UUID
	TrackerID            uuid.UUID
	ProductID            uuid.UUID
	URL                  string
	AllowBrowserFallback bool
	Attempt              int
	MaxAttempts          int
	EnqueuedAt           time.Time
	NotBefore            *time.Time
	Origin               JobOrigin
	LastError            *JobError
}

// JobError records the most recent failed attempt for a job, surfaced to
// operators via the DLQ / health views.
type JobError struct {
	Kind   string
	Detail string
}

// ExtractedFrom records which fetch tier produced a PriceSignal/PricePoint.
type ExtractedFrom string

const (
	SourceHTTP    ExtractedFrom = "HTTP"
	SourceBrowser ExtractedFrom = "BROWSER"
)

// PriceSignal is the transient output of a Price Extractor, owned only for
// the duration of one worker invocation.
type PriceSignal struct {
	PriceCents    int64
	Currency      string
	Title         string
	InStock       *bool
	ExtractedFrom ExtractedFrom
	AdapterID     string
	Confidence    float64 // [0,1]
}

// PricePoint is one immutable observation of a competitor price, owned
// exclusively by the Price History Store. Never updated or deleted.
type PricePoint struct {
	ID             uuid.UUID
	ProductID      uuid.UUID
	TrackerID      uuid.UUID
	CompetitorName string
	PriceCents     int64
	Currency       string
	CapturedAt     time.Time
	Source         ExtractedFrom
	AdapterID      string
}

// RuleType selects which pricing formula a PricingRule applies.
type RuleType string

const (
	RuleFixed       RuleType = "FIXED"
	RuleCompetitive RuleType = "COMPETITIVE"
	RuleDynamic     RuleType = "DYNAMIC"
	RuleClearance   RuleType = "CLEARANCE"
)

// RuleStatus toggles whether a PricingRule participates in evaluation.
type RuleStatus string

const (
	RuleActive   RuleStatus = "ACTIVE"
	RuleInactive RuleStatus = "INACTIVE"
)

// PricingRule describes one rule the Rule Engine may fire for a product.
// Exactly one of Category/ProductID should be set; neither set means
// match-all.
type PricingRule struct {
	ID            int64
	Name          string
	Type          RuleType
	Category      string
	ProductID     *uuid.UUID
	AdjustmentPct float64
	Status        RuleStatus
	Priority      int
	MinMarginPct  *float64
	MaxChangePct  *float64
}

// Matches reports whether the rule applies to product. Match order:
// product_id, then category, then match-all.
func (r PricingRule) Matches(p Product) bool {
	if r.ProductID != nil {
		return *r.ProductID == p.ID
	}
	if r.Category != "" {
		return r.Category == p.Category
	}
	return true
}

// Recommendation is the deterministic, auditable output of the Rule Engine.
type Recommendation struct {
	ProductID           uuid.UUID
	CurrentPriceCents   int64
	SuggestedPriceCents int64
	Reason              string
	RuleID              *int64
	ComputedAt          time.Time
	CompetitorCount     int
	AvgCompetitorCents  *int64
}
