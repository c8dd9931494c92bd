// Package core exposes the five ingress operations an external REST surface
// (out of scope here) and the CLI both call through: track a competitor
// URL, fetch now, enqueue a scrape, get a recommendation, and read price
// history. Service is a thin facade over the stores, queue, executor, and
// rule engine — it owns no state of its own.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pricewatch/canon"
	"pricewatch/extract"
	"pricewatch/models"
	"pricewatch/outcome"
	"pricewatch/rules"
	"pricewatch/store"
)

// ErrDomainBlocked is returned when a tracker is created against a host
// outside the configured domain allowlist.
var ErrDomainBlocked = errors.New("core: host not in domain allowlist")

// ProductReader reads catalog-owned products. The catalog itself is an
// external collaborator; core only ever reads through this interface.
type ProductReader interface {
	Get(ctx context.Context, id uuid.UUID) (models.Product, error)
}

// RuleReader reads catalog-owned pricing rules, the same way ProductReader
// reads products.
type RuleReader interface {
	ListForProduct(ctx context.Context, productID uuid.UUID) ([]models.PricingRule, error)
}

// TrackerRepo is satisfied by *store.TrackerStore.
type TrackerRepo interface {
	CreateOrGet(ctx context.Context, t models.CompetitorTracker) (models.CompetitorTracker, bool, error)
	Get(ctx context.Context, id uuid.UUID) (models.CompetitorTracker, error)
	UpdateAfterScrape(ctx context.Context, trackerID uuid.UUID, expectedVersion int64, summary store.ScrapeOutcomeSummary) error
}

// HistoryRepo is satisfied by *store.PriceHistoryStore.
type HistoryRepo interface {
	Append(ctx context.Context, p models.PricePoint) error
	Range(ctx context.Context, trackerID uuid.UUID, from, to time.Time) ([]models.PricePoint, error)
	RangeByProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]models.PricePoint, error)
}

// JobEnqueuer is satisfied by *queue.Queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job models.ScrapeJob, notBefore time.Time) error
}

// ManualScheduler is satisfied by *scheduler.Scheduler.
type ManualScheduler interface {
	EnqueueIfNotInFlight(ctx context.Context, t models.CompetitorTracker, origin models.JobOrigin) error
}

// ScrapeExecutor is satisfied by *executor.Executor.
type ScrapeExecutor interface {
	Run(ctx context.Context, job models.ScrapeJob) outcome.ScrapeOutcome
}

// Service composes the stores, queue, executor, and rule engine behind the
// five ingress operations.
type Service struct {
	Products ProductReader
	Rules    RuleReader
	Trackers TrackerRepo
	History  HistoryRepo
	Queue    JobEnqueuer
	Sched    ManualScheduler
	Exec     ScrapeExecutor

	AllowedHosts map[string]struct{} // non-empty enables the domain allowlist
	RuleConfig   rules.Config
	MaxAttempts  int
}

// TrackInput is the "Track a competitor URL for a product" ingress
// operation's input.
type TrackInput struct {
	ProductID      uuid.UUID
	CompetitorName string
	RawURL         string
	Active         bool
	EnqueueScrape  bool
}

// TrackCompetitor canonicalizes raw_url, creates or returns the existing
// tracker for (product_id, canonical_url), and optionally enqueues an
// immediate manual scrape.
func (s *Service) TrackCompetitor(ctx context.Context, in TrackInput) (models.CompetitorTracker, bool, error) {
	canonicalURL, err := canon.Canonicalize(in.RawURL)
	if err != nil {
		return models.CompetitorTracker{}, false, fmt.Errorf("core: canonicalize: %w", err)
	}
	if !s.hostAllowed(canonicalURL) {
		return models.CompetitorTracker{}, false, ErrDomainBlocked
	}

	active := in.Active
	tracker, created, err := s.Trackers.CreateOrGet(ctx, models.CompetitorTracker{
		ProductID:      in.ProductID,
		CompetitorName: in.CompetitorName,
		RawURL:         in.RawURL,
		CanonicalURL:   canonicalURL,
		Active:         active,
		LastStatus:     models.TrackerNew,
	})
	if err != nil {
		return models.CompetitorTracker{}, false, fmt.Errorf("core: create or get tracker: %w", err)
	}

	if in.EnqueueScrape {
		if err := s.Sched.EnqueueIfNotInFlight(ctx, tracker, models.OriginManual); err != nil {
			return tracker, created, fmt.Errorf("core: enqueue manual scrape: %w", err)
		}
	}
	return tracker, created, nil
}

// FetchNowInput is the "Fetch now" ingress operation's input.
type FetchNowInput struct {
	URL                  string
	ProductID            uuid.UUID
	TrackerID            *uuid.UUID
	AllowBrowserFallback bool
}

// FetchNow runs the Scrape Executor synchronously and, on success, appends
// a PricePoint and updates the tracker (when TrackerID is set).
func (s *Service) FetchNow(ctx context.Context, in FetchNowInput) (outcome.ScrapeOutcome, error) {
	job := models.ScrapeJob{
		ID:                   uuid.New(),
		ProductID:            in.ProductID,
		URL:                  in.URL,
		AllowBrowserFallback: in.AllowBrowserFallback,
		Attempt:              1,
		MaxAttempts:          1,
		EnqueuedAt:           time.Now(),
		Origin:               models.OriginManual,
	}
	if in.TrackerID != nil {
		job.TrackerID = *in.TrackerID
	}

	out := s.Exec.Run(ctx, job)
	if !out.IsSuccess() {
		return out, nil
	}
	if in.TrackerID == nil {
		return out, nil
	}

	tracker, err := s.Trackers.Get(ctx, *in.TrackerID)
	if err != nil {
		return out, fmt.Errorf("core: load tracker for fetch-now update: %w", err)
	}
	if err := s.Trackers.UpdateAfterScrape(ctx, tracker.ID, tracker.Version, store.ScrapeOutcomeSummary{
		Success:    true,
		PriceCents: out.Signal.PriceCents,
		Currency:   out.Signal.Currency,
		Status:     models.TrackerOK,
		CheckedAt:  time.Now(),
	}); err != nil {
		return out, fmt.Errorf("core: update tracker after fetch-now: %w", err)
	}
	if err := s.History.Append(ctx, models.PricePoint{
		ProductID:      in.ProductID,
		TrackerID:      tracker.ID,
		CompetitorName: tracker.CompetitorName,
		PriceCents:     out.Signal.PriceCents,
		Currency:       out.Signal.Currency,
		CapturedAt:     time.Now(),
		Source:         out.Signal.ExtractedFrom,
		AdapterID:      out.Signal.AdapterID,
	}); err != nil {
		return out, fmt.Errorf("core: append price point after fetch-now: %w", err)
	}
	return out, nil
}

// EnqueueScrape is the "Enqueue scrape" ingress operation: it enqueues a
// manual job for an existing tracker and returns the job handle.
func (s *Service) EnqueueScrape(ctx context.Context, trackerID uuid.UUID) (models.ScrapeJob, error) {
	tracker, err := s.Trackers.Get(ctx, trackerID)
	if err != nil {
		return models.ScrapeJob{}, fmt.Errorf("core: load tracker: %w", err)
	}

	job := models.ScrapeJob{
		ID:          uuid.New(),
		TrackerID:   tracker.ID,
		ProductID:   tracker.ProductID,
		URL:         tracker.CanonicalURL,
		Attempt:     1,
		MaxAttempts: s.maxAttempts(),
		EnqueuedAt:  time.Now(),
		Origin:      models.OriginManual,
	}
	if err := s.Queue.Enqueue(ctx, job, time.Time{}); err != nil {
		return models.ScrapeJob{}, fmt.Errorf("core: enqueue: %w", err)
	}
	return job, nil
}

// GetRecommendation is the "Get recommendation" ingress operation: it loads
// the product, its applicable rules, and the recent competitor-price
// window, then runs the Rule Engine.
func (s *Service) GetRecommendation(ctx context.Context, productID uuid.UUID) (models.Recommendation, error) {
	product, err := s.Products.Get(ctx, productID)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("core: load product: %w", err)
	}
	productRules, err := s.Rules.ListForProduct(ctx, productID)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("core: load rules: %w", err)
	}

	now := time.Now()
	window := s.RuleConfig.HistoryWindow
	if window <= 0 {
		window = rules.DefaultConfig().HistoryWindow
	}
	history, err := s.History.RangeByProduct(ctx, productID, now.Add(-window), now)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("core: load history window: %w", err)
	}

	return rules.Evaluate(product, productRules, history, s.RuleConfig, now), nil
}

// ReadPriceHistoryInput is the "Read price history" ingress operation's
// input; exactly one of ProductID/TrackerID should be set.
type ReadPriceHistoryInput struct {
	ProductID *uuid.UUID
	TrackerID *uuid.UUID
	Days      int
}

// ReadPriceHistory returns PricePoints for the last Days days (default 30)
// for either a product (across all its trackers) or a single tracker.
func (s *Service) ReadPriceHistory(ctx context.Context, in ReadPriceHistoryInput) ([]models.PricePoint, error) {
	days := in.Days
	if days <= 0 {
		days = 30
	}
	now := time.Now()
	from := now.AddDate(0, 0, -days)

	switch {
	case in.TrackerID != nil:
		return s.History.Range(ctx, *in.TrackerID, from, now)
	case in.ProductID != nil:
		return s.History.RangeByProduct(ctx, *in.ProductID, from, now)
	default:
		return nil, fmt.Errorf("core: read price history: product_id or tracker_id required")
	}
}

func (s *Service) hostAllowed(canonicalURL string) bool {
	if len(s.AllowedHosts) == 0 {
		return true
	}
	host, err := extract.HostOf(canonicalURL)
	if err != nil {
		return false
	}
	_, ok := s.AllowedHosts[host]
	return ok
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return 3
}
