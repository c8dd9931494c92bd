package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"pricewatch/executor"
	"pricewatch/extract"
	"pricewatch/fetch"
	"pricewatch/models"
	"pricewatch/ratelimit"
	"pricewatch/store"
)

type fakeJobSource struct {
	acked  []string
	nacked []models.ScrapeJob
	dlqd   []models.ScrapeJob
}

func (f *fakeJobSource) Reserve(ctx context.Context, visibilityTimeout time.Duration) (*models.ScrapeJob, error) {
	return nil, nil
}
func (f *fakeJobSource) Ack(ctx context.Context, jobID string) error {
	f.acked = append(f.acked, jobID)
	return nil
}
func (f *fakeJobSource) Nack(ctx context.Context, job models.ScrapeJob, hardFail bool) error {
	f.nacked = append(f.nacked, job)
	return nil
}
func (f *fakeJobSource) MoveToDLQ(ctx context.Context, job models.ScrapeJob, kind, detail string) error {
	f.dlqd = append(f.dlqd, job)
	return nil
}

type fakeTrackerUpdater struct {
	tracker models.CompetitorTracker
	updates []store.ScrapeOutcomeSummary
}

func (f *fakeTrackerUpdater) Get(ctx context.Context, id uuid.UUID) (models.CompetitorTracker, error) {
	return f.tracker, nil
}
func (f *fakeTrackerUpdater) UpdateAfterScrape(ctx context.Context, trackerID uuid.UUID, expectedVersion int64, summary store.ScrapeOutcomeSummary) error {
	f.updates = append(f.updates, summary)
	return nil
}

type fakeHistory struct {
	appended []models.PricePoint
}

func (f *fakeHistory) Append(ctx context.Context, p models.PricePoint) error {
	f.appended = append(f.appended, p)
	return nil
}

type fakeInFlight struct {
	cleared []uuid.UUID
}

func (f *fakeInFlight) ClearInFlight(ctx context.Context, trackerID uuid.UUID) error {
	f.cleared = append(f.cleared, trackerID)
	return nil
}

type successFetcher struct{ html string }

func (s successFetcher) Fetch(ctx context.Context, rawURL string) (fetch.FetchResult, error) {
	return fetch.FetchResult{Status: 200, Body: []byte(s.html), FinalURL: rawURL}, nil
}

func TestProcessJobSuccessAcksAndAppendsHistory(t *testing.T) {
	trackerID := uuid.New()
	productID := uuid.New()
	tracker := models.CompetitorTracker{ID: trackerID, ProductID: productID, Version: 1}

	html := `<html><body><div class="price">$19.99</div></body></html>`
	ex := executor.New(successFetcher{html: html}, nil, extract.NewRegistry(&extract.GenericAdapter{DefaultCurrency: "USD"}))

	jobs := &fakeJobSource{}
	trackers := &fakeTrackerUpdater{tracker: tracker}
	history := &fakeHistory{}
	inFlight := &fakeInFlight{}
	governor := ratelimit.New(1000, 10, 10, time.Second)

	pool := New(jobs, trackers, history, governor, ex, inFlight, Config{JobDeadline: 5 * time.Second})

	job := models.ScrapeJob{ID: uuid.New(), TrackerID: trackerID, ProductID: productID, URL: "https://shop.example.com/p/1", Attempt: 1, MaxAttempts: 3}
	pool.processJob(context.Background(), job)

	if len(jobs.acked) != 1 {
		t.Fatalf("expected job acked, got acked=%v nacked=%v dlq=%v", jobs.acked, jobs.nacked, jobs.dlqd)
	}
	if len(history.appended) != 1 {
		t.Fatalf("expected 1 price point appended, got %d", len(history.appended))
	}
	if history.appended[0].PriceCents != 1999 {
		t.Errorf("price cents = %d, want 1999", history.appended[0].PriceCents)
	}
	if len(inFlight.cleared) != 1 || inFlight.cleared[0] != trackerID {
		t.Errorf("expected in-flight marker cleared for %v, got %v", trackerID, inFlight.cleared)
	}
}

type failFetcher struct{}

func (failFetcher) Fetch(ctx context.Context, rawURL string) (fetch.FetchResult, error) {
	return fetch.FetchResult{}, &fetch.Error{Kind: "TIMEOUT", Detail: "boom"}
}

func TestProcessJobSoftFailNacksWithinAttempts(t *testing.T) {
	trackerID := uuid.New()
	tracker := models.CompetitorTracker{ID: trackerID, Version: 1}
	ex := executor.New(failFetcher{}, nil, extract.NewRegistry(&extract.GenericAdapter{DefaultCurrency: "USD"}))

	jobs := &fakeJobSource{}
	trackers := &fakeTrackerUpdater{tracker: tracker}
	history := &fakeHistory{}
	inFlight := &fakeInFlight{}
	governor := ratelimit.New(1000, 10, 10, time.Second)

	pool := New(jobs, trackers, history, governor, ex, inFlight, Config{JobDeadline: 5 * time.Second})

	job := models.ScrapeJob{ID: uuid.New(), TrackerID: trackerID, URL: "https://shop.example.com/p/1", Attempt: 1, MaxAttempts: 3}
	pool.processJob(context.Background(), job)

	if len(jobs.nacked) != 1 {
		t.Fatalf("expected job nacked, got acked=%v nacked=%v dlq=%v", jobs.acked, jobs.nacked, jobs.dlqd)
	}
	if len(jobs.dlqd) != 0 {
		t.Errorf("expected no dlq entry on first soft failure, got %d", len(jobs.dlqd))
	}
}

type httpStatusFailFetcher struct{}

func (httpStatusFailFetcher) Fetch(ctx context.Context, rawURL string) (fetch.FetchResult, error) {
	return fetch.FetchResult{}, &fetch.Error{Kind: "HTTP_STATUS", Detail: "404"}
}

func TestProcessJobRetryOnceKindGoesToDLQAfterOneRetryRegardlessOfMaxAttempts(t *testing.T) {
	trackerID := uuid.New()
	tracker := models.CompetitorTracker{ID: trackerID, Version: 1}
	ex := executor.New(httpStatusFailFetcher{}, nil, extract.NewRegistry(&extract.GenericAdapter{DefaultCurrency: "USD"}))

	jobs := &fakeJobSource{}
	trackers := &fakeTrackerUpdater{tracker: tracker}
	history := &fakeHistory{}
	inFlight := &fakeInFlight{}
	governor := ratelimit.New(1000, 10, 10, time.Second)

	pool := New(jobs, trackers, history, governor, ex, inFlight, Config{JobDeadline: 5 * time.Second})

	// Attempt 2 with a generous max_attempts of 10: HTTP_STATUS is retried
	// at most once, so the second failure must go straight to the DLQ.
	job := models.ScrapeJob{ID: uuid.New(), TrackerID: trackerID, URL: "https://shop.example.com/p/1", Attempt: 2, MaxAttempts: 10}
	pool.processJob(context.Background(), job)

	if len(jobs.dlqd) != 1 {
		t.Fatalf("expected job sent to dlq after one retry, got acked=%v nacked=%v dlq=%v", jobs.acked, jobs.nacked, jobs.dlqd)
	}
}

func TestProcessJobExhaustedAttemptsGoesToDLQ(t *testing.T) {
	trackerID := uuid.New()
	tracker := models.CompetitorTracker{ID: trackerID, Version: 1}
	ex := executor.New(failFetcher{}, nil, extract.NewRegistry(&extract.GenericAdapter{DefaultCurrency: "USD"}))

	jobs := &fakeJobSource{}
	trackers := &fakeTrackerUpdater{tracker: tracker}
	history := &fakeHistory{}
	inFlight := &fakeInFlight{}
	governor := ratelimit.New(1000, 10, 10, time.Second)

	pool := New(jobs, trackers, history, governor, ex, inFlight, Config{JobDeadline: 5 * time.Second})

	job := models.ScrapeJob{ID: uuid.New(), TrackerID: trackerID, URL: "https://shop.example.com/p/1", Attempt: 3, MaxAttempts: 3}
	pool.processJob(context.Background(), job)

	if len(jobs.dlqd) != 1 {
		t.Fatalf("expected job sent to dlq, got acked=%v nacked=%v dlq=%v", jobs.acked, jobs.nacked, jobs.dlqd)
	}
}
