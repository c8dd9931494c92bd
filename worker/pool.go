// Package worker implements the Worker Pool: a fixed number of goroutines
// that reserve jobs, acquire rate-governor admission, run the Scrape
// Executor, and write results, generalizing the fixed-size goroutine pool
// idiom into a queue-driven pipeline.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pricewatch/executor"
	"pricewatch/extract"
	"pricewatch/metrics"
	"pricewatch/models"
	"pricewatch/outcome"
	"pricewatch/ratelimit"
	"pricewatch/store"
)

// JobSource is satisfied by *queue.Queue.
type JobSource interface {
	Reserve(ctx context.Context, visibilityTimeout time.Duration) (*models.ScrapeJob, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, job models.ScrapeJob, hardFail bool) error
	MoveToDLQ(ctx context.Context, job models.ScrapeJob, kind, detail string) error
}

// TrackerUpdater is satisfied by *store.TrackerStore.
type TrackerUpdater interface {
	Get(ctx context.Context, id uuid.UUID) (models.CompetitorTracker, error)
	UpdateAfterScrape(ctx context.Context, trackerID uuid.UUID, expectedVersion int64, summary store.ScrapeOutcomeSummary) error
}

// HistoryAppender is satisfied by *store.PriceHistoryStore.
type HistoryAppender interface {
	Append(ctx context.Context, p models.PricePoint) error
}

// InFlightClearer releases the scheduler's in-flight marker once a job
// reaches a terminal state (ack or DLQ).
type InFlightClearer interface {
	ClearInFlight(ctx context.Context, trackerID uuid.UUID) error
}

// Config holds the worker pool's tunables.
type Config struct {
	NumWorkers        int
	VisibilityTimeout time.Duration
	JobDeadline       time.Duration
	PollInterval      time.Duration
	MaxAttemptsCap    int
}

// Pool drives N concurrent workers over the job queue.
type Pool struct {
	Jobs     JobSource
	Trackers TrackerUpdater
	History  HistoryAppender
	Governor *ratelimit.Governor
	Executor *executor.Executor
	InFlight InFlightClearer
	Config   Config
	Metrics  *metrics.Registry

	wg sync.WaitGroup
}

func New(jobs JobSource, trackers TrackerUpdater, history HistoryAppender, governor *ratelimit.Governor, ex *executor.Executor, inFlight InFlightClearer, cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Pool{Jobs: jobs, Trackers: trackers, History: history, Governor: governor, Executor: ex, InFlight: inFlight, Config: cfg}
}

// WithMetrics attaches a metrics registry that applyOutcome records
// scrape outcomes against; nil disables recording.
func (p *Pool) WithMetrics(m *metrics.Registry) *Pool {
	p.Metrics = m
	return p
}

// Run starts Config.NumWorkers worker loops and blocks until ctx is
// canceled, at which point each worker finishes its current job
// (respecting its deadline) before exiting.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.Config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
	p.wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.Config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.Jobs.Reserve(ctx, p.Config.VisibilityTimeout)
			if err != nil || job == nil {
				continue
			}
			p.processJob(ctx, *job)
		}
	}
}

// processJob runs one reservation through rate-governance, the scrape
// executor, and store updates, guaranteeing token/slot release and a
// terminal queue disposition (ack, nack, or DLQ) on every exit path.
func (p *Pool) processJob(ctx context.Context, job models.ScrapeJob) {
	// The job runs to completion or its own deadline even after ctx is
	// canceled, so a shutdown lets the current job finish.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Config.JobDeadline)
	defer cancel()

	host, err := extract.HostOf(job.URL)
	if err != nil {
		p.dlq(jobCtx, job, outcome.HardFail(outcome.KindInvalidURL, err.Error()))
		return
	}

	release, err := p.Governor.Acquire(jobCtx, host)
	if err != nil {
		// Synthetic RATE_LIMITED SoftFail: the governor wait bound was
		// exceeded, not a fetch attempt, so it uses the soft backoff cap.
		_ = p.Jobs.Nack(jobCtx, job, false)
		return
	}
	defer release()

	out := p.Executor.Run(jobCtx, job)
	p.applyOutcome(jobCtx, job, out)
}

func (p *Pool) applyOutcome(ctx context.Context, job models.ScrapeJob, out outcome.ScrapeOutcome) {
	if p.Metrics != nil {
		p.Metrics.ScrapeOutcomes.WithLabelValues(string(out.Kind)).Inc()
	}

	tracker, err := p.Trackers.Get(ctx, job.TrackerID)
	if err != nil {
		p.dlq(ctx, job, out)
		return
	}

	if out.IsSuccess() {
		summary := store.ScrapeOutcomeSummary{
			Success:    true,
			PriceCents: out.Signal.PriceCents,
			Currency:   out.Signal.Currency,
			Status:     models.TrackerOK,
			CheckedAt:  time.Now(),
		}
		if err := p.Trackers.UpdateAfterScrape(ctx, tracker.ID, tracker.Version, summary); err != nil {
			p.dlq(ctx, job, out)
			return
		}
		if err := p.History.Append(ctx, models.PricePoint{
			ID:             uuid.New(),
			ProductID:      job.ProductID,
			TrackerID:      job.TrackerID,
			PriceCents:     out.Signal.PriceCents,
			Currency:       out.Signal.Currency,
			CapturedAt:     time.Now(),
			Source:         out.Signal.ExtractedFrom,
			AdapterID:      out.Signal.AdapterID,
		}); err != nil {
			p.dlq(ctx, job, out)
			return
		}
		_ = p.Jobs.Ack(ctx, job.ID.String())
		if p.InFlight != nil {
			_ = p.InFlight.ClearInFlight(ctx, job.TrackerID)
		}
		return
	}

	status := failureStatus(out.Kind)
	_ = p.Trackers.UpdateAfterScrape(ctx, tracker.ID, tracker.Version, store.ScrapeOutcomeSummary{
		Status:    status,
		CheckedAt: time.Now(),
	})

	job.LastError = &models.JobError{Kind: string(out.Kind), Detail: out.Detail}

	if !out.Retryable() || job.Attempt >= p.attemptCap(job, out) {
		p.dlq(ctx, job, out)
		return
	}
	_ = p.Jobs.Nack(ctx, job, out.Severity == outcome.SeverityHard)
}

// attemptCap is the highest attempt number job may reach before it is
// sent to the DLQ instead of retried: the job's own max_attempts, capped
// by the pool's configured ceiling, and further capped at 2 for kinds
// that are retried at most once regardless of max_attempts.
func (p *Pool) attemptCap(job models.ScrapeJob, out outcome.ScrapeOutcome) int {
	ceiling := job.MaxAttempts
	if p.Config.MaxAttemptsCap > 0 && p.Config.MaxAttemptsCap < ceiling {
		ceiling = p.Config.MaxAttemptsCap
	}
	if out.RetryOnce() && ceiling > 2 {
		ceiling = 2
	}
	return ceiling
}

func (p *Pool) dlq(ctx context.Context, job models.ScrapeJob, out outcome.ScrapeOutcome) {
	_ = p.Jobs.MoveToDLQ(ctx, job, string(out.Kind), out.Detail)
	if p.InFlight != nil {
		_ = p.InFlight.ClearInFlight(ctx, job.TrackerID)
	}
}

func failureStatus(kind outcome.Kind) models.TrackerStatus {
	switch kind {
	case outcome.KindBlocked, outcome.KindDomainBlocked:
		return models.TrackerBlocked
	case outcome.KindNetworkError, outcome.KindTimeout:
		return models.TrackerNetworkError
	default:
		return models.TrackerExtractionFailed
	}
}
