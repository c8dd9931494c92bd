// Package scheduler turns due CompetitorTrackers into ScrapeJobs on a
// periodic tick, and accepts on-demand jobs that bypass the interval
// check but still respect the in-flight marker.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"pricewatch/models"
)

// TrackerLister is satisfied by *store.TrackerStore.
type TrackerLister interface {
	ListDue(ctx context.Context, now time.Time, defaultInterval time.Duration, limit int) ([]models.CompetitorTracker, error)
	MarkDead(ctx context.Context, trackerID uuid.UUID) error
}

// Enqueuer is satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.ScrapeJob, notBefore time.Time) error
}

// Config holds the per-deployment scheduling knobs.
type Config struct {
	DefaultInterval       time.Duration
	FailureStreakLimit    int
	TickInterval          time.Duration
	BatchLimit            int
	AllowBrowserByDefault bool
	MaxAttempts           int
}

// inFlightTTL is how long the in-flight marker on a tracker survives when
// no terminal outcome clears it first. It is a fixed value, independent of
// the configured reservation visibility timeout (120s by default).
const inFlightTTL = 10 * time.Minute

// Scheduler drives the periodic tick described by the scheduling policy.
type Scheduler struct {
	Trackers TrackerLister
	Queue    Enqueuer
	Redis    *goredis.Client
	Config   Config
}

func New(trackers TrackerLister, q Enqueuer, rdb *goredis.Client, cfg Config) *Scheduler {
	return &Scheduler{Trackers: trackers, Queue: q, Redis: rdb, Config: cfg}
}

// Run blocks, ticking at Config.TickInterval, until ctx is canceled or a
// tick fails; it returns ctx.Err() or that tick's error.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick lists due trackers and enqueues exactly one SCHEDULED job per
// tracker that doesn't already have an outstanding in-flight marker,
// marking trackers DEAD once their failure streak hits the configured
// limit.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.Trackers.ListDue(ctx, time.Now(), s.Config.DefaultInterval, s.Config.BatchLimit)
	if err != nil {
		return err
	}

	for _, t := range due {
		if t.FailureStreak >= s.Config.FailureStreakLimit {
			if err := s.Trackers.MarkDead(ctx, t.ID); err != nil {
				return err
			}
			continue
		}

		if err := s.EnqueueIfNotInFlight(ctx, t, models.OriginScheduled); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueIfNotInFlight enqueues a ScrapeJob for the tracker unless it
// already has an outstanding job, recorded via a short-TTL Redis marker.
// On-demand callers pass models.OriginManual and still go through this
// check, per the scheduling policy.
func (s *Scheduler) EnqueueIfNotInFlight(ctx context.Context, t models.CompetitorTracker, origin models.JobOrigin) error {
	markerKey := inFlightKey(t.ID)
	acquired, err := s.Redis.SetNX(ctx, markerKey, "1", inFlightTTL).Result()
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}

	maxAttempts := s.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	job := models.ScrapeJob{
		ID:                   uuid.New(),
		TrackerID:            t.ID,
		ProductID:            t.ProductID,
		URL:                  t.CanonicalURL,
		AllowBrowserFallback: s.Config.AllowBrowserByDefault,
		Attempt:              1,
		MaxAttempts:          maxAttempts,
		EnqueuedAt:           time.Now(),
		Origin:               origin,
	}
	if err := s.Queue.Enqueue(ctx, job, time.Time{}); err != nil {
		// Release the marker on failed enqueue so the next tick can retry.
		s.Redis.Del(ctx, markerKey)
		return err
	}
	return nil
}

// ClearInFlight releases a tracker's in-flight marker once the worker
// pool has observed a terminal outcome (ack or DLQ) for its job.
func (s *Scheduler) ClearInFlight(ctx context.Context, trackerID uuid.UUID) error {
	return s.Redis.Del(ctx, inFlightKey(trackerID)).Err()
}

func inFlightKey(trackerID uuid.UUID) string {
	return "pricewatch:inflight:" + trackerID.String()
}
