package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"pricewatch/models"
)

type fakeTrackerLister struct {
	due    []models.CompetitorTracker
	marked []uuid.UUID
}

func (f *fakeTrackerLister) ListDue(ctx context.Context, now time.Time, defaultInterval time.Duration, limit int) ([]models.CompetitorTracker, error) {
	return f.due, nil
}

func (f *fakeTrackerLister) MarkDead(ctx context.Context, trackerID uuid.UUID) error {
	f.marked = append(f.marked, trackerID)
	return nil
}

type fakeEnqueuer struct {
	jobs []models.ScrapeJob
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job models.ScrapeJob, notBefore time.Time) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping scheduler test that needs the in-flight marker")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestTickMarksDeadPastFailureLimit(t *testing.T) {
	deadTracker := models.CompetitorTracker{ID: uuid.New(), FailureStreak: 5}
	lister := &fakeTrackerLister{due: []models.CompetitorTracker{deadTracker}}
	enq := &fakeEnqueuer{}
	rdb := newTestRedis(t)

	s := New(lister, enq, rdb, Config{FailureStreakLimit: 3, BatchLimit: 10})
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(lister.marked) != 1 || lister.marked[0] != deadTracker.ID {
		t.Errorf("expected tracker %v marked dead, got %v", deadTracker.ID, lister.marked)
	}
	if len(enq.jobs) != 0 {
		t.Errorf("expected no job enqueued for dead tracker, got %d", len(enq.jobs))
	}
}

func TestTickEnqueuesHealthyTracker(t *testing.T) {
	healthy := models.CompetitorTracker{ID: uuid.New(), ProductID: uuid.New(), CanonicalURL: "https://shop.example.com/p/1", FailureStreak: 0}
	lister := &fakeTrackerLister{due: []models.CompetitorTracker{healthy}}
	enq := &fakeEnqueuer{}
	rdb := newTestRedis(t)
	rdb.Del(context.Background(), inFlightKey(healthy.ID))

	s := New(lister, enq, rdb, Config{FailureStreakLimit: 3, BatchLimit: 10})
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(enq.jobs) != 1 {
		t.Fatalf("expected 1 job enqueued, got %d", len(enq.jobs))
	}
	if enq.jobs[0].Origin != models.OriginScheduled {
		t.Errorf("origin = %v, want SCHEDULED", enq.jobs[0].Origin)
	}
}

func TestTickSkipsInFlightTracker(t *testing.T) {
	tracker := models.CompetitorTracker{ID: uuid.New(), CanonicalURL: "https://shop.example.com/p/2"}
	lister := &fakeTrackerLister{due: []models.CompetitorTracker{tracker}}
	enq := &fakeEnqueuer{}
	rdb := newTestRedis(t)

	s := New(lister, enq, rdb, Config{FailureStreakLimit: 3, BatchLimit: 10})
	ctx := context.Background()

	if err := s.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	firstCount := len(enq.jobs)

	if err := s.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(enq.jobs) != firstCount {
		t.Errorf("expected second tick to skip in-flight tracker, jobs went from %d to %d", firstCount, len(enq.jobs))
	}
}
