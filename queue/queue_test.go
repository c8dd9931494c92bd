package queue

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/google/uuid"

	"pricewatch/models"
)

func TestBackoffPolicyDelayBounds(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 30 * time.Second}

	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Delay(attempt, false)
		if d <= 0 {
			t.Fatalf("attempt %d: delay must be positive, got %v", attempt, d)
		}
		if d > p.Max {
			t.Errorf("attempt %d: delay %v exceeds max %v", attempt, d, p.Max)
		}
	}
}

func TestBackoffPolicyDelayGrows(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: time.Minute}

	d1 := p.Delay(1, false)
	d4 := p.Delay(4, false)
	if d4 <= d1 {
		t.Errorf("expected delay to grow with attempt: d1=%v d4=%v", d1, d4)
	}
}

func TestBackoffPolicyDelayHardFailUsesSmallerCeiling(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: time.Hour, HardMax: 10 * time.Second}

	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Delay(attempt, true)
		if d > p.HardMax {
			t.Errorf("attempt %d: hard-fail delay %v exceeds HardMax %v", attempt, d, p.HardMax)
		}
	}
}

// newTestQueue connects to a local Redis instance if REDIS_ADDR is set,
// and skips otherwise. These exercise the real enqueue/reserve/ack/nack
// state machine against a live server.
func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping live queue test")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, BackoffPolicy{Base: time.Millisecond, Max: time.Second})
}

func TestQueueEnqueueReserveAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := models.ScrapeJob{
		ID:          uuid.New(),
		TrackerID:   uuid.New(),
		ProductID:   uuid.New(),
		URL:         "https://shop.example.com/p/1",
		Attempt:     1,
		MaxAttempts: 3,
	}
	if err := q.Enqueue(ctx, job, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	reserved, err := q.Reserve(ctx, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserved == nil || reserved.ID != job.ID {
		t.Fatalf("reserve returned %+v, want job %v", reserved, job.ID)
	}

	if err := q.Ack(ctx, job.ID.String()); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestQueueNackReschedules(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := models.ScrapeJob{ID: uuid.New(), Attempt: 1, MaxAttempts: 3}
	if err := q.Enqueue(ctx, job, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	reserved, err := q.Reserve(ctx, time.Minute)
	if err != nil || reserved == nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := q.Nack(ctx, *reserved, false); err != nil {
		t.Fatalf("nack: %v", err)
	}

	// immediately due check should be empty since nack schedules a future delay
	again, err := q.Reserve(ctx, time.Minute)
	if err != nil {
		t.Fatalf("reserve after nack: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no job due immediately after nack, got %+v", again)
	}
}

func TestQueueMoveToDLQ(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := models.ScrapeJob{ID: uuid.New(), Attempt: 3, MaxAttempts: 3}
	if err := q.Enqueue(ctx, job, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	reserved, err := q.Reserve(ctx, time.Minute)
	if err != nil || reserved == nil {
		t.Fatalf("reserve: %v", err)
	}

	before, err := q.DLQLen(ctx)
	if err != nil {
		t.Fatalf("dlq len: %v", err)
	}
	if err := q.MoveToDLQ(ctx, *reserved, "TIMEOUT", "gave up after 3 attempts"); err != nil {
		t.Fatalf("move to dlq: %v", err)
	}
	after, err := q.DLQLen(ctx)
	if err != nil {
		t.Fatalf("dlq len: %v", err)
	}
	if after != before+1 {
		t.Errorf("dlq len = %d, want %d", after, before+1)
	}
}
