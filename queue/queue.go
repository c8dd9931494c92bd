// Package queue implements the durable Job Queue and its Dead-Letter
// Queue on top of Redis: enqueue/reserve/ack/nack/move-to-DLQ with a
// visibility timeout for crash safety, per the job queue contract.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"

	"pricewatch/metrics"
	"pricewatch/models"
)

const (
	readyKey    = "pricewatch:jobs:ready"
	reservedKey = "pricewatch:jobs:reserved"
	dataKey     = "pricewatch:jobs:data"
	dlqKey      = "pricewatch:jobs:dlq"
)

// BackoffPolicy configures the exponential-backoff-with-jitter retry
// delay: min(max, base*2^(attempt-1)) +/- 20%. HardMax, when set, caps
// retries of a HardFail outcome at a smaller ceiling than Max.
type BackoffPolicy struct {
	Base    time.Duration
	Max     time.Duration
	HardMax time.Duration
}

// Queue is the Redis-backed Job Queue.
type Queue struct {
	rdb     *goredis.Client
	policy  BackoffPolicy
	metrics *metrics.Registry
}

func New(rdb *goredis.Client, policy BackoffPolicy) *Queue {
	return &Queue{rdb: rdb, policy: policy}
}

// WithMetrics attaches a metrics registry that Enqueue and MoveToDLQ
// record against; nil disables recording.
func (q *Queue) WithMetrics(m *metrics.Registry) *Queue {
	q.metrics = m
	return q
}

// DLQEntry records a job that exhausted retries or hit a non-retryable
// failure, inspectable but never automatically retried.
type DLQEntry struct {
	Job     models.ScrapeJob `json:"job"`
	Kind    string           `json:"kind"`
	Detail  string           `json:"detail"`
	MovedAt time.Time        `json:"moved_at"`
}

// Enqueue places a job on the ready queue, visible at notBefore (or
// immediately if zero).
func (q *Queue) Enqueue(ctx context.Context, job models.ScrapeJob, notBefore time.Time) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	if notBefore.IsZero() {
		notBefore = time.Now()
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, dataKey, job.ID.String(), raw)
	pipe.ZAdd(ctx, readyKey, goredis.Z{Score: float64(notBefore.Unix()), Member: job.ID.String()})
	if _, err = pipe.Exec(ctx); err != nil {
		return err
	}
	if q.metrics != nil {
		q.metrics.JobsEnqueued.WithLabelValues(string(job.Origin)).Inc()
	}
	return nil
}

// Reserve pulls the earliest due job and holds it invisible for
// visibilityTimeout. Returns nil, nil when no job is due. Requeues any
// reserved job whose visibility has expired before attempting to reserve
// a new one, giving crash safety.
func (q *Queue) Reserve(ctx context.Context, visibilityTimeout time.Duration) (*models.ScrapeJob, error) {
	if err := q.requeueExpired(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	ids, err := q.rdb.ZRangeByScore(ctx, readyKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	jobID := ids[0]

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, readyKey, jobID)
	pipe.ZAdd(ctx, reservedKey, goredis.Z{Score: float64(now.Add(visibilityTimeout).Unix()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raw, err := q.rdb.HGet(ctx, dataKey, jobID).Result()
	if err != nil {
		return nil, err
	}
	var job models.ScrapeJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// Ack removes a successfully processed job from the queue entirely.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, reservedKey, jobID)
	pipe.HDel(ctx, dataKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// Nack returns a job to the ready queue after the computed backoff delay
// for its (now incremented) attempt. hardFail selects the smaller HardMax
// backoff ceiling; pass false for SoftFail (and rate-governor) retries.
func (q *Queue) Nack(ctx context.Context, job models.ScrapeJob, hardFail bool) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	delay := q.policy.Delay(job.Attempt, hardFail)
	notBefore := time.Now().Add(delay)

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, reservedKey, job.ID.String())
	pipe.HSet(ctx, dataKey, job.ID.String(), raw)
	pipe.ZAdd(ctx, readyKey, goredis.Z{Score: float64(notBefore.Unix()), Member: job.ID.String()})
	_, err = pipe.Exec(ctx)
	return err
}

// MoveToDLQ removes the job from the active queue and records it as a
// terminal, inspectable failure.
func (q *Queue) MoveToDLQ(ctx context.Context, job models.ScrapeJob, kind, detail string) error {
	entry := DLQEntry{Job: job, Kind: kind, Detail: detail, MovedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: marshal dlq entry: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, reservedKey, job.ID.String())
	pipe.ZRem(ctx, readyKey, job.ID.String())
	pipe.HDel(ctx, dataKey, job.ID.String())
	pipe.HSet(ctx, dlqKey, job.ID.String(), raw)
	if _, err = pipe.Exec(ctx); err != nil {
		return err
	}

	if q.metrics != nil {
		if n, err := q.DLQLen(ctx); err == nil {
			q.metrics.DLQSize.Set(float64(n))
		}
	}
	return nil
}

// DLQLen reports the number of entries sitting in the dead-letter queue.
func (q *Queue) DLQLen(ctx context.Context) (int64, error) {
	return q.rdb.HLen(ctx, dlqKey).Result()
}

func (q *Queue) requeueExpired(ctx context.Context) error {
	now := time.Now().Unix()
	ids, err := q.rdb.ZRangeByScore(ctx, reservedKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, reservedKey, id)
		pipe.ZAdd(ctx, readyKey, goredis.Z{Score: float64(now), Member: id})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Delay computes min(cap, base*2^(attempt-1)) with +/-20% jitter, using an
// exponential backoff generator seeded at base and capped at cap so the
// randomization matches the configured bound. hardFail selects HardMax
// (when set and smaller than Max) as the cap, giving HardFail retries a
// tighter ceiling than SoftFail retries.
func (p BackoffPolicy) Delay(attempt int, hardFail bool) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	ceiling := p.Max
	if hardFail && p.HardMax > 0 && p.HardMax < ceiling {
		ceiling = p.HardMax
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = ceiling
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}
