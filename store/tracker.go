package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pricewatch/models"
)

// ErrVersionConflict is returned by UpdateAfterScrape when the tracker's version in
// the database no longer matches the caller's expected version: someone
// else updated it concurrently.
var ErrVersionConflict = errors.New("store: tracker version conflict")

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// TrackerStore owns CompetitorTracker rows exclusively.
type TrackerStore struct {
	pool *pgxpool.Pool
}

func NewTrackerStore(pool *pgxpool.Pool) *TrackerStore {
	return &TrackerStore{pool: pool}
}

// CreateOrGet enforces the (product_id, canonical_url) uniqueness
// invariant among active trackers: returns the existing tracker and
// created=false if one is already there, otherwise inserts and returns
// created=true.
func (s *TrackerStore) CreateOrGet(ctx context.Context, t models.CompetitorTracker) (models.CompetitorTracker, bool, error) {
	existing, err := s.findByProductAndURL(ctx, t.ProductID, t.CanonicalURL)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.CompetitorTracker{}, false, err
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.LastStatus == "" {
		t.LastStatus = models.TrackerNew
	}
	t.Version = 1

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trackers
			(uid, product_id, competitor_name, raw_url, canonical_url, active,
			 last_currency, last_status, failure_streak, interval_override_seconds, notes, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		t.ID, t.ProductID, t.CompetitorName, t.RawURL, t.CanonicalURL, t.Active,
		t.LastCurrency, string(t.LastStatus), t.FailureStreak, intervalOverrideSeconds(t.IntervalOverride), t.Notes, t.Version,
	)
	if err != nil {
		// A concurrent insert may have won the race against the active
		// uniqueness index; fall back to reading what's there now.
		if existing, getErr := s.findByProductAndURL(ctx, t.ProductID, t.CanonicalURL); getErr == nil {
			return existing, false, nil
		}
		return models.CompetitorTracker{}, false, fmt.Errorf("store: create tracker: %w", err)
	}
	return t, true, nil
}

func (s *TrackerStore) findByProductAndURL(ctx context.Context, productID uuid.UUID, canonicalURL string) (models.CompetitorTracker, error) {
	row := s.pool.QueryRow(ctx, trackerSelectColumns+`
		FROM trackers
		WHERE product_id = $1 AND canonical_url = $2 AND active
	`, productID, canonicalURL)
	return scanTracker(row)
}

// Get fetches a tracker by its id.
func (s *TrackerStore) Get(ctx context.Context, id uuid.UUID) (models.CompetitorTracker, error) {
	row := s.pool.QueryRow(ctx, trackerSelectColumns+`
		FROM trackers
		WHERE uid = $1
	`, id)
	return scanTracker(row)
}

// ScrapeOutcomeSummary carries what the Worker Pool needs to apply the
// tracker state transition after a scrape attempt.
type ScrapeOutcomeSummary struct {
	Success      bool
	PriceCents   int64
	Currency     string
	Status       models.TrackerStatus
	CheckedAt    time.Time
}

// UpdateAfterScrape applies the worker-pool state transitions: on
// success, last_price/last_currency/last_checked_at/last_status=OK and
// failure_streak reset to 0; on failure, last_checked_at/last_status
// update and failure_streak increments. Uses optimistic concurrency: the
// caller must re-Get and retry on ErrVersionConflict.
func (s *TrackerStore) UpdateAfterScrape(ctx context.Context, trackerID uuid.UUID, expectedVersion int64, summary ScrapeOutcomeSummary) error {
	var tag pgconn.CommandTag
	var err error

	if summary.Success {
		tag, err = s.pool.Exec(ctx, `
			UPDATE trackers
			SET last_price_cents = $1, last_currency = $2, last_checked_at = $3,
			    last_status = $4, failure_streak = 0, version = version + 1
			WHERE uid = $5 AND version = $6
		`, summary.PriceCents, summary.Currency, summary.CheckedAt, string(summary.Status), trackerID, expectedVersion)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE trackers
			SET last_checked_at = $1, last_status = $2, failure_streak = failure_streak + 1, version = version + 1
			WHERE uid = $3 AND version = $4
		`, summary.CheckedAt, string(summary.Status), trackerID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("store: update after scrape: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// MarkDead transitions a tracker to DEAD once its failure streak reaches
// the configured limit. The scheduler stops enqueuing for a DEAD
// tracker until a human action or a successful manual scrape clears it.
func (s *TrackerStore) MarkDead(ctx context.Context, trackerID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trackers SET last_status = $1, version = version + 1 WHERE uid = $2
	`, string(models.TrackerDead), trackerID)
	if err != nil {
		return fmt.Errorf("store: mark dead: %w", err)
	}
	return nil
}

// Revive clears DEAD status and resets the failure streak, per a human
// action or a successful manual scrape.
func (s *TrackerStore) Revive(ctx context.Context, trackerID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trackers SET last_status = $1, failure_streak = 0, version = version + 1 WHERE uid = $2
	`, string(models.TrackerOK), trackerID)
	if err != nil {
		return fmt.Errorf("store: revive tracker: %w", err)
	}
	return nil
}

// ListDue returns active, non-DEAD trackers whose effective interval has
// elapsed (or that have never been checked), up to limit rows.
func (s *TrackerStore) ListDue(ctx context.Context, now time.Time, defaultInterval time.Duration, limit int) ([]models.CompetitorTracker, error) {
	rows, err := s.pool.Query(ctx, trackerSelectColumns+`
		FROM trackers
		WHERE active
		  AND last_status <> $1
		  AND (
		    last_checked_at IS NULL
		    OR last_checked_at + COALESCE(interval_override_seconds, $2) * INTERVAL '1 second' <= $3
		  )
		ORDER BY last_checked_at ASC NULLS FIRST
		LIMIT $4
	`, string(models.TrackerDead), int64(defaultInterval.Seconds()), now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list due: %w", err)
	}
	defer rows.Close()

	var out []models.CompetitorTracker
	for rows.Next() {
		t, err := scanTrackerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const trackerSelectColumns = `
	SELECT uid, product_id, competitor_name, raw_url, canonical_url, active,
	       last_price_cents, last_currency, last_checked_at, last_status,
	       failure_streak, interval_override_seconds, notes, version
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracker(row rowScanner) (models.CompetitorTracker, error) {
	return scanTrackerRow(row)
}

func scanTrackerRow(row rowScanner) (models.CompetitorTracker, error) {
	var t models.CompetitorTracker
	var status string
	var intervalSeconds *int64

	err := row.Scan(
		&t.ID, &t.ProductID, &t.CompetitorName, &t.RawURL, &t.CanonicalURL, &t.Active,
		&t.LastPrice, &t.LastCurrency, &t.LastCheckedAt, &status,
		&t.FailureStreak, &intervalSeconds, &t.Notes, &t.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CompetitorTracker{}, ErrNotFound
		}
		return models.CompetitorTracker{}, fmt.Errorf("store: scan tracker: %w", err)
	}
	t.LastStatus = models.TrackerStatus(status)
	if intervalSeconds != nil {
		d := time.Duration(*intervalSeconds) * time.Second
		t.IntervalOverride = &d
	}
	return t, nil
}

func intervalOverrideSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Seconds())
	return &s
}
