package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pricewatch/models"
)

// PriceHistoryStore owns PricePoint rows exclusively: an append-only log,
// never updated or deleted.
type PriceHistoryStore struct {
	pool *pgxpool.Pool
}

func NewPriceHistoryStore(pool *pgxpool.Pool) *PriceHistoryStore {
	return &PriceHistoryStore{pool: pool}
}

// Append writes one PricePoint. Per the ordering guarantee, appended
// points for the same (product_id, tracker_id) are observable in
// non-decreasing captured_at order to any reader that queries after this
// call returns.
func (s *PriceHistoryStore) Append(ctx context.Context, p models.PricePoint) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CapturedAt.IsZero() {
		p.CapturedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_points
			(uid, product_id, tracker_id, competitor_name, price_cents, currency, captured_at, source, adapter_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		p.ID, p.ProductID, p.TrackerID, p.CompetitorName, p.PriceCents,
		p.Currency, p.CapturedAt, string(p.Source), p.AdapterID,
	)
	if err != nil {
		return fmt.Errorf("store: append price point: %w", err)
	}
	return nil
}

// Range returns PricePoints for a tracker captured within [from, to],
// ordered oldest first.
func (s *PriceHistoryStore) Range(ctx context.Context, trackerID uuid.UUID, from, to time.Time) ([]models.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, product_id, tracker_id, competitor_name, price_cents, currency, captured_at, source, adapter_id
		FROM price_points
		WHERE tracker_id = $1 AND captured_at >= $2 AND captured_at <= $3
		ORDER BY captured_at ASC
	`, trackerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: range query: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// RangeByProduct returns PricePoints across every tracker belonging to
// product_id, captured within [from, to], ordered oldest first. The Rule
// Engine uses this to build its recent_history_window.
func (s *PriceHistoryStore) RangeByProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]models.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, product_id, tracker_id, competitor_name, price_cents, currency, captured_at, source, adapter_id
		FROM price_points
		WHERE product_id = $1 AND captured_at >= $2 AND captured_at <= $3
		ORDER BY captured_at ASC
	`, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: range by product query: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// Latest returns the most recent PricePoint per tracker among trackerIDs.
func (s *PriceHistoryStore) Latest(ctx context.Context, trackerIDs []uuid.UUID) (map[uuid.UUID]models.PricePoint, error) {
	if len(trackerIDs) == 0 {
		return map[uuid.UUID]models.PricePoint{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (tracker_id)
			uid, product_id, tracker_id, competitor_name, price_cents, currency, captured_at, source, adapter_id
		FROM price_points
		WHERE tracker_id = ANY($1)
		ORDER BY tracker_id, captured_at DESC
	`, trackerIDs)
	if err != nil {
		return nil, fmt.Errorf("store: latest query: %w", err)
	}
	defer rows.Close()

	points, err := scanPricePoints(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]models.PricePoint, len(points))
	for _, p := range points {
		out[p.TrackerID] = p
	}
	return out, nil
}

// CompactBefore deletes PricePoints captured strictly before cutoff.
// Retention is a separate concern from history semantics; nothing in the
// ingestion pipeline or the CLI calls this hook, so history is retained
// indefinitely unless a caller invokes it.
func (s *PriceHistoryStore) CompactBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM price_points WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: compact before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func scanPricePoints(rows pgx.Rows) ([]models.PricePoint, error) {
	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		var source string
		if err := rows.Scan(
			&p.ID, &p.ProductID, &p.TrackerID, &p.CompetitorName, &p.PriceCents,
			&p.Currency, &p.CapturedAt, &source, &p.AdapterID,
		); err != nil {
			return nil, fmt.Errorf("store: scan price point: %w", err)
		}
		p.Source = models.ExtractedFrom(source)
		points = append(points, p)
	}
	return points, rows.Err()
}
