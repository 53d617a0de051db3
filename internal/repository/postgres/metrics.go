package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// Metrics is the PostgreSQL campaign metrics repository. One row per
// campaign per day; collection upserts so re-runs are safe.
type Metrics struct {
	db *sql.DB
}

// NewMetrics creates the repository on an open handle.
func NewMetrics(db *sql.DB) *Metrics {
	return &Metrics{db: db}
}

func (r *Metrics) Insert(ctx context.Context, campaignID uuid.UUID, day time.Time, m domain.RawMetrics) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_metrics (campaign_id, day, impressions, clicks, conversions, spend)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id, day) DO UPDATE
		SET impressions = $3, clicks = $4, conversions = $5, spend = $6
	`, campaignID, day.UTC().Truncate(24*time.Hour), m.Impressions, m.Clicks, m.Conversions, m.Spend)
	if err != nil {
		return domain.Transient(fmt.Errorf("inserting metrics for %s: %w", campaignID, err))
	}
	return nil
}

// DeleteOlderThan removes metric rows before the cutoff, returning the
// number deleted. Used by the nightly cleanup job.
func (r *Metrics) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaign_metrics WHERE day < $1
	`, before)
	if err != nil {
		return 0, domain.Transient(fmt.Errorf("pruning metrics: %w", err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SumWindow aggregates raw metrics for one campaign over [from, to). A
// campaign with no rows in the window sums to all zeros, not an error.
func (r *Metrics) SumWindow(ctx context.Context, campaignID uuid.UUID, from, to time.Time) (domain.RawMetrics, error) {
	var m domain.RawMetrics
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(impressions), 0), COALESCE(SUM(clicks), 0),
		       COALESCE(SUM(conversions), 0), COALESCE(SUM(spend), 0)
		FROM campaign_metrics
		WHERE campaign_id = $1 AND day >= $2 AND day < $3
	`, campaignID, from, to).Scan(&m.Impressions, &m.Clicks, &m.Conversions, &m.Spend)
	if err != nil && err != sql.ErrNoRows {
		return domain.RawMetrics{}, domain.Transient(fmt.Errorf("summing metrics for %s: %w", campaignID, err))
	}
	return m, nil
}
