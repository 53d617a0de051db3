package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// Campaigns is the PostgreSQL campaign repository.
type Campaigns struct {
	db *sql.DB
}

// NewCampaigns creates the repository on an open handle.
func NewCampaigns(db *sql.DB) *Campaigns {
	return &Campaigns{db: db}
}

const campaignColumns = `id, business_id, platform, external_id, name, status, daily_budget, target_cpa, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(&c.ID, &c.BusinessID, &c.Platform, &c.ExternalID, &c.Name,
		&c.Status, &c.DailyBudget, &c.TargetCPA, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Campaigns) FindByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+` FROM campaigns WHERE id = $1
	`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("loading campaign %s: %w", id, err))
	}
	return c, nil
}

func (r *Campaigns) FindByBusiness(ctx context.Context, businessID uuid.UUID, status domain.CampaignStatus) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE business_id = $1 AND status = $2 ORDER BY created_at
	`, businessID, string(status))
	if err != nil {
		return nil, domain.Transient(err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Campaigns) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	query, args, err := buildUpdate("campaigns", id, fields)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Transient(fmt.Errorf("updating campaign %s: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Campaigns) Insert(ctx context.Context, c *domain.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, business_id, platform, external_id, name, status, daily_budget, target_cpa, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.BusinessID, c.Platform, c.ExternalID, c.Name, string(c.Status),
		c.DailyBudget, c.TargetCPA, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Transient(fmt.Errorf("inserting campaign: %w", err))
	}
	return nil
}
