// Package repository defines the persistence collaborator consumed by the
// decision pipeline. Implementations live in repository/postgres; tests use
// in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// Businesses is the business persistence boundary.
type Businesses interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	FindByStatus(ctx context.Context, status domain.BusinessStatus) ([]domain.Business, error)
	// FindActive returns active businesses that have metrics recorded since
	// the given instant; businesses with no recent data are skipped by the
	// automation cycle.
	FindActive(ctx context.Context, withMetricsSince time.Time) ([]domain.Business, error)
	// Update applies a partial update; keys are column names.
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
	Insert(ctx context.Context, b *domain.Business) error
}

// Campaigns is the campaign persistence boundary.
type Campaigns interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	FindByBusiness(ctx context.Context, businessID uuid.UUID, status domain.CampaignStatus) ([]domain.Campaign, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Insert(ctx context.Context, c *domain.Campaign) error
}

// Metrics is the campaign metrics persistence boundary.
type Metrics interface {
	Insert(ctx context.Context, campaignID uuid.UUID, day time.Time, m domain.RawMetrics) error
	// SumWindow aggregates raw metrics for one campaign over [from, to).
	SumWindow(ctx context.Context, campaignID uuid.UUID, from, to time.Time) (domain.RawMetrics, error)
}
