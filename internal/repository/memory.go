package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// MemoryBusinesses is an in-process Businesses implementation used when no
// database is configured (local development) and in tests.
type MemoryBusinesses struct {
	mu         sync.RWMutex
	businesses map[uuid.UUID]domain.Business
	metricDays map[uuid.UUID]time.Time // latest metric day per business
}

// NewMemoryBusinesses creates an empty in-memory business repository.
func NewMemoryBusinesses() *MemoryBusinesses {
	return &MemoryBusinesses{
		businesses: make(map[uuid.UUID]domain.Business),
		metricDays: make(map[uuid.UUID]time.Time),
	}
}

// TouchMetrics records that a business has metrics as of the given day.
func (r *MemoryBusinesses) TouchMetrics(businessID uuid.UUID, day time.Time) {
	r.mu.Lock()
	if day.After(r.metricDays[businessID]) {
		r.metricDays[businessID] = day
	}
	r.mu.Unlock()
}

func (r *MemoryBusinesses) FindByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r *MemoryBusinesses) FindByStatus(ctx context.Context, status domain.BusinessStatus) ([]domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Business
	for _, b := range r.businesses {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *MemoryBusinesses) FindActive(ctx context.Context, withMetricsSince time.Time) ([]domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Business
	for _, b := range r.businesses {
		if b.Status != domain.BusinessActive {
			continue
		}
		if day, ok := r.metricDays[b.ID]; !ok || day.Before(withMetricsSince) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *MemoryBusinesses) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			if s, ok := v.(string); ok {
				b.Status = domain.BusinessStatus(s)
			}
		case "closure_reason":
			if s, ok := v.(string); ok {
				b.ClosureReason = s
			}
		case "monthly_price":
			if f, ok := v.(float64); ok {
				b.MonthlyPrice = f
			}
		case "name":
			if s, ok := v.(string); ok {
				b.Name = s
			}
		}
	}
	b.UpdatedAt = time.Now().UTC()
	r.businesses[id] = b
	return nil
}

func (r *MemoryBusinesses) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.businesses {
		if b.OwnerID == ownerID && b.Status != domain.BusinessClosed {
			n++
		}
	}
	return n, nil
}

func (r *MemoryBusinesses) Insert(ctx context.Context, b *domain.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	r.businesses[b.ID] = *b
	return nil
}

// MemoryCampaigns is the in-process Campaigns implementation.
type MemoryCampaigns struct {
	mu        sync.RWMutex
	campaigns map[uuid.UUID]domain.Campaign
}

// NewMemoryCampaigns creates an empty in-memory campaign repository.
func NewMemoryCampaigns() *MemoryCampaigns {
	return &MemoryCampaigns{campaigns: make(map[uuid.UUID]domain.Campaign)}
}

func (r *MemoryCampaigns) FindByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *MemoryCampaigns) FindByBusiness(ctx context.Context, businessID uuid.UUID, status domain.CampaignStatus) ([]domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.BusinessID == businessID && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryCampaigns) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			if s, ok := v.(string); ok {
				c.Status = domain.CampaignStatus(s)
			}
		case "daily_budget":
			if f, ok := v.(float64); ok {
				c.DailyBudget = f
			}
		case "target_cpa":
			if f, ok := v.(float64); ok {
				c.TargetCPA = f
			}
		}
	}
	c.UpdatedAt = time.Now().UTC()
	r.campaigns[id] = c
	return nil
}

func (r *MemoryCampaigns) Insert(ctx context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.campaigns[c.ID] = *c
	return nil
}

// MemoryMetrics is the in-process Metrics implementation.
type MemoryMetrics struct {
	mu         sync.RWMutex
	rows       map[uuid.UUID]map[time.Time]domain.RawMetrics
	campaigns  *MemoryCampaigns
	businesses *MemoryBusinesses
}

// NewMemoryMetrics creates an empty in-memory metrics repository.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{rows: make(map[uuid.UUID]map[time.Time]domain.RawMetrics)}
}

// BindActivity makes inserts mark the owning business as having fresh
// metrics. In Postgres FindActive joins campaign_metrics directly; the
// in-memory stores are separate maps, so without this binding FindActive
// would never see any business.
func (r *MemoryMetrics) BindActivity(campaigns *MemoryCampaigns, businesses *MemoryBusinesses) {
	r.mu.Lock()
	r.campaigns = campaigns
	r.businesses = businesses
	r.mu.Unlock()
}

func (r *MemoryMetrics) Insert(ctx context.Context, campaignID uuid.UUID, day time.Time, m domain.RawMetrics) error {
	day = day.UTC().Truncate(24 * time.Hour)
	r.mu.Lock()
	if r.rows[campaignID] == nil {
		r.rows[campaignID] = make(map[time.Time]domain.RawMetrics)
	}
	r.rows[campaignID][day] = m
	campaigns, businesses := r.campaigns, r.businesses
	r.mu.Unlock()

	if campaigns != nil && businesses != nil {
		if c, err := campaigns.FindByID(ctx, campaignID); err == nil {
			businesses.TouchMetrics(c.BusinessID, day)
		}
	}
	return nil
}

func (r *MemoryMetrics) SumWindow(ctx context.Context, campaignID uuid.UUID, from, to time.Time) (domain.RawMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum domain.RawMetrics
	for day, m := range r.rows[campaignID] {
		if day.Before(from) || !day.Before(to) {
			continue
		}
		sum.Impressions += m.Impressions
		sum.Clicks += m.Clicks
		sum.Conversions += m.Conversions
		sum.Spend += m.Spend
	}
	return sum, nil
}

// DeleteOlderThan removes metric rows before the cutoff.
func (r *MemoryMetrics) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, days := range r.rows {
		for day := range days {
			if day.Before(before) {
				delete(days, day)
				n++
			}
		}
		if len(days) == 0 {
			delete(r.rows, id)
		}
	}
	return n, nil
}
