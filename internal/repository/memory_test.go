package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpilot/internal/domain"
)

func seedBusinessWithCampaign(t *testing.T, businesses *MemoryBusinesses, campaigns *MemoryCampaigns) (*domain.Business, *domain.Campaign) {
	t.Helper()
	ctx := context.Background()

	b := &domain.Business{Name: "Harborview Coffee", Status: domain.BusinessActive, MonthlyPrice: 99}
	require.NoError(t, businesses.Insert(ctx, b))

	c := &domain.Campaign{BusinessID: b.ID, Platform: "memory", Name: "launch", Status: domain.CampaignActive}
	require.NoError(t, campaigns.Insert(ctx, c))
	return b, c
}

func TestFindActiveSeesBusinessesWithFreshMetrics(t *testing.T) {
	ctx := context.Background()
	businesses := NewMemoryBusinesses()
	campaigns := NewMemoryCampaigns()
	metrics := NewMemoryMetrics()
	metrics.BindActivity(campaigns, businesses)

	b, c := seedBusinessWithCampaign(t, businesses, campaigns)
	since := time.Now().UTC().AddDate(0, 0, -7)

	// No metrics collected yet: the business is invisible to the
	// automation sweep.
	active, err := businesses.FindActive(ctx, since)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = metrics.Insert(ctx, c.ID, time.Now().UTC(), domain.RawMetrics{Impressions: 1000, Clicks: 30, Spend: 12})
	require.NoError(t, err)

	active, err = businesses.FindActive(ctx, since)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestFindActiveIgnoresStaleMetrics(t *testing.T) {
	ctx := context.Background()
	businesses := NewMemoryBusinesses()
	campaigns := NewMemoryCampaigns()
	metrics := NewMemoryMetrics()
	metrics.BindActivity(campaigns, businesses)

	_, c := seedBusinessWithCampaign(t, businesses, campaigns)

	// Metrics older than the recency window don't qualify.
	err := metrics.Insert(ctx, c.ID, time.Now().UTC().AddDate(0, 0, -30), domain.RawMetrics{Impressions: 500})
	require.NoError(t, err)

	active, err := businesses.FindActive(ctx, time.Now().UTC().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFindActiveExcludesClosedBusinesses(t *testing.T) {
	ctx := context.Background()
	businesses := NewMemoryBusinesses()
	campaigns := NewMemoryCampaigns()
	metrics := NewMemoryMetrics()
	metrics.BindActivity(campaigns, businesses)

	b, c := seedBusinessWithCampaign(t, businesses, campaigns)
	require.NoError(t, metrics.Insert(ctx, c.ID, time.Now().UTC(), domain.RawMetrics{Impressions: 100}))

	require.NoError(t, businesses.Update(ctx, b.ID, map[string]interface{}{
		"status":         string(domain.BusinessClosed),
		"closure_reason": "sustained losses",
	}))

	active, err := businesses.FindActive(ctx, time.Now().UTC().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSumWindowBounds(t *testing.T) {
	ctx := context.Background()
	metrics := NewMemoryMetrics()
	campaigns := NewMemoryCampaigns()
	c := &domain.Campaign{Platform: "memory", Name: "w", Status: domain.CampaignActive}
	require.NoError(t, campaigns.Insert(ctx, c))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	require.NoError(t, metrics.Insert(ctx, c.ID, today, domain.RawMetrics{Clicks: 5}))
	require.NoError(t, metrics.Insert(ctx, c.ID, today.AddDate(0, 0, -1), domain.RawMetrics{Clicks: 7}))
	require.NoError(t, metrics.Insert(ctx, c.ID, today.AddDate(0, 0, -20), domain.RawMetrics{Clicks: 100}))

	sum, err := metrics.SumWindow(ctx, c.ID, today.AddDate(0, 0, -14), today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(12), sum.Clicks)
}
