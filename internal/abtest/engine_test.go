package abtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/platform"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeCampaigns struct {
	campaigns map[uuid.UUID]domain.Campaign
}

func (f *fakeCampaigns) FindByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCampaigns) FindByBusiness(ctx context.Context, businessID uuid.UUID, status domain.CampaignStatus) ([]domain.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaigns) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return nil
}
func (f *fakeCampaigns) Insert(ctx context.Context, c *domain.Campaign) error { return nil }

// ── fixtures ─────────────────────────────────────────────────────────────────

type testHarness struct {
	engine   *Engine
	adapter  *platform.MemoryAdapter
	campaign domain.Campaign
	clock    time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	campaign := domain.Campaign{
		ID:         uuid.New(),
		BusinessID: uuid.New(),
		Platform:   "memory",
		ExternalID: "ext-test-1",
		Name:       "Launch Campaign",
		Status:     domain.CampaignActive,
	}

	adapter := platform.NewMemoryAdapter()
	adapter.SeedCampaign(campaign.ExternalID)
	registry := platform.NewRegistry()
	registry.Register("memory", adapter)

	campaigns := &fakeCampaigns{campaigns: map[uuid.UUID]domain.Campaign{campaign.ID: campaign}}

	h := &testHarness{
		adapter:  adapter,
		campaign: campaign,
		clock:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	h.engine = New(NewMemoryStore(), campaigns, registry, DefaultConfig())
	h.engine.now = func() time.Time { return h.clock }
	return h
}

func (h *testHarness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func twoVariantSetup(h *testHarness, splitA, splitB float64) Setup {
	return Setup{
		CampaignID:    h.campaign.ID,
		Type:          TestCreative,
		SuccessMetric: MetricCTR,
		DurationDays:  7,
		Variants: []VariantSetup{
			{Name: "A", Config: platform.VariantConfig{"headline": "Buy now"}, TrafficPercentage: splitA},
			{Name: "B", Config: platform.VariantConfig{"headline": "Learn more"}, TrafficPercentage: splitB},
		},
	}
}

// seedVariantMetrics publishes platform metrics for each variant arm.
func (h *testHarness) seedVariantMetrics(test *Test, metrics ...domain.RawMetrics) {
	for i, m := range metrics {
		h.adapter.SeedMetrics(variantMetricsKey(h.campaign.ExternalID, test.Variants[i].ID), m)
	}
}

// ── creation ─────────────────────────────────────────────────────────────────

func TestCreateTestRejectsBadTrafficSplit(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 60, 50))
	require.Error(t, err)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.False(t, domain.IsRetryable(err))
}

func TestCreateTestRejectsSingleVariant(t *testing.T) {
	h := newHarness(t)

	setup := twoVariantSetup(h, 100, 0)
	setup.Variants = setup.Variants[:1]
	_, err := h.engine.CreateTest(context.Background(), setup)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateTestAppliesTrafficSplit(t *testing.T) {
	h := newHarness(t)

	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 60, 40))
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, test.Status)
	require.Len(t, test.Variants, 2)

	alloc := h.adapter.TrafficSplits[h.campaign.ExternalID]
	require.Len(t, alloc, 2)
	assert.InDelta(t, 60, alloc[test.Variants[0].ID], 0.001)
	assert.InDelta(t, 40, alloc[test.Variants[1].ID], 0.001)

	active, err := h.engine.ActiveTests(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateTestUnknownCampaign(t *testing.T) {
	h := newHarness(t)

	setup := twoVariantSetup(h, 50, 50)
	setup.CampaignID = uuid.New()
	_, err := h.engine.CreateTest(context.Background(), setup)
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
}

// ── analysis ─────────────────────────────────────────────────────────────────

func TestAnalyzeDetectsSignificantWinner(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)

	// A: 3% CTR on 2000 impressions. B: 2% CTR on 2000 impressions.
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 60, Conversions: 5, Spend: 80},
		domain.RawMetrics{Impressions: 2000, Clicks: 40, Conversions: 3, Spend: 80},
	)

	analysis, err := h.engine.AnalyzeTest(context.Background(), test.ID)
	require.NoError(t, err)

	assert.True(t, analysis.Significant)
	assert.Equal(t, test.Variants[0].ID, analysis.BestID)
	assert.InDelta(t, 0.50, analysis.Improvement, 0.001)
	assert.GreaterOrEqual(t, analysis.Confidence, 0.85)
	assert.LessOrEqual(t, analysis.Confidence, 0.95)
	assert.Equal(t, StatusRunning, analysis.Status, "duration has not elapsed yet")
}

func TestAnalyzeInsufficientSampleNotSignificant(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)

	// Big relative gap but B is under the sample floor.
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 60},
		domain.RawMetrics{Impressions: 500, Clicks: 10},
	)

	analysis, err := h.engine.AnalyzeTest(context.Background(), test.ID)
	require.NoError(t, err)
	assert.False(t, analysis.Significant)
	assert.Less(t, analysis.Confidence, 0.85)
}

func TestAnalyzeMarksInconclusiveAfterDuration(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)

	// Near-identical arms, duration elapsed.
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 41},
		domain.RawMetrics{Impressions: 2000, Clicks: 40},
	)
	h.advance(8 * 24 * time.Hour)

	analysis, err := h.engine.AnalyzeTest(context.Background(), test.ID)
	require.NoError(t, err)
	assert.False(t, analysis.Significant)
	assert.Equal(t, StatusInconclusive, analysis.Status)
}

func TestAnalyzeZeroMetricsProducesZeroScores(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)

	analysis, err := h.engine.AnalyzeTest(context.Background(), test.ID)
	require.NoError(t, err)
	for _, v := range analysis.Variants {
		assert.Zero(t, v.Score)
		assert.Zero(t, v.MetricValue)
	}
	assert.False(t, analysis.Significant)
}

// ── conclusion ───────────────────────────────────────────────────────────────

func TestConcludeImplementsWinner(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 60},
		domain.RawMetrics{Impressions: 2000, Clicks: 40},
	)
	h.advance(8 * 24 * time.Hour)

	out, err := h.engine.ConcludeTest(context.Background(), test.ID, "")
	require.NoError(t, err)
	assert.True(t, out.Implemented)
	assert.Equal(t, test.Variants[0].ID, out.WinnerID)
	assert.False(t, out.AlreadyConcluded)

	cfg := h.adapter.VariantConfigs[h.campaign.ExternalID]
	assert.Equal(t, "Buy now", cfg["headline"])

	stored, err := h.engine.store.Get(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.True(t, stored.Concluded())
}

func TestConcludeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 60},
		domain.RawMetrics{Impressions: 2000, Clicks: 40},
	)
	h.advance(8 * 24 * time.Hour)

	first, err := h.engine.ConcludeTest(context.Background(), test.ID, "")
	require.NoError(t, err)
	require.True(t, first.Implemented)

	// If the second call touched the platform at all this would fail.
	h.adapter.FailNext = true
	second, err := h.engine.ConcludeTest(context.Background(), test.ID, "")
	require.NoError(t, err)
	assert.True(t, second.AlreadyConcluded)
	assert.Equal(t, first.WinnerID, second.WinnerID)
	h.adapter.FailNext = false
}

func TestConcludeWithoutWinnerLeavesCampaignUnchanged(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 41},
		domain.RawMetrics{Impressions: 2000, Clicks: 40},
	)
	h.advance(8 * 24 * time.Hour)

	out, err := h.engine.ConcludeTest(context.Background(), test.ID, "")
	require.NoError(t, err)
	assert.False(t, out.Implemented)
	assert.Empty(t, out.WinnerID)
	assert.Contains(t, out.Outcome, "campaign left unchanged")
	assert.Empty(t, h.adapter.VariantConfigs)

	stored, err := h.engine.store.Get(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, stored.Status)
}

func TestConcludeForcedWinnerByName(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 41},
		domain.RawMetrics{Impressions: 2000, Clicks: 40},
	)

	out, err := h.engine.ConcludeTest(context.Background(), test.ID, "B")
	require.NoError(t, err)
	assert.True(t, out.Implemented)
	assert.Equal(t, test.Variants[1].ID, out.WinnerID)
	assert.Equal(t, "Learn more", h.adapter.VariantConfigs[h.campaign.ExternalID]["headline"])
}

func TestConcludeForcedWinnerUnknownVariant(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)

	_, err = h.engine.ConcludeTest(context.Background(), test.ID, "Z")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConcludeRetryableWhenImplementationFails(t *testing.T) {
	h := newHarness(t)
	test, err := h.engine.CreateTest(context.Background(), twoVariantSetup(h, 50, 50))
	require.NoError(t, err)
	h.seedVariantMetrics(test,
		domain.RawMetrics{Impressions: 2000, Clicks: 60},
		domain.RawMetrics{Impressions: 2000, Clicks: 40},
	)
	h.advance(8 * 24 * time.Hour)

	h.adapter.FailNext = true
	_, err = h.engine.ConcludeTest(context.Background(), test.ID, "")
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))

	// The failed attempt must not have concluded the test.
	out, err := h.engine.ConcludeTest(context.Background(), test.ID, "")
	require.NoError(t, err)
	assert.True(t, out.Implemented)
	assert.False(t, out.AlreadyConcluded)
}

// ── scoring ──────────────────────────────────────────────────────────────────

func TestMetricValuePerMetric(t *testing.T) {
	m := domain.RawMetrics{Impressions: 1000, Clicks: 50, Conversions: 10, Spend: 25}

	assert.InDelta(t, 5.0, metricValue(MetricCTR, m), 0.001)
	assert.InDelta(t, 20.0, metricValue(MetricConversionRate, m), 0.001)
	assert.InDelta(t, 0.5, metricValue(MetricCPC, m), 0.001)
	assert.InDelta(t, 0.4, metricValue(MetricROAS, m), 0.001)

	var zero domain.RawMetrics
	assert.Zero(t, metricValue(MetricCTR, zero))
	assert.Zero(t, metricValue(MetricCPC, zero))
}

func TestVariantScoreIsUncapped(t *testing.T) {
	// A 6% CTR scores 300 against the 2% anchor; relative comparison between
	// variants needs the headroom.
	assert.InDelta(t, 300, variantScore(MetricCTR, 6.0), 0.001)
	// Lower CPC is better.
	assert.InDelta(t, 200, variantScore(MetricCPC, 0.5), 0.001)
	assert.Zero(t, variantScore(MetricCPC, 0))
}
