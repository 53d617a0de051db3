package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpilot/internal/domain"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeCampaigns struct {
	byBusiness map[uuid.UUID][]domain.Campaign
}

func (f *fakeCampaigns) FindByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	for _, cs := range f.byBusiness {
		for _, c := range cs {
			if c.ID == id {
				return &c, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCampaigns) FindByBusiness(ctx context.Context, businessID uuid.UUID, status domain.CampaignStatus) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, c := range f.byBusiness[businessID] {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return nil
}
func (f *fakeCampaigns) Insert(ctx context.Context, c *domain.Campaign) error { return nil }

type fakeMetrics struct {
	byCampaign map[uuid.UUID]domain.RawMetrics
}

func (f *fakeMetrics) Insert(ctx context.Context, campaignID uuid.UUID, day time.Time, m domain.RawMetrics) error {
	return nil
}

func (f *fakeMetrics) SumWindow(ctx context.Context, campaignID uuid.UUID, from, to time.Time) (domain.RawMetrics, error) {
	return f.byCampaign[campaignID], nil
}

type stubAdvisor struct {
	advice *Advice
	err    error
}

func (s *stubAdvisor) Advise(ctx context.Context, b domain.Business, d domain.BusinessDecision) (*Advice, error) {
	return s.advice, s.err
}

// ── helpers ──────────────────────────────────────────────────────────────────

func business(ageDays int) domain.Business {
	return domain.Business{
		ID:           uuid.New(),
		Status:       domain.BusinessActive,
		MonthlyPrice: 99,
		CreatedAt:    time.Now().UTC().AddDate(0, 0, -ageDays),
	}
}

func campaignDecision(action domain.CampaignAction, score, roas float64) domain.CampaignDecision {
	return domain.CampaignDecision{
		CampaignID: uuid.New(),
		Action:     action,
		Metrics: domain.PerformanceRecord{
			PerformanceScore: score,
			ROAS:             roas,
		},
	}
}

func newEngine(advisor Advisor) *Engine {
	return New(&fakeCampaigns{}, &fakeMetrics{}, advisor, DefaultConfig())
}

// ── aggregation rules ────────────────────────────────────────────────────────

func TestAggregateAllPausingMatureBusinessCloses(t *testing.T) {
	e := newEngine(nil)
	b := business(20)
	decisions := []domain.CampaignDecision{
		campaignDecision(domain.ActionPause, 20, 0.5),
		campaignDecision(domain.ActionPause, 25, 0.8),
		campaignDecision(domain.ActionPause, 15, 0.3),
	}

	out := e.Aggregate(b, decisions, time.Now().UTC())

	assert.Equal(t, domain.DecisionClose, out.Decision)
	assert.InDelta(t, 0.85, out.Confidence, 0.001)

	found := false
	for _, r := range out.Reasons {
		if strings.Contains(r, "all campaigns underperforming") {
			found = true
		}
	}
	assert.True(t, found, "reasons should mention all campaigns underperforming, got %v", out.Reasons)
}

func TestAggregateLowAveragesWithoutUnanimousPausePauses(t *testing.T) {
	e := newEngine(nil)
	out := e.Aggregate(business(30), []domain.CampaignDecision{
		campaignDecision(domain.ActionPause, 20, 0.5),
		campaignDecision(domain.ActionOptimize, 25, 0.9),
	}, time.Now().UTC())

	assert.Equal(t, domain.DecisionPause, out.Decision)
	assert.InDelta(t, 0.8, out.Confidence, 0.001)
}

func TestAggregateStrongMaturePortfolioScales(t *testing.T) {
	e := newEngine(nil)
	out := e.Aggregate(business(30), []domain.CampaignDecision{
		campaignDecision(domain.ActionScale, 80, 3.5),
		campaignDecision(domain.ActionMaintain, 72, 3.0),
	}, time.Now().UTC())

	assert.Equal(t, domain.DecisionScale, out.Decision)
	assert.InDelta(t, 0.9, out.Confidence, 0.001)
}

func TestAggregateOptimizePresenceTriggersOptimize(t *testing.T) {
	e := newEngine(nil)
	out := e.Aggregate(business(30), []domain.CampaignDecision{
		campaignDecision(domain.ActionOptimize, 45, 1.5),
		campaignDecision(domain.ActionMaintain, 65, 2.0),
	}, time.Now().UTC())

	assert.Equal(t, domain.DecisionOptimize, out.Decision)
	assert.InDelta(t, 0.75, out.Confidence, 0.001)
}

func TestAggregateScaleMajorityWinsOverMaintain(t *testing.T) {
	e := newEngine(nil)
	out := e.Aggregate(business(30), []domain.CampaignDecision{
		campaignDecision(domain.ActionScale, 75, 2.8),
		campaignDecision(domain.ActionScale, 70, 2.6),
		campaignDecision(domain.ActionMaintain, 62, 2.2),
	}, time.Now().UTC())

	assert.Equal(t, domain.DecisionScale, out.Decision)
	assert.InDelta(t, 0.7, out.Confidence, 0.001)
}

func TestAggregateImmatureBranches(t *testing.T) {
	e := newEngine(nil)
	now := time.Now().UTC()

	out := e.Aggregate(business(7), []domain.CampaignDecision{
		campaignDecision(domain.ActionScale, 85, 2.8),
	}, now)
	assert.Equal(t, domain.DecisionScale, out.Decision)
	assert.InDelta(t, 0.7, out.Confidence, 0.001)

	out = e.Aggregate(business(7), []domain.CampaignDecision{
		campaignDecision(domain.ActionOptimize, 15, 0.4),
	}, now)
	assert.Equal(t, domain.DecisionOptimize, out.Decision)
	assert.InDelta(t, 0.6, out.Confidence, 0.001)

	out = e.Aggregate(business(7), []domain.CampaignDecision{
		campaignDecision(domain.ActionMaintain, 50, 1.5),
	}, now)
	assert.Equal(t, domain.DecisionMaintain, out.Decision)
	assert.InDelta(t, 0.8, out.Confidence, 0.001)
}

func TestAggregateNoCampaigns(t *testing.T) {
	e := newEngine(nil)
	out := e.Aggregate(business(30), nil, time.Now().UTC())
	assert.Equal(t, domain.DecisionMaintain, out.Decision)
	assert.InDelta(t, 0.5, out.Confidence, 0.001)
}

// ── advisory signal ──────────────────────────────────────────────────────────

func TestAdvisoryRaisesConfidenceCapped(t *testing.T) {
	adv := &stubAdvisor{advice: &Advice{Confidence: 0.99, Insight: "spend efficiency trending up"}}
	e := New(
		&fakeCampaigns{byBusiness: map[uuid.UUID][]domain.Campaign{}},
		&fakeMetrics{},
		adv,
		DefaultConfig(),
	)

	b := business(30)
	out, err := e.EvaluateBusiness(context.Background(), b)
	require.NoError(t, err)

	// Rule output (no campaigns) has confidence 0.5; advisor pushes it up
	// but never past the cap.
	assert.InDelta(t, 0.95, out.Confidence, 0.001)

	found := false
	for _, r := range out.Reasons {
		if strings.Contains(r, "spend efficiency") {
			found = true
		}
	}
	assert.True(t, found, "advisory insight should be appended to reasons")
	assert.Equal(t, domain.DecisionMaintain, out.Decision, "advisory must not replace the rule decision")
}

func TestAdvisoryLowerConfidenceIgnored(t *testing.T) {
	adv := &stubAdvisor{advice: &Advice{Confidence: 0.1, Insight: "not sure"}}
	e := New(&fakeCampaigns{}, &fakeMetrics{}, adv, DefaultConfig())

	out, err := e.EvaluateBusiness(context.Background(), business(30))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Confidence, 0.001, "lower advisory confidence must not lower rule confidence")
}

func TestAdvisoryFailureIsNonFatal(t *testing.T) {
	adv := &stubAdvisor{err: errors.New("bedrock throttled")}
	e := New(&fakeCampaigns{}, &fakeMetrics{}, adv, DefaultConfig())

	out, err := e.EvaluateBusiness(context.Background(), business(30))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Confidence, 0.001)
}

// ── end-to-end evaluation ────────────────────────────────────────────────────

func TestEvaluateBusinessPipeline(t *testing.T) {
	b := business(25)
	campaignID := uuid.New()

	campaigns := &fakeCampaigns{byBusiness: map[uuid.UUID][]domain.Campaign{
		b.ID: {{
			ID:         campaignID,
			BusinessID: b.ID,
			Status:     domain.CampaignActive,
			TargetCPA:  40,
			CreatedAt:  time.Now().UTC().AddDate(0, 0, -20),
		}},
	}}
	metrics := &fakeMetrics{byCampaign: map[uuid.UUID]domain.RawMetrics{
		campaignID: {Impressions: 50000, Clicks: 1500, Conversions: 60, Spend: 1500},
	}}

	e := New(campaigns, metrics, nil, DefaultConfig())
	out, err := e.EvaluateBusiness(context.Background(), b)
	require.NoError(t, err)

	require.Len(t, out.CampaignDecisions, 1)
	assert.Equal(t, campaignID, out.CampaignDecisions[0].CampaignID)
	assert.False(t, out.NextEvaluationDate.IsZero())
	assert.True(t, out.NextEvaluationDate.After(out.EvaluatedAt))
	assert.GreaterOrEqual(t, out.Confidence, 0.5)
	assert.LessOrEqual(t, out.Confidence, 0.95)
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict(`Here is my analysis: {"agree": true, "confidence": 0.9, "insight": "looks right"} hope that helps`)
	require.NoError(t, err)
	assert.True(t, v.Agree)
	assert.InDelta(t, 0.9, v.Confidence, 0.001)

	_, err = parseVerdict("no json here")
	assert.Error(t, err)
}
