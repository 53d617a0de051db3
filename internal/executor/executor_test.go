package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/queue"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeBusinesses struct {
	updates []map[string]interface{}
	err     error
}

func (f *fakeBusinesses) FindByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeBusinesses) FindByStatus(ctx context.Context, status domain.BusinessStatus) ([]domain.Business, error) {
	return nil, nil
}
func (f *fakeBusinesses) FindActive(ctx context.Context, since time.Time) ([]domain.Business, error) {
	return nil, nil
}
func (f *fakeBusinesses) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, fields)
	return nil
}
func (f *fakeBusinesses) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return 0, nil
}
func (f *fakeBusinesses) Insert(ctx context.Context, b *domain.Business) error { return nil }

type fakeCampaigns struct {
	campaigns map[uuid.UUID]domain.Campaign
	updates   map[uuid.UUID][]map[string]interface{}
}

func newFakeCampaigns(cs ...domain.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{
		campaigns: make(map[uuid.UUID]domain.Campaign),
		updates:   make(map[uuid.UUID][]map[string]interface{}),
	}
	for _, c := range cs {
		f.campaigns[c.ID] = c
	}
	return f
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
	f.updates[id] = append(f.updates[id], fields)
	return nil
}
func (f *fakeCampaigns) Insert(ctx context.Context, c *domain.Campaign) error { return nil }

type fakeEnqueuer struct {
	jobs []queue.JobType
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}, opts queue.EnqueueOptions) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.jobs = append(f.jobs, jobType)
	return uuid.New(), nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Notify(ev notify.Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

// ── fixtures ─────────────────────────────────────────────────────────────────

type harness struct {
	exec       *Executor
	businesses *fakeBusinesses
	campaigns  *fakeCampaigns
	adapter    *platform.MemoryAdapter
	enqueuer   *fakeEnqueuer
	notifier   *fakeNotifier
}

func newHarness(t *testing.T, cs ...domain.Campaign) *harness {
	t.Helper()
	h := &harness{
		businesses: &fakeBusinesses{},
		campaigns:  newFakeCampaigns(cs...),
		adapter:    platform.NewMemoryAdapter(),
		enqueuer:   &fakeEnqueuer{},
		notifier:   &fakeNotifier{},
	}
	for _, c := range cs {
		h.adapter.SeedCampaign(c.ExternalID)
	}
	registry := platform.NewRegistry()
	registry.Register("memory", h.adapter)
	h.exec = New(h.businesses, h.campaigns, registry, h.enqueuer, h.notifier)
	return h
}

func memCampaign(budget float64) domain.Campaign {
	return domain.Campaign{
		ID:          uuid.New(),
		BusinessID:  uuid.New(),
		Platform:    "memory",
		ExternalID:  "ext-" + uuid.NewString()[:8],
		Status:      domain.CampaignActive,
		DailyBudget: budget,
	}
}

func decisionFor(action domain.BusinessAction, cds ...domain.CampaignDecision) domain.BusinessDecision {
	return domain.BusinessDecision{
		BusinessID:        uuid.New(),
		Decision:          action,
		Confidence:        0.85,
		Reasons:           []string{"all campaigns underperforming for 2+ weeks, recommending closure"},
		CampaignDecisions: cds,
		EvaluatedAt:       time.Now().UTC(),
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestExecuteScaleUpdatesBudget(t *testing.T) {
	c := memCampaign(100)
	h := newHarness(t, c)

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionScale,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionScale, BudgetChangeFactor: 1.3},
	))

	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	require.Len(t, h.adapter.BudgetUpdates[c.ExternalID], 1)
	assert.InDelta(t, 130, h.adapter.BudgetUpdates[c.ExternalID][0], 0.001)
	require.Len(t, h.campaigns.updates[c.ID], 1)
	assert.InDelta(t, 130.0, h.campaigns.updates[c.ID][0]["daily_budget"].(float64), 0.001)
}

func TestExecuteScaleWithoutFactorIsNoop(t *testing.T) {
	c := memCampaign(100)
	h := newHarness(t, c)

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionMaintain,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionScale},
	))

	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	assert.Empty(t, h.adapter.BudgetUpdates[c.ExternalID])
}

func TestExecutePausePausesOnPlatformAndPersists(t *testing.T) {
	c := memCampaign(50)
	h := newHarness(t, c)

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionPause,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionPause, Reasons: []string{"roas below 1"}},
	))

	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	assert.Equal(t, 1, h.adapter.Paused[c.ExternalID])
	assert.Equal(t, "paused", h.adapter.Status(c.ExternalID))
	require.Len(t, h.campaigns.updates[c.ID], 1)
	assert.Equal(t, "paused", h.campaigns.updates[c.ID][0]["status"])
}

func TestExecuteOptimizeEnqueuesJobNeverInline(t *testing.T) {
	c := memCampaign(50)
	h := newHarness(t, c)

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionOptimize,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionOptimize, Reasons: []string{"score below 30"}},
	))

	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	require.Len(t, h.enqueuer.jobs, 1)
	assert.Equal(t, JobTypeCampaignOptimize, h.enqueuer.jobs[0])
	// Nothing touched the platform.
	assert.Empty(t, h.adapter.BudgetUpdates)
	assert.Empty(t, h.adapter.Paused)
}

func TestExecuteMaintainDoesNothing(t *testing.T) {
	c := memCampaign(50)
	h := newHarness(t, c)

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionMaintain,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionMaintain},
	))

	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	assert.Empty(t, h.adapter.Paused)
	assert.Empty(t, h.campaigns.updates)
}

func TestExecuteIsolatesPerCampaignFailures(t *testing.T) {
	good := memCampaign(100)
	h := newHarness(t, good)
	missing := uuid.New()

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionScale,
		domain.CampaignDecision{CampaignID: missing, Action: domain.ActionScale, BudgetChangeFactor: 1.2},
		domain.CampaignDecision{CampaignID: good.ID, Action: domain.ActionScale, BudgetChangeFactor: 1.2},
	))

	require.Len(t, results, 2)
	assert.False(t, results[0].Applied)
	assert.NotEmpty(t, results[0].Error)
	assert.True(t, results[1].Applied, "failure on one campaign must not block the next")
	assert.Len(t, h.adapter.BudgetUpdates[good.ExternalID], 1)
}

func TestExecuteCloseCascades(t *testing.T) {
	a := memCampaign(100)
	b := memCampaign(60)
	h := newHarness(t, a, b)

	d := decisionFor(domain.DecisionClose,
		domain.CampaignDecision{CampaignID: a.ID, Action: domain.ActionPause},
		domain.CampaignDecision{CampaignID: b.ID, Action: domain.ActionPause},
	)
	results := h.exec.Execute(context.Background(), d)

	require.Len(t, results, 3, "one per campaign plus the business closure")
	assert.Equal(t, 1, h.adapter.Paused[a.ExternalID])
	assert.Equal(t, 1, h.adapter.Paused[b.ExternalID])

	require.Len(t, h.businesses.updates, 1)
	assert.Equal(t, "closed", h.businesses.updates[0]["status"])
	assert.Contains(t, h.businesses.updates[0]["closure_reason"], "underperforming")

	require.Len(t, h.notifier.events, 1, "closure sends exactly one notification")
	assert.Equal(t, notify.SeverityCritical, h.notifier.events[0].Severity)
	assert.Equal(t, d.BusinessID.String(), h.notifier.events[0].BusinessID)
}

func TestExecuteClosePausesEvenWhenBusinessUpdateFails(t *testing.T) {
	c := memCampaign(100)
	h := newHarness(t, c)
	h.businesses.err = errors.New("db down")

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionClose,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionPause},
	))

	require.Len(t, results, 2)
	assert.True(t, results[0].Applied, "campaign pause lands before the status write")
	assert.False(t, results[1].Applied)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, 1, h.adapter.Paused[c.ExternalID])
}

func TestExecuteOptimizeEnqueueFailureReported(t *testing.T) {
	c := memCampaign(50)
	h := newHarness(t, c)
	h.enqueuer.err = errors.New("redis unavailable")

	results := h.exec.Execute(context.Background(), decisionFor(domain.DecisionOptimize,
		domain.CampaignDecision{CampaignID: c.ID, Action: domain.ActionOptimize},
	))

	require.Len(t, results, 1)
	assert.False(t, results[0].Applied)
	assert.Contains(t, results[0].Error, "redis unavailable")
}
