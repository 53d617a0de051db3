package abtest

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/repository"
)

// =============================================================================
// A/B TESTING ENGINE
// =============================================================================
// Runs variant experiments on live campaigns: traffic is split through the
// platform adapter, variants are scored on the test's success metric, and a
// winner is implemented back into the campaign on conclusion.
//
// The significance rule is deliberately simple: relative improvement of the
// best variant over the runner-up must exceed 10% and every variant must
// have over 1,000 impressions. The confidence interval is a ±10% margin on
// the metric value, not a two-sample test.

const (
	// trafficSplitTolerance is how far the split may drift from 100%.
	trafficSplitTolerance = 0.1

	// ciMargin is the naive confidence-interval margin on a metric value.
	ciMargin = 0.10
)

// Config tunes the significance rule.
type Config struct {
	MinSampleImpressions int64
	MinImprovement       float64
	DefaultDurationDays  int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinSampleImpressions: 1000,
		MinImprovement:       0.10,
		DefaultDurationDays:  7,
	}
}

// Engine orchestrates the experiment lifecycle.
type Engine struct {
	store     Store
	campaigns repository.Campaigns
	adapters  *platform.Registry
	cfg       Config
	now       func() time.Time
}

// New creates an A/B testing engine on the given store and adapter registry.
func New(store Store, campaigns repository.Campaigns, adapters *platform.Registry, cfg Config) *Engine {
	if cfg.MinSampleImpressions <= 0 {
		cfg.MinSampleImpressions = 1000
	}
	if cfg.MinImprovement <= 0 {
		cfg.MinImprovement = 0.10
	}
	if cfg.DefaultDurationDays <= 0 {
		cfg.DefaultDurationDays = 7
	}
	return &Engine{store: store, campaigns: campaigns, adapters: adapters, cfg: cfg, now: time.Now}
}

// CreateTest validates the setup, registers the test as running and
// instructs the platform to split traffic across the variants.
func (e *Engine) CreateTest(ctx context.Context, setup Setup) (*Test, error) {
	if len(setup.Variants) < 2 {
		return nil, domain.NewValidationError("variants", "a test needs at least two variants")
	}

	var sum float64
	for _, v := range setup.Variants {
		sum += v.TrafficPercentage
	}
	if math.Abs(sum-100) > trafficSplitTolerance {
		return nil, domain.NewValidationError("traffic_split",
			fmt.Sprintf("traffic split must sum to 100, got %.1f", sum))
	}

	campaign, err := e.campaigns.FindByID(ctx, setup.CampaignID)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("campaign %s: %w", setup.CampaignID, err))
	}

	adapter, err := e.adapters.Get(campaign.Platform)
	if err != nil {
		return nil, err
	}

	t := &Test{
		ID:            uuid.New(),
		CampaignID:    campaign.ID,
		Type:          setup.Type,
		SuccessMetric: setup.SuccessMetric,
		DurationDays:  setup.DurationDays,
		Status:        StatusRunning,
		StartedAt:     e.now().UTC(),
	}
	if t.DurationDays <= 0 {
		t.DurationDays = e.cfg.DefaultDurationDays
	}
	if t.SuccessMetric == "" {
		t.SuccessMetric = MetricCTR
	}

	alloc := make(platform.TrafficAllocation, len(setup.Variants))
	for i, vs := range setup.Variants {
		v := Variant{
			ID:                fmt.Sprintf("%s-v%d", t.ID.String()[:8], i+1),
			Name:              vs.Name,
			Config:            vs.Config,
			TrafficPercentage: vs.TrafficPercentage,
		}
		t.Variants = append(t.Variants, v)
		alloc[v.ID] = v.TrafficPercentage
	}

	if err := adapter.ApplyTrafficSplit(ctx, campaign.ExternalID, alloc); err != nil {
		return nil, fmt.Errorf("applying traffic split: %w", err)
	}

	if err := e.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("saving test: %w", err)
	}

	log.Printf("[ABTest] Created %s test %s on campaign %s (%d variants, %d days)",
		t.Type, t.ID, t.CampaignID, len(t.Variants), t.DurationDays)
	return t, nil
}

// AnalyzeTest collects variant metrics, scores each variant and recomputes
// significance and status. Repeated calls are idempotent reads over the
// latest metrics; analysis never implements a winner.
func (e *Engine) AnalyzeTest(ctx context.Context, testID uuid.UUID) (*Analysis, error) {
	t, err := e.store.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	campaign, err := e.campaigns.FindByID(ctx, t.CampaignID)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("campaign %s: %w", t.CampaignID, err))
	}
	adapter, err := e.adapters.Get(campaign.Platform)
	if err != nil {
		return nil, err
	}

	window := platform.DateRange{From: t.StartedAt, To: e.now().UTC()}
	for i := range t.Variants {
		v := &t.Variants[i]
		// Variant metrics are reported under "{campaign}:{variant}" on the
		// platform side.
		m, err := adapter.GetMetrics(ctx, variantMetricsKey(campaign.ExternalID, v.ID), window)
		if err != nil {
			return nil, fmt.Errorf("collecting metrics for variant %s: %w", v.ID, err)
		}
		v.Metrics = *m
		v.MetricValue = metricValue(t.SuccessMetric, *m)
		v.Score = variantScore(t.SuccessMetric, v.MetricValue)
		v.CILow = v.MetricValue * (1 - ciMargin)
		v.CIHigh = v.MetricValue * (1 + ciMargin)
	}

	best, second := rankVariants(t.Variants)
	improvement := relativeImprovement(best, second)

	allSampled := true
	for _, v := range t.Variants {
		if v.Metrics.Impressions <= e.cfg.MinSampleImpressions {
			allSampled = false
			break
		}
	}

	t.Significant = improvement > e.cfg.MinImprovement && allSampled
	if t.Significant {
		t.Confidence = math.Min(0.95, 0.85+improvement*0.1)
	} else {
		t.Confidence = math.Min(0.95, 0.3+improvement*0.4)
	}

	elapsed := e.now().UTC().Sub(t.StartedAt) >= time.Duration(t.DurationDays)*24*time.Hour
	if !t.Concluded() {
		switch {
		case elapsed && t.Significant:
			t.Status = StatusCompleted
		case elapsed:
			t.Status = StatusInconclusive
		default:
			t.Status = StatusRunning
		}
	}

	if err := e.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}

	a := &Analysis{
		TestID:      t.ID,
		Status:      t.Status,
		Significant: t.Significant,
		Confidence:  t.Confidence,
		Improvement: improvement,
		Variants:    t.Variants,
	}
	if best != nil {
		a.BestID = best.ID
	}
	log.Printf("[ABTest] Analyzed %s: status=%s significant=%v confidence=%.2f improvement=%.0f%%",
		t.ID, t.Status, t.Significant, t.Confidence, improvement*100)
	return a, nil
}

// ConcludeTest implements the winning variant into the live campaign and
// retires the test. With no clear winner and no forced winner the campaign
// is left unchanged and that outcome is recorded. Concluding an already
// concluded test is a no-op.
func (e *Engine) ConcludeTest(ctx context.Context, testID uuid.UUID, forcedWinner string) (*Conclusion, error) {
	t, err := e.store.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.Concluded() {
		return &Conclusion{
			TestID:           t.ID,
			WinnerID:         t.WinnerID,
			AlreadyConcluded: true,
			Outcome:          t.Outcome,
		}, nil
	}

	// Refresh the analysis so conclusion works from current data.
	analysis, err := e.AnalyzeTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	t, err = e.store.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	var winner *Variant
	if forcedWinner != "" {
		for i := range t.Variants {
			if t.Variants[i].ID == forcedWinner || t.Variants[i].Name == forcedWinner {
				winner = &t.Variants[i]
				break
			}
		}
		if winner == nil {
			return nil, domain.NewValidationError("forced_winner",
				fmt.Sprintf("no variant %q in test %s", forcedWinner, t.ID))
		}
	} else if analysis.Significant && analysis.BestID != "" {
		for i := range t.Variants {
			if t.Variants[i].ID == analysis.BestID {
				winner = &t.Variants[i]
				break
			}
		}
	}

	out := &Conclusion{TestID: t.ID}
	now := e.now().UTC()
	t.ConcludedAt = &now

	if winner == nil {
		t.Status = StatusStopped
		t.Outcome = "no clear winner, campaign left unchanged"
		out.Outcome = t.Outcome
		if err := e.store.Save(ctx, t); err != nil {
			return nil, err
		}
		log.Printf("[ABTest] Concluded %s without a winner", t.ID)
		return out, nil
	}

	campaign, err := e.campaigns.FindByID(ctx, t.CampaignID)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("campaign %s: %w", t.CampaignID, err))
	}
	adapter, err := e.adapters.Get(campaign.Platform)
	if err != nil {
		return nil, err
	}
	if err := adapter.ApplyVariantConfig(ctx, campaign.ExternalID, winner.Config); err != nil {
		// Leave the test open so the conclusion can be retried.
		t.ConcludedAt = nil
		return nil, fmt.Errorf("implementing winner %s: %w", winner.ID, err)
	}

	t.Status = StatusCompleted
	t.WinnerID = winner.ID
	t.Outcome = fmt.Sprintf("variant %s implemented", winner.Name)
	if err := e.store.Save(ctx, t); err != nil {
		return nil, err
	}

	out.WinnerID = winner.ID
	out.Implemented = true
	out.Outcome = t.Outcome
	log.Printf("[ABTest] Concluded %s: winner %s implemented into campaign %s", t.ID, winner.ID, t.CampaignID)
	return out, nil
}

// ActiveTests returns the running experiments.
func (e *Engine) ActiveTests(ctx context.Context) ([]Test, error) {
	return e.store.ListActive(ctx)
}

// ── scoring helpers ──────────────────────────────────────────────────────────

// Scaling anchors per success metric: the value that earns a score of 100.
// Unlike the campaign score, variant scores are not capped; relative
// improvement between variants is the signal.
const (
	ctrAnchor      = 2.0 // percent
	convRateAnchor = 5.0 // percent
	cpcAnchor      = 1.0 // dollars; lower is better
	roasAnchor     = 3.0
)

func metricValue(metric SuccessMetric, m domain.RawMetrics) float64 {
	switch metric {
	case MetricCTR:
		return safeDiv(float64(m.Clicks), float64(m.Impressions)) * 100
	case MetricConversionRate:
		return safeDiv(float64(m.Conversions), float64(m.Clicks)) * 100
	case MetricCPC:
		return safeDiv(m.Spend, float64(m.Clicks))
	case MetricROAS:
		// Without a price attached the raw conversion value stands in for
		// revenue; ROAS tests are normally run with conversion values
		// configured on the platform.
		return safeDiv(float64(m.Conversions), m.Spend)
	default:
		return 0
	}
}

func variantScore(metric SuccessMetric, value float64) float64 {
	var score float64
	switch metric {
	case MetricCTR:
		score = safeDiv(value, ctrAnchor) * 100
	case MetricConversionRate:
		score = safeDiv(value, convRateAnchor) * 100
	case MetricCPC:
		// Lower CPC is better, so invert.
		score = safeDiv(cpcAnchor, value) * 100
	case MetricROAS:
		score = safeDiv(value, roasAnchor) * 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// rankVariants returns the best and second-best variants by score.
func rankVariants(variants []Variant) (best, second *Variant) {
	for i := range variants {
		v := &variants[i]
		switch {
		case best == nil || v.Score > best.Score:
			second = best
			best = v
		case second == nil || v.Score > second.Score:
			second = v
		}
	}
	return best, second
}

func relativeImprovement(best, second *Variant) float64 {
	if best == nil || second == nil || second.Score == 0 {
		return 0
	}
	return (best.Score - second.Score) / second.Score
}

func variantMetricsKey(externalID, variantID string) string {
	return externalID + ":" + variantID
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
