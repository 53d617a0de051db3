package decision

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/adpilot/internal/analyzer"
	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/repository"
)

// =============================================================================
// BUSINESS DECISION ENGINE
// =============================================================================
// Aggregates per-campaign recommendations into one business-level decision
// with a confidence and an ordered rationale. Each evaluation produces a
// fresh immutable BusinessDecision snapshot, never a mutated state machine.
// Concurrent evaluations of the same business in the same window are safe:
// they are pure computations over the same metric snapshot.

// Config tunes the engine's maturity and cadence thresholds plus the score
// anchors handed down to the analyzer.
type Config struct {
	MatureAgeDays      int
	WindowDays         int
	EvaluationInterval time.Duration
	DefaultTargetCPA   float64
	CTRBaseline        float64
	ROASTarget         float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MatureAgeDays:      14,
		WindowDays:         analyzer.DefaultWindowDays,
		EvaluationInterval: 24 * time.Hour,
		DefaultTargetCPA:   50,
		CTRBaseline:        analyzer.DefaultCTRBaseline,
		ROASTarget:         analyzer.DefaultROASTarget,
	}
}

// Advice is an optional external advisory signal (e.g. an LLM-derived
// insight). It can raise confidence but never replaces the rule output.
type Advice struct {
	Confidence float64
	Insight    string
}

// Advisor produces advisory signals for a computed decision. Implementations
// may be remote and slow; the engine treats failures as "no advice".
type Advisor interface {
	Advise(ctx context.Context, b domain.Business, d domain.BusinessDecision) (*Advice, error)
}

// maxAdvisedConfidence caps confidence after an advisory boost.
const maxAdvisedConfidence = 0.95

// Engine evaluates businesses against their campaign performance.
type Engine struct {
	campaigns repository.Campaigns
	metrics   repository.Metrics
	advisor   Advisor // nil disables the advisory signal
	cfg       Config
	now       func() time.Time
}

// New creates a decision engine. advisor may be nil.
func New(campaigns repository.Campaigns, metrics repository.Metrics, advisor Advisor, cfg Config) *Engine {
	if cfg.MatureAgeDays <= 0 {
		cfg.MatureAgeDays = 14
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = analyzer.DefaultWindowDays
	}
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = 24 * time.Hour
	}
	return &Engine{
		campaigns: campaigns,
		metrics:   metrics,
		advisor:   advisor,
		cfg:       cfg,
		now:       time.Now,
	}
}

// EvaluateBusiness loads the business's active campaigns, scores each one,
// and aggregates them into a BusinessDecision.
func (e *Engine) EvaluateBusiness(ctx context.Context, b domain.Business) (*domain.BusinessDecision, error) {
	now := e.now().UTC()

	campaigns, err := e.campaigns.FindByBusiness(ctx, b.ID, domain.CampaignActive)
	if err != nil {
		return nil, fmt.Errorf("loading campaigns for business %s: %w", b.ID, err)
	}

	window := domain.MetricWindow{
		From: now.AddDate(0, 0, -e.cfg.WindowDays),
		To:   now,
	}

	var decisions []domain.CampaignDecision
	for _, c := range campaigns {
		raw, err := e.metrics.SumWindow(ctx, c.ID, window.From, window.To)
		if err != nil {
			return nil, fmt.Errorf("loading metrics for campaign %s: %w", c.ID, err)
		}
		targetCPA := c.TargetCPA
		if targetCPA == 0 {
			targetCPA = e.cfg.DefaultTargetCPA
		}
		rec := analyzer.Analyze(analyzer.Input{
			CampaignID:   c.ID,
			Window:       window,
			Impressions:  raw.Impressions,
			Clicks:       raw.Clicks,
			Conversions:  raw.Conversions,
			Spend:        raw.Spend,
			MonthlyPrice: b.MonthlyPrice,
			TargetCPA:    targetCPA,
			CTRBaseline:  e.cfg.CTRBaseline,
			ROASTarget:   e.cfg.ROASTarget,
		})
		decisions = append(decisions, analyzer.Recommend(rec, c.AgeDays(now)))
	}

	out := e.aggregate(b, decisions, now)

	if e.advisor != nil {
		e.applyAdvice(ctx, b, &out)
	}

	log.Printf("[DecisionEngine] Business %s -> %s (confidence %.2f, %d campaigns)",
		b.ID, out.Decision, out.Confidence, len(decisions))
	return &out, nil
}

// Aggregate is the pure aggregation rule set, exported for direct testing
// with pre-built campaign decisions.
func (e *Engine) Aggregate(b domain.Business, decisions []domain.CampaignDecision, now time.Time) domain.BusinessDecision {
	return e.aggregate(b, decisions, now)
}

func (e *Engine) aggregate(b domain.Business, decisions []domain.CampaignDecision, now time.Time) domain.BusinessDecision {
	out := domain.BusinessDecision{
		BusinessID:         b.ID,
		CampaignDecisions:  decisions,
		EvaluatedAt:        now,
		NextEvaluationDate: now.Add(e.cfg.EvaluationInterval),
	}

	if len(decisions) == 0 {
		out.Decision = domain.DecisionMaintain
		out.Confidence = 0.5
		out.Reasons = append(out.Reasons, "no active campaigns to evaluate")
		return out
	}

	var sumScore, sumRoas float64
	counts := map[domain.CampaignAction]int{}
	for _, d := range decisions {
		sumScore += d.Metrics.PerformanceScore
		sumRoas += d.Metrics.ROAS
		counts[d.Action]++
	}
	avgScore := sumScore / float64(len(decisions))
	avgRoas := sumRoas / float64(len(decisions))

	ageDays := b.AgeDays(now)
	mature := ageDays >= e.cfg.MatureAgeDays

	if !mature {
		// Conservative rules while the business is still ramping.
		switch {
		case avgScore >= 80 && avgRoas >= 2.5:
			out.Decision = domain.DecisionScale
			out.Confidence = 0.7
			out.Reasons = append(out.Reasons,
				fmt.Sprintf("young business performing exceptionally: avg score %.0f, avg ROAS %.2f", avgScore, avgRoas))
		case avgScore < 25:
			out.Decision = domain.DecisionOptimize
			out.Confidence = 0.6
			out.Reasons = append(out.Reasons,
				fmt.Sprintf("young business struggling early: avg score %.0f", avgScore))
		default:
			out.Decision = domain.DecisionMaintain
			out.Confidence = 0.8
			out.Reasons = append(out.Reasons,
				fmt.Sprintf("business is %d days old, gathering data before major changes", ageDays))
		}
		return out
	}

	switch {
	case avgScore >= 70 && avgRoas >= 3:
		out.Decision = domain.DecisionScale
		out.Confidence = 0.9
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("portfolio performing strongly: avg score %.0f, avg ROAS %.2f", avgScore, avgRoas))

	case avgScore < 30 || avgRoas < 1:
		if counts[domain.ActionPause] == len(decisions) {
			out.Decision = domain.DecisionClose
			out.Confidence = 0.85
			out.Reasons = append(out.Reasons,
				"all campaigns underperforming for 2+ weeks, recommending closure")
		} else {
			out.Decision = domain.DecisionPause
			out.Confidence = 0.8
			out.Reasons = append(out.Reasons,
				fmt.Sprintf("portfolio underperforming: avg score %.0f, avg ROAS %.2f", avgScore, avgRoas))
		}

	case counts[domain.ActionOptimize] > 0 || avgScore < 60:
		out.Decision = domain.DecisionOptimize
		out.Confidence = 0.75
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("%d campaigns need optimization (avg score %.0f)", counts[domain.ActionOptimize], avgScore))

	default:
		if counts[domain.ActionScale] > counts[domain.ActionPause] {
			out.Decision = domain.DecisionScale
			out.Confidence = 0.7
			out.Reasons = append(out.Reasons,
				fmt.Sprintf("%d of %d campaigns recommend scaling", counts[domain.ActionScale], len(decisions)))
		} else {
			out.Decision = domain.DecisionMaintain
			out.Confidence = 0.8
			out.Reasons = append(out.Reasons, "portfolio stable, no changes needed")
		}
	}
	return out
}

// applyAdvice lets the advisory signal raise confidence, never above the
// cap, and only when the advisor is more certain than the rules. The insight
// is appended to the rationale; the rule decision itself is never replaced.
func (e *Engine) applyAdvice(ctx context.Context, b domain.Business, d *domain.BusinessDecision) {
	advice, err := e.advisor.Advise(ctx, b, *d)
	if err != nil {
		log.Printf("[DecisionEngine] advisory signal unavailable for business %s: %v", b.ID, err)
		return
	}
	if advice == nil {
		return
	}
	if advice.Confidence > d.Confidence {
		c := advice.Confidence
		if c > maxAdvisedConfidence {
			c = maxAdvisedConfidence
		}
		d.Confidence = c
	}
	if advice.Insight != "" {
		d.Reasons = append(d.Reasons, "advisory: "+advice.Insight)
	}
}
