package analyzer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// =============================================================================
// CAMPAIGN PERFORMANCE ANALYZER
// =============================================================================
// Converts raw ad metrics into a normalized 0-100 performance score plus a
// per-campaign action recommendation. Pure computation: no I/O, no clocks,
// safe to run concurrently over the same inputs.

const (
	// DefaultWindowDays is the default analysis window.
	DefaultWindowDays = 14

	// Score term weights. They sum to 1.0 so the composite stays in [0,100].
	weightCTR        = 0.3
	weightROAS       = 0.4
	weightConversion = 0.2
	weightCostEff    = 0.1

	// DefaultCTRBaseline is the CTR (percent) that earns a full CTR term.
	DefaultCTRBaseline = 2.0

	// DefaultROASTarget is the ROAS that earns a full ROAS term.
	DefaultROASTarget = 3.0

	// conversionFullScore is the conversion count that earns a full
	// conversion-volume term; the term scales linearly up to it.
	conversionFullScore = 50
)

// Input is one campaign's raw metrics over an analysis window plus the
// business context needed to derive revenue.
type Input struct {
	CampaignID   uuid.UUID
	Window       domain.MetricWindow
	Impressions  int64
	Clicks       int64
	Conversions  int64
	Spend        float64
	MonthlyPrice float64 // business subscription price; revenue proxy per conversion
	TargetCPA    float64

	// Score anchors. Zero values fall back to the package defaults.
	CTRBaseline float64
	ROASTarget  float64
}

// Analyze derives CTR/CPC/ROAS and the composite performance score. Every
// division guards its denominator: zero inputs yield 0, never NaN, and the
// score is always within [0,100].
func Analyze(in Input) domain.PerformanceRecord {
	rec := domain.PerformanceRecord{
		CampaignID:  in.CampaignID,
		Window:      in.Window,
		Impressions: in.Impressions,
		Clicks:      in.Clicks,
		Conversions: in.Conversions,
		Spend:       in.Spend,
	}

	rec.CTR = safeDiv(float64(in.Clicks), float64(in.Impressions)) * 100
	rec.CPC = safeDiv(in.Spend, float64(in.Clicks))
	rec.Revenue = float64(in.Conversions) * in.MonthlyPrice
	rec.ROAS = safeDiv(rec.Revenue, in.Spend)

	ctrBaseline := in.CTRBaseline
	if ctrBaseline <= 0 {
		ctrBaseline = DefaultCTRBaseline
	}
	roasTarget := in.ROASTarget
	if roasTarget <= 0 {
		roasTarget = DefaultROASTarget
	}

	ctrTerm := clamp(safeDiv(rec.CTR, ctrBaseline) * 100)
	roasTerm := clamp(safeDiv(rec.ROAS, roasTarget) * 100)
	convTerm := clamp(safeDiv(float64(in.Conversions), conversionFullScore) * 100)

	actualCPA := safeDiv(in.Spend, float64(in.Conversions))
	costTerm := clamp(safeDiv(in.TargetCPA, actualCPA) * 100)

	rec.PerformanceScore = clamp(
		ctrTerm*weightCTR + roasTerm*weightROAS + convTerm*weightConversion + costTerm*weightCostEff)

	return rec
}

// Recommend applies the single-campaign action policy. Campaigns in their
// first week get a conservative ruleset; mature campaigns can earn budget
// increases or be paused outright.
func Recommend(rec domain.PerformanceRecord, ageDays int) domain.CampaignDecision {
	d := domain.CampaignDecision{
		CampaignID: rec.CampaignID,
		Metrics:    rec,
	}

	score := rec.PerformanceScore
	roas := rec.ROAS

	if ageDays <= 7 {
		switch {
		case score >= 70 && roas >= 2:
			d.Action = domain.ActionScale
			d.BudgetChangeFactor = 1.2
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("early campaign outperforming: score %.0f, ROAS %.2f", score, roas))
		case score < 30:
			d.Action = domain.ActionOptimize
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("early campaign underperforming: score %.0f", score))
		default:
			d.Action = domain.ActionMaintain
			d.Reasons = append(d.Reasons, "early campaign within normal range, continuing to gather data")
		}
		return d
	}

	switch {
	case score >= 80 && roas >= 3:
		d.Action = domain.ActionScale
		d.BudgetChangeFactor = 1.3
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("strong performance: score %.0f, ROAS %.2f; increasing budget 30%%", score, roas))
	case score >= 60 && roas >= 2:
		d.Action = domain.ActionScale
		d.BudgetChangeFactor = 1.15
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("good performance: score %.0f, ROAS %.2f; increasing budget 15%%", score, roas))
	case score < 30 || roas < 1:
		if ageDays >= 14 {
			d.Action = domain.ActionPause
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("sustained underperformance at %d days: score %.0f, ROAS %.2f", ageDays, score, roas))
		} else {
			d.Action = domain.ActionOptimize
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("underperforming but under two weeks old: score %.0f, ROAS %.2f", score, roas))
		}
	default:
		d.Action = domain.ActionMaintain
		d.Reasons = append(d.Reasons, "performance within acceptable range")
	}
	return d
}

// safeDiv divides, returning 0 for a zero denominator.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// clamp bounds a score term to [0,100].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
