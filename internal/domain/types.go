package domain

import (
	"time"

	"github.com/google/uuid"
)

// BusinessStatus is the lifecycle status of a managed business.
type BusinessStatus string

const (
	BusinessActive BusinessStatus = "active"
	BusinessPaused BusinessStatus = "paused"
	BusinessClosed BusinessStatus = "closed"
)

// Business is a customer business whose ad campaigns we manage autonomously.
type Business struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	Name          string
	Status        BusinessStatus
	MonthlyPrice  float64 // subscription price, used as the revenue proxy per conversion
	ClosureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AgeDays returns the business age in whole days at the given instant.
func (b Business) AgeDays(now time.Time) int {
	return int(now.Sub(b.CreatedAt).Hours() / 24)
}

// CampaignStatus is the lifecycle status of an ad campaign.
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is an ad campaign running on an external platform.
type Campaign struct {
	ID          uuid.UUID
	BusinessID  uuid.UUID
	Platform    string // adapter registry key, e.g. "google", "meta"
	ExternalID  string // platform-side campaign ID
	Name        string
	Status      CampaignStatus
	DailyBudget float64
	TargetCPA   float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AgeDays returns the campaign age in whole days at the given instant.
func (c Campaign) AgeDays(now time.Time) int {
	return int(now.Sub(c.CreatedAt).Hours() / 24)
}

// RawMetrics are platform-reported metrics for a campaign over a date range.
type RawMetrics struct {
	Impressions int64
	Clicks      int64
	Conversions int64
	Spend       float64
}

// MetricWindow is the analysis window metrics were collected over.
type MetricWindow struct {
	From time.Time
	To   time.Time
}

// Days returns the window length in whole days (minimum 1).
func (w MetricWindow) Days() int {
	d := int(w.To.Sub(w.From).Hours() / 24)
	if d < 1 {
		return 1
	}
	return d
}

// PerformanceRecord is the normalized view of one campaign's performance over
// a window. PerformanceScore is always in [0,100]; derived rates are 0 (never
// NaN) when their denominator is zero.
type PerformanceRecord struct {
	CampaignID       uuid.UUID
	Window           MetricWindow
	Impressions      int64
	Clicks           int64
	Conversions      int64
	Spend            float64
	CTR              float64 // percent
	CPC              float64
	Revenue          float64
	ROAS             float64
	PerformanceScore float64
}

// CampaignAction is a per-campaign recommendation.
type CampaignAction string

const (
	ActionScale    CampaignAction = "SCALE"
	ActionPause    CampaignAction = "PAUSE"
	ActionOptimize CampaignAction = "OPTIMIZE"
	ActionMaintain CampaignAction = "MAINTAIN"
)

// BusinessAction is a business-level decision. It extends CampaignAction with
// CLOSE, which only exists at the business level.
type BusinessAction string

const (
	DecisionScale    BusinessAction = "SCALE"
	DecisionPause    BusinessAction = "PAUSE"
	DecisionOptimize BusinessAction = "OPTIMIZE"
	DecisionMaintain BusinessAction = "MAINTAIN"
	DecisionClose    BusinessAction = "CLOSE"
)

// CampaignDecision is the analyzer's recommendation for one campaign.
type CampaignDecision struct {
	CampaignID         uuid.UUID
	Action             CampaignAction
	BudgetChangeFactor float64 // 0 when no budget change is recommended
	Reasons            []string
	Metrics            PerformanceRecord
}

// BusinessDecision is an immutable snapshot produced once per evaluation
// cycle. It is never mutated in place; each cycle recomputes a fresh one.
type BusinessDecision struct {
	BusinessID         uuid.UUID
	Decision           BusinessAction
	Confidence         float64 // [0,1]
	Reasons            []string
	CampaignDecisions  []CampaignDecision
	NextEvaluationDate time.Time
	EvaluatedAt        time.Time
}
