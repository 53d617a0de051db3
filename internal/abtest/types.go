package abtest

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/platform"
)

// TestType is what aspect of the campaign the experiment varies.
type TestType string

const (
	TestCreative    TestType = "creative"
	TestAudience    TestType = "audience"
	TestLandingPage TestType = "landing_page"
	TestBidStrategy TestType = "bid_strategy"
)

// TestStatus is the experiment lifecycle state.
type TestStatus string

const (
	StatusRunning      TestStatus = "running"
	StatusCompleted    TestStatus = "completed"
	StatusStopped      TestStatus = "stopped"
	StatusInconclusive TestStatus = "inconclusive"
)

// SuccessMetric selects what a variant is judged on.
type SuccessMetric string

const (
	MetricCTR            SuccessMetric = "ctr"
	MetricConversionRate SuccessMetric = "conversion_rate"
	MetricCPC            SuccessMetric = "cpc"
	MetricROAS           SuccessMetric = "roas"
)

// Variant is one arm of an experiment.
type Variant struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Config            platform.VariantConfig `json:"config"`
	TrafficPercentage float64                `json:"traffic_percentage"`
	Metrics           domain.RawMetrics      `json:"metrics"`

	// Computed by analysis
	MetricValue float64 `json:"metric_value"`
	Score       float64 `json:"score"`
	CILow       float64 `json:"ci_low"`
	CIHigh      float64 `json:"ci_high"`
}

// Test is a running or concluded experiment. Tests are durable via the
// injected Store; there is no in-process registry to lose on restart.
type Test struct {
	ID            uuid.UUID     `json:"id"`
	CampaignID    uuid.UUID     `json:"campaign_id"`
	Type          TestType      `json:"type"`
	Variants      []Variant     `json:"variants"`
	SuccessMetric SuccessMetric `json:"success_metric"`
	DurationDays  int           `json:"duration_days"`
	Status        TestStatus    `json:"status"`
	Significant   bool          `json:"statistical_significance"`
	Confidence    float64       `json:"confidence"`
	WinnerID      string        `json:"winner_id,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	ConcludedAt   *time.Time    `json:"concluded_at,omitempty"`
	Outcome       string        `json:"outcome,omitempty"`
}

// Concluded reports whether the test has already been concluded.
func (t *Test) Concluded() bool { return t.ConcludedAt != nil }

// Setup is the input to CreateTest.
type Setup struct {
	CampaignID    uuid.UUID
	Type          TestType
	Variants      []VariantSetup
	SuccessMetric SuccessMetric
	DurationDays  int
}

// VariantSetup describes one arm at creation time.
type VariantSetup struct {
	Name              string
	Config            platform.VariantConfig
	TrafficPercentage float64
}

// Analysis is the result of one AnalyzeTest pass.
type Analysis struct {
	TestID      uuid.UUID  `json:"test_id"`
	Status      TestStatus `json:"status"`
	Significant bool       `json:"significant"`
	Confidence  float64    `json:"confidence"`
	Improvement float64    `json:"improvement"`
	BestID      string     `json:"best_id,omitempty"`
	Variants    []Variant  `json:"variants"`
}

// Conclusion is the result of ConcludeTest.
type Conclusion struct {
	TestID           uuid.UUID `json:"test_id"`
	WinnerID         string    `json:"winner_id,omitempty"`
	Implemented      bool      `json:"implemented"`
	AlreadyConcluded bool      `json:"already_concluded"`
	Outcome          string    `json:"outcome"`
}
