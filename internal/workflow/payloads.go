// Package workflow binds job kinds to their payload schemas and handlers.
// The queue itself is schema-agnostic; this package is where each job type
// gets a typed payload and a registered handler.
package workflow

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/executor"
	"github.com/ignite/adpilot/internal/queue"
)

// Job kinds processed by the worker.
const (
	TypeBusinessCreate        queue.JobType = "business.create"
	TypeCampaignCreate        queue.JobType = "campaign.create"
	TypeCampaignMonitor       queue.JobType = "campaign.monitor"
	TypeCampaignOptimize                    = executor.JobTypeCampaignOptimize
	TypeMarketingAutomation   queue.JobType = "marketing.automation"
	TypeAnalyticsCollect      queue.JobType = "analytics.collect"
	TypeAnalyticsProcess      queue.JobType = "analytics.process"
	TypeAnalyticsReport       queue.JobType = "analytics.report"
	TypePaymentProcess        queue.JobType = "payment.process"
	TypePaymentRetry          queue.JobType = "payment.retry"
	TypePaymentWebhook        queue.JobType = "payment.webhook"
	TypeSystemCleanup         queue.JobType = "system.cleanup"
	TypeSystemBackup          queue.JobType = "system.backup"
	TypeSystemHealth          queue.JobType = "system.health"
	TypeDeploymentHealthcheck queue.JobType = "deployment.healthcheck"
	TypePerformanceMonitor    queue.JobType = "performance.monitor"
)

// maxPaymentRetries caps payment.retry independently of the queue's own
// attempt accounting. A retry job past this count fails permanently.
const maxPaymentRetries = 3

// BusinessCreatePayload provisions a new managed business and its first
// campaigns.
type BusinessCreatePayload struct {
	OwnerID      uuid.UUID         `json:"owner_id"`
	Name         string            `json:"name"`
	MonthlyPrice float64           `json:"monthly_price"`
	Platforms    []CampaignRequest `json:"platforms,omitempty"`
}

// CampaignRequest describes one initial campaign to create with a business.
type CampaignRequest struct {
	Platform    string  `json:"platform"`
	Name        string  `json:"name"`
	DailyBudget float64 `json:"daily_budget"`
	TargetCPA   float64 `json:"target_cpa,omitempty"`
}

// CampaignCreatePayload creates one campaign on an external platform.
type CampaignCreatePayload struct {
	BusinessID  uuid.UUID `json:"business_id"`
	Platform    string    `json:"platform"`
	Name        string    `json:"name"`
	DailyBudget float64   `json:"daily_budget"`
	TargetCPA   float64   `json:"target_cpa,omitempty"`
}

// CampaignMonitorPayload pulls yesterday's metrics for one campaign.
type CampaignMonitorPayload struct {
	CampaignID uuid.UUID `json:"campaign_id"`
}

// MarketingAutomationPayload runs the full evaluation cycle. An empty
// BusinessID means every active business with recent metrics.
type MarketingAutomationPayload struct {
	BusinessID uuid.UUID `json:"business_id,omitempty"`
}

// AnalyticsCollectPayload pulls platform metrics for every active campaign.
type AnalyticsCollectPayload struct {
	Day string `json:"day,omitempty"` // YYYY-MM-DD, defaults to yesterday
}

// AnalyticsProcessPayload rolls collected metrics into per-business
// performance summaries and hands them to analytics.report.
type AnalyticsProcessPayload struct {
	WindowDays int `json:"window_days,omitempty"`
}

// AnalyticsReportPayload delivers a processed summary as a notification.
type AnalyticsReportPayload struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// PaymentPayload is shared by payment.process and payment.retry.
type PaymentPayload struct {
	BusinessID  uuid.UUID `json:"business_id"`
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	RetryCount  int       `json:"retry_count,omitempty"` // payment.retry only
}

// PaymentWebhookPayload is an incoming payment-provider event.
type PaymentWebhookPayload struct {
	Provider  string          `json:"provider"`
	EventType string          `json:"event_type"`
	Raw       json.RawMessage `json:"raw,omitempty"`

	BusinessID  uuid.UUID `json:"business_id"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
}

// SystemCleanupPayload prunes old metric rows.
type SystemCleanupPayload struct {
	OlderThanDays int `json:"older_than_days,omitempty"` // default 90
}

// DeploymentHealthcheckPayload probes an HTTP endpoint after a deploy.
type DeploymentHealthcheckPayload struct {
	URL string `json:"url"`
}
