package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/analyzer"
	"github.com/ignite/adpilot/internal/decision"
	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/executor"
	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/pkg/httpretry"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/queue"
	"github.com/ignite/adpilot/internal/repository"
)

// maxBusinessesPerOwner bounds how many open businesses one owner can run.
const maxBusinessesPerOwner = 10

// Charger settles an invoice with the payment provider.
type Charger interface {
	Charge(ctx context.Context, businessID uuid.UUID, invoiceID string, amountCents int64) error
}

// MetricsPruner deletes metric rows older than a cutoff.
type MetricsPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Notifier delivers operational notifications.
type Notifier interface {
	Notify(ev notify.Event)
}

// Archiver stores a named JSON document off-host and returns its location.
type Archiver interface {
	Put(ctx context.Context, name string, doc interface{}) (string, error)
}

// Deps are the collaborators the handlers need. Notifier, Charger and
// Pruner may be nil; the corresponding handlers degrade to no-ops.
type Deps struct {
	Businesses repository.Businesses
	Campaigns  repository.Campaigns
	Metrics    repository.Metrics
	Adapters   *platform.Registry
	Engine     *decision.Engine
	Executor   *executor.Executor
	Queue      *queue.Manager
	Notifier   Notifier
	Charger    Charger
	Pruner     MetricsPruner
	Archive    Archiver
	WindowDays int // analysis window, default 14
}

// Handlers owns one handler per job kind.
type Handlers struct {
	deps       Deps
	httpClient httpretry.HTTPDoer
	now        func() time.Time
}

// New creates the handler set.
func New(deps Deps) *Handlers {
	if deps.WindowDays <= 0 {
		deps.WindowDays = analyzer.DefaultWindowDays
	}
	return &Handlers{
		deps:       deps,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 15 * time.Second}, 2),
		now:        time.Now,
	}
}

// Register wires every job kind into the queue manager. concurrency maps a
// job type name to its pool size; missing entries use the manager default.
func (h *Handlers) Register(concurrency map[string]int) {
	register := func(t queue.JobType, fn queue.HandlerFunc) {
		h.deps.Queue.RegisterHandler(t, fn, concurrency[string(t)])
	}

	register(TypeBusinessCreate, h.handleBusinessCreate)
	register(TypeCampaignCreate, h.handleCampaignCreate)
	register(TypeCampaignMonitor, h.handleCampaignMonitor)
	register(TypeCampaignOptimize, h.handleCampaignOptimize)
	register(TypeMarketingAutomation, h.handleMarketingAutomation)
	register(TypeAnalyticsCollect, h.handleAnalyticsCollect)
	register(TypeAnalyticsProcess, h.handleAnalyticsProcess)
	register(TypeAnalyticsReport, h.handleAnalyticsReport)
	register(TypePaymentProcess, h.handlePaymentProcess)
	register(TypePaymentRetry, h.handlePaymentRetry)
	register(TypePaymentWebhook, h.handlePaymentWebhook)
	register(TypeSystemCleanup, h.handleSystemCleanup)
	register(TypeSystemBackup, h.handleSystemBackup)
	register(TypeSystemHealth, h.handleSystemHealth)
	register(TypeDeploymentHealthcheck, h.handleDeploymentHealthcheck)
	register(TypePerformanceMonitor, h.handlePerformanceMonitor)
}

func decodePayload(job *queue.Job, v interface{}) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return domain.NewValidationError("payload", err.Error())
	}
	return nil
}

// ── business & campaign provisioning ─────────────────────────────────────────

func (h *Handlers) handleBusinessCreate(ctx context.Context, job *queue.Job) queue.Outcome {
	var p BusinessCreatePayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if p.Name == "" {
		return queue.Failure(domain.NewValidationError("name", "business name is required"))
	}
	if p.MonthlyPrice <= 0 {
		return queue.Failure(domain.NewValidationError("monthly_price", "must be positive"))
	}

	n, err := h.deps.Businesses.CountByOwner(ctx, p.OwnerID)
	if err != nil {
		return queue.Failure(fmt.Errorf("counting owner businesses: %w", err))
	}
	if n >= maxBusinessesPerOwner {
		return queue.Failure(domain.NewValidationError("owner_id",
			fmt.Sprintf("owner already runs %d businesses (max %d)", n, maxBusinessesPerOwner)))
	}

	b := &domain.Business{
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		Status:       domain.BusinessActive,
		MonthlyPrice: p.MonthlyPrice,
	}
	if err := h.deps.Businesses.Insert(ctx, b); err != nil {
		return queue.Failure(err)
	}

	// Initial campaigns are created as follow-up jobs so a slow platform
	// cannot stall provisioning.
	queued := 0
	for _, req := range p.Platforms {
		_, err := h.deps.Queue.Enqueue(ctx, TypeCampaignCreate, CampaignCreatePayload{
			BusinessID:  b.ID,
			Platform:    req.Platform,
			Name:        req.Name,
			DailyBudget: req.DailyBudget,
			TargetCPA:   req.TargetCPA,
		}, queue.EnqueueOptions{Priority: queue.PriorityHigh})
		if err != nil {
			log.Printf("[Workflow] Failed to queue campaign.create for business %s: %v", b.ID, err)
			continue
		}
		queued++
	}

	log.Printf("[Workflow] Created business %s (%d campaigns queued)", b.ID, queued)
	return queue.Success(map[string]interface{}{
		"business_id":      b.ID.String(),
		"campaigns_queued": queued,
	})
}

func (h *Handlers) handleCampaignCreate(ctx context.Context, job *queue.Job) queue.Outcome {
	var p CampaignCreatePayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if p.DailyBudget <= 0 {
		return queue.Failure(domain.NewValidationError("daily_budget", "must be positive"))
	}

	business, err := h.deps.Businesses.FindByID(ctx, p.BusinessID)
	if err != nil {
		return queue.Failure(fmt.Errorf("business %s: %w", p.BusinessID, err))
	}

	adapter, err := h.deps.Adapters.Get(p.Platform)
	if err != nil {
		return queue.Failure(err)
	}

	created, err := adapter.CreateCampaign(ctx, *business, platform.CampaignSpec{
		Name:        p.Name,
		DailyBudget: p.DailyBudget,
	})
	if err != nil {
		return queue.Failure(fmt.Errorf("creating campaign on %s: %w", p.Platform, err))
	}

	c := &domain.Campaign{
		BusinessID:  p.BusinessID,
		Platform:    p.Platform,
		ExternalID:  created.ExternalID,
		Name:        p.Name,
		Status:      domain.CampaignActive,
		DailyBudget: p.DailyBudget,
		TargetCPA:   p.TargetCPA,
	}
	if err := h.deps.Campaigns.Insert(ctx, c); err != nil {
		return queue.Failure(err)
	}

	log.Printf("[Workflow] Created campaign %s on %s (external %s)", c.ID, p.Platform, created.ExternalID)
	return queue.Success(map[string]interface{}{
		"campaign_id": c.ID.String(),
		"external_id": created.ExternalID,
	})
}

func (h *Handlers) handleCampaignMonitor(ctx context.Context, job *queue.Job) queue.Outcome {
	var p CampaignMonitorPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}

	campaign, err := h.deps.Campaigns.FindByID(ctx, p.CampaignID)
	if err != nil {
		return queue.Failure(fmt.Errorf("campaign %s: %w", p.CampaignID, err))
	}
	adapter, err := h.deps.Adapters.Get(campaign.Platform)
	if err != nil {
		return queue.Failure(err)
	}

	day := h.now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	m, err := adapter.GetMetrics(ctx, campaign.ExternalID, platform.DateRange{
		From: day,
		To:   day.Add(24 * time.Hour),
	})
	if err != nil {
		return queue.Failure(fmt.Errorf("fetching metrics: %w", err))
	}
	if err := h.deps.Metrics.Insert(ctx, campaign.ID, day, *m); err != nil {
		return queue.Failure(err)
	}

	return queue.Success(map[string]interface{}{
		"campaign_id": campaign.ID.String(),
		"day":         day.Format("2006-01-02"),
		"impressions": m.Impressions,
	})
}

func (h *Handlers) handleCampaignOptimize(ctx context.Context, job *queue.Job) queue.Outcome {
	var p executor.OptimizePayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}

	campaign, err := h.deps.Campaigns.FindByID(ctx, p.CampaignID)
	if err != nil {
		return queue.Failure(fmt.Errorf("campaign %s: %w", p.CampaignID, err))
	}
	business, err := h.deps.Businesses.FindByID(ctx, campaign.BusinessID)
	if err != nil {
		return queue.Failure(fmt.Errorf("business %s: %w", campaign.BusinessID, err))
	}

	now := h.now().UTC()
	window := domain.MetricWindow{From: now.AddDate(0, 0, -h.deps.WindowDays), To: now}
	raw, err := h.deps.Metrics.SumWindow(ctx, campaign.ID, window.From, window.To)
	if err != nil {
		return queue.Failure(err)
	}
	rec := analyzer.Analyze(analyzer.Input{
		CampaignID:   campaign.ID,
		Window:       window,
		Impressions:  raw.Impressions,
		Clicks:       raw.Clicks,
		Conversions:  raw.Conversions,
		Spend:        raw.Spend,
		MonthlyPrice: business.MonthlyPrice,
		TargetCPA:    campaign.TargetCPA,
	})

	// The only automated optimization lever is budget: an unprofitable
	// campaign gets a 10% trim so losses shrink while creative or targeting
	// changes are worked on by a human.
	if rec.ROAS < 1 && rec.Spend > 0 {
		newBudget := campaign.DailyBudget * 0.9
		adapter, err := h.deps.Adapters.Get(campaign.Platform)
		if err != nil {
			return queue.Failure(err)
		}
		if err := adapter.UpdateBudget(ctx, campaign.ExternalID, newBudget); err != nil {
			return queue.Failure(fmt.Errorf("trimming budget: %w", err))
		}
		if err := h.deps.Campaigns.Update(ctx, campaign.ID, map[string]interface{}{"daily_budget": newBudget}); err != nil {
			return queue.Failure(err)
		}
		log.Printf("[Workflow] Optimized campaign %s: budget %.2f -> %.2f (ROAS %.2f)",
			campaign.ID, campaign.DailyBudget, newBudget, rec.ROAS)
		return queue.Success(map[string]interface{}{
			"action":     "budget_trimmed",
			"new_budget": newBudget,
			"roas":       rec.ROAS,
		})
	}

	return queue.Success(map[string]interface{}{
		"action": "no_change",
		"score":  rec.PerformanceScore,
		"roas":   rec.ROAS,
	})
}

// ── the automation cycle ─────────────────────────────────────────────────────

func (h *Handlers) handleMarketingAutomation(ctx context.Context, job *queue.Job) queue.Outcome {
	var p MarketingAutomationPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}

	var businesses []domain.Business
	if p.BusinessID != uuid.Nil {
		b, err := h.deps.Businesses.FindByID(ctx, p.BusinessID)
		if err != nil {
			return queue.Failure(fmt.Errorf("business %s: %w", p.BusinessID, err))
		}
		businesses = []domain.Business{*b}
	} else {
		since := h.now().UTC().AddDate(0, 0, -h.deps.WindowDays)
		var err error
		businesses, err = h.deps.Businesses.FindActive(ctx, since)
		if err != nil {
			return queue.Failure(fmt.Errorf("loading active businesses: %w", err))
		}
	}

	evaluated, failures, actions := 0, 0, 0
	byDecision := map[string]int{}
	for _, b := range businesses {
		d, err := h.deps.Engine.EvaluateBusiness(ctx, b)
		if err != nil {
			failures++
			log.Printf("[Workflow] Evaluation failed for business %s: %v", b.ID, err)
			continue
		}
		evaluated++
		byDecision[string(d.Decision)]++
		for _, res := range h.deps.Executor.Execute(ctx, *d) {
			if res.Applied && res.Action != string(domain.ActionMaintain) {
				actions++
			}
		}
	}

	log.Printf("[Workflow] Automation cycle: %d evaluated, %d actions, %d failures",
		evaluated, actions, failures)
	if h.deps.Notifier != nil && evaluated > 0 {
		fields := make(map[string]string, len(byDecision))
		for k, v := range byDecision {
			fields[k] = fmt.Sprintf("%d", v)
		}
		h.deps.Notifier.Notify(notify.Event{
			Severity: notify.SeverityInfo,
			Subject:  "automation cycle complete",
			Body: fmt.Sprintf("%d businesses evaluated, %d actions applied, %d failures",
				evaluated, actions, failures),
			Fields: fields,
		})
	}

	return queue.Success(map[string]interface{}{
		"evaluated": evaluated,
		"actions":   actions,
		"failures":  failures,
	})
}

// ── analytics ────────────────────────────────────────────────────────────────

func (h *Handlers) handleAnalyticsCollect(ctx context.Context, job *queue.Job) queue.Outcome {
	var p AnalyticsCollectPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}

	day := h.now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if p.Day != "" {
		parsed, err := time.Parse("2006-01-02", p.Day)
		if err != nil {
			return queue.Failure(domain.NewValidationError("day", err.Error()))
		}
		day = parsed
	}

	businesses, err := h.deps.Businesses.FindByStatus(ctx, domain.BusinessActive)
	if err != nil {
		return queue.Failure(err)
	}

	collected, failed := 0, 0
	for _, b := range businesses {
		campaigns, err := h.deps.Campaigns.FindByBusiness(ctx, b.ID, domain.CampaignActive)
		if err != nil {
			failed++
			continue
		}
		for _, c := range campaigns {
			adapter, err := h.deps.Adapters.Get(c.Platform)
			if err != nil {
				failed++
				continue
			}
			m, err := adapter.GetMetrics(ctx, c.ExternalID, platform.DateRange{
				From: day,
				To:   day.Add(24 * time.Hour),
			})
			if err != nil {
				failed++
				continue
			}
			if err := h.deps.Metrics.Insert(ctx, c.ID, day, *m); err != nil {
				failed++
				continue
			}
			collected++
		}
	}

	log.Printf("[Workflow] Collected metrics for %d campaigns (%d failures, day %s)",
		collected, failed, day.Format("2006-01-02"))
	return queue.Success(map[string]interface{}{
		"collected": collected,
		"failed":    failed,
		"day":       day.Format("2006-01-02"),
	})
}

func (h *Handlers) handleAnalyticsProcess(ctx context.Context, job *queue.Job) queue.Outcome {
	var p AnalyticsProcessPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	windowDays := p.WindowDays
	if windowDays <= 0 {
		windowDays = h.deps.WindowDays
	}

	now := h.now().UTC()
	window := domain.MetricWindow{From: now.AddDate(0, 0, -windowDays), To: now}

	businesses, err := h.deps.Businesses.FindByStatus(ctx, domain.BusinessActive)
	if err != nil {
		return queue.Failure(err)
	}

	var lines []string
	processed := 0
	for _, b := range businesses {
		campaigns, err := h.deps.Campaigns.FindByBusiness(ctx, b.ID, domain.CampaignActive)
		if err != nil {
			continue
		}
		var spend, revenue float64
		var scoreSum float64
		for _, c := range campaigns {
			raw, err := h.deps.Metrics.SumWindow(ctx, c.ID, window.From, window.To)
			if err != nil {
				continue
			}
			rec := analyzer.Analyze(analyzer.Input{
				CampaignID:   c.ID,
				Window:       window,
				Impressions:  raw.Impressions,
				Clicks:       raw.Clicks,
				Conversions:  raw.Conversions,
				Spend:        raw.Spend,
				MonthlyPrice: b.MonthlyPrice,
				TargetCPA:    c.TargetCPA,
			})
			spend += rec.Spend
			revenue += rec.Revenue
			scoreSum += rec.PerformanceScore
		}
		if len(campaigns) == 0 {
			continue
		}
		processed++
		lines = append(lines, fmt.Sprintf("%s: spend %.2f, revenue %.2f, avg score %.0f",
			b.Name, spend, revenue, scoreSum/float64(len(campaigns))))
	}

	if processed > 0 {
		_, err = h.deps.Queue.Enqueue(ctx, TypeAnalyticsReport, AnalyticsReportPayload{
			Subject: fmt.Sprintf("performance summary (%dd window)", windowDays),
			Body:    strings.Join(lines, "\n"),
		}, queue.EnqueueOptions{Priority: queue.PriorityLow})
		if err != nil {
			return queue.Failure(fmt.Errorf("queueing report: %w", err))
		}
	}

	return queue.Success(map[string]interface{}{"processed": processed})
}

func (h *Handlers) handleAnalyticsReport(ctx context.Context, job *queue.Job) queue.Outcome {
	var p AnalyticsReportPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if h.deps.Notifier != nil {
		h.deps.Notifier.Notify(notify.Event{
			Severity: notify.SeverityInfo,
			Subject:  p.Subject,
			Body:     p.Body,
			Fields:   p.Fields,
		})
	}
	return queue.Success(nil)
}

// ── payments ─────────────────────────────────────────────────────────────────

func (h *Handlers) handlePaymentProcess(ctx context.Context, job *queue.Job) queue.Outcome {
	var p PaymentPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if p.AmountCents <= 0 {
		return queue.Failure(domain.NewValidationError("amount_cents", "must be positive"))
	}
	if h.deps.Charger == nil {
		return queue.Success(map[string]interface{}{"status": "skipped", "reason": "no payment provider configured"})
	}

	err := h.deps.Charger.Charge(ctx, p.BusinessID, p.InvoiceID, p.AmountCents)
	if err == nil {
		return queue.Success(map[string]interface{}{"status": "charged", "invoice_id": p.InvoiceID})
	}
	if !domain.IsRetryable(err) {
		return queue.Failure(err)
	}

	// Failed charges move to the dedicated retry kind with its own cap
	// instead of burning this job's attempts.
	p.RetryCount = 1
	if _, qerr := h.deps.Queue.Enqueue(ctx, TypePaymentRetry, p, queue.EnqueueOptions{
		Priority: queue.PriorityHigh,
		Delay:    paymentRetryDelay(p.RetryCount),
	}); qerr != nil {
		return queue.Failure(fmt.Errorf("queueing payment retry: %w", qerr))
	}
	return queue.Success(map[string]interface{}{"status": "retry_scheduled", "invoice_id": p.InvoiceID})
}

func (h *Handlers) handlePaymentRetry(ctx context.Context, job *queue.Job) queue.Outcome {
	var p PaymentPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if p.RetryCount > maxPaymentRetries {
		if h.deps.Notifier != nil {
			h.deps.Notifier.Notify(notify.Event{
				Severity:   notify.SeverityWarning,
				Subject:    "payment abandoned",
				Body:       fmt.Sprintf("invoice %s failed %d retries", p.InvoiceID, maxPaymentRetries),
				BusinessID: p.BusinessID.String(),
			})
		}
		return queue.Failure(domain.Permanent(
			fmt.Errorf("invoice %s exhausted %d payment retries", p.InvoiceID, maxPaymentRetries)))
	}
	if h.deps.Charger == nil {
		return queue.Success(map[string]interface{}{"status": "skipped"})
	}

	err := h.deps.Charger.Charge(ctx, p.BusinessID, p.InvoiceID, p.AmountCents)
	if err == nil {
		return queue.Success(map[string]interface{}{
			"status":     "charged",
			"invoice_id": p.InvoiceID,
			"retry":      p.RetryCount,
		})
	}
	if !domain.IsRetryable(err) {
		return queue.Failure(err)
	}

	p.RetryCount++
	if _, qerr := h.deps.Queue.Enqueue(ctx, TypePaymentRetry, p, queue.EnqueueOptions{
		Priority: queue.PriorityHigh,
		Delay:    paymentRetryDelay(p.RetryCount),
	}); qerr != nil {
		return queue.Failure(fmt.Errorf("queueing payment retry: %w", qerr))
	}
	return queue.Success(map[string]interface{}{"status": "retry_scheduled", "retry": p.RetryCount})
}

// paymentRetryDelay backs off retries at 5m, 10m, 20m.
func paymentRetryDelay(retryCount int) time.Duration {
	d := 5 * time.Minute
	for i := 1; i < retryCount; i++ {
		d *= 2
	}
	return d
}

func (h *Handlers) handlePaymentWebhook(ctx context.Context, job *queue.Job) queue.Outcome {
	var p PaymentWebhookPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if p.Provider == "" || p.EventType == "" {
		return queue.Failure(domain.NewValidationError("event", "provider and event_type are required"))
	}

	switch p.EventType {
	case "payment_failed":
		retry := PaymentPayload{
			BusinessID:  p.BusinessID,
			InvoiceID:   p.InvoiceID,
			AmountCents: p.AmountCents,
			RetryCount:  1,
		}
		if _, err := h.deps.Queue.Enqueue(ctx, TypePaymentRetry, retry, queue.EnqueueOptions{
			Priority: queue.PriorityHigh,
			Delay:    paymentRetryDelay(1),
		}); err != nil {
			return queue.Failure(fmt.Errorf("queueing payment retry: %w", err))
		}
		return queue.Success(map[string]interface{}{"status": "retry_scheduled"})

	case "payment_succeeded":
		return queue.Success(map[string]interface{}{"status": "acknowledged"})

	default:
		log.Printf("[Workflow] Ignoring %s webhook event %q", p.Provider, p.EventType)
		return queue.Success(map[string]interface{}{"status": "ignored"})
	}
}

// ── system & ops ─────────────────────────────────────────────────────────────

func (h *Handlers) handleSystemCleanup(ctx context.Context, job *queue.Job) queue.Outcome {
	var p SystemCleanupPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	days := p.OlderThanDays
	if days <= 0 {
		days = 90
	}
	if h.deps.Pruner == nil {
		return queue.Success(map[string]interface{}{"pruned": 0})
	}

	cutoff := h.now().UTC().AddDate(0, 0, -days)
	n, err := h.deps.Pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return queue.Failure(err)
	}
	log.Printf("[Workflow] Cleanup pruned %d metric rows older than %s", n, cutoff.Format("2006-01-02"))
	return queue.Success(map[string]interface{}{"pruned": n})
}

func (h *Handlers) handleSystemBackup(ctx context.Context, job *queue.Job) queue.Outcome {
	// The backup manifest records what the system was managing at backup
	// time; the database itself is backed up by the hosting layer.
	manifest := map[string]interface{}{"taken_at": h.now().UTC().Format(time.RFC3339)}
	for _, status := range []domain.BusinessStatus{domain.BusinessActive, domain.BusinessPaused, domain.BusinessClosed} {
		bs, err := h.deps.Businesses.FindByStatus(ctx, status)
		if err != nil {
			return queue.Failure(err)
		}
		manifest["businesses_"+string(status)] = len(bs)
	}

	if h.deps.Archive != nil {
		key, err := h.deps.Archive.Put(ctx, "backup", manifest)
		if err != nil {
			return queue.Failure(domain.Transient(fmt.Errorf("archiving backup manifest: %w", err)))
		}
		manifest["location"] = key
	}
	return queue.Success(manifest)
}

func (h *Handlers) handleSystemHealth(ctx context.Context, job *queue.Job) queue.Outcome {
	health := h.deps.Queue.HealthCheck(ctx)
	if health.State != queue.Healthy && h.deps.Notifier != nil {
		h.deps.Notifier.Notify(notify.Event{
			Severity: notify.SeverityWarning,
			Subject:  "queue health " + string(health.State),
			Body:     health.Reason,
		})
	}
	return queue.Success(map[string]interface{}{
		"state":        string(health.State),
		"failed_jobs":  health.FailedJobs,
		"delayed_jobs": health.DelayedJobs,
	})
}

func (h *Handlers) handleDeploymentHealthcheck(ctx context.Context, job *queue.Job) queue.Outcome {
	var p DeploymentHealthcheckPayload
	if err := decodePayload(job, &p); err != nil {
		return queue.Failure(err)
	}
	if p.URL == "" {
		return queue.Failure(domain.NewValidationError("url", "url is required"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return queue.Failure(domain.NewValidationError("url", err.Error()))
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return queue.Failure(domain.Transient(fmt.Errorf("probing %s: %w", p.URL, err)))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return queue.Failure(domain.Transient(fmt.Errorf("probe %s returned %d", p.URL, resp.StatusCode)))
	}
	return queue.Success(map[string]interface{}{"status_code": resp.StatusCode})
}

func (h *Handlers) handlePerformanceMonitor(ctx context.Context, job *queue.Job) queue.Outcome {
	stats, err := h.deps.Queue.Stats(ctx)
	if err != nil {
		return queue.Failure(err)
	}

	var waiting, failed int64
	for _, s := range stats.Types {
		waiting += s.Waiting
		failed += s.Failed
	}

	if h.deps.Queue.BackpressureActive(ctx) && h.deps.Notifier != nil {
		h.deps.Notifier.Notify(notify.Event{
			Severity: notify.SeverityWarning,
			Subject:  "queue backpressure active",
			Body:     fmt.Sprintf("%d jobs waiting", waiting),
		})
	}

	return queue.Success(map[string]interface{}{
		"waiting": waiting,
		"failed":  failed,
		"stuck":   stats.Stuck,
	})
}
