// Package executor applies a business decision to the real world: budgets
// move, campaigns pause, businesses close. Every action is attempted in
// isolation; one campaign's platform failure never blocks the rest.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/queue"
	"github.com/ignite/adpilot/internal/repository"
)

// JobTypeCampaignOptimize is the job kind used to hand optimization work to
// the queue. Optimization is never run inline in the evaluation cycle.
const JobTypeCampaignOptimize queue.JobType = "campaign.optimize"

// Enqueuer is the queue surface the executor needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}, opts queue.EnqueueOptions) (uuid.UUID, error)
}

// Notifier delivers operational notifications.
type Notifier interface {
	Notify(ev notify.Event)
}

// OptimizePayload is the payload of a campaign.optimize job.
type OptimizePayload struct {
	BusinessID uuid.UUID `json:"business_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	Reasons    []string  `json:"reasons"`
}

// ActionResult records what happened to one campaign (or to the business
// itself for closures, where CampaignID is zero).
type ActionResult struct {
	CampaignID uuid.UUID `json:"campaign_id,omitempty"`
	Action     string    `json:"action"`
	Applied    bool      `json:"applied"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Executor turns decisions into platform calls, persistence updates and
// queued follow-up work.
type Executor struct {
	businesses repository.Businesses
	campaigns  repository.Campaigns
	adapters   *platform.Registry
	jobs       Enqueuer
	notifier   Notifier
}

// New creates an executor. notifier may be nil.
func New(businesses repository.Businesses, campaigns repository.Campaigns, adapters *platform.Registry, jobs Enqueuer, notifier Notifier) *Executor {
	return &Executor{
		businesses: businesses,
		campaigns:  campaigns,
		adapters:   adapters,
		jobs:       jobs,
		notifier:   notifier,
	}
}

// Execute applies the decision. A CLOSE decision pauses every campaign first
// and only then retires the business, so ad spend stops even if the status
// update fails. All other decisions are executed campaign by campaign.
func (e *Executor) Execute(ctx context.Context, d domain.BusinessDecision) []ActionResult {
	log.Printf("[Executor] Executing %s for business %s (%d campaign decisions, confidence %.2f)",
		d.Decision, d.BusinessID, len(d.CampaignDecisions), d.Confidence)

	if d.Decision == domain.DecisionClose {
		return e.closeBusiness(ctx, d)
	}

	results := make([]ActionResult, 0, len(d.CampaignDecisions))
	for _, cd := range d.CampaignDecisions {
		results = append(results, e.executeCampaign(ctx, d.BusinessID, cd))
	}
	return results
}

func (e *Executor) executeCampaign(ctx context.Context, businessID uuid.UUID, cd domain.CampaignDecision) ActionResult {
	res := ActionResult{CampaignID: cd.CampaignID, Action: string(cd.Action)}

	switch cd.Action {
	case domain.ActionMaintain:
		res.Applied = true
		res.Detail = "no change"
		return res

	case domain.ActionOptimize:
		payload := OptimizePayload{BusinessID: businessID, CampaignID: cd.CampaignID, Reasons: cd.Reasons}
		jobID, err := e.jobs.Enqueue(ctx, JobTypeCampaignOptimize, payload, queue.EnqueueOptions{
			Priority: queue.PriorityHigh,
		})
		if err != nil {
			res.Error = fmt.Sprintf("enqueueing optimization: %v", err)
			return res
		}
		res.Applied = true
		res.Detail = "optimization queued as job " + jobID.String()
		return res

	case domain.ActionScale:
		return e.scaleCampaign(ctx, cd)

	case domain.ActionPause:
		return e.pauseCampaign(ctx, cd.CampaignID, strings.Join(cd.Reasons, "; "))

	default:
		res.Error = fmt.Sprintf("unknown action %q", cd.Action)
		return res
	}
}

func (e *Executor) scaleCampaign(ctx context.Context, cd domain.CampaignDecision) ActionResult {
	res := ActionResult{CampaignID: cd.CampaignID, Action: string(domain.ActionScale)}

	campaign, err := e.campaigns.FindByID(ctx, cd.CampaignID)
	if err != nil {
		res.Error = fmt.Sprintf("loading campaign: %v", err)
		return res
	}

	factor := cd.BudgetChangeFactor
	if factor <= 0 {
		res.Applied = true
		res.Detail = "no budget change recommended"
		return res
	}
	newBudget := campaign.DailyBudget * factor

	adapter, err := e.adapters.Get(campaign.Platform)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := adapter.UpdateBudget(ctx, campaign.ExternalID, newBudget); err != nil {
		res.Error = fmt.Sprintf("updating platform budget: %v", err)
		return res
	}
	if err := e.campaigns.Update(ctx, campaign.ID, map[string]interface{}{"daily_budget": newBudget}); err != nil {
		res.Error = fmt.Sprintf("persisting budget: %v", err)
		return res
	}

	res.Applied = true
	res.Detail = fmt.Sprintf("budget %.2f -> %.2f (x%.2f)", campaign.DailyBudget, newBudget, factor)
	log.Printf("[Executor] Scaled campaign %s: %s", campaign.ID, res.Detail)
	return res
}

func (e *Executor) pauseCampaign(ctx context.Context, campaignID uuid.UUID, reason string) ActionResult {
	res := ActionResult{CampaignID: campaignID, Action: string(domain.ActionPause)}

	campaign, err := e.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		res.Error = fmt.Sprintf("loading campaign: %v", err)
		return res
	}

	adapter, err := e.adapters.Get(campaign.Platform)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := adapter.Pause(ctx, campaign.ExternalID); err != nil {
		res.Error = fmt.Sprintf("pausing on platform: %v", err)
		return res
	}
	if err := e.campaigns.Update(ctx, campaign.ID, map[string]interface{}{"status": string(domain.CampaignPaused)}); err != nil {
		res.Error = fmt.Sprintf("persisting pause: %v", err)
		return res
	}

	res.Applied = true
	res.Detail = "paused: " + reason
	log.Printf("[Executor] Paused campaign %s (%s)", campaign.ID, reason)
	return res
}

// closeBusiness pauses every campaign, marks the business closed and emits a
// single notification for the whole closure.
func (e *Executor) closeBusiness(ctx context.Context, d domain.BusinessDecision) []ActionResult {
	reason := strings.Join(d.Reasons, "; ")
	results := make([]ActionResult, 0, len(d.CampaignDecisions)+1)

	pauseFailures := 0
	for _, cd := range d.CampaignDecisions {
		res := e.pauseCampaign(ctx, cd.CampaignID, "business closure")
		if !res.Applied {
			pauseFailures++
		}
		results = append(results, res)
	}

	bizRes := ActionResult{Action: string(domain.DecisionClose)}
	err := e.businesses.Update(ctx, d.BusinessID, map[string]interface{}{
		"status":         string(domain.BusinessClosed),
		"closure_reason": reason,
	})
	if err != nil {
		bizRes.Error = fmt.Sprintf("closing business: %v", err)
	} else {
		bizRes.Applied = true
		bizRes.Detail = "business closed: " + reason
		log.Printf("[Executor] Closed business %s: %s", d.BusinessID, reason)
	}
	results = append(results, bizRes)

	if e.notifier != nil {
		body := fmt.Sprintf("Business closed after evaluation (confidence %.2f). %s", d.Confidence, reason)
		if pauseFailures > 0 {
			body += fmt.Sprintf(" %d campaign(s) could not be paused and need manual attention.", pauseFailures)
		}
		e.notifier.Notify(notify.Event{
			Severity:   notify.SeverityCritical,
			Subject:    "business closed",
			Body:       body,
			BusinessID: d.BusinessID.String(),
		})
	}
	return results
}
