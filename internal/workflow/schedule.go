package workflow

import (
	"github.com/ignite/adpilot/internal/config"
	"github.com/ignite/adpilot/internal/queue"
	"github.com/ignite/adpilot/internal/scheduler"
)

// DefaultSchedule returns the standing schedule the worker installs on boot.
func DefaultSchedule(cfg config.SchedulerConfig) []scheduler.Definition {
	return []scheduler.Definition{
		{
			Name:     "daily-automation",
			CronExpr: cfg.AutomationCron,
			JobType:  TypeMarketingAutomation,
			Enabled:  true,
			Priority: queue.PriorityHigh,
		},
		{
			Name:     "metrics-collection",
			CronExpr: cfg.MetricsCron,
			JobType:  TypeAnalyticsCollect,
			Enabled:  true,
			Priority: queue.PriorityNormal,
		},
		{
			Name:     "nightly-cleanup",
			CronExpr: cfg.CleanupCron,
			JobType:  TypeSystemCleanup,
			Payload:  map[string]interface{}{"older_than_days": 90},
			Enabled:  true,
			Priority: queue.PriorityLow,
		},
		{
			Name:     "health-check",
			CronExpr: cfg.HealthCron,
			JobType:  TypeSystemHealth,
			Enabled:  true,
			Priority: queue.PriorityCritical,
		},
		{
			Name:     "performance-monitor",
			CronExpr: cfg.PerformanceCron,
			JobType:  TypePerformanceMonitor,
			Enabled:  true,
			Priority: queue.PriorityNormal,
		},
	}
}
