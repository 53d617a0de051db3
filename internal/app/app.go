package app

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpilot/internal/abtest"
	"github.com/ignite/adpilot/internal/config"
	"github.com/ignite/adpilot/internal/decision"
	"github.com/ignite/adpilot/internal/executor"
	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/pkg/distlock"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/queue"
	"github.com/ignite/adpilot/internal/repository"
	"github.com/ignite/adpilot/internal/repository/postgres"
	"github.com/ignite/adpilot/internal/scheduler"
	"github.com/ignite/adpilot/internal/storage"
	"github.com/ignite/adpilot/internal/workflow"
)

// App wires every subsystem together. Both the API server and the headless
// worker build one of these; the server additionally mounts HTTP routes on
// top of the exported fields.
type App struct {
	Queue     *queue.Manager
	Scheduler *scheduler.Scheduler
	ABTests   *abtest.Engine
	Notifier  *notify.Dispatcher

	cfg config.Config
}

// New assembles the application from configuration. db may be nil, in which
// case in-memory repositories back the domain (useful for local development).
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	var (
		businesses repository.Businesses
		campaigns  repository.Campaigns
		metrics    repository.Metrics
		pruner     workflow.MetricsPruner
		store      abtest.Store
	)
	if db != nil {
		businesses = postgres.NewBusinesses(db)
		campaigns = postgres.NewCampaigns(db)
		pgMetrics := postgres.NewMetrics(db)
		metrics = pgMetrics
		pruner = pgMetrics
		store = abtest.NewPostgresStore(db)
	} else {
		memBusinesses := repository.NewMemoryBusinesses()
		memCampaigns := repository.NewMemoryCampaigns()
		memMetrics := repository.NewMemoryMetrics()
		memMetrics.BindActivity(memCampaigns, memBusinesses)
		businesses = memBusinesses
		campaigns = memCampaigns
		metrics = memMetrics
		pruner = memMetrics
		store = abtest.NewMemoryStore()
	}

	adapters := platform.NewRegistry()
	adapters.Register("memory", platform.NewMemoryAdapter())

	var advisor decision.Advisor
	if cfg.Advisory.Enabled {
		a, err := decision.NewBedrockAdvisor(context.Background(), cfg.Advisory.ModelID, cfg.Advisory.Region)
		if err != nil {
			log.Printf("[App] Bedrock advisor unavailable, continuing without advisory signal: %v", err)
		} else {
			advisor = a
			log.Printf("[App] Bedrock advisor enabled (model %s)", cfg.Advisory.ModelID)
		}
	}

	engine := decision.New(campaigns, metrics, advisor, decision.Config{
		MatureAgeDays:      cfg.Decision.MatureAgeDays,
		WindowDays:         cfg.Analyzer.WindowDays,
		EvaluationInterval: time.Duration(cfg.Decision.EvaluationIntervalDays) * 24 * time.Hour,
		DefaultTargetCPA:   cfg.Analyzer.DefaultTargetCPA,
		CTRBaseline:        cfg.Analyzer.CTRBaseline,
		ROASTarget:         cfg.Analyzer.ROASTarget,
	})

	notifier := notify.NewDispatcher(notify.LogChannel{})
	if cfg.Notification.WebhookURL != "" {
		notifier.AddChannel(notify.NewWebhookChannel(cfg.Notification.WebhookURL))
	}
	if cfg.Notification.SESEnabled {
		ses, err := notify.NewSESChannel(context.Background(),
			cfg.Notification.SESRegion, cfg.Notification.SESFromAddress, cfg.Notification.SESToAddress)
		if err != nil {
			log.Printf("[App] SES channel unavailable: %v", err)
		} else {
			notifier.AddChannel(ses)
		}
	}

	mgr := queue.NewManager(rdb, queue.ManagerConfig{
		DefaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		BackoffBase:        cfg.Queue.BackoffBase(),
		DefaultConcurrency: cfg.Queue.DefaultConcurrency,
		PromoteInterval:    cfg.Queue.PromoteInterval(),
		AuditInterval:      cfg.Queue.AuditInterval(),
		StuckAfter:         cfg.Queue.StuckAfter(),
		MaxWaitingDepth:    cfg.Queue.MaxWaitingDepth,
	})

	exec := executor.New(businesses, campaigns, adapters, mgr, notifier)

	abEngine := abtest.New(store, campaigns, adapters, abtest.Config{
		MinSampleImpressions: cfg.ABTest.MinSampleImpressions,
		MinImprovement:       cfg.ABTest.MinImprovement,
		DefaultDurationDays:  cfg.ABTest.DefaultDurationDays,
	})

	var archive workflow.Archiver
	if cfg.Backup.S3Bucket != "" {
		a, err := storage.NewS3Archive(context.Background(), cfg.Backup.S3Bucket, cfg.Backup.S3Prefix, cfg.Backup.Region)
		if err != nil {
			log.Printf("[App] S3 archive unavailable, backups stay local: %v", err)
		} else {
			archive = a
		}
	}

	handlers := workflow.New(workflow.Deps{
		Businesses: businesses,
		Campaigns:  campaigns,
		Metrics:    metrics,
		Adapters:   adapters,
		Engine:     engine,
		Executor:   exec,
		Queue:      mgr,
		Notifier:   notifier,
		Pruner:     pruner,
		Archive:    archive,
		WindowDays: cfg.Analyzer.WindowDays,
	})
	handlers.Register(cfg.Queue.Concurrency)

	sched := scheduler.New(mgr)
	sched.UseLocks(func(name string) distlock.DistLock {
		return distlock.NewLock(rdb, db, "sched:"+name, 50*time.Second)
	})

	return &App{
		Queue:     mgr,
		Scheduler: sched,
		ABTests:   abEngine,
		Notifier:  notifier,
		cfg:       *cfg,
	}, nil
}

// Start launches the queue workers and installs the standing schedule.
func (a *App) Start() error {
	if err := a.Queue.Start(); err != nil {
		return err
	}
	if a.cfg.Scheduler.Enabled {
		for _, def := range workflow.DefaultSchedule(a.cfg.Scheduler) {
			if err := a.Scheduler.AddScheduledJob(def); err != nil {
				return err
			}
		}
		log.Println("[App] Standing schedule installed")
	}
	return nil
}

// Stop drains the scheduler, queue workers and pending notifications.
func (a *App) Stop() {
	a.Scheduler.Shutdown()
	a.Queue.Stop()
	a.Notifier.Flush()
}
