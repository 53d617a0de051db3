package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Decision     DecisionConfig     `yaml:"decision"`
	ABTest       ABTestConfig       `yaml:"abtest"`
	Advisory     AdvisoryConfig     `yaml:"advisory"`
	Notification NotificationConfig `yaml:"notification"`
	Backup       BackupConfig       `yaml:"backup"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection configuration for the job queue
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig holds task queue tuning
type QueueConfig struct {
	DefaultMaxAttempts   int            `yaml:"default_max_attempts"`
	BackoffBaseSeconds   int            `yaml:"backoff_base_seconds"`
	Concurrency          map[string]int `yaml:"concurrency"`           // per job type
	DefaultConcurrency   int            `yaml:"default_concurrency"`
	PromoteIntervalMS    int            `yaml:"promote_interval_ms"`   // delayed-job promotion cadence
	AuditIntervalSeconds int            `yaml:"audit_interval_seconds"`
	StuckAfterSeconds    int            `yaml:"stuck_after_seconds"`
	MaxWaitingDepth      int64          `yaml:"max_waiting_depth"`     // backpressure threshold
}

// BackoffBase returns the configured base backoff as a duration
func (c QueueConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// PromoteInterval returns the delayed-job promotion cadence as a duration
func (c QueueConfig) PromoteInterval() time.Duration {
	return time.Duration(c.PromoteIntervalMS) * time.Millisecond
}

// AuditInterval returns the stuck-job audit cadence as a duration
func (c QueueConfig) AuditInterval() time.Duration {
	return time.Duration(c.AuditIntervalSeconds) * time.Second
}

// StuckAfter returns how long a job may stay active before the audit flags it
func (c QueueConfig) StuckAfter() time.Duration {
	return time.Duration(c.StuckAfterSeconds) * time.Second
}

// SchedulerConfig holds recurring trigger configuration
type SchedulerConfig struct {
	Enabled            bool   `yaml:"enabled"`
	AutomationCron     string `yaml:"automation_cron"`      // daily marketing automation
	MetricsCron        string `yaml:"metrics_cron"`         // hourly metrics collection
	CleanupCron        string `yaml:"cleanup_cron"`         // nightly system cleanup
	HealthCron         string `yaml:"health_cron"`          // periodic health check
	PerformanceCron    string `yaml:"performance_cron"`     // performance monitoring
}

// AnalyzerConfig holds campaign performance analyzer thresholds
type AnalyzerConfig struct {
	WindowDays      int     `yaml:"window_days"`
	CTRBaseline     float64 `yaml:"ctr_baseline"`      // percent, score scaling anchor
	ROASTarget      float64 `yaml:"roas_target"`
	DefaultTargetCPA float64 `yaml:"default_target_cpa"`
}

// DecisionConfig holds business decision engine settings
type DecisionConfig struct {
	MatureAgeDays          int `yaml:"mature_age_days"`
	EvaluationIntervalDays int `yaml:"evaluation_interval_days"`
}

// ABTestConfig holds A/B testing engine settings
type ABTestConfig struct {
	MinSampleImpressions int64   `yaml:"min_sample_impressions"`
	MinImprovement       float64 `yaml:"min_improvement"`
	DefaultDurationDays  int     `yaml:"default_duration_days"`
}

// AdvisoryConfig holds AWS Bedrock advisory signal configuration
type AdvisoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	ModelID string `yaml:"model_id"`
	Region  string `yaml:"region"`
}

// NotificationConfig holds notification channel configuration
type NotificationConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	SESEnabled     bool   `yaml:"ses_enabled"`
	SESRegion      string `yaml:"ses_region"`
	SESFromAddress string `yaml:"ses_from_address"`
	SESToAddress   string `yaml:"ses_to_address"`
}

// BackupConfig holds S3 archive settings for backup manifests. An empty
// bucket disables off-host archiving.
type BackupConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	Region   string `yaml:"region"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Queue.DefaultMaxAttempts == 0 {
		cfg.Queue.DefaultMaxAttempts = 3
	}
	if cfg.Queue.BackoffBaseSeconds == 0 {
		cfg.Queue.BackoffBaseSeconds = 5
	}
	if cfg.Queue.DefaultConcurrency == 0 {
		cfg.Queue.DefaultConcurrency = 2
	}
	if cfg.Queue.PromoteIntervalMS == 0 {
		cfg.Queue.PromoteIntervalMS = 1000
	}
	if cfg.Queue.AuditIntervalSeconds == 0 {
		cfg.Queue.AuditIntervalSeconds = 120
	}
	if cfg.Queue.StuckAfterSeconds == 0 {
		cfg.Queue.StuckAfterSeconds = 300
	}
	if cfg.Queue.MaxWaitingDepth == 0 {
		cfg.Queue.MaxWaitingDepth = 100000
	}
	if cfg.Scheduler.AutomationCron == "" {
		cfg.Scheduler.AutomationCron = "0 6 * * *"
	}
	if cfg.Scheduler.MetricsCron == "" {
		cfg.Scheduler.MetricsCron = "0 * * * *"
	}
	if cfg.Scheduler.CleanupCron == "" {
		cfg.Scheduler.CleanupCron = "0 3 * * *"
	}
	if cfg.Scheduler.HealthCron == "" {
		cfg.Scheduler.HealthCron = "*/5 * * * *"
	}
	if cfg.Scheduler.PerformanceCron == "" {
		cfg.Scheduler.PerformanceCron = "*/15 * * * *"
	}
	if cfg.Analyzer.WindowDays == 0 {
		cfg.Analyzer.WindowDays = 14
	}
	if cfg.Analyzer.CTRBaseline == 0 {
		cfg.Analyzer.CTRBaseline = 2.0
	}
	if cfg.Analyzer.ROASTarget == 0 {
		cfg.Analyzer.ROASTarget = 3.0
	}
	if cfg.Analyzer.DefaultTargetCPA == 0 {
		cfg.Analyzer.DefaultTargetCPA = 50.0
	}
	if cfg.Decision.MatureAgeDays == 0 {
		cfg.Decision.MatureAgeDays = 14
	}
	if cfg.Decision.EvaluationIntervalDays == 0 {
		cfg.Decision.EvaluationIntervalDays = 1
	}
	if cfg.ABTest.MinSampleImpressions == 0 {
		cfg.ABTest.MinSampleImpressions = 1000
	}
	if cfg.ABTest.MinImprovement == 0 {
		cfg.ABTest.MinImprovement = 0.10
	}
	if cfg.ABTest.DefaultDurationDays == 0 {
		cfg.ABTest.DefaultDurationDays = 7
	}
	if cfg.Advisory.ModelID == "" {
		cfg.Advisory.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Advisory.Region == "" {
		cfg.Advisory.Region = "us-east-1"
	}
	if cfg.Notification.SESRegion == "" {
		cfg.Notification.SESRegion = "us-west-2"
	}
	if cfg.Backup.S3Prefix == "" {
		cfg.Backup.S3Prefix = "backups"
	}
	if cfg.Backup.Region == "" {
		cfg.Backup.Region = "us-east-1"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		cfg.Notification.WebhookURL = url
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Advisory.Region = region
	}

	return cfg, nil
}
