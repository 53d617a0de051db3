package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpilot/internal/domain"
)

// =============================================================================
// TASK QUEUE MANAGER
// =============================================================================
// Redis-backed durable job queue with per-type worker pools, four priority
// tiers, and retry with fixed/exponential backoff.
//
// Redis layout (per job type):
//   job:{id}            JSON job record (source of truth for job state)
//   queue:{type}:{prio} waiting list per priority tier (LPUSH / BRPOP = FIFO)
//   delayed:{type}      ZSET of job IDs scored by ready-time
//   active:{type}       HASH jobID -> started-at unix (for the stuck audit)
//   failed:{type}       list of permanently failed job IDs
//   stats:{type}:completed / stats:{type}:failed  counters
//
// Dispatch order: within one priority FIFO; across priorities CRITICAL
// preempts HIGH preempts NORMAL preempts LOW (BRPOP key ordering).
// Backoff waits live in the delayed ZSET and never hold a worker slot.

const (
	// DefaultMaxAttempts applies when an enqueue doesn't specify a limit.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the base delay for retries.
	DefaultBackoffBase = 5 * time.Second

	// dequeueBlock is how long a worker blocks on BRPOP before rechecking
	// for shutdown.
	dequeueBlock = 2 * time.Second
)

// ManagerConfig tunes the queue manager.
type ManagerConfig struct {
	DefaultMaxAttempts int
	BackoffBase        time.Duration
	DefaultConcurrency int
	PromoteInterval    time.Duration
	AuditInterval      time.Duration
	StuckAfter         time.Duration
	MaxWaitingDepth    int64 // backpressure threshold; 0 disables
}

// DefaultManagerConfig returns sensible defaults for production use.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultMaxAttempts: DefaultMaxAttempts,
		BackoffBase:        DefaultBackoffBase,
		DefaultConcurrency: 2,
		PromoteInterval:    time.Second,
		AuditInterval:      2 * time.Minute,
		StuckAfter:         5 * time.Minute,
		MaxWaitingDepth:    100000,
	}
}

type handlerEntry struct {
	fn          HandlerFunc
	concurrency int
}

// StuckJob describes a job flagged by the periodic audit as active beyond
// the stuck timeout. Stuck jobs are surfaced, never auto-retried.
type StuckJob struct {
	JobID     uuid.UUID
	Type      JobType
	StartedAt time.Time
}

// Manager is the task queue manager. Register handlers before Start; enqueue
// is safe from any goroutine at any time.
type Manager struct {
	rdb *redis.Client
	cfg ManagerConfig

	mu       sync.RWMutex
	handlers map[JobType]handlerEntry
	running  bool
	stuck    []StuckJob

	// Lifetime counters (process-local; durable counts live in Redis)
	processed int64
	failed    int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a queue manager on the given Redis client.
func NewManager(rdb *redis.Client, cfg ManagerConfig) *Manager {
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 2
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = time.Second
	}
	if cfg.AuditInterval <= 0 {
		cfg.AuditInterval = 2 * time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	return &Manager{
		rdb:      rdb,
		cfg:      cfg,
		handlers: make(map[JobType]handlerEntry),
	}
}

// RegisterHandler binds a handler to a job type with its own worker
// concurrency. Registering again for the same type replaces the handler.
// Must be called before Start.
func (m *Manager) RegisterHandler(jobType JobType, fn HandlerFunc, concurrency int) {
	if concurrency <= 0 {
		concurrency = m.cfg.DefaultConcurrency
	}
	m.mu.Lock()
	m.handlers[jobType] = handlerEntry{fn: fn, concurrency: concurrency}
	m.mu.Unlock()
}

// Enqueue creates a durable job and places it on its priority queue (or the
// delayed set when opts.Delay > 0). Returns the new job ID.
func (m *Manager) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts EnqueueOptions) (uuid.UUID, error) {
	if jobType == "" {
		return uuid.Nil, domain.NewValidationError("type", "job type is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, domain.NewValidationError("payload", err.Error())
	}

	if opts.Priority == 0 {
		opts.Priority = PriorityNormal
	}
	if !opts.Priority.Valid() {
		return uuid.Nil, domain.NewValidationError("priority",
			fmt.Sprintf("priority %d is not one of 1 (low), 5 (normal), 10 (high), 15 (critical)", opts.Priority))
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = m.cfg.DefaultMaxAttempts
	}
	backoff := Backoff{Kind: BackoffExponential, Base: m.cfg.BackoffBase}
	if opts.Backoff != nil {
		backoff = *opts.Backoff
		if backoff.Base <= 0 {
			backoff.Base = m.cfg.BackoffBase
		}
	}

	job := &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     backoff,
		Status:      StatusWaiting,
		CreatedAt:   time.Now().UTC(),
	}
	if opts.Delay > 0 {
		job.Status = StatusDelayed
	}

	if err := m.saveJob(ctx, job); err != nil {
		return uuid.Nil, domain.Transient(err)
	}

	if opts.Delay > 0 {
		readyAt := time.Now().Add(opts.Delay)
		if err := m.rdb.ZAdd(ctx, delayedKey(jobType), redis.Z{
			Score:  float64(readyAt.UnixMilli()),
			Member: job.ID.String(),
		}).Err(); err != nil {
			return uuid.Nil, domain.Transient(err)
		}
	} else {
		if err := m.rdb.LPush(ctx, waitingKey(jobType, job.Priority), job.ID.String()).Err(); err != nil {
			return uuid.Nil, domain.Transient(err)
		}
	}

	log.Printf("[Queue] Enqueued %s job %s (priority=%d, delay=%s)", jobType, job.ID, job.Priority, opts.Delay)
	return job.ID, nil
}

// CancelJob removes a job that has not been dequeued yet. Active jobs run to
// completion; cancelling them returns false.
func (m *Manager) CancelJob(ctx context.Context, jobType JobType, id uuid.UUID) (bool, error) {
	job, err := m.loadJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	switch job.Status {
	case StatusWaiting:
		n, err := m.rdb.LRem(ctx, waitingKey(jobType, job.Priority), 0, id.String()).Result()
		if err != nil {
			return false, domain.Transient(err)
		}
		if n == 0 {
			return false, nil
		}
	case StatusDelayed:
		n, err := m.rdb.ZRem(ctx, delayedKey(jobType), id.String()).Result()
		if err != nil {
			return false, domain.Transient(err)
		}
		if n == 0 {
			return false, nil
		}
	default:
		return false, nil
	}

	m.rdb.Del(ctx, jobKey(id))
	log.Printf("[Queue] Cancelled %s job %s", jobType, id)
	return true, nil
}

// Start spins up the worker pools, the delayed-job promotion loop and the
// stuck-job audit loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	handlers := make(map[JobType]handlerEntry, len(m.handlers))
	for t, h := range m.handlers {
		handlers[t] = h
	}
	m.mu.Unlock()

	for jobType, entry := range handlers {
		for i := 0; i < entry.concurrency; i++ {
			m.wg.Add(1)
			go m.workerLoop(jobType, entry.fn, i)
		}
		log.Printf("[Queue] Started %d workers for %s", entry.concurrency, jobType)
	}

	m.wg.Add(1)
	go m.promoteLoop()

	m.wg.Add(1)
	go m.auditLoop()

	return nil
}

// Stop drains the manager. Active handlers run to completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	log.Printf("[Queue] Stopped. Processed: %d, failed: %d",
		atomic.LoadInt64(&m.processed), atomic.LoadInt64(&m.failed))
}

// workerLoop dequeues and runs jobs of one type. BRPOP checks the priority
// keys in CRITICAL-to-LOW order, which gives us tier preemption for free.
func (m *Manager) workerLoop(jobType JobType, fn HandlerFunc, workerNum int) {
	defer m.wg.Done()

	keys := make([]string, 0, len(priorityOrder))
	for _, p := range priorityOrder {
		keys = append(keys, waitingKey(jobType, p))
	}

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		res, err := m.rdb.BRPop(m.ctx, dequeueBlock, keys...).Result()
		if err != nil {
			if err == redis.Nil || m.ctx.Err() != nil {
				continue
			}
			log.Printf("[Queue] %s worker %d dequeue error: %v", jobType, workerNum, err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) != 2 {
			continue
		}

		id, err := uuid.Parse(res[1])
		if err != nil {
			log.Printf("[Queue] %s worker %d: bad job id %q", jobType, workerNum, res[1])
			continue
		}

		m.runJob(jobType, fn, id)
	}
}

// runJob executes a single attempt and applies the retry/backoff policy to
// the structured outcome.
func (m *Manager) runJob(jobType JobType, fn HandlerFunc, id uuid.UUID) {
	ctx := m.ctx

	job, err := m.loadJob(ctx, id)
	if err != nil || job == nil {
		log.Printf("[Queue] %s job %s: record missing, skipping", jobType, id)
		return
	}

	now := time.Now().UTC()
	job.Status = StatusActive
	job.StartedAt = &now
	job.AttemptsMade++ // invariant: never exceeds MaxAttempts, checked below
	if err := m.saveJob(ctx, job); err != nil {
		log.Printf("[Queue] %s job %s: failed to mark active: %v", jobType, id, err)
		return
	}
	m.rdb.HSet(ctx, activeKey(jobType), id.String(), now.Unix())
	defer m.rdb.HDel(ctx, activeKey(jobType), id.String())

	outcome := safeRun(fn, ctx, job)

	finished := time.Now().UTC()
	job.FinishedAt = &finished

	if outcome.Err == nil {
		job.Status = StatusCompleted
		job.LastError = ""
		if outcome.Result != nil {
			if raw, err := json.Marshal(outcome.Result); err == nil {
				job.Result = raw
			}
		}
		m.saveJob(ctx, job)
		m.rdb.Incr(ctx, statsKey(jobType, "completed"))
		atomic.AddInt64(&m.processed, 1)
		log.Printf("[Queue] Completed %s job %s (attempt %d/%d)", jobType, id, job.AttemptsMade, job.MaxAttempts)
		return
	}

	job.LastError = outcome.Err.Error()

	if domain.IsRetryable(outcome.Err) && job.AttemptsMade < job.MaxAttempts {
		delay := job.Backoff.Delay(job.AttemptsMade)
		job.Status = StatusDelayed
		job.FinishedAt = nil
		m.saveJob(ctx, job)
		m.rdb.ZAdd(ctx, delayedKey(jobType), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: id.String(),
		})
		log.Printf("[Queue] %s job %s failed (attempt %d/%d), retrying in %s: %v",
			jobType, id, job.AttemptsMade, job.MaxAttempts, delay, outcome.Err)
		return
	}

	// Terminal failure: surfaced through the failed list and health metrics,
	// never silently dropped.
	job.Status = StatusFailed
	m.saveJob(ctx, job)
	m.rdb.LPush(ctx, failedKey(jobType), id.String())
	m.rdb.Incr(ctx, statsKey(jobType, "failed"))
	atomic.AddInt64(&m.failed, 1)
	log.Printf("[Queue] %s job %s permanently failed after %d attempts: %v",
		jobType, id, job.AttemptsMade, outcome.Err)
}

// safeRun converts a handler panic into a failed outcome so one bad handler
// cannot take down the worker pool.
func safeRun(fn HandlerFunc, ctx context.Context, job *Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return fn(ctx, job)
}

// promoteLoop moves due delayed jobs back onto their priority queues.
func (m *Manager) promoteLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			types := make([]JobType, 0, len(m.handlers))
			for t := range m.handlers {
				types = append(types, t)
			}
			m.mu.RUnlock()
			for _, t := range types {
				m.promoteDue(t)
			}
		}
	}
}

// promoteDue promotes jobs whose backoff/delay has elapsed for one type.
func (m *Manager) promoteDue(jobType JobType) {
	ctx := m.ctx
	now := time.Now().UnixMilli()

	ids, err := m.rdb.ZRangeByScore(ctx, delayedKey(jobType), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10), Offset: 0, Count: 100,
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, idStr := range ids {
		removed, err := m.rdb.ZRem(ctx, delayedKey(jobType), idStr).Result()
		if err != nil || removed == 0 {
			continue // another process got there first
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		job, err := m.loadJob(ctx, id)
		if err != nil || job == nil {
			continue
		}

		job.Status = StatusWaiting
		m.saveJob(ctx, job)
		m.rdb.LPush(ctx, waitingKey(jobType, job.Priority), idStr)
	}
	log.Printf("[Queue] Promoted %d delayed %s jobs", len(ids), jobType)
}

// auditLoop periodically flags jobs active beyond the stuck timeout. Stuck
// jobs are reported through Stats and logs only; a crashed handler must not
// be blindly re-run.
func (m *Manager) auditLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.AuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.auditStuckJobs()
		}
	}
}

func (m *Manager) auditStuckJobs() {
	ctx := m.ctx
	cutoff := time.Now().Add(-m.cfg.StuckAfter).Unix()

	var stuck []StuckJob

	m.mu.RLock()
	types := make([]JobType, 0, len(m.handlers))
	for t := range m.handlers {
		types = append(types, t)
	}
	m.mu.RUnlock()

	for _, t := range types {
		entries, err := m.rdb.HGetAll(ctx, activeKey(t)).Result()
		if err != nil {
			continue
		}
		for idStr, startedStr := range entries {
			started, err := strconv.ParseInt(startedStr, 10, 64)
			if err != nil || started > cutoff {
				continue
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			stuck = append(stuck, StuckJob{JobID: id, Type: t, StartedAt: time.Unix(started, 0).UTC()})
		}
	}

	m.mu.Lock()
	m.stuck = stuck
	m.mu.Unlock()

	for _, s := range stuck {
		log.Printf("[Queue] AUDIT: job %s (%s) active since %s, possible crashed worker",
			s.JobID, s.Type, s.StartedAt.Format(time.RFC3339))
	}
}

// StuckJobs returns the most recent audit findings.
func (m *Manager) StuckJobs() []StuckJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StuckJob, len(m.stuck))
	copy(out, m.stuck)
	return out
}

// BackpressureActive reports whether the total waiting depth exceeds the
// configured threshold. Bulk producers should defer enqueueing until the
// queue drains below half the threshold.
func (m *Manager) BackpressureActive(ctx context.Context) bool {
	if m.cfg.MaxWaitingDepth <= 0 {
		return false
	}
	stats, err := m.Stats(ctx)
	if err != nil {
		return false
	}
	var waiting int64
	for _, s := range stats.Types {
		waiting += s.Waiting
	}
	return waiting >= m.cfg.MaxWaitingDepth
}

// saveJob persists the job record, enforcing the attempts invariant.
func (m *Manager) saveJob(ctx context.Context, job *Job) error {
	if job.AttemptsMade > job.MaxAttempts {
		job.AttemptsMade = job.MaxAttempts
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, jobKey(job.ID), raw, 0).Err()
}

// loadJob fetches a job record; a missing record returns (nil, nil).
func (m *Manager) loadJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	raw, err := m.rdb.Get(ctx, jobKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient(err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob returns the current record for a job ID.
func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := m.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func jobKey(id uuid.UUID) string { return "job:" + id.String() }

func waitingKey(t JobType, p Priority) string {
	return fmt.Sprintf("queue:%s:%d", t, p)
}

func delayedKey(t JobType) string { return "delayed:" + string(t) }
func activeKey(t JobType) string  { return "active:" + string(t) }
func failedKey(t JobType) string  { return "failed:" + string(t) }

func statsKey(t JobType, which string) string {
	return fmt.Sprintf("stats:%s:%s", t, which)
}
