package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/pkg/distlock"
	"github.com/ignite/adpilot/internal/queue"
)

// =============================================================================
// SCHEDULER
// =============================================================================
// Maintains named recurring triggers that enqueue jobs. Definitions can be
// added, started, stopped and removed at runtime. Add with a duplicate name
// replaces the prior definition; remove/start/stop on an unknown name return
// false rather than an error.

// Definition is a named recurring trigger.
type Definition struct {
	Name     string                 `json:"name"`
	CronExpr string                 `json:"cron_expression"`
	JobType  queue.JobType          `json:"job_type"`
	Payload  map[string]interface{} `json:"payload"`
	Enabled  bool                   `json:"enabled"`
	Priority queue.Priority         `json:"priority"`
}

// JobInfo is the read view of a live definition.
type JobInfo struct {
	Definition
	NextRun time.Time `json:"next_run,omitempty"`
}

type entry struct {
	def    Definition
	runner *cron.Cron // nil while stopped
}

// Scheduler owns the live set of scheduled job definitions. Names are unique
// within the live set.
type Scheduler struct {
	mu      sync.RWMutex
	entries map[string]*entry
	mgr     *queue.Manager
	parser  cron.Parser
	locks   LockFactory
}

// LockFactory builds a short-lived distributed lock guarding one trigger
// firing. When set, a tick that cannot acquire its lock is skipped; another
// instance already fired it.
type LockFactory func(name string) distlock.DistLock

// New creates a scheduler that enqueues into the given queue manager.
func New(mgr *queue.Manager) *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		mgr:     mgr,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// UseLocks enables cross-instance dedup of trigger firings. Call before any
// definitions are started.
func (s *Scheduler) UseLocks(f LockFactory) {
	s.mu.Lock()
	s.locks = f
	s.mu.Unlock()
}

// AddScheduledJob registers a definition. A duplicate name replaces (and
// stops) the prior definition. The trigger starts immediately when
// def.Enabled is true.
func (s *Scheduler) AddScheduledJob(def Definition) error {
	if _, err := s.parser.Parse(def.CronExpr); err != nil {
		return err
	}
	if def.Priority == 0 {
		def.Priority = queue.PriorityNormal
	}
	if !def.Priority.Valid() {
		return domain.NewValidationError("priority",
			fmt.Sprintf("priority %d is not a dispatchable tier", def.Priority))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[def.Name]; ok && prev.runner != nil {
		prev.runner.Stop()
		log.Printf("[Scheduler] Replacing scheduled job %q", def.Name)
	}

	e := &entry{def: def}
	s.entries[def.Name] = e
	if def.Enabled {
		s.startLocked(e)
	}
	log.Printf("[Scheduler] Added scheduled job %q (%s -> %s, enabled=%v)",
		def.Name, def.CronExpr, def.JobType, def.Enabled)
	return nil
}

// RemoveScheduledJob stops and removes a definition. Returns false when the
// name is unknown; calling it again for the same name is also false.
func (s *Scheduler) RemoveScheduledJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	if e.runner != nil {
		e.runner.Stop()
	}
	delete(s.entries, name)
	log.Printf("[Scheduler] Removed scheduled job %q", name)
	return true
}

// StartJob enables a stopped definition. Returns false for unknown names.
func (s *Scheduler) StartJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	if e.runner == nil {
		s.startLocked(e)
	}
	e.def.Enabled = true
	return true
}

// StopJob disables a running definition without removing it. Returns false
// for unknown names.
func (s *Scheduler) StopJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	if e.runner != nil {
		e.runner.Stop()
		e.runner = nil
	}
	e.def.Enabled = false
	return true
}

// GetScheduledJobs returns the live set sorted by name.
func (s *Scheduler) GetScheduledJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := JobInfo{Definition: e.def}
		if e.runner != nil {
			if entries := e.runner.Entries(); len(entries) > 0 {
				info.NextRun = entries[0].Next
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Shutdown stops every running trigger.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.runner != nil {
			e.runner.Stop()
			e.runner = nil
		}
	}
	log.Printf("[Scheduler] Shut down")
}

// startLocked spins up a cron runner for one definition. Caller holds s.mu.
func (s *Scheduler) startLocked(e *entry) {
	c := cron.New(cron.WithParser(s.parser))
	def := e.def // copy for the closure; the entry may be replaced later
	locks := s.locks
	c.AddFunc(def.CronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if locks != nil {
			lock := locks(def.Name)
			acquired, err := lock.Acquire(ctx)
			if err != nil {
				log.Printf("[Scheduler] %q: lock error: %v", def.Name, err)
				return
			}
			if !acquired {
				return // another instance fired this tick
			}
			// Held until TTL expiry so instances with skewed clocks
			// cannot both fire the same tick.
		}

		id, err := s.mgr.Enqueue(ctx, def.JobType, def.Payload, queue.EnqueueOptions{Priority: def.Priority})
		if err != nil {
			log.Printf("[Scheduler] %q: enqueue %s failed: %v", def.Name, def.JobType, err)
			return
		}
		log.Printf("[Scheduler] %q fired %s job %s", def.Name, def.JobType, id)
	})
	c.Start()
	e.runner = c
}
