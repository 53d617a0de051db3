package queue

import (
	"context"
	"strconv"
)

// TypeStats are the per-type queue depths and lifetime counters.
type TypeStats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats is a snapshot of queue state across all registered job types.
type Stats struct {
	Types map[JobType]TypeStats `json:"types"`
	Stuck int                   `json:"stuck"`
}

// HealthState is the coarse health of the queue subsystem.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// Health is the result of a HealthCheck.
type Health struct {
	State       HealthState `json:"state"`
	Reason      string      `json:"reason,omitempty"`
	FailedJobs  int64       `json:"failed_jobs"`
	DelayedJobs int64       `json:"delayed_jobs"`
}

const (
	// degradedFailedThreshold is the permanently-failed count at which the
	// queue reports degraded.
	degradedFailedThreshold = 10

	// degradedDelayedThreshold is the delayed backlog at which the queue
	// reports degraded.
	degradedDelayedThreshold = 1000
)

// Stats returns current depths and counters for every registered job type.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	types := make([]JobType, 0, len(m.handlers))
	for t := range m.handlers {
		types = append(types, t)
	}
	stuck := len(m.stuck)
	m.mu.RUnlock()

	out := &Stats{Types: make(map[JobType]TypeStats, len(types)), Stuck: stuck}
	for _, t := range types {
		var s TypeStats
		for _, p := range priorityOrder {
			n, err := m.rdb.LLen(ctx, waitingKey(t, p)).Result()
			if err != nil {
				return nil, err
			}
			s.Waiting += n
		}
		if n, err := m.rdb.ZCard(ctx, delayedKey(t)).Result(); err == nil {
			s.Delayed = n
		}
		if n, err := m.rdb.HLen(ctx, activeKey(t)).Result(); err == nil {
			s.Active = n
		}
		s.Completed = m.counter(ctx, statsKey(t, "completed"))
		s.Failed = m.counter(ctx, statsKey(t, "failed"))
		out.Types[t] = s
	}
	return out, nil
}

// HealthCheck reports queue health from store connectivity and the
// failed/delayed backlog.
func (m *Manager) HealthCheck(ctx context.Context) Health {
	if err := m.rdb.Ping(ctx).Err(); err != nil {
		return Health{State: Unhealthy, Reason: "queue store unreachable: " + err.Error()}
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		return Health{State: Unhealthy, Reason: "stats unavailable: " + err.Error()}
	}

	var failed, delayed int64
	for _, s := range stats.Types {
		failed += s.Failed
		delayed += s.Delayed
	}

	h := Health{FailedJobs: failed, DelayedJobs: delayed}
	switch {
	case failed > degradedFailedThreshold:
		h.State = Degraded
		h.Reason = "permanently failed jobs above threshold"
	case delayed > degradedDelayedThreshold:
		h.State = Degraded
		h.Reason = "delayed backlog above threshold"
	default:
		h.State = Healthy
	}
	return h
}

func (m *Manager) counter(ctx context.Context, key string) int64 {
	raw, err := m.rdb.Get(ctx, key).Result()
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}
