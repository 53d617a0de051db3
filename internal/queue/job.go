package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType identifies a kind of background job. The closed set of kinds the
// platform runs is declared in internal/workflow.
type JobType string

// Priority orders dispatch across jobs of the same type. Within one priority
// dispatch is FIFO; across priorities higher always preempts lower.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 10
	PriorityCritical Priority = 15
)

// priorityOrder is the dequeue order, highest first.
var priorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// Valid reports whether p is one of the dispatchable tiers. Workers only
// drain the lists in priorityOrder, so a job stored under any other value
// would sit in Redis forever.
func (p Priority) Valid() bool {
	for _, q := range priorityOrder {
		if p == q {
			return true
		}
	}
	return false
}

// Status is the job lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// transitions is the closed transition table for the job state machine:
// waiting -> active -> {completed,failed}, with delayed <-> waiting for scheduled
// retries and deferred enqueues.
var transitions = map[Status][]Status{
	StatusWaiting: {StatusActive, StatusDelayed},
	StatusDelayed: {StatusWaiting},
	StatusActive:  {StatusCompleted, StatusFailed, StatusDelayed},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// BackoffKind selects the retry delay strategy.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff is the retry delay policy for a job.
type Backoff struct {
	Kind BackoffKind   `json:"kind"`
	Base time.Duration `json:"base"`
}

// Delay returns the wait before the next attempt given the number of
// attempts already made.
func (b Backoff) Delay(attemptsMade int) time.Duration {
	if b.Kind == BackoffFixed {
		return b.Base
	}
	d := b.Base
	for i := 0; i < attemptsMade; i++ {
		d *= 2
	}
	return d
}

// Job is a durable unit of background work. The Redis store is the single
// source of truth for job state; this struct is the serialized record.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Type         JobType         `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     Priority        `json:"priority"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Backoff      Backoff         `json:"backoff"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}

// EnqueueOptions tune a single enqueue. Zero values fall back to the
// manager's defaults.
type EnqueueOptions struct {
	Priority    Priority
	Delay       time.Duration
	MaxAttempts int
	Backoff     *Backoff
}

// Outcome is the structured result of a handler run. Retry decisions are made
// on Outcome.Err via the domain error taxonomy, not on panics.
type Outcome struct {
	Result map[string]interface{}
	Err    error
}

// Success builds a successful outcome with an optional result payload.
func Success(result map[string]interface{}) Outcome {
	return Outcome{Result: result}
}

// Failure builds a failed outcome.
func Failure(err error) Outcome {
	return Outcome{Err: err}
}

// HandlerFunc processes one job. It must return an Outcome; the manager
// applies the retry/backoff policy based on the outcome's error class.
type HandlerFunc func(ctx context.Context, job *Job) Outcome
