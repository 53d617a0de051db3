// Package notify delivers operational notifications about decisions the
// system takes on its own (budget changes, pauses, closures). Delivery is
// fire-and-forget: a dead webhook must never block the automation cycle.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ignite/adpilot/internal/pkg/logger"
)

// Severity grades an event for routing and display.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one notification.
type Event struct {
	Severity   Severity          `json:"severity"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	BusinessID string            `json:"business_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to its channels. Channel failures are logged
// and swallowed.
type Dispatcher struct {
	mu       sync.RWMutex
	channels []Channel
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a per-channel send timeout.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, timeout: 10 * time.Second}
}

// AddChannel registers an additional delivery channel.
func (d *Dispatcher) AddChannel(c Channel) {
	d.mu.Lock()
	d.channels = append(d.channels, c)
	d.mu.Unlock()
}

// Notify delivers the event to every channel asynchronously.
func (d *Dispatcher) Notify(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	channels := make([]Channel, len(d.channels))
	copy(channels, d.channels)
	d.mu.RUnlock()

	for _, c := range channels {
		d.wg.Add(1)
		go func(c Channel) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := c.Send(ctx, ev); err != nil {
				log.Printf("[Notify] %s delivery failed: %v", c.Name(), err)
			}
		}(c)
	}
}

// Flush waits for in-flight deliveries, used on shutdown and in tests.
func (d *Dispatcher) Flush() { d.wg.Wait() }

// LogChannel writes events to the structured process log. Always configured
// so every autonomous action leaves a trace even with no external channels
// set up.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(ctx context.Context, ev Event) error {
	fields := []interface{}{"subject", ev.Subject, "body", ev.Body}
	if ev.BusinessID != "" {
		fields = append(fields, "business_id", ev.BusinessID)
	}
	for k, v := range ev.Fields {
		fields = append(fields, k, v)
	}

	switch ev.Severity {
	case SeverityCritical:
		logger.Error("notification", fields...)
	case SeverityWarning:
		logger.Warn("notification", fields...)
	default:
		logger.Info("notification", fields...)
	}
	return nil
}
