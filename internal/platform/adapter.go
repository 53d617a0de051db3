// Package platform defines the ad-platform adapter boundary. One adapter
// exists per platform (Google, Meta, ...); the engine only ever talks to
// this interface.
package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/adpilot/internal/domain"
)

// CampaignSpec describes a campaign to create on a platform.
type CampaignSpec struct {
	Name        string
	DailyBudget float64
	Audience    map[string]string
	Creative    map[string]string
}

// CreateResult is the platform's response to campaign creation.
type CreateResult struct {
	ExternalID string
	Status     string
}

// DateRange bounds a metrics query.
type DateRange struct {
	From time.Time
	To   time.Time
}

// VariantConfig is an opaque configuration bundle for an A/B variant
// (creative, audience or landing-page overrides).
type VariantConfig map[string]string

// TrafficAllocation maps variant IDs to traffic percentages.
type TrafficAllocation map[string]float64

// Adapter is the capability set every ad platform integration provides.
type Adapter interface {
	CreateCampaign(ctx context.Context, b domain.Business, spec CampaignSpec) (*CreateResult, error)
	UpdateBudget(ctx context.Context, externalID string, amount float64) error
	Pause(ctx context.Context, externalID string) error
	Resume(ctx context.Context, externalID string) error
	GetMetrics(ctx context.Context, externalID string, r DateRange) (*domain.RawMetrics, error)
	// ApplyTrafficSplit configures the platform to split campaign traffic
	// across A/B variants.
	ApplyTrafficSplit(ctx context.Context, externalID string, alloc TrafficAllocation) error
	// ApplyVariantConfig writes a winning variant's configuration into the
	// live campaign.
	ApplyVariantConfig(ctx context.Context, externalID string, cfg VariantConfig) error
}

// Registry holds adapters keyed by platform name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under a platform name.
func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	r.adapters[name] = a
	r.mu.Unlock()
}

// Get returns the adapter for a platform. An unknown platform is a
// permanent error; retrying won't make the integration appear.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.Permanent(fmt.Errorf("no adapter registered for platform %q", name))
	}
	return a, nil
}
