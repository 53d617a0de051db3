package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// MemoryAdapter is an in-process adapter used in tests and local
// development. It records every call so tests can assert on what the engine
// asked the platform to do.
type MemoryAdapter struct {
	mu sync.Mutex

	campaigns map[string]*memoryCampaign
	metrics   map[string]domain.RawMetrics

	// FailNext, when set, makes the next mutating call return a transient
	// error and then clears itself.
	FailNext bool

	BudgetUpdates  map[string][]float64
	Paused         map[string]int
	Resumed        map[string]int
	TrafficSplits  map[string]TrafficAllocation
	VariantConfigs map[string]VariantConfig
}

type memoryCampaign struct {
	spec   CampaignSpec
	status string
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		campaigns:      make(map[string]*memoryCampaign),
		metrics:        make(map[string]domain.RawMetrics),
		BudgetUpdates:  make(map[string][]float64),
		Paused:         make(map[string]int),
		Resumed:        make(map[string]int),
		TrafficSplits:  make(map[string]TrafficAllocation),
		VariantConfigs: make(map[string]VariantConfig),
	}
}

// SeedMetrics sets the metrics returned for an external campaign ID.
func (m *MemoryAdapter) SeedMetrics(externalID string, metrics domain.RawMetrics) {
	m.mu.Lock()
	m.metrics[externalID] = metrics
	m.mu.Unlock()
}

// SeedCampaign registers an existing external campaign.
func (m *MemoryAdapter) SeedCampaign(externalID string) {
	m.mu.Lock()
	m.campaigns[externalID] = &memoryCampaign{status: "active"}
	m.mu.Unlock()
}

func (m *MemoryAdapter) failNextLocked() error {
	if m.FailNext {
		m.FailNext = false
		return domain.Transient(fmt.Errorf("simulated platform outage"))
	}
	return nil
}

func (m *MemoryAdapter) CreateCampaign(ctx context.Context, b domain.Business, spec CampaignSpec) (*CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextLocked(); err != nil {
		return nil, err
	}
	id := "ext-" + uuid.NewString()[:8]
	m.campaigns[id] = &memoryCampaign{spec: spec, status: "active"}
	return &CreateResult{ExternalID: id, Status: "active"}, nil
}

func (m *MemoryAdapter) UpdateBudget(ctx context.Context, externalID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextLocked(); err != nil {
		return err
	}
	if _, ok := m.campaigns[externalID]; !ok {
		return domain.Permanent(fmt.Errorf("unknown campaign %s", externalID))
	}
	m.BudgetUpdates[externalID] = append(m.BudgetUpdates[externalID], amount)
	return nil
}

func (m *MemoryAdapter) Pause(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextLocked(); err != nil {
		return err
	}
	if c, ok := m.campaigns[externalID]; ok {
		c.status = "paused"
	}
	m.Paused[externalID]++
	return nil
}

func (m *MemoryAdapter) Resume(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextLocked(); err != nil {
		return err
	}
	if c, ok := m.campaigns[externalID]; ok {
		c.status = "active"
	}
	m.Resumed[externalID]++
	return nil
}

func (m *MemoryAdapter) GetMetrics(ctx context.Context, externalID string, r DateRange) (*domain.RawMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics, ok := m.metrics[externalID]
	if !ok {
		return &domain.RawMetrics{}, nil
	}
	return &metrics, nil
}

func (m *MemoryAdapter) ApplyTrafficSplit(ctx context.Context, externalID string, alloc TrafficAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextLocked(); err != nil {
		return err
	}
	m.TrafficSplits[externalID] = alloc
	return nil
}

func (m *MemoryAdapter) ApplyVariantConfig(ctx context.Context, externalID string, cfg VariantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextLocked(); err != nil {
		return err
	}
	m.VariantConfigs[externalID] = cfg
	return nil
}

// Status returns the recorded status of an external campaign ("" if unknown).
func (m *MemoryAdapter) Status(externalID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[externalID]; ok {
		return c.status
	}
	return ""
}
