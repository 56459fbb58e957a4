package triggers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Triglit/flowgraph/internal/graph"
)

// MemoryAPI is an in-process trigger collection. It is safe for concurrent
// use.
type MemoryAPI struct {
	mu       sync.RWMutex
	triggers map[string]Trigger
	now      func() time.Time
}

var _ API = (*MemoryAPI)(nil)

// NewMemoryAPI returns an empty collection.
func NewMemoryAPI() *MemoryAPI {
	return &MemoryAPI{
		triggers: make(map[string]Trigger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts triggers as-is. Used to set up fixtures.
func (m *MemoryAPI) Seed(ts ...Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range ts {
		t.Config = graph.CopyConfig(t.Config)
		m.triggers[t.ID] = t
	}
}

func (m *MemoryAPI) Create(_ context.Context, p CreateParams) (Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	t := Trigger{
		ID:                "trg_" + uuid.NewString(),
		WorkflowVersionID: p.WorkflowVersionID,
		Type:              p.Type,
		Name:              p.Name,
		Config:            graph.CopyConfig(p.Config),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.triggers[t.ID] = t
	return copyTrigger(t), nil
}

func (m *MemoryAPI) Update(_ context.Context, id string, p UpdateParams) (Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return Trigger{}, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Config != nil {
		t.Config = graph.CopyConfig(p.Config)
	}
	t.UpdatedAt = m.now()
	m.triggers[id] = t
	return copyTrigger(t), nil
}

func (m *MemoryAPI) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.triggers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	delete(m.triggers, id)
	return nil
}

// List returns the triggers of a version ordered by creation time then id.
func (m *MemoryAPI) List(_ context.Context, workflowVersionID string) ([]Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Trigger
	for _, t := range m.triggers {
		if t.WorkflowVersionID == workflowVersionID {
			out = append(out, copyTrigger(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyTrigger(t Trigger) Trigger {
	t.Config = graph.CopyConfig(t.Config)
	return t
}
