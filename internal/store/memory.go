package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

type memKey struct {
	kind resource.Kind
	id   string
}

// Record is the in-memory row of one resource.
type Record struct {
	Placement resource.Placement
	Lifecycle reconcile.Lifecycle
	Message   string
	StartedAt time.Time
	Pods      []reconcile.SubStatus
}

// Memory keeps the same state as Store in process memory. It serves deployments
// without a database, where state is lost on restart.
type Memory struct {
	mu      sync.RWMutex
	records map[memKey]*Record
}

var (
	_ reconcile.StateStore = (*Memory)(nil)
	_ reconcile.Locator    = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{records: make(map[memKey]*Record)}
}

func (m *Memory) Register(_ context.Context, kind resource.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[memKey{kind, id}]; !ok {
		m.records[memKey{kind, id}] = &Record{Lifecycle: reconcile.LifecycleCreated}
	}
	return nil
}

func (m *Memory) SetPlacement(_ context.Context, kind resource.Kind, id string, p resource.Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[memKey{kind, id}]
	if !ok {
		r = &Record{Lifecycle: reconcile.LifecycleCreated}
		m.records[memKey{kind, id}] = r
	}
	r.Placement = p
	return nil
}

func (m *Memory) Forget(_ context.Context, kind resource.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, memKey{kind, id})
	return nil
}

func (m *Memory) Locate(_ context.Context, kind resource.Kind, id string) (resource.Placement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[memKey{kind, id}]
	if !ok {
		return resource.Placement{}, reconcile.ErrNotFound
	}
	return r.Placement, nil
}

func (m *Memory) Lifecycle(_ context.Context, kind resource.Kind, id string) (reconcile.Lifecycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[memKey{kind, id}]
	if !ok {
		return "", reconcile.ErrNotFound
	}
	return r.Lifecycle, nil
}

func (m *Memory) UpdateLifecycle(_ context.Context, kind resource.Kind, id string, lc reconcile.Lifecycle, message string) error {
	return m.update(kind, id, func(r *Record) {
		r.Lifecycle = lc
		r.Message = message
	})
}

func (m *Memory) UpdateStartTime(_ context.Context, kind resource.Kind, id string, at time.Time) error {
	return m.update(kind, id, func(r *Record) {
		if r.StartedAt.IsZero() {
			r.StartedAt = at.UTC()
		}
	})
}

func (m *Memory) UpdatePods(_ context.Context, kind resource.Kind, id string, pods []reconcile.SubStatus) error {
	return m.update(kind, id, func(r *Record) { r.Pods = slices.Clone(pods) })
}

// Get returns a copy of the record of a resource.
func (m *Memory) Get(kind resource.Kind, id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[memKey{kind, id}]
	if !ok {
		return Record{}, false
	}
	out := *r
	out.Pods = slices.Clone(r.Pods)
	return out, true
}

func (m *Memory) update(kind resource.Kind, id string, apply func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[memKey{kind, id}]
	if !ok {
		return reconcile.ErrNotFound
	}
	apply(r)
	return nil
}
