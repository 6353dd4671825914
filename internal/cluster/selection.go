package cluster

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

// Strategy picks one cluster id from the initialized clusters of a zone.
type Strategy interface {
	Select(available map[string]*Bundle) (string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(available map[string]*Bundle) (string, error)

// Select implements Strategy.
func (f StrategyFunc) Select(available map[string]*Bundle) (string, error) { return f(available) }

// RandomStrategy picks uniformly among the present clusters.
type RandomStrategy struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomStrategy creates a random strategy. A zero seed seeds from the clock.
func NewRandomStrategy(seed int64) *RandomStrategy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomStrategy{rnd: rand.New(rand.NewSource(seed))}
}

// Select implements Strategy.
func (s *RandomStrategy) Select(available map[string]*Bundle) (string, error) {
	if len(available) == 0 {
		return "", ErrNoClusterAvailable
	}
	ids := sortedIDs(available)

	s.mu.Lock()
	i := s.rnd.Intn(len(ids))
	s.mu.Unlock()
	return ids[i], nil
}

// Capacity is an amount of schedulable resources.
type Capacity struct {
	CPUMilli    int64
	MemoryBytes int64
	GPUs        int64
}

// Fits reports whether c can hold the request.
func (c Capacity) Fits(request Capacity) bool {
	return c.CPUMilli >= request.CPUMilli && c.MemoryBytes >= request.MemoryBytes && c.GPUs >= request.GPUs
}

// CapacityReporter reports the allocatable capacity of a cluster. Requests of pods
// already scheduled there are not subtracted.
type CapacityReporter interface {
	AllocatableCapacity(zone, clusterID string) (Capacity, bool)
}

// CapacityStrategy places applications and databases on the cluster with the most
// allocatable capacity that fits the request. Clusters without capacity data are ignored;
// when none has data the fallback strategy decides.
type CapacityStrategy struct {
	reporter CapacityReporter
	request  Capacity
	fallback Strategy
}

// NewCapacityStrategy creates a capacity aware strategy for one request.
func NewCapacityStrategy(reporter CapacityReporter, request Capacity, fallback Strategy) *CapacityStrategy {
	if fallback == nil {
		fallback = NewRandomStrategy(0)
	}
	return &CapacityStrategy{reporter: reporter, request: request, fallback: fallback}
}

// Select implements Strategy.
func (s *CapacityStrategy) Select(available map[string]*Bundle) (string, error) {
	if len(available) == 0 {
		return "", ErrNoClusterAvailable
	}
	if s.reporter == nil {
		return s.fallback.Select(available)
	}

	var (
		best     string
		bestAlloc Capacity
		seen     bool
	)
	for _, id := range sortedIDs(available) {
		b := available[id]
		alloc, ok := s.reporter.AllocatableCapacity(b.Zone(), id)
		if !ok {
			continue
		}
		seen = true
		if !alloc.Fits(s.request) {
			continue
		}
		if best == "" || roomier(alloc, bestAlloc) {
			best, bestAlloc = id, alloc
		}
	}

	if !seen {
		return s.fallback.Select(available)
	}
	if best == "" {
		return "", ErrInsufficientCapacity
	}
	return best, nil
}

// roomier orders capacities by GPUs, then CPU, then memory.
func roomier(a, b Capacity) bool {
	if a.GPUs != b.GPUs {
		return a.GPUs > b.GPUs
	}
	if a.CPUMilli != b.CPUMilli {
		return a.CPUMilli > b.CPUMilli
	}
	return a.MemoryBytes > b.MemoryBytes
}

// PinnedStrategy returns a cluster id resolved earlier, for training jobs and task
// runs whose cluster is chosen together with their data.
type PinnedStrategy struct {
	ClusterID string
}

// Select implements Strategy.
func (s PinnedStrategy) Select(available map[string]*Bundle) (string, error) {
	if s.ClusterID == "" {
		return "", ErrClusterNotResolved
	}
	if len(available) == 0 {
		return "", ErrNoClusterAvailable
	}
	if _, ok := available[s.ClusterID]; !ok {
		return "", fmt.Errorf("cluster %s: %w", s.ClusterID, ErrClusterNotInitialized)
	}
	return s.ClusterID, nil
}

// Hint carries the per-request inputs of the kind specific strategies.
type Hint struct {
	ClusterID string
	Request   Capacity
}

// StrategyFor returns the placement strategy used for a resource kind.
func StrategyFor(kind resource.Kind, hint Hint, reporter CapacityReporter, fallback Strategy) Strategy {
	switch kind {
	case resource.KindApplication, resource.KindDatabase, resource.KindCompositeModel:
		return NewCapacityStrategy(reporter, hint.Request, fallback)
	case resource.KindTrainingJob, resource.KindTaskRun:
		return PinnedStrategy{ClusterID: hint.ClusterID}
	default:
		if fallback == nil {
			return NewRandomStrategy(0)
		}
		return fallback
	}
}

// Selector resolves a zone to a bundle through a strategy.
type Selector struct {
	registry *Registry
}

// NewSelector creates a selector over the registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// Select picks a bundle in the zone. An empty zone yields ErrNoClusterAvailable;
// a failing strategy yields an error wrapping ErrSelectionFailed.
func (s *Selector) Select(zone string, strategy Strategy) (*Bundle, error) {
	available := s.registry.SelectionSnapshot(zone)
	if len(available) == 0 {
		return nil, &ClusterError{Zone: zone, Err: ErrNoClusterAvailable}
	}

	id, err := strategy.Select(available)
	if err != nil {
		return nil, &ClusterError{Zone: zone, Err: fmt.Errorf("%w: %w", ErrSelectionFailed, err)}
	}
	bundle, ok := available[id]
	if !ok {
		return nil, &ClusterError{Zone: zone, Cluster: id, Err: fmt.Errorf("%w: strategy returned unknown cluster", ErrSelectionFailed)}
	}
	return bundle, nil
}
