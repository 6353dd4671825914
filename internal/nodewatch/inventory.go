package nodewatch

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
)

type clusterKey struct {
	zone, cluster string
}

// Inventory keeps the latest known state of every node in memory. It answers the
// capacity questions of the placement strategies.
type Inventory struct {
	mu    sync.RWMutex
	nodes map[clusterKey]map[string]Node
}

var _ cluster.CapacityReporter = (*Inventory)(nil)

func NewInventory() *Inventory {
	return &Inventory{nodes: make(map[clusterKey]map[string]Node)}
}

func (i *Inventory) UpsertNode(_ context.Context, node Node) error {
	key := clusterKey{node.Zone, node.Cluster}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.nodes[key] == nil {
		i.nodes[key] = make(map[string]Node)
	}
	i.nodes[key][node.Name] = node
	return nil
}

func (i *Inventory) MarkUnavailable(_ context.Context, zone, clusterID, name string, at time.Time) error {
	key := clusterKey{zone, clusterID}
	i.mu.Lock()
	defer i.mu.Unlock()
	n, ok := i.nodes[key][name]
	if !ok {
		return nil
	}
	n.Unavailable = true
	n.Ready = false
	n.ObservedAt = at
	i.nodes[key][name] = n
	return nil
}

// Nodes lists the nodes of a cluster sorted by name, unavailable ones included.
func (i *Inventory) Nodes(zone, clusterID string) []Node {
	i.mu.RLock()
	defer i.mu.RUnlock()
	m := i.nodes[clusterKey{zone, clusterID}]
	out := make([]Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b Node) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// AllocatableCapacity sums the allocatable capacity of the schedulable nodes of a cluster.
// It reports false when the cluster has never been seen.
func (i *Inventory) AllocatableCapacity(zone, clusterID string) (cluster.Capacity, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	m, ok := i.nodes[clusterKey{zone, clusterID}]
	if !ok {
		return cluster.Capacity{}, false
	}
	var c cluster.Capacity
	for _, n := range m {
		if !n.Schedulable() {
			continue
		}
		c.CPUMilli += n.Allocatable.CPUMilli
		c.MemoryBytes += n.Allocatable.MemoryBytes
		c.GPUs += n.Allocatable.GPUs
	}
	return c, true
}

// Fanout forwards every change to several bookkeepers.
type Fanout []Bookkeeper

func (f Fanout) UpsertNode(ctx context.Context, node Node) error {
	var errs []error
	for _, b := range f {
		if err := b.UpsertNode(ctx, node); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) MarkUnavailable(ctx context.Context, zone, clusterID, name string, at time.Time) error {
	var errs []error
	for _, b := range f {
		if err := b.MarkUnavailable(ctx, zone, clusterID, name, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
