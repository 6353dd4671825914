package cluster

import (
	"sort"
	"sync"

	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Registry maps zone -> cluster id -> Bundle.
//
// Bundles are registered concurrently while clusters start up and are read-only
// afterwards. Each zone has its own lock; the zone table lock is only taken to look
// up or declare a zone.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]*zoneEntry
}

type zoneEntry struct {
	mu       sync.RWMutex
	clusters map[string]*Bundle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{zones: make(map[string]*zoneEntry)}
}

// DeclareZone makes a zone known without clusters, so lookups during startup report
// ErrClusterNotInitialized rather than ErrZoneNotFound.
func (r *Registry) DeclareZone(zone string) {
	r.zoneFor(zone, true)
}

func (r *Registry) zoneFor(zone string, create bool) *zoneEntry {
	r.mu.RLock()
	entry, ok := r.zones[zone]
	r.mu.RUnlock()
	if ok || !create {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.zones[zone]; ok {
		return entry
	}
	entry = &zoneEntry{clusters: make(map[string]*Bundle)}
	r.zones[zone] = entry
	return entry
}

// Register adds a bundle. Registering the same (zone, cluster) twice is an error.
func (r *Registry) Register(zone, clusterID string, bundle *Bundle) error {
	entry := r.zoneFor(zone, true)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if _, exists := entry.clusters[clusterID]; exists {
		return &ClusterError{Zone: zone, Cluster: clusterID, Err: ErrAlreadyRegistered}
	}
	entry.clusters[clusterID] = bundle
	logging.Info("Registry", "Registered cluster %s/%s", zone, clusterID)
	return nil
}

// Get returns the bundle of a cluster.
func (r *Registry) Get(zone, clusterID string) (*Bundle, error) {
	entry := r.zoneFor(zone, false)
	if entry == nil {
		return nil, &ClusterError{Zone: zone, Cluster: clusterID, Err: ErrZoneNotFound}
	}

	entry.mu.RLock()
	bundle, ok := entry.clusters[clusterID]
	entry.mu.RUnlock()
	if !ok {
		return nil, &ClusterError{Zone: zone, Cluster: clusterID, Err: ErrClusterNotInitialized}
	}
	return bundle, nil
}

// SelectionSnapshot returns a copy of the initialized clusters of a zone.
// Unknown zones yield an empty map.
func (r *Registry) SelectionSnapshot(zone string) map[string]*Bundle {
	entry := r.zoneFor(zone, false)
	if entry == nil {
		return map[string]*Bundle{}
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	out := make(map[string]*Bundle, len(entry.clusters))
	for id, b := range entry.clusters {
		out[id] = b
	}
	return out
}

// Zones returns the known zone ids, sorted.
func (r *Registry) Zones() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.zones))
	for z := range r.zones {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// Bundles returns every registered bundle ordered by zone and cluster id.
func (r *Registry) Bundles() []*Bundle {
	var out []*Bundle
	for _, zone := range r.Zones() {
		snapshot := r.SelectionSnapshot(zone)
		for _, id := range sortedIDs(snapshot) {
			out = append(out, snapshot[id])
		}
	}
	return out
}

// Len returns the number of registered bundles.
func (r *Registry) Len() int {
	n := 0
	for _, zone := range r.Zones() {
		n += len(r.SelectionSnapshot(zone))
	}
	return n
}

func sortedIDs(m map[string]*Bundle) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
