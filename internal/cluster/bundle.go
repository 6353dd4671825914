package cluster

import (
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/metricsquery"
)

// Clients is the set of handles a Bundle is built from.
type Clients struct {
	Kube    kubernetes.Interface
	Client  client.Client
	Metrics metricsquery.Querier

	// JobRuntime talks to CRD based job runtimes; nil when the cluster has none.
	JobRuntime dynamic.Interface
	// JobMetrics queries the job runtime's metrics backend; nil when not configured.
	JobMetrics metricsquery.Querier
}

// Bundle is the set of live API handles for one cluster. It is built once and never
// mutated afterwards, so it is safe to share between goroutines.
type Bundle struct {
	zone    string
	id      string
	clients Clients
}

// NewBundle wraps the given clients for the (zone, id) cluster.
func NewBundle(zone, id string, clients Clients) *Bundle {
	return &Bundle{zone: zone, id: id, clients: clients}
}

// Zone returns the zone id.
func (b *Bundle) Zone() string { return b.zone }

// ID returns the cluster id.
func (b *Bundle) ID() string { return b.id }

// Kube returns the typed clientset.
func (b *Bundle) Kube() kubernetes.Interface { return b.clients.Kube }

// Client returns the controller-runtime client used for generic object access.
func (b *Bundle) Client() client.Client { return b.clients.Client }

// Metrics returns the cluster metrics querier, nil if not configured.
func (b *Bundle) Metrics() metricsquery.Querier { return b.clients.Metrics }

// JobRuntime returns the dynamic client for job runtimes, nil if not configured.
func (b *Bundle) JobRuntime() dynamic.Interface { return b.clients.JobRuntime }

// JobMetrics returns the job metrics querier, nil if not configured.
func (b *Bundle) JobMetrics() metricsquery.Querier { return b.clients.JobMetrics }

// HasJobRuntime reports whether CRD job runtimes can be driven on this cluster.
func (b *Bundle) HasJobRuntime() bool { return b.clients.JobRuntime != nil }

func (b *Bundle) String() string { return b.zone + "/" + b.id }
