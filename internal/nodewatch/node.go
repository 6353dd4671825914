package nodewatch

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
)

// gpuResources are the extended resource names counted as GPUs.
var gpuResources = []corev1.ResourceName{"nvidia.com/gpu", "amd.com/gpu"}

// Node is the bookkeeping view of a cluster node.
type Node struct {
	Zone    string `json:"zone"`
	Cluster string `json:"cluster"`
	Name    string `json:"name"`

	Ready         bool              `json:"ready"`
	Unschedulable bool              `json:"unschedulable"`
	Unavailable   bool              `json:"unavailable"`
	Allocatable   cluster.Capacity  `json:"allocatable"`
	Labels        map[string]string `json:"labels,omitempty"`

	ResourceVersion string    `json:"resourceVersion"`
	ObservedAt      time.Time `json:"observedAt"`
}

// Schedulable reports whether new workloads can land on the node.
func (n Node) Schedulable() bool {
	return n.Ready && !n.Unschedulable && !n.Unavailable
}

// Bookkeeper receives node changes of every watched cluster.
type Bookkeeper interface {
	UpsertNode(ctx context.Context, node Node) error
	// MarkUnavailable flags a deleted node. Its history is kept.
	MarkUnavailable(ctx context.Context, zone, clusterID, name string, at time.Time) error
}

// FromNode converts an API node.
func FromNode(zone, clusterID string, n *corev1.Node, at time.Time) Node {
	out := Node{
		Zone:            zone,
		Cluster:         clusterID,
		Name:            n.Name,
		Unschedulable:   n.Spec.Unschedulable,
		Labels:          n.Labels,
		ResourceVersion: n.ResourceVersion,
		ObservedAt:      at,
	}
	for _, c := range n.Status.Conditions {
		if c.Type == corev1.NodeReady {
			out.Ready = c.Status == corev1.ConditionTrue
		}
	}

	alloc := n.Status.Allocatable
	if q, ok := alloc[corev1.ResourceCPU]; ok {
		out.Allocatable.CPUMilli = q.MilliValue()
	}
	if q, ok := alloc[corev1.ResourceMemory]; ok {
		out.Allocatable.MemoryBytes = q.Value()
	}
	for _, name := range gpuResources {
		if q, ok := alloc[name]; ok {
			out.Allocatable.GPUs += q.Value()
		}
	}
	return out
}
