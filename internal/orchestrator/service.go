package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task/kubetask"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Config wires a Service.
type Config struct {
	Registry *cluster.Registry
	// Capacity feeds the capacity strategy; nil falls back to random placement.
	Capacity cluster.CapacityReporter
	Runner   *task.Runner
	Tasks    config.TaskConfig
	Store    PlacementStore
	// Markers are the reconciliation pollers per kind, told about deletions.
	Markers map[resource.Kind]DeletionMarker
	// Fallback is used when the kind's strategy has nothing to go on.
	Fallback cluster.Strategy
}

// Service runs the caller facing operations on resources.
type Service struct {
	registry *cluster.Registry
	selector *cluster.Selector
	capacity cluster.CapacityReporter
	runner   *task.Runner
	tasks    config.TaskConfig
	store    PlacementStore
	markers  map[resource.Kind]DeletionMarker
	fallback cluster.Strategy
}

// New creates a Service.
func New(cfg Config) *Service {
	runner := cfg.Runner
	if runner == nil {
		runner = task.NewRunner(cfg.Tasks, nil)
	}
	return &Service{
		registry: cfg.Registry,
		selector: cluster.NewSelector(cfg.Registry),
		capacity: cfg.Capacity,
		runner:   runner,
		tasks:    cfg.Tasks,
		store:    cfg.Store,
		markers:  cfg.Markers,
		fallback: cfg.Fallback,
	}
}

// place resolves the cluster of a resource being deployed. A resource placed earlier
// stays on its cluster and in its namespace.
func (s *Service) place(ctx context.Context, kind resource.Kind, id, zone, namespace string, hint cluster.Hint) (*cluster.Bundle, resource.Placement, error) {
	if err := s.store.Register(ctx, kind, id); err != nil {
		return nil, resource.Placement{}, err
	}
	prev, err := s.store.Locate(ctx, kind, id)
	if err != nil {
		return nil, resource.Placement{}, err
	}
	if !prev.IsZero() {
		b, err := s.registry.Get(prev.Zone, prev.Cluster)
		if err != nil {
			return nil, resource.Placement{}, err
		}
		if prev.Namespace == "" {
			prev.Namespace = namespace
		}
		return b, prev, nil
	}

	strategy := cluster.StrategyFor(kind, hint, s.capacity, s.fallback)
	b, err := s.selector.Select(zone, strategy)
	if err != nil {
		return nil, resource.Placement{}, fmt.Errorf("place %s %s: %w", kind, id, err)
	}
	p := resource.Placement{Zone: zone, Cluster: b.ID(), Namespace: namespace}
	if err := s.store.SetPlacement(ctx, kind, id, p); err != nil {
		return nil, resource.Placement{}, err
	}
	logging.Info("Orchestrator", "Placed %s %s on %s", kind, id, p)
	return b, p, nil
}

// target resolves the cluster of an existing resource.
func (s *Service) target(ctx context.Context, kind resource.Kind, id string) (*cluster.Bundle, resource.Placement, error) {
	p, err := s.store.Locate(ctx, kind, id)
	if err != nil {
		return nil, resource.Placement{}, fmt.Errorf("%s %s: %w", kind, id, err)
	}
	if p.IsZero() {
		return nil, p, fmt.Errorf("%s %s: %w", kind, id, reconcile.ErrNotPlaced)
	}
	b, err := s.registry.Get(p.Zone, p.Cluster)
	if err != nil {
		return nil, p, err
	}
	return b, p, nil
}

// EnsureNamespace creates namespace on the cluster unless it exists.
func (s *Service) EnsureNamespace(ctx context.Context, b *cluster.Bundle, namespace string) error {
	labels := map[string]string{kube.LabelManagedBy: kube.ManagedByValue}
	_, err := run(ctx, s.runner, kubetask.NewCreateNamespace(b.Kube(), namespace, labels))
	return err
}

// markDeleting tells the poller of kind that id is going away.
func (s *Service) markDeleting(ctx context.Context, kind resource.Kind, id string) {
	if m, ok := s.markers[kind]; ok {
		m.MarkDeleting(ctx, id)
	}
}

// forget drops the record of a deleted resource.
func (s *Service) forget(ctx context.Context, kind resource.Kind, id string) error {
	if err := s.store.Forget(ctx, kind, id); err != nil {
		return err
	}
	logging.Info("Orchestrator", "Deleted %s %s", kind, id)
	return nil
}

func (s *Service) createObjects(ctx context.Context, b *cluster.Bundle, kind resource.Kind, id, namespace string, objects []client.Object) error {
	if len(objects) == 0 {
		return nil
	}
	c := b.Client()
	if c == nil {
		return fmt.Errorf("%s: %w", b, ErrNoObjectClient)
	}
	for _, obj := range objects {
		o, _ := obj.DeepCopyObject().(client.Object)
		if o.GetNamespace() == "" {
			o.SetNamespace(namespace)
		}
		o.SetLabels(withResourceLabels(o.GetLabels(), kind, id))
		if _, err := run(ctx, s.runner, kubetask.NewCreateObject(c, o)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deleteObjects(ctx context.Context, b *cluster.Bundle, namespace string, objects []client.Object) error {
	if len(objects) == 0 {
		return nil
	}
	c := b.Client()
	if c == nil {
		return fmt.Errorf("%s: %w", b, ErrNoObjectClient)
	}
	for _, obj := range objects {
		o, _ := obj.DeepCopyObject().(client.Object)
		if o.GetNamespace() == "" {
			o.SetNamespace(namespace)
		}
		if _, err := run(ctx, s.runner, kubetask.NewDeleteObject(c, o)); err != nil {
			return err
		}
	}
	return nil
}

// run executes t and turns an unsuccessful result into its error.
func run[T any](ctx context.Context, r *task.Runner, t task.Task[T]) (task.Result[T], error) {
	res := task.Run(ctx, r, t)
	if res.Success {
		return res, nil
	}
	if res.Err == nil {
		return res, &task.TaskError{Task: res.Task, Err: errors.New("task did not succeed")}
	}
	return res, res.Err
}

// prepare names and labels the object of a resource.
func prepare(meta *metav1.ObjectMeta, kind resource.Kind, id, namespace string) {
	meta.Name = kube.ObjectName(string(kind), id)
	meta.Namespace = namespace
	meta.Labels = withResourceLabels(meta.Labels, kind, id)
}

// prepareTemplate labels a pod template and returns the selector matching it.
func prepareTemplate(tmpl *corev1.PodTemplateSpec, kind resource.Kind, id string) *metav1.LabelSelector {
	tmpl.Labels = withResourceLabels(tmpl.Labels, kind, id)
	return &metav1.LabelSelector{MatchLabels: map[string]string{
		kube.LabelKind:       string(kind),
		kube.LabelResourceID: id,
	}}
}

func withResourceLabels(labels map[string]string, kind resource.Kind, id string) map[string]string {
	out := maps.Clone(labels)
	if out == nil {
		out = make(map[string]string)
	}
	maps.Copy(out, kube.ResourceLabels(string(kind), id))
	return out
}

// requested sums the cpu, memory and GPU requests of a pod spec times replicas.
func requested(spec *corev1.PodSpec, replicas int32) cluster.Capacity {
	var c cluster.Capacity
	for _, ctr := range spec.Containers {
		req := ctr.Resources.Requests
		if q, ok := req[corev1.ResourceCPU]; ok {
			c.CPUMilli += q.MilliValue()
		}
		if q, ok := req[corev1.ResourceMemory]; ok {
			c.MemoryBytes += q.Value()
		}
		for _, name := range []corev1.ResourceName{"nvidia.com/gpu", "amd.com/gpu"} {
			if q, ok := ctr.Resources.Limits[name]; ok {
				c.GPUs += q.Value()
			}
		}
	}
	n := int64(max(replicas, 1))
	return cluster.Capacity{CPUMilli: c.CPUMilli * n, MemoryBytes: c.MemoryBytes * n, GPUs: c.GPUs * n}
}

func validate(id, zone, namespace string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	case zone == "":
		return fmt.Errorf("%w: missing zone", ErrInvalidRequest)
	case namespace == "":
		return fmt.Errorf("%w: missing namespace", ErrInvalidRequest)
	}
	return nil
}
