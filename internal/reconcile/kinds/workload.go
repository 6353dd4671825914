package kinds

import (
	"context"
	"fmt"
	"slices"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

type controllerType int

const (
	deployments controllerType = iota
	statefulSets
)

// controller is a workload object owning pods of a resource.
type controller struct {
	name      string
	component string
	replicas  int32
}

// Workload reads the status of resources run as deployments or statefulsets. Every
// pod yields one status.
type Workload struct {
	locator
	controllers controllerType
	// byComponent reports statuses per component label instead of per pod.
	byComponent bool
}

// NewApplications returns the accessor for applications (deployments).
func NewApplications(source BundleSource, loc reconcile.Locator, opts Options) *Workload {
	return &Workload{locator: newLocator(resource.KindApplication, source, loc, opts), controllers: deployments}
}

// NewDatabases returns the accessor for databases (statefulsets).
func NewDatabases(source BundleSource, loc reconcile.Locator, opts Options) *Workload {
	return &Workload{locator: newLocator(resource.KindDatabase, source, loc, opts), controllers: statefulSets}
}

func (w *Workload) Fetch(ctx context.Context, id string) ([]reconcile.ResourceStatus, error) {
	t, err := w.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	selector := kube.ResourceSelector(string(w.kind), id).String()

	pods, err := w.listPods(ctx, t, selector)
	if err != nil {
		return nil, err
	}
	statuses := make([]reconcile.ResourceStatus, 0, len(pods))
	for i := range pods {
		pod := &pods[i]
		component := pod.Name
		if w.byComponent {
			component = pod.Labels[kube.LabelComponent]
		}
		statuses = append(statuses, PodStatus(id, component, pod))
	}

	owners, err := w.listControllers(ctx, t, selector)
	if err != nil {
		return nil, err
	}
	switch {
	case w.byComponent:
		for _, c := range owners {
			if !slices.ContainsFunc(statuses, func(s reconcile.ResourceStatus) bool { return s.Component == c.component }) {
				statuses = append(statuses, placeholder(id, c.component, c))
			}
		}
	case len(pods) == 0:
		for _, c := range owners {
			statuses = append(statuses, placeholder(id, c.name, c))
		}
	}

	slices.SortFunc(statuses, func(a, b reconcile.ResourceStatus) int {
		return strings.Compare(a.Component, b.Component)
	})
	return statuses, nil
}

// Enrich attaches log tails to failing pods.
func (w *Workload) Enrich(ctx context.Context, id string, statuses []reconcile.ResourceStatus) {
	t, ok := w.cached(id)
	if !ok {
		return
	}
	w.attachLogs(ctx, t, statuses)
}

// placeholder stands in for a controller without pods.
func placeholder(id, component string, c controller) reconcile.ResourceStatus {
	if c.replicas == 0 {
		return reconcile.ResourceStatus{ID: id, Component: component, Stage: reconcile.StageStopped, Message: "scaled to zero"}
	}
	return reconcile.ResourceStatus{
		ID:        id,
		Component: component,
		Stage:     reconcile.StageWaiting,
		Message:   fmt.Sprintf("waiting for %d pods of %s", c.replicas, c.name),
	}
}

func (w *Workload) listControllers(ctx context.Context, t target, selector string) ([]controller, error) {
	opts := metav1.ListOptions{LabelSelector: selector}
	var out []controller

	switch w.controllers {
	case statefulSets:
		list, err := t.bundle.Kube().AppsV1().StatefulSets(t.namespace).List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list statefulsets of %s: %w", w.kind, err)
		}
		for _, s := range list.Items {
			out = append(out, controller{name: s.Name, component: s.Labels[kube.LabelComponent], replicas: ptr.Deref(s.Spec.Replicas, 1)})
		}
	default:
		list, err := t.bundle.Kube().AppsV1().Deployments(t.namespace).List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list deployments of %s: %w", w.kind, err)
		}
		for _, d := range list.Items {
			out = append(out, controller{name: d.Name, component: d.Labels[kube.LabelComponent], replicas: ptr.Deref(d.Spec.Replicas, 1)})
		}
	}
	return out, nil
}
