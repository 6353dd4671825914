package orchestrator

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

// PlacementStore records which cluster a resource lives on. *store.Store implements it.
type PlacementStore interface {
	reconcile.Locator
	Register(ctx context.Context, kind resource.Kind, id string) error
	SetPlacement(ctx context.Context, kind resource.Kind, id string, p resource.Placement) error
	Forget(ctx context.Context, kind resource.Kind, id string) error
}

// DeletionMarker is implemented by *reconcile.Poller.
type DeletionMarker interface {
	MarkDeleting(ctx context.Context, id string) bool
}

// ApplicationRequest describes an application deployment.
type ApplicationRequest struct {
	ID        string
	Zone      string
	Namespace string
	// Hint overrides the capacity derived from the deployment's requests.
	Hint cluster.Hint
	// Deployment is the desired workload. Its name defaults to the resource's object
	// name; resource labels are added.
	Deployment *appsv1.Deployment
	// Objects are created alongside the deployment (services, secrets, config maps).
	Objects []client.Object
}

// DatabaseRequest describes a database deployment.
type DatabaseRequest struct {
	ID          string
	Zone        string
	Namespace   string
	Hint        cluster.Hint
	StatefulSet *appsv1.StatefulSet
	Objects     []client.Object
}

// JobRequest describes a training job or task run. The cluster is chosen together
// with the job's data, so Hint.ClusterID is required.
type JobRequest struct {
	Kind      resource.Kind
	ID        string
	Zone      string
	Namespace string
	Hint      cluster.Hint
	Job       *batchv1.Job
}
