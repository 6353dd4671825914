package orchestrator

import (
	"context"
	"errors"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task/kubetask"
)

// DeployDatabase places the database and applies its statefulset through the
// cluster's object client.
func (s *Service) DeployDatabase(ctx context.Context, req DatabaseRequest) (resource.Placement, error) {
	if err := validate(req.ID, req.Zone, req.Namespace); err != nil {
		return resource.Placement{}, err
	}
	if req.StatefulSet == nil {
		return resource.Placement{}, fmt.Errorf("%w: missing statefulset", ErrInvalidRequest)
	}
	kind := resource.KindDatabase

	set := req.StatefulSet.DeepCopy()
	kubetask.ApplyResourceCoefficients(&set.Spec.Template.Spec, s.tasks.RequestCoefficient, s.tasks.LimitCoefficient)
	hint := req.Hint
	if hint.Request == (cluster.Capacity{}) {
		hint.Request = requested(&set.Spec.Template.Spec, ptr.Deref(set.Spec.Replicas, 1))
	}

	b, p, err := s.place(ctx, kind, req.ID, req.Zone, req.Namespace, hint)
	if err != nil {
		return resource.Placement{}, err
	}
	if b.Client() == nil {
		return p, fmt.Errorf("%s: %w", b, ErrNoObjectClient)
	}
	prepare(&set.ObjectMeta, kind, req.ID, p.Namespace)
	set.Spec.Selector = prepareTemplate(&set.Spec.Template, kind, req.ID)
	if set.Spec.ServiceName == "" {
		set.Spec.ServiceName = set.Name
	}

	if err := s.EnsureNamespace(ctx, b, p.Namespace); err != nil {
		return p, err
	}
	if err := s.createObjects(ctx, b, kind, req.ID, p.Namespace, req.Objects); err != nil {
		return p, err
	}
	if _, err := run(ctx, s.runner, kubetask.NewApplyStatefulSet(b.Client(), set)); err != nil {
		return p, err
	}
	return p, nil
}

// DeleteDatabase removes the statefulset of a database and the given companion
// objects, then forgets the database. Volumes claimed by the statefulset are kept.
func (s *Service) DeleteDatabase(ctx context.Context, id string, objects ...client.Object) error {
	kind := resource.KindDatabase
	s.markDeleting(ctx, kind, id)

	b, p, err := s.target(ctx, kind, id)
	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		return nil
	case errors.Is(err, reconcile.ErrNotPlaced):
		return s.forget(ctx, kind, id)
	case err != nil:
		return err
	}

	set := &appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{
		Name:      kube.ObjectName(string(kind), id),
		Namespace: p.Namespace,
	}}
	if err := s.deleteObjects(ctx, b, p.Namespace, append([]client.Object{set}, objects...)); err != nil {
		return err
	}
	return s.forget(ctx, kind, id)
}
