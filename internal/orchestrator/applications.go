package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task/kubetask"
)

// DeployApplication places the application, creates its namespace and companion
// objects, and applies its deployment. It returns once the rollout completed.
func (s *Service) DeployApplication(ctx context.Context, req ApplicationRequest) (resource.Placement, error) {
	if err := validate(req.ID, req.Zone, req.Namespace); err != nil {
		return resource.Placement{}, err
	}
	if req.Deployment == nil {
		return resource.Placement{}, fmt.Errorf("%w: missing deployment", ErrInvalidRequest)
	}
	kind := resource.KindApplication

	d := req.Deployment.DeepCopy()
	kubetask.ApplyResourceCoefficients(&d.Spec.Template.Spec, s.tasks.RequestCoefficient, s.tasks.LimitCoefficient)
	hint := req.Hint
	if hint.Request == (cluster.Capacity{}) {
		hint.Request = requested(&d.Spec.Template.Spec, ptr.Deref(d.Spec.Replicas, 1))
	}

	b, p, err := s.place(ctx, kind, req.ID, req.Zone, req.Namespace, hint)
	if err != nil {
		return resource.Placement{}, err
	}
	prepare(&d.ObjectMeta, kind, req.ID, p.Namespace)
	d.Spec.Selector = prepareTemplate(&d.Spec.Template, kind, req.ID)

	if err := s.EnsureNamespace(ctx, b, p.Namespace); err != nil {
		return p, err
	}
	if err := s.createObjects(ctx, b, kind, req.ID, p.Namespace, req.Objects); err != nil {
		return p, err
	}
	if _, err := run(ctx, s.runner, kubetask.NewApplyDeployment(b.Kube(), d)); err != nil {
		return p, err
	}
	return p, nil
}

// RestartApplication restarts the pods of an application with a rolling update.
func (s *Service) RestartApplication(ctx context.Context, id string) error {
	b, p, err := s.target(ctx, resource.KindApplication, id)
	if err != nil {
		return err
	}
	name := kube.ObjectName(string(resource.KindApplication), id)
	_, err = run(ctx, s.runner, kubetask.NewRolloutRestart(b.Kube(), p.Namespace, name))
	return err
}

// ScaleApplication sets the replica count of an application. Zero stops it.
func (s *Service) ScaleApplication(ctx context.Context, id string, replicas int32) error {
	if replicas < 0 {
		return fmt.Errorf("%w: negative replicas", ErrInvalidRequest)
	}
	b, p, err := s.target(ctx, resource.KindApplication, id)
	if err != nil {
		return err
	}
	name := kube.ObjectName(string(resource.KindApplication), id)
	_, err = run(ctx, s.runner, kubetask.NewScaleDeployment(b.Kube(), p.Namespace, name, replicas))
	return err
}

// DeleteApplication removes the deployment of an application and the given companion
// objects, then forgets the application.
func (s *Service) DeleteApplication(ctx context.Context, id string, objects ...client.Object) error {
	kind := resource.KindApplication
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

	name := kube.ObjectName(string(kind), id)
	if _, err := run(ctx, s.runner, kubetask.NewDeleteDeployment(b.Kube(), p.Namespace, name)); err != nil {
		return err
	}
	if err := s.deleteObjects(ctx, b, p.Namespace, objects); err != nil {
		return err
	}
	return s.forget(ctx, kind, id)
}
