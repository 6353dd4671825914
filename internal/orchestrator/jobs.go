package orchestrator

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task/kubetask"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// LaunchJob creates the batch job of a training job or task run on its pinned
// cluster.
func (s *Service) LaunchJob(ctx context.Context, req JobRequest) (resource.Placement, error) {
	if req.Kind != resource.KindTrainingJob && req.Kind != resource.KindTaskRun {
		return resource.Placement{}, fmt.Errorf("%w: %s is not a job kind", ErrInvalidRequest, req.Kind)
	}
	if err := validate(req.ID, req.Zone, req.Namespace); err != nil {
		return resource.Placement{}, err
	}
	if req.Job == nil {
		return resource.Placement{}, fmt.Errorf("%w: missing job", ErrInvalidRequest)
	}

	b, p, err := s.place(ctx, req.Kind, req.ID, req.Zone, req.Namespace, req.Hint)
	if err != nil {
		return resource.Placement{}, err
	}
	job := req.Job.DeepCopy()
	kubetask.ApplyResourceCoefficients(&job.Spec.Template.Spec, s.tasks.RequestCoefficient, s.tasks.LimitCoefficient)
	prepare(&job.ObjectMeta, req.Kind, req.ID, p.Namespace)
	job.Spec.Template.Labels = withResourceLabels(job.Spec.Template.Labels, req.Kind, req.ID)

	if err := s.EnsureNamespace(ctx, b, p.Namespace); err != nil {
		return p, err
	}
	if err := s.createObjects(ctx, b, req.Kind, req.ID, p.Namespace, []client.Object{job}); err != nil {
		return p, err
	}
	return p, nil
}

// CancelTrainingJob stops a training job.
func (s *Service) CancelTrainingJob(ctx context.Context, id string) error {
	return s.cancelJob(ctx, resource.KindTrainingJob, id)
}

// CancelTaskRun stops an evaluation or import task run.
func (s *Service) CancelTaskRun(ctx context.Context, id string) error {
	return s.cancelJob(ctx, resource.KindTaskRun, id)
}

// cancelJob suspends the job and waits for its pods to drain. With cleanup on
// terminate the drained job is deleted afterwards. Jobs of a CRD runtime are
// suspended through the runtime.
func (s *Service) cancelJob(ctx context.Context, kind resource.Kind, id string) error {
	b, p, err := s.target(ctx, kind, id)
	if err != nil {
		return err
	}
	name := kube.ObjectName(string(kind), id)
	drain := s.tasks.WatchTimeout.D()

	onRuntime, err := runtimeJobExists(ctx, b, p.Namespace, name)
	if err != nil {
		return err
	}

	var (
		res     task.Result[task.None]
		cleanup client.Object
	)
	if onRuntime {
		res, err = run(ctx, s.runner, kubetask.NewSuspendCustomJob(b.JobRuntime(), kubetask.DefaultJobRuntimeResource, p.Namespace, name, drain))
		u := &unstructured.Unstructured{}
		u.SetGroupVersionKind(kubetask.DefaultJobRuntimeKind)
		u.SetNamespace(p.Namespace)
		u.SetName(name)
		cleanup = u
	} else {
		res, err = run(ctx, s.runner, kubetask.NewCancelJob(b.Kube(), p.Namespace, name, drain))
		cleanup = &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: p.Namespace}}
	}
	if err != nil {
		return err
	}
	logging.Info("Orchestrator", "Cancelled %s %s (%s)", kind, id, res.Outcome())

	if !s.tasks.CleanupOnTerminate {
		return nil
	}
	if b.Client() == nil {
		logging.Warn("Orchestrator", "Not cleaning up %s %s: %v", kind, id, ErrNoObjectClient)
		return nil
	}
	_, err = run(ctx, s.runner, kubetask.NewDeleteObject(b.Client(), cleanup))
	return err
}

func runtimeJobExists(ctx context.Context, b *cluster.Bundle, namespace, name string) (bool, error) {
	if !b.HasJobRuntime() {
		return false, nil
	}
	_, err := b.JobRuntime().Resource(kubetask.DefaultJobRuntimeResource).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up %s %s: %w", kubetask.DefaultJobRuntimeResource.Resource, name, err)
	}
}
