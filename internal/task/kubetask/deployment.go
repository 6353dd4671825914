package kubetask

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// deploymentReady reports whether a rollout of at least generation has completed.
func deploymentReady(d *appsv1.Deployment, generation int64) bool {
	if d.Status.ObservedGeneration < generation {
		return false
	}
	want := ptr.Deref(d.Spec.Replicas, 1)
	return d.Status.Replicas == want &&
		d.Status.UpdatedReplicas == want &&
		d.Status.ReadyReplicas == want &&
		d.Status.AvailableReplicas == want
}

// ApplyDeployment creates a deployment or updates it when its spec changed. The value
// is the generation the rollout has to reach.
type ApplyDeployment struct {
	kube    kubernetes.Interface
	desired *appsv1.Deployment
	hash    string

	generation int64
}

func NewApplyDeployment(cs kubernetes.Interface, desired *appsv1.Deployment) *ApplyDeployment {
	d := desired.DeepCopy()
	hash := SpecHash(d.Spec)
	d.Annotations = withAnnotation(d.Annotations, kube.AnnotationSpec, hash)
	return &ApplyDeployment{kube: cs, desired: d, hash: hash}
}

func (t *ApplyDeployment) Name() string {
	return "apply-deployment/" + t.desired.Namespace + "/" + t.desired.Name
}

func (t *ApplyDeployment) Execute(ctx context.Context) task.Outcome[int64] {
	client := t.kube.AppsV1().Deployments(t.desired.Namespace)

	current, err := client.Get(ctx, t.desired.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		created, err := client.Create(ctx, t.desired, metav1.CreateOptions{})
		if err != nil {
			return task.Failed[int64](fmt.Errorf("failed to create deployment %s: %w", t.desired.Name, err))
		}
		t.generation = created.Generation
		return task.Mutated(created.Generation)
	}
	if err != nil {
		return task.Failed[int64](fmt.Errorf("failed to get deployment %s: %w", t.desired.Name, err))
	}

	if current.Annotations[kube.AnnotationSpec] == t.hash {
		t.generation = current.Generation
		return task.SkippedWith(current.Generation, "deployment spec unchanged")
	}

	update := current.DeepCopy()
	update.Spec = t.desired.Spec
	update.Labels = mergeLabels(current.Labels, t.desired.Labels)
	update.Annotations = mergeLabels(current.Annotations, t.desired.Annotations)

	updated, err := client.Update(ctx, update, metav1.UpdateOptions{})
	if err != nil {
		return task.Failed[int64](fmt.Errorf("failed to update deployment %s: %w", t.desired.Name, err))
	}
	t.generation = updated.Generation
	return task.Mutated(updated.Generation)
}

func (t *ApplyDeployment) IsReady(ctx context.Context) (bool, error) {
	d, err := t.kube.AppsV1().Deployments(t.desired.Namespace).Get(ctx, t.desired.Name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}
	return deploymentReady(d, t.generation), nil
}

func (t *ApplyDeployment) OnSuccess(_ context.Context, ready bool) {
	if !ready {
		logging.Warn("KubeTask", "Deployment %s/%s applied but not ready yet", t.desired.Namespace, t.desired.Name)
		return
	}
	logging.Info("KubeTask", "Deployment %s/%s rolled out (generation %d)", t.desired.Namespace, t.desired.Name, t.generation)
}

// ScaleDeployment sets the replica count of a deployment.
type ScaleDeployment struct {
	kube      kubernetes.Interface
	namespace string
	name      string
	replicas  int32

	generation int64
}

func NewScaleDeployment(cs kubernetes.Interface, namespace, name string, replicas int32) *ScaleDeployment {
	return &ScaleDeployment{kube: cs, namespace: namespace, name: name, replicas: replicas}
}

func (t *ScaleDeployment) Name() string {
	return fmt.Sprintf("scale-deployment/%s/%s/%d", t.namespace, t.name, t.replicas)
}

func (t *ScaleDeployment) Execute(ctx context.Context) task.Outcome[task.None] {
	client := t.kube.AppsV1().Deployments(t.namespace)

	current, err := client.Get(ctx, t.name, metav1.GetOptions{})
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to get deployment %s: %w", t.name, err))
	}
	if ptr.Deref(current.Spec.Replicas, 1) == t.replicas {
		t.generation = current.Generation
		return task.Skipped[task.None]("replica count already matches")
	}

	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, t.replicas)
	patched, err := client.Patch(ctx, t.name, types.MergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to scale deployment %s: %w", t.name, err))
	}
	t.generation = patched.Generation
	return task.Mutated(task.None{})
}

func (t *ScaleDeployment) IsReady(ctx context.Context) (bool, error) {
	d, err := t.kube.AppsV1().Deployments(t.namespace).Get(ctx, t.name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}
	return deploymentReady(d, t.generation), nil
}

// DeleteDeployment removes a deployment together with its pods.
type DeleteDeployment struct {
	kube      kubernetes.Interface
	namespace string
	name      string
	exists    Existence
}

func NewDeleteDeployment(cs kubernetes.Interface, namespace, name string) *DeleteDeployment {
	return &DeleteDeployment{
		kube:      cs,
		namespace: namespace,
		name:      name,
		exists:    DeploymentExists(cs, namespace, name),
	}
}

func (t *DeleteDeployment) Name() string {
	return "delete-deployment/" + t.namespace + "/" + t.name
}

func (t *DeleteDeployment) Execute(ctx context.Context) task.Outcome[task.None] {
	exists, err := t.exists(ctx)
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to get deployment %s: %w", t.name, err))
	}
	if !exists {
		return task.Skipped[task.None]("deployment already gone")
	}

	policy := metav1.DeletePropagationBackground
	err = t.kube.AppsV1().Deployments(t.namespace).Delete(ctx, t.name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if apierrors.IsNotFound(err) {
		return task.Skipped[task.None]("deployment deleted concurrently")
	}
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to delete deployment %s: %w", t.name, err))
	}
	return task.Mutated(task.None{})
}

func (t *DeleteDeployment) IsReady(ctx context.Context) (bool, error) {
	exists, err := t.exists(ctx)
	return !exists, err
}

// RolloutRestart restarts the pods of a deployment by stamping the restart annotation
// on its pod template in one merge patch. The deployment controller then rolls the
// pods over; the deployment itself is never deleted. The value is the stamp written.
type RolloutRestart struct {
	kube      kubernetes.Interface
	namespace string
	name      string
	now       func() time.Time

	stamp      string
	generation int64
}

func NewRolloutRestart(cs kubernetes.Interface, namespace, name string) *RolloutRestart {
	return &RolloutRestart{kube: cs, namespace: namespace, name: name, now: time.Now}
}

func (t *RolloutRestart) Name() string {
	return "rollout-restart/" + t.namespace + "/" + t.name
}

func (t *RolloutRestart) Execute(ctx context.Context) task.Outcome[string] {
	client := t.kube.AppsV1().Deployments(t.namespace)

	current, err := client.Get(ctx, t.name, metav1.GetOptions{})
	if err != nil {
		return task.Failed[string](fmt.Errorf("failed to get deployment %s: %w", t.name, err))
	}
	if ptr.Deref(current.Spec.Replicas, 1) == 0 {
		return task.Skipped[string]("deployment is scaled to zero")
	}

	t.stamp = t.now().UTC().Format(time.RFC3339)
	patch := fmt.Sprintf(`{"spec":{"template":{"metadata":{"annotations":{%q:%q}}}}}`, kube.AnnotationRestart, t.stamp)
	patched, err := client.Patch(ctx, t.name, types.MergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return task.Failed[string](fmt.Errorf("failed to restart deployment %s: %w", t.name, err))
	}
	t.generation = patched.Generation
	return task.Mutated(t.stamp)
}

// IsReady waits until the template carries our stamp and the rollout completed.
func (t *RolloutRestart) IsReady(ctx context.Context) (bool, error) {
	d, err := t.kube.AppsV1().Deployments(t.namespace).Get(ctx, t.name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}
	if d.Spec.Template.Annotations[kube.AnnotationRestart] != t.stamp {
		return false, nil
	}
	return deploymentReady(d, t.generation), nil
}
