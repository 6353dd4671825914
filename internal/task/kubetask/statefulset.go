package kubetask

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
)

// ApplyStatefulSet is the stateful counterpart of ApplyDeployment, used for databases.
// It goes through the controller-runtime client.
type ApplyStatefulSet struct {
	client  client.Client
	desired *appsv1.StatefulSet
	hash    string

	generation int64
}

func NewApplyStatefulSet(c client.Client, desired *appsv1.StatefulSet) *ApplyStatefulSet {
	s := desired.DeepCopy()
	hash := SpecHash(s.Spec)
	s.Annotations = withAnnotation(s.Annotations, kube.AnnotationSpec, hash)
	return &ApplyStatefulSet{client: c, desired: s, hash: hash}
}

func (t *ApplyStatefulSet) Name() string {
	return "apply-statefulset/" + t.desired.Namespace + "/" + t.desired.Name
}

func (t *ApplyStatefulSet) Execute(ctx context.Context) task.Outcome[int64] {
	current := &appsv1.StatefulSet{}
	err := t.client.Get(ctx, client.ObjectKeyFromObject(t.desired), current)
	if apierrors.IsNotFound(err) {
		obj := t.desired.DeepCopy()
		if err := t.client.Create(ctx, obj); err != nil {
			return task.Failed[int64](fmt.Errorf("failed to create statefulset %s: %w", t.desired.Name, err))
		}
		t.generation = obj.Generation
		return task.Mutated(obj.Generation)
	}
	if err != nil {
		return task.Failed[int64](fmt.Errorf("failed to get statefulset %s: %w", t.desired.Name, err))
	}

	if current.Annotations[kube.AnnotationSpec] == t.hash {
		t.generation = current.Generation
		return task.SkippedWith(current.Generation, "statefulset spec unchanged")
	}

	update := current.DeepCopy()
	update.Spec = t.desired.Spec
	update.Labels = mergeLabels(current.Labels, t.desired.Labels)
	update.Annotations = mergeLabels(current.Annotations, t.desired.Annotations)
	if err := t.client.Update(ctx, update); err != nil {
		return task.Failed[int64](fmt.Errorf("failed to update statefulset %s: %w", t.desired.Name, err))
	}
	t.generation = update.Generation
	return task.Mutated(update.Generation)
}

func (t *ApplyStatefulSet) IsReady(ctx context.Context) (bool, error) {
	s := &appsv1.StatefulSet{}
	if err := t.client.Get(ctx, client.ObjectKeyFromObject(t.desired), s); err != nil {
		return false, err
	}
	return statefulSetReady(s, t.generation), nil
}

func statefulSetReady(s *appsv1.StatefulSet, generation int64) bool {
	if s.Status.ObservedGeneration < generation {
		return false
	}
	if s.Status.UpdateRevision != "" && s.Status.CurrentRevision != s.Status.UpdateRevision {
		return false
	}
	want := ptr.Deref(s.Spec.Replicas, 1)
	return s.Status.ReadyReplicas == want && s.Status.UpdatedReplicas == want
}
