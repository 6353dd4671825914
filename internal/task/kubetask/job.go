package kubetask

import (
	"context"
	"fmt"
	"slices"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
)

var suspendPatch = []byte(`{"spec":{"suspend":true}}`)

// JobFinished reports whether a batch job reached a terminal condition.
func JobFinished(job *batchv1.Job) bool {
	for _, c := range job.Status.Conditions {
		if (c.Type == batchv1.JobComplete || c.Type == batchv1.JobFailed) && c.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// CancelJob suspends a batch job, which terminates its active pods while keeping the
// job and its history. Deleting the job afterwards is a separate task.
type CancelJob struct {
	kube      kubernetes.Interface
	namespace string
	name      string
	timeout   time.Duration
}

// NewCancelJob returns a task cancelling job name. drainTimeout bounds the wait for
// the job's pods to terminate.
func NewCancelJob(cs kubernetes.Interface, namespace, name string, drainTimeout time.Duration) *CancelJob {
	return &CancelJob{kube: cs, namespace: namespace, name: name, timeout: drainTimeout}
}

func (t *CancelJob) Name() string { return "cancel-job/" + t.namespace + "/" + t.name }

func (t *CancelJob) ReadinessTimeout() time.Duration { return t.timeout }

func (t *CancelJob) Execute(ctx context.Context) task.Outcome[task.None] {
	client := t.kube.BatchV1().Jobs(t.namespace)

	job, err := client.Get(ctx, t.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return task.Skipped[task.None]("job already gone")
	}
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to get job %s: %w", t.name, err))
	}
	if JobFinished(job) {
		return task.Skipped[task.None]("job already finished")
	}
	if ptr.Deref(job.Spec.Suspend, false) {
		return task.Skipped[task.None]("job already cancelled")
	}

	if _, err := client.Patch(ctx, t.name, types.MergePatchType, suspendPatch, metav1.PatchOptions{}); err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to suspend job %s: %w", t.name, err))
	}
	return task.Mutated(task.None{})
}

// IsReady waits for the job's pods to drain.
func (t *CancelJob) IsReady(ctx context.Context) (bool, error) {
	job, err := t.kube.BatchV1().Jobs(t.namespace).Get(ctx, t.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return job.Status.Active == 0, nil
}

// DefaultJobRuntimeResource is the CRD job runtime driven through the dynamic client.
var DefaultJobRuntimeResource = schema.GroupVersionResource{Group: "ray.io", Version: "v1", Resource: "rayjobs"}

// DefaultJobRuntimeKind is the kind served by DefaultJobRuntimeResource.
var DefaultJobRuntimeKind = schema.GroupVersionKind{Group: "ray.io", Version: "v1", Kind: "RayJob"}

var terminalJobRuntimeStates = []string{"Suspended", "Complete", "Failed"}

// SuspendCustomJob cancels a job managed by a CRD job runtime by setting spec.suspend.
type SuspendCustomJob struct {
	dyn       dynamic.Interface
	resource  schema.GroupVersionResource
	namespace string
	name      string
	timeout   time.Duration
}

func NewSuspendCustomJob(dyn dynamic.Interface, resource schema.GroupVersionResource, namespace, name string, drainTimeout time.Duration) *SuspendCustomJob {
	return &SuspendCustomJob{dyn: dyn, resource: resource, namespace: namespace, name: name, timeout: drainTimeout}
}

func (t *SuspendCustomJob) Name() string {
	return "suspend-" + t.resource.Resource + "/" + t.namespace + "/" + t.name
}

func (t *SuspendCustomJob) ReadinessTimeout() time.Duration { return t.timeout }

func (t *SuspendCustomJob) Execute(ctx context.Context) task.Outcome[task.None] {
	client := t.dyn.Resource(t.resource).Namespace(t.namespace)

	obj, err := client.Get(ctx, t.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return task.Skipped[task.None]("job already gone")
	}
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to get %s %s: %w", t.resource.Resource, t.name, err))
	}
	if suspended, _, _ := unstructured.NestedBool(obj.Object, "spec", "suspend"); suspended {
		return task.Skipped[task.None]("job already cancelled")
	}
	if state := runtimeState(obj); state == "Complete" || state == "Failed" {
		return task.Skipped[task.None]("job already finished")
	}

	if _, err := client.Patch(ctx, t.name, types.MergePatchType, suspendPatch, metav1.PatchOptions{}); err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to suspend %s %s: %w", t.resource.Resource, t.name, err))
	}
	return task.Mutated(task.None{})
}

func (t *SuspendCustomJob) IsReady(ctx context.Context) (bool, error) {
	obj, err := t.dyn.Resource(t.resource).Namespace(t.namespace).Get(ctx, t.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return slices.Contains(terminalJobRuntimeStates, runtimeState(obj)), nil
}

func runtimeState(obj *unstructured.Unstructured) string {
	state, _, _ := unstructured.NestedString(obj.Object, "status", "jobDeploymentStatus")
	return state
}
