package kubetask

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
)

// CreateNamespace creates a namespace unless it already exists.
type CreateNamespace struct {
	kube   kubernetes.Interface
	name   string
	labels map[string]string
	exists Existence
}

// NewCreateNamespace returns a task creating namespace name with the given labels.
func NewCreateNamespace(cs kubernetes.Interface, name string, labels map[string]string) *CreateNamespace {
	return &CreateNamespace{kube: cs, name: name, labels: labels, exists: NamespaceExists(cs, name)}
}

func (t *CreateNamespace) Name() string { return "create-namespace/" + t.name }

func (t *CreateNamespace) Execute(ctx context.Context) task.Outcome[task.None] {
	exists, err := t.exists(ctx)
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to look up namespace %s: %w", t.name, err))
	}
	if exists {
		return task.Skipped[task.None]("namespace already exists")
	}

	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: t.name, Labels: t.labels}}
	if _, err := t.kube.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return task.Skipped[task.None]("namespace created concurrently")
		}
		return task.Failed[task.None](fmt.Errorf("failed to create namespace %s: %w", t.name, err))
	}
	return task.Mutated(task.None{})
}

// IsReady waits for the namespace to be listed and not terminating.
func (t *CreateNamespace) IsReady(ctx context.Context) (bool, error) {
	ns, err := t.kube.CoreV1().Namespaces().Get(ctx, t.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ns.Status.Phase != corev1.NamespaceTerminating, nil
}

// DeleteNamespace deletes a namespace and waits until it is gone.
type DeleteNamespace struct {
	kube   kubernetes.Interface
	name   string
	exists Existence
}

func NewDeleteNamespace(cs kubernetes.Interface, name string) *DeleteNamespace {
	return &DeleteNamespace{kube: cs, name: name, exists: NamespaceExists(cs, name)}
}

func (t *DeleteNamespace) Name() string { return "delete-namespace/" + t.name }

func (t *DeleteNamespace) Execute(ctx context.Context) task.Outcome[task.None] {
	exists, err := t.exists(ctx)
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to look up namespace %s: %w", t.name, err))
	}
	if !exists {
		return task.Skipped[task.None]("namespace already gone")
	}

	err = t.kube.CoreV1().Namespaces().Delete(ctx, t.name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return task.Skipped[task.None]("namespace deleted concurrently")
	}
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to delete namespace %s: %w", t.name, err))
	}
	return task.Mutated(task.None{})
}

func (t *DeleteNamespace) IsReady(ctx context.Context) (bool, error) {
	exists, err := t.exists(ctx)
	return !exists, err
}
