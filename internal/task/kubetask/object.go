package kubetask

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
)

// CreateObject creates an arbitrary object (service, secret, config map, ...) through
// the controller-runtime client. It is skipped when an object with the same key exists.
type CreateObject struct {
	client client.Client
	obj    client.Object
	exists Existence
}

func NewCreateObject(c client.Client, obj client.Object) *CreateObject {
	return &CreateObject{client: c, obj: obj, exists: ObjectExists(c, obj)}
}

func (t *CreateObject) Name() string { return "create-" + describe(t.client, t.obj) }

func (t *CreateObject) Execute(ctx context.Context) task.Outcome[task.None] {
	exists, err := t.exists(ctx)
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to look up %s: %w", describe(t.client, t.obj), err))
	}
	if exists {
		return task.Skipped[task.None]("object already exists")
	}

	obj, _ := t.obj.DeepCopyObject().(client.Object)
	if err := t.client.Create(ctx, obj); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return task.Skipped[task.None]("object created concurrently")
		}
		return task.Failed[task.None](fmt.Errorf("failed to create %s: %w", describe(t.client, t.obj), err))
	}
	return task.Mutated(task.None{})
}

func (t *CreateObject) IsReady(ctx context.Context) (bool, error) {
	return t.exists(ctx)
}

// DeleteObject deletes an arbitrary object and waits until it is no longer listed.
type DeleteObject struct {
	client client.Client
	obj    client.Object
	exists Existence
}

func NewDeleteObject(c client.Client, obj client.Object) *DeleteObject {
	return &DeleteObject{client: c, obj: obj, exists: ObjectExists(c, obj)}
}

func (t *DeleteObject) Name() string { return "delete-" + describe(t.client, t.obj) }

func (t *DeleteObject) Execute(ctx context.Context) task.Outcome[task.None] {
	exists, err := t.exists(ctx)
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to look up %s: %w", describe(t.client, t.obj), err))
	}
	if !exists {
		return task.Skipped[task.None]("object already gone")
	}

	obj, _ := t.obj.DeepCopyObject().(client.Object)
	err = t.client.Delete(ctx, obj, client.PropagationPolicy(metav1.DeletePropagationBackground))
	if apierrors.IsNotFound(err) {
		return task.Skipped[task.None]("object deleted concurrently")
	}
	if err != nil {
		return task.Failed[task.None](fmt.Errorf("failed to delete %s: %w", describe(t.client, t.obj), err))
	}
	return task.Mutated(task.None{})
}

func (t *DeleteObject) IsReady(ctx context.Context) (bool, error) {
	exists, err := t.exists(ctx)
	return !exists, err
}
