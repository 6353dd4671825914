package kubetask

import (
	"context"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
)

// Existence reports whether the object a task operates on is present.
type Existence func(ctx context.Context) (bool, error)

// NamespaceExists checks for a namespace by name.
func NamespaceExists(cs kubernetes.Interface, name string) Existence {
	return func(ctx context.Context) (bool, error) {
		_, err := cs.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		return found(err)
	}
}

// DeploymentExists checks for a deployment.
func DeploymentExists(cs kubernetes.Interface, namespace, name string) Existence {
	return func(ctx context.Context) (bool, error) {
		_, err := cs.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		return found(err)
	}
}

// ObjectExists checks for any object known to the client's scheme. obj is only used
// for its type and key; it is never written to.
func ObjectExists(c client.Client, obj client.Object) Existence {
	key := client.ObjectKeyFromObject(obj)
	return func(ctx context.Context) (bool, error) {
		probe, ok := obj.DeepCopyObject().(client.Object)
		if !ok {
			return false, fmt.Errorf("cannot copy %T", obj)
		}
		return found(c.Get(ctx, key, probe))
	}
}

func found(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// describe renders "kind ns/name" for task names and log lines.
func describe(c client.Client, obj client.Object) string {
	kind := "object"
	if gvk, err := apiutil.GVKForObject(obj, c.Scheme()); err == nil {
		kind = strings.ToLower(gvk.Kind)
	}
	if obj.GetNamespace() == "" {
		return kind + "/" + obj.GetName()
	}
	return kind + "/" + obj.GetNamespace() + "/" + obj.GetName()
}
