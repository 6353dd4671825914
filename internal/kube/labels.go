// Package kube holds small helpers shared by code that talks to the cluster API:
// label conventions, error classification and log streaming.
package kube

import (
	"strings"

	"k8s.io/apimachinery/pkg/labels"
)

// Label keys stamped on every object the orchestrator creates.
const (
	LabelManagedBy    = "app.kubernetes.io/managed-by"
	LabelComponent    = "app.kubernetes.io/component"
	LabelResourceID   = "surogate.io/resource-id"
	LabelKind         = "surogate.io/kind"
	ManagedByValue    = "surogate-orchestrator"
	AnnotationSpec    = "surogate.io/spec-hash"
	AnnotationRestart = "kubectl.kubernetes.io/restartedAt"
)

// ResourceSelector selects every object belonging to one orchestrated resource.
func ResourceSelector(kind, id string) labels.Selector {
	return labels.SelectorFromSet(labels.Set{
		LabelKind:       kind,
		LabelResourceID: id,
	})
}

// ResourceLabels returns the labels to stamp on an object of the given resource.
func ResourceLabels(kind, id string) map[string]string {
	return map[string]string{
		LabelManagedBy:  ManagedByValue,
		LabelKind:       kind,
		LabelResourceID: id,
	}
}

// ObjectName derives the cluster object name of a resource. Names are lower case and
// capped at 63 characters so they are valid DNS labels.
func ObjectName(kind, id string) string {
	name := strings.ToLower(kind + "-" + id)
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}
