package task

import "k8s.io/apimachinery/pkg/runtime/schema"

func schemaGroupResource() schema.GroupResource {
	return schema.GroupResource{Group: "apps", Resource: "deployments"}
}
