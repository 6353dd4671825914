// Package kinds implements the status accessors of every orchestrated resource kind:
// applications and databases (plain workloads), composite models (router, worker and
// cache components), training jobs and task runs.
//
// Accessors locate the resource's cluster through a reconcile.Locator, read its pods
// and workload objects from the cluster's bundle and translate them into
// reconcile.ResourceStatus values. Failing pods get the tail of their log attached.
package kinds
