// Package events records Kubernetes Events for lifecycle transitions of orchestrated
// resources, so that the history of a resource is visible with standard tooling
// (kubectl get events) on the cluster it was placed on.
//
// The Recorder implements reconcile.Recorder. Each transition is rendered through the
// MessageTemplateEngine and written as a core/v1 Event in the resource's namespace,
// with the resource's workload object as the involved object:
//
//	rec := events.NewRecorder(registry, placements)
//	poller := reconcile.NewPoller(accessor, store, cfg, metrics).WithRecorder(rec)
//
// Failures to record an event are logged and never affect reconciliation.
package events
