// Package orchestrator is the caller facing side of the engine.
//
// A Service turns requests such as "deploy this application in zone z1" into the
// steps the engine provides: it picks a cluster through the kind's placement
// strategy, records the placement, and runs the mutating tasks that create, change
// or remove the resource's cluster objects. Every operation is idempotent; calling
// it again after a partial failure skips the steps that already took effect.
//
// # Operations
//
//   - Applications: DeployApplication, RestartApplication, ScaleApplication,
//     DeleteApplication.
//   - Databases: DeployDatabase, DeleteDatabase.
//   - Jobs: LaunchJob, CancelTrainingJob, CancelTaskRun.
//   - Namespaces: EnsureNamespace.
//
// # Deletion
//
// Deleting a resource first marks it deleting through the reconciliation poller of
// its kind, so that the stream following it stops reporting status. Once the cluster
// objects are gone the resource row is forgotten and the stream reports it deleted.
//
// # Errors
//
// Operations return the task error of the first failing step. A step whose readiness
// never turned true yields an error wrapping task.ErrConvergenceTimeout.
package orchestrator
