// Package kubetask contains the concrete cluster mutations run through the task framework.
//
// Create and delete variants share their existence checks through the Existence
// predicate instead of building on each other: a create task is skipped when the
// predicate holds, a delete task when it does not, and both use it to decide readiness.
package kubetask
