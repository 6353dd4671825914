// Package task is the framework every cluster mutating operation is built on.
//
// A Task goes through three states: Execute issues the mutation, WaitForReady polls
// IsReady on a cancellable ticker until the mutation converged or the configured
// timeout elapsed, and Done produces a Result. Execute returns an explicit Outcome:
//
//	Mutated(v)      the mutation was issued; readiness is awaited
//	Skipped(reason) the desired state already holds; the result is a success
//	Failed(err)     the mutating call failed; the error is reported, not retried
//
// Results distinguish an execution error (Err set) from a convergence timeout
// (TimedOut set, Err wraps ErrConvergenceTimeout) so callers can decide whether to
// retry, alert or accept partial completion. Retry policy belongs to the caller.
package task
