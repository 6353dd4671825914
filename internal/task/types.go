package task

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// None is the value type of tasks that produce nothing.
type None = struct{}

// Task is a cluster mutating operation driven through Execute -> WaitForReady -> Done.
//
// Execute performs the mutation. Idempotent tasks check the current state first and
// return Skipped when the desired state already holds; the runner then finishes
// successfully without waiting. IsReady must be free of side effects: the runner
// calls it on a fixed interval until it reports true or the timeout elapses.
type Task[T any] interface {
	Name() string
	Execute(ctx context.Context) Outcome[T]
	IsReady(ctx context.Context) (bool, error)
}

// SuccessHook is implemented by tasks that want a final callback after a successful
// mutation. ready reports whether convergence was observed; it is false after a
// readiness timeout. A skipped task already holds its desired state and gets
// OnSuccess(ctx, true). The hook is not called for execution errors or cancellation.
type SuccessHook interface {
	OnSuccess(ctx context.Context, ready bool)
}

// ReadinessTimeout lets a task wait longer (or shorter) than the configured poll timeout.
type ReadinessTimeout interface {
	ReadinessTimeout() time.Duration
}

// OutcomeKind tells what Execute did.
type OutcomeKind int

const (
	OutcomeMutated OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMutated:
		return "mutated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the three-way result of Execute.
type Outcome[T any] struct {
	kind   OutcomeKind
	value  T
	reason string
	err    error
}

// Mutated reports that the mutation was issued.
func Mutated[T any](value T) Outcome[T] {
	return Outcome[T]{kind: OutcomeMutated, value: value}
}

// Skipped reports that the desired state already holds and nothing was issued.
func Skipped[T any](reason string) Outcome[T] {
	return Outcome[T]{kind: OutcomeSkipped, reason: reason}
}

// SkippedWith is Skipped carrying the value observed in the existing state.
func SkippedWith[T any](value T, reason string) Outcome[T] {
	return Outcome[T]{kind: OutcomeSkipped, value: value, reason: reason}
}

// Failed reports that the mutating call failed.
func Failed[T any](err error) Outcome[T] {
	if err == nil {
		err = errors.New("task failed without an error")
	}
	return Outcome[T]{kind: OutcomeFailed, err: err}
}

// Kind returns the outcome kind.
func (o Outcome[T]) Kind() OutcomeKind { return o.kind }

// Value returns the value attached to a mutated or skipped outcome.
func (o Outcome[T]) Value() T { return o.value }

// Reason returns the skip reason.
func (o Outcome[T]) Reason() string { return o.reason }

// Err returns the execution error of a failed outcome.
func (o Outcome[T]) Err() error { return o.err }

// Result is what the runner reports for one task invocation.
type Result[T any] struct {
	Task     string
	Success  bool
	Skipped  bool
	TimedOut bool
	Value    T
	Reason   string
	Err      error
	Duration time.Duration
}

// Outcome labels the result for logs and metrics.
func (r Result[T]) Outcome() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "mutated"
	case r.TimedOut:
		return "timeout"
	case errors.Is(r.Err, ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}

var (
	// ErrConvergenceTimeout is set on results whose readiness never turned true.
	ErrConvergenceTimeout = errors.New("timed out waiting for readiness")
	// ErrCancelled is set on results interrupted by their caller.
	ErrCancelled = errors.New("task cancelled")
)

// TaskError attaches the task name to a failure.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
