package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Runner executes tasks on a bounded number of worker slots. A task holds its slot
// for Execute plus the whole readiness wait, so the slot count bounds the number of
// in-flight cluster mutations.
type Runner struct {
	pollInterval time.Duration
	pollTimeout  time.Duration
	sem          *semaphore.Weighted
	metrics      *telemetry.Metrics
	wg           sync.WaitGroup
}

// NewRunner creates a runner from the shared task configuration.
func NewRunner(cfg config.TaskConfig, metrics *telemetry.Metrics) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	interval := cfg.PollInterval.D()
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	timeout := cfg.PollTimeout.D()
	if timeout <= 0 {
		timeout = config.DefaultPollTimeout
	}
	return &Runner{
		pollInterval: interval,
		pollTimeout:  timeout,
		sem:          semaphore.NewWeighted(int64(workers)),
		metrics:      metrics,
	}
}

// Wait blocks until every task started with Submit has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Run executes t synchronously and returns its result. It never panics.
func Run[T any](ctx context.Context, r *Runner, t Task[T]) Result[T] {
	name := t.Name()
	start := time.Now()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result[T]{Task: name, Err: &TaskError{Task: name, Err: fmt.Errorf("%w: %w", ErrCancelled, err)}}
	}
	defer r.sem.Release(1)

	r.metrics.TaskStarted()
	res := run(ctx, r, t)
	res.Task = name
	res.Duration = time.Since(start)
	r.metrics.TaskFinished(name, res.Outcome(), res.Duration)

	if res.Success {
		logging.Debug("TaskRunner", "Task %s finished: %s in %v", name, res.Outcome(), res.Duration)
	} else {
		logging.Warn("TaskRunner", "Task %s finished: %s in %v: %v", name, res.Outcome(), res.Duration, res.Err)
	}
	return res
}

func run[T any](ctx context.Context, r *Runner, t Task[T]) Result[T] {
	name := t.Name()

	outcome := safeExecute(ctx, t)
	switch outcome.Kind() {
	case OutcomeSkipped:
		logging.Info("TaskRunner", "Task %s skipped: %s", name, outcome.Reason())
		callHook(ctx, t, true)
		return Result[T]{Success: true, Skipped: true, Value: outcome.Value(), Reason: outcome.Reason()}
	case OutcomeFailed:
		return Result[T]{Err: &TaskError{Task: name, Err: outcome.Err()}}
	}

	timeout := r.pollTimeout
	if rt, ok := any(t).(ReadinessTimeout); ok && rt.ReadinessTimeout() > 0 {
		timeout = rt.ReadinessTimeout()
	}

	err := waitForReady(ctx, t, r.pollInterval, timeout)
	switch {
	case err == nil:
		callHook(ctx, t, true)
		return Result[T]{Success: true, Value: outcome.Value()}
	case ctx.Err() != nil:
		return Result[T]{Value: outcome.Value(), Err: &TaskError{Task: name, Err: fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())}}
	case errors.Is(err, context.DeadlineExceeded) || wait.Interrupted(err):
		callHook(ctx, t, false)
		return Result[T]{TimedOut: true, Value: outcome.Value(), Err: &TaskError{Task: name, Err: fmt.Errorf("%w after %v", ErrConvergenceTimeout, timeout)}}
	default:
		return Result[T]{Value: outcome.Value(), Err: &TaskError{Task: name, Err: err}}
	}
}

// waitForReady polls IsReady on a ticker until it returns true, fails, or the timeout
// elapses. Transient cluster errors count as "not ready yet".
func waitForReady[T any](ctx context.Context, t Task[T], interval, timeout time.Duration) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return wait.PollUntilContextCancel(pollCtx, interval, true, func(ctx context.Context) (bool, error) {
		ready, err := safeIsReady(ctx, t)
		if err != nil {
			if kube.IsTransient(err) {
				logging.Debug("TaskRunner", "Task %s readiness check failed transiently: %v", t.Name(), err)
				return false, nil
			}
			return false, err
		}
		return ready, nil
	})
}

func safeExecute[T any](ctx context.Context, t Task[T]) (out Outcome[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Failed[T](fmt.Errorf("panic in execute: %v", rec))
		}
	}()
	return t.Execute(ctx)
}

func safeIsReady[T any](ctx context.Context, t Task[T]) (ready bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ready, err = false, fmt.Errorf("panic in readiness check: %v", rec)
		}
	}()
	return t.IsReady(ctx)
}

func callHook[T any](ctx context.Context, t Task[T], ready bool) {
	hook, ok := any(t).(SuccessHook)
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warn("TaskRunner", "Success hook of %s panicked: %v", t.Name(), rec)
		}
	}()
	hook.OnSuccess(ctx, ready)
}

// Handle tracks a task started with Submit.
type Handle[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	result Result[T]
}

// Submit starts t in the background. The returned handle can cancel it; a task
// cancelled while waiting for readiness resolves with Success=false.
func Submit[T any](ctx context.Context, r *Runner, t Task[T]) *Handle[T] {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle[T]{done: make(chan struct{}), cancel: cancel}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		h.result = Run(ctx, r, t)
		close(h.done)
	}()
	return h
}

// Done is closed when the task has finished.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Cancel interrupts the task.
func (h *Handle[T]) Cancel() { h.cancel() }

// Wait blocks until the task has finished and returns its result.
func (h *Handle[T]) Wait() Result[T] {
	<-h.done
	return h.result
}
