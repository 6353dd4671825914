package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
)

// mockTask implements Task for testing.
type mockTask struct {
	name string

	executeFunc func(ctx context.Context) Outcome[string]
	readyFunc   func(ctx context.Context, call int32) (bool, error)

	executeCalls atomic.Int32
	readyCalls   atomic.Int32

	mu        sync.Mutex
	hookCalls []bool
}

func (m *mockTask) Name() string { return m.name }

func (m *mockTask) Execute(ctx context.Context) Outcome[string] {
	m.executeCalls.Add(1)
	if m.executeFunc != nil {
		return m.executeFunc(ctx)
	}
	return Mutated("done")
}

func (m *mockTask) IsReady(ctx context.Context) (bool, error) {
	call := m.readyCalls.Add(1)
	if m.readyFunc != nil {
		return m.readyFunc(ctx, call)
	}
	return true, nil
}

func (m *mockTask) OnSuccess(_ context.Context, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hookCalls = append(m.hookCalls, ready)
}

func (m *mockTask) hooks() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.hookCalls...)
}

func testRunner(interval, timeout time.Duration, workers int) *Runner {
	return NewRunner(config.TaskConfig{
		PollInterval: config.Duration(interval),
		PollTimeout:  config.Duration(timeout),
		Workers:      workers,
	}, nil)
}

func TestRun_Mutated(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Second, 1)
	task := &mockTask{
		name: "mutate",
		readyFunc: func(_ context.Context, call int32) (bool, error) {
			return call >= 3, nil
		},
	}

	res := Run[string](context.Background(), r, task)

	if !res.Success || res.Skipped || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Value != "done" {
		t.Errorf("expected value 'done', got %q", res.Value)
	}
	if got := task.readyCalls.Load(); got != 3 {
		t.Errorf("expected 3 readiness checks, got %d", got)
	}
	if hooks := task.hooks(); len(hooks) != 1 || !hooks[0] {
		t.Errorf("expected one ready hook call, got %v", hooks)
	}
	if res.Task != "mutate" || res.Outcome() != "mutated" {
		t.Errorf("unexpected labels: task=%q outcome=%q", res.Task, res.Outcome())
	}
}

func TestRun_SkippedDoesNotWait(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Second, 1)
	task := &mockTask{
		name: "create-namespace",
		executeFunc: func(context.Context) Outcome[string] {
			return Skipped[string]("namespace already exists")
		},
	}

	res := Run[string](context.Background(), r, task)

	if !res.Success || !res.Skipped {
		t.Fatalf("expected skipped success, got %+v", res)
	}
	if res.Reason != "namespace already exists" {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if got := task.readyCalls.Load(); got != 0 {
		t.Errorf("skipped task must not be polled, got %d checks", got)
	}
	if res.Outcome() != "skipped" {
		t.Errorf("expected outcome skipped, got %s", res.Outcome())
	}
	if hooks := task.hooks(); len(hooks) != 1 || !hooks[0] {
		t.Errorf("skipped task must get one ready hook call, got %v", hooks)
	}
}

func TestRun_ExecutionErrorIsNotRetried(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Second, 1)
	boom := errors.New("forbidden")
	task := &mockTask{
		name: "delete",
		executeFunc: func(context.Context) Outcome[string] {
			return Failed[string](boom)
		},
	}

	res := Run[string](context.Background(), r, task)

	if res.Success || res.TimedOut {
		t.Fatalf("expected execution failure, got %+v", res)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("expected wrapped error, got %v", res.Err)
	}
	var taskErr *TaskError
	if !errors.As(res.Err, &taskErr) || taskErr.Task != "delete" {
		t.Errorf("expected TaskError for delete, got %v", res.Err)
	}
	if task.executeCalls.Load() != 1 || task.readyCalls.Load() != 0 {
		t.Errorf("expected one execute and no readiness checks, got %d/%d",
			task.executeCalls.Load(), task.readyCalls.Load())
	}
	if len(task.hooks()) != 0 {
		t.Error("hook must not run after an execution error")
	}
}

func TestRun_TimeoutStopsPolling(t *testing.T) {
	r := testRunner(10*time.Millisecond, 60*time.Millisecond, 1)
	task := &mockTask{
		name: "scale",
		readyFunc: func(context.Context, int32) (bool, error) {
			return false, nil
		},
	}

	res := Run[string](context.Background(), r, task)

	if res.Success || !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if !errors.Is(res.Err, ErrConvergenceTimeout) {
		t.Errorf("expected ErrConvergenceTimeout, got %v", res.Err)
	}
	if res.Outcome() != "timeout" {
		t.Errorf("expected outcome timeout, got %s", res.Outcome())
	}

	calls := task.readyCalls.Load()
	if calls == 0 {
		t.Fatal("expected at least one readiness check")
	}
	time.Sleep(50 * time.Millisecond)
	if after := task.readyCalls.Load(); after != calls {
		t.Errorf("readiness polled after timeout: %d -> %d", calls, after)
	}
	if hooks := task.hooks(); len(hooks) != 1 || hooks[0] {
		t.Errorf("expected one not-ready hook call, got %v", hooks)
	}
}

func TestRun_TransientReadinessErrorsKeepPolling(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Second, 1)
	task := &mockTask{
		name: "rollout",
		readyFunc: func(_ context.Context, call int32) (bool, error) {
			if call < 3 {
				return false, apierrors.NewServiceUnavailable("apiserver restarting")
			}
			return true, nil
		},
	}

	res := Run[string](context.Background(), r, task)

	if !res.Success {
		t.Fatalf("expected success after transient errors, got %+v", res)
	}
	if got := task.readyCalls.Load(); got != 3 {
		t.Errorf("expected 3 readiness checks, got %d", got)
	}
}

func TestRun_PermanentReadinessErrorFails(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Second, 1)
	task := &mockTask{
		name: "rollout",
		readyFunc: func(context.Context, int32) (bool, error) {
			return false, apierrors.NewForbidden(schemaGroupResource(), "web", errors.New("rbac"))
		},
	}

	res := Run[string](context.Background(), r, task)

	if res.Success || res.TimedOut {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !apierrors.IsForbidden(res.Err) {
		t.Errorf("expected forbidden error, got %v", res.Err)
	}
}

func TestRun_PanicIsRecovered(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Second, 1)
	task := &mockTask{
		name: "panics",
		executeFunc: func(context.Context) Outcome[string] {
			panic("nil bundle")
		},
	}

	res := Run[string](context.Background(), r, task)

	if res.Success || res.Err == nil {
		t.Fatalf("expected recovered failure, got %+v", res)
	}
}

func TestSubmit_CancelDuringWait(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Minute, 1)
	polling := make(chan struct{})
	var once sync.Once
	task := &mockTask{
		name: "cancel-me",
		readyFunc: func(context.Context, int32) (bool, error) {
			once.Do(func() { close(polling) })
			return false, nil
		},
	}

	h := Submit[string](context.Background(), r, task)
	<-polling
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop after cancel")
	}

	res := h.Wait()
	if res.Success || res.TimedOut {
		t.Fatalf("expected cancelled failure, got %+v", res)
	}
	if !errors.Is(res.Err, ErrCancelled) || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected cancellation error, got %v", res.Err)
	}
	if res.Outcome() != "cancelled" {
		t.Errorf("expected outcome cancelled, got %s", res.Outcome())
	}
	r.Wait()
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	r := testRunner(time.Millisecond, time.Second, 2)

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	newTask := func() *mockTask {
		return &mockTask{
			name: "slow",
			executeFunc: func(context.Context) Outcome[string] {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				return Mutated("ok")
			},
			readyFunc: func(context.Context, int32) (bool, error) {
				inFlight.Add(-1)
				return true, nil
			},
		}
	}

	handles := make([]*Handle[string], 0, 5)
	for i := 0; i < 5; i++ {
		handles = append(handles, Submit[string](context.Background(), r, newTask()))
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	r.Wait()

	for _, h := range handles {
		if res := h.Wait(); !res.Success {
			t.Errorf("unexpected failure: %+v", res)
		}
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent tasks, saw %d", got)
	}
}

func TestRun_ReadinessTimeoutOverride(t *testing.T) {
	r := testRunner(5*time.Millisecond, time.Hour, 1)
	task := &overrideTask{mockTask: mockTask{
		name: "drain",
		readyFunc: func(context.Context, int32) (bool, error) {
			return false, nil
		},
	}, timeout: 30 * time.Millisecond}

	start := time.Now()
	res := Run[string](context.Background(), r, task)

	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("override timeout was not applied")
	}
}

type overrideTask struct {
	mockTask
	timeout time.Duration
}

func (o *overrideTask) ReadinessTimeout() time.Duration { return o.timeout }
