package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAccessor struct {
	mu       sync.Mutex
	statuses map[string][]ResourceStatus
	errs     map[string][]error
	calls    atomic.Int32
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{statuses: map[string][]ResourceStatus{}, errs: map[string][]error{}}
}

func (f *fakeAccessor) Kind() resource.Kind { return resource.KindApplication }

func (f *fakeAccessor) Fetch(_ context.Context, id string) ([]ResourceStatus, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.errs[id]; len(queue) > 0 {
		err := queue[0]
		if len(queue) > 1 {
			f.errs[id] = queue[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	return append([]ResourceStatus(nil), f.statuses[id]...), nil
}

func (f *fakeAccessor) set(id string, s ...ResourceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = s
}

// failWith queues errors returned by the next fetches of id; the last one sticks.
func (f *fakeAccessor) failWith(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = errs
}

type recordingSink struct {
	mu        sync.Mutex
	events    []Event
	completed int
	err       error
}

func (r *recordingSink) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *recordingSink) CompleteWithError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	r.err = err
}

func (r *recordingSink) snapshot() ([]Event, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...), r.completed, r.err
}

func (r *recordingSink) has(name EventName, id string) bool {
	events, _, _ := r.snapshot()
	for _, e := range events {
		if e.Name == name && e.ResourceID == id {
			return true
		}
	}
	return false
}

type memStore struct {
	mu         sync.Mutex
	lifecycles map[string]Lifecycle
	messages   map[string]string
	started    map[string]time.Time
	podWrites  int
}

func newMemStore() *memStore {
	return &memStore{lifecycles: map[string]Lifecycle{}, messages: map[string]string{}, started: map[string]time.Time{}}
}

func (m *memStore) Lifecycle(_ context.Context, _ resource.Kind, id string) (Lifecycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycles[id], nil
}

func (m *memStore) UpdateLifecycle(_ context.Context, _ resource.Kind, id string, lc Lifecycle, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifecycles[id] = lc
	m.messages[id] = msg
	return nil
}

func (m *memStore) UpdateStartTime(_ context.Context, _ resource.Kind, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[id] = at
	return nil
}

func (m *memStore) UpdatePods(context.Context, resource.Kind, string, []SubStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.podWrites++
	return nil
}

func (m *memStore) get(id string) (Lifecycle, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycles[id], m.messages[id]
}

type recordedTransition struct {
	id       string
	from, to Lifecycle
}

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []recordedTransition
}

func (r *recordingRecorder) Record(_ context.Context, _ resource.Kind, id string, from, to Lifecycle, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, recordedTransition{id: id, from: from, to: to})
}

func (r *recordingRecorder) snapshot() []recordedTransition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedTransition(nil), r.transitions...)
}

func testConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		TickInterval:  config.Duration(10 * time.Millisecond),
		TickTimeout:   config.Duration(time.Second),
		EnrichTimeout: config.Duration(100 * time.Millisecond),
		FanOutLimit:   4,
		StreamTimeout: config.Duration(time.Minute),
		IdleTimeout:   config.Duration(time.Minute),
	}
}

func running(id string) ResourceStatus {
	return ResourceStatus{
		ID:        id,
		Stage:     StageRunning,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Pods:      []SubStatus{{Pod: id + "-pod", Stage: StageRunning, Ready: true}},
	}
}

const eventually = 2 * time.Second

func TestStream_StatusAndPersistence(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	store := newMemStore()
	sink := &recordingSink{}
	p := NewPoller(acc, store, testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool { return sink.has(EventStatus, "app-1") }, eventually, 5*time.Millisecond)

	lc, _ := store.get("app-1")
	assert.Equal(t, LifecycleDeployed, lc)
	store.mu.Lock()
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), store.started["app-1"])
	store.mu.Unlock()

	events, _, _ := sink.snapshot()
	first := events[0]
	assert.Equal(t, s.ID(), first.Stream)
	assert.Equal(t, "user-1", first.Channel)
	assert.Equal(t, resource.KindApplication, first.Kind)
	assert.Equal(t, LifecycleDeployed, first.Lifecycle)
	require.Len(t, first.Statuses, 1)

	// pods unchanged across ticks are written once
	require.Eventually(t, func() bool { return acc.calls.Load() >= 4 }, eventually, 5*time.Millisecond)
	store.mu.Lock()
	assert.Equal(t, 1, store.podWrites)
	store.mu.Unlock()
}

func TestStream_RestartingPodScenario(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1",
		ResourceStatus{ID: "app-1", Component: "pod-a", Stage: StageRestarting, Message: "CrashLoopBackOff"},
		ResourceStatus{ID: "app-1", Component: "pod-b", Stage: StageRunning},
	)
	store := newMemStore()
	store.lifecycles["app-1"] = LifecycleDeployed
	sink := &recordingSink{}
	p := NewPoller(acc, store, testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool {
		lc, _ := store.get("app-1")
		return lc == LifecycleError
	}, eventually, 5*time.Millisecond)

	_, msg := store.get("app-1")
	assert.Contains(t, msg, "restarting")
	assert.Contains(t, msg, "CrashLoopBackOff")
}

func TestStream_VanishedResourceCompletes(t *testing.T) {
	acc := newFakeAccessor()
	acc.failWith("app-1", ErrNotFound)
	sink := &recordingSink{}
	p := NewPoller(acc, newMemStore(), testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(eventually):
		t.Fatal("stream did not finish")
	}

	events, completed, completeErr := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventDeleted, events[0].Name)
	assert.Equal(t, 1, completed)
	assert.NoError(t, completeErr)
	assert.Equal(t, 0, p.Len())
}

func TestStream_TransientErrorRetainsID(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	acc.failWith("app-1", apierrors.NewServiceUnavailable("etcd leader change"), apierrors.NewTooManyRequests("slow down", 1), nil)
	sink := &recordingSink{}
	p := NewPoller(acc, newMemStore(), testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool { return sink.has(EventStatus, "app-1") }, eventually, 5*time.Millisecond)
	assert.Equal(t, []string{"app-1"}, s.Tracked())
	assert.False(t, sink.has(EventError, "app-1"))
}

func TestStream_PersistentErrorEscalatesOnNextTick(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-2", running("app-2"))
	boom := errors.New("forbidden: cannot list pods")
	acc.failWith("app-1", boom)
	sink := &recordingSink{}
	p := NewPoller(acc, newMemStore(), testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1", "app-2")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool { return sink.has(EventError, "app-1") }, eventually, 5*time.Millisecond)
	assert.Equal(t, []string{"app-2"}, s.Tracked())

	events, _, _ := sink.snapshot()
	var errorEvent Event
	var statusBefore bool
	for _, e := range events {
		if e.Name == EventError {
			errorEvent = e
			break
		}
		if e.Name == EventStatus && e.ResourceID == "app-2" {
			statusBefore = true
		}
	}
	assert.True(t, statusBefore, "the failing tick still emits for healthy ids")
	assert.Contains(t, errorEvent.Message, "forbidden")

	s.Untrack("app-2")
	select {
	case <-s.Done():
	case <-time.After(eventually):
		t.Fatal("stream did not complete once empty")
	}
	_, completed, completeErr := sink.snapshot()
	assert.Equal(t, 1, completed)
	assert.ErrorIs(t, completeErr, boom)
}

func TestStream_StopEmitsNothingAfterwards(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	sink := &recordingSink{}
	p := NewPoller(acc, newMemStore(), testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.has(EventStatus, "app-1") }, eventually, 5*time.Millisecond)

	s.Stop()
	<-s.Done()
	eventsAtStop, completed, _ := sink.snapshot()
	callsAtStop := acc.calls.Load()

	time.Sleep(50 * time.Millisecond)

	eventsLater, _, _ := sink.snapshot()
	assert.Len(t, eventsLater, len(eventsAtStop))
	assert.Equal(t, callsAtStop, acc.calls.Load(), "no fetch after stop")
	assert.Equal(t, 0, completed, "an explicit stop does not complete the sink")
	assert.ErrorIs(t, s.Track("app-2"), ErrStreamClosed)
	goleak.VerifyNone(t)
}

func TestStream_IdleTimeout(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	cfg := testConfig()
	cfg.IdleTimeout = config.Duration(40 * time.Millisecond)
	sink := &recordingSink{}
	p := NewPoller(acc, newMemStore(), cfg, nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(eventually):
		t.Fatal("idle stream did not time out")
	}

	events, completed, _ := sink.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, EventTimeout, events[len(events)-1].Name)
	assert.Equal(t, 1, completed)
}

func TestStream_WallClockTimeout(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	cfg := testConfig()
	cfg.StreamTimeout = config.Duration(30 * time.Millisecond)
	sink := &recordingSink{}
	p := NewPoller(acc, newMemStore(), cfg, nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(eventually):
		t.Fatal("stream did not time out")
	}
	events, _, _ := sink.snapshot()
	assert.Equal(t, EventTimeout, events[len(events)-1].Name)
}

func TestPoller_MarkDeletingIsAppliedByTick(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	store := newMemStore()
	sink := &recordingSink{}
	p := NewPoller(acc, store, testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool {
		lc, _ := store.get("app-1")
		return lc == LifecycleDeployed
	}, eventually, 5*time.Millisecond)

	assert.True(t, p.MarkDeleting(t.Context(), "app-1"))
	require.Eventually(t, func() bool {
		lc, _ := store.get("app-1")
		return lc == LifecycleDeleting
	}, eventually, 5*time.Millisecond)

	// still running pods never move it out of deleting
	time.Sleep(50 * time.Millisecond)
	lc, _ := store.get("app-1")
	assert.Equal(t, LifecycleDeleting, lc)

	// once gone the stream reports the deletion
	acc.failWith("app-1", ErrNotFound)
	require.Eventually(t, func() bool { return sink.has(EventDeleted, "app-1") }, eventually, 5*time.Millisecond)
}

func TestPoller_MarkDeletingWithoutStreamPersists(t *testing.T) {
	store := newMemStore()
	p := NewPoller(newFakeAccessor(), store, testConfig(), nil)

	assert.False(t, p.MarkDeleting(t.Context(), "db-1"))
	lc, _ := store.get("db-1")
	assert.Equal(t, LifecycleDeleting, lc)
}

func TestStream_NotPlaced(t *testing.T) {
	acc := newFakeAccessor()
	acc.failWith("app-1", ErrNotPlaced)
	store := newMemStore()
	store.lifecycles["app-1"] = LifecycleDeploying
	sink := &recordingSink{}
	p := NewPoller(acc, store, testConfig(), nil)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool {
		lc, _ := store.get("app-1")
		return lc == LifecycleCreated
	}, eventually, 5*time.Millisecond)
	_, msg := store.get("app-1")
	assert.Equal(t, "not deployed", msg)
}

func TestPoller_OpenRequiresIDs(t *testing.T) {
	p := NewPoller(newFakeAccessor(), nil, testConfig(), nil)
	_, err := p.Open(t.Context(), "user-1", &recordingSink{})
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestPoller_CloseStopsStreams(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	p := NewPoller(acc, nil, testConfig(), nil)

	_, err := p.Open(t.Context(), "a", &recordingSink{}, "app-1")
	require.NoError(t, err)
	_, err = p.Open(t.Context(), "b", &recordingSink{}, "app-1")
	require.NoError(t, err)

	p.Close()
	assert.Equal(t, 0, p.Len())
	_, err = p.Open(t.Context(), "c", &recordingSink{}, "app-1")
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestPoller_RecorderSeesTransitions(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	store := newMemStore()
	store.lifecycles["app-1"] = LifecycleDeploying
	rec := &recordingRecorder{}
	sink := &recordingSink{}
	p := NewPoller(acc, store, testConfig(), nil).WithRecorder(rec)

	s, err := p.Open(t.Context(), "user-1", sink, "app-1")
	require.NoError(t, err)
	defer func() { s.Stop(); <-s.Done() }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, eventually, 5*time.Millisecond)

	// steady state ticks record nothing more
	require.Eventually(t, func() bool { return acc.calls.Load() >= 3 }, eventually, 5*time.Millisecond)
	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, recordedTransition{id: "app-1", from: LifecycleDeploying, to: LifecycleDeployed}, got[0])
}

func TestPoller_MarkDeletingWithoutStreamRecords(t *testing.T) {
	store := newMemStore()
	store.lifecycles["db-1"] = LifecycleDeployed
	rec := &recordingRecorder{}
	p := NewPoller(newFakeAccessor(), store, testConfig(), nil).WithRecorder(rec)

	assert.False(t, p.MarkDeleting(t.Context(), "db-1"))
	assert.Equal(t, []recordedTransition{{id: "db-1", from: LifecycleDeployed, to: LifecycleDeleting}}, rec.snapshot())

	// already deleting
	p.MarkDeleting(t.Context(), "db-1")
	assert.Len(t, rec.snapshot(), 1)
}

func TestPoller_MarkDeletingQueuedBeforeStopIsPersisted(t *testing.T) {
	acc := newFakeAccessor()
	acc.set("app-1", running("app-1"))
	store := newMemStore()
	rec := &recordingRecorder{}
	cfg := testConfig()
	cfg.TickInterval = config.Duration(time.Hour)
	p := NewPoller(acc, store, cfg, nil).WithRecorder(rec)

	s, err := p.Open(t.Context(), "user-1", &recordingSink{}, "app-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		lc, _ := store.get("app-1")
		return lc == LifecycleDeployed
	}, eventually, 5*time.Millisecond)

	// no further tick runs before the stop
	assert.True(t, p.MarkDeleting(t.Context(), "app-1"))
	s.Stop()
	<-s.Done()

	lc, _ := store.get("app-1")
	assert.Equal(t, LifecycleDeleting, lc)
	assert.Contains(t, rec.snapshot(), recordedTransition{id: "app-1", from: LifecycleDeployed, to: LifecycleDeleting})
}

func TestPoller_MarkDeletingOnStoppedStreamPersists(t *testing.T) {
	store := newMemStore()
	store.lifecycles["db-1"] = LifecycleDeployed
	rec := &recordingRecorder{}
	p := NewPoller(newFakeAccessor(), store, testConfig(), nil).WithRecorder(rec)

	// registered but stopped, its run loop never ticks again
	s := newStream(t.Context(), p, "s-1", "user-1", &recordingSink{})
	require.NoError(t, s.add("db-1", LifecycleDeployed))
	p.mu.Lock()
	p.streams[s.id] = s
	p.mu.Unlock()
	s.Stop()

	assert.False(t, p.MarkDeleting(t.Context(), "db-1"))
	lc, _ := store.get("db-1")
	assert.Equal(t, LifecycleDeleting, lc)
	assert.Equal(t, []recordedTransition{{id: "db-1", from: LifecycleDeployed, to: LifecycleDeleting}}, rec.snapshot())
}

func TestStream_TrackAfterCompletionFails(t *testing.T) {
	sink := &recordingSink{}
	p := NewPoller(newFakeAccessor(), newMemStore(), testConfig(), nil)
	s := newStream(t.Context(), p, "s-1", "user-1", sink)

	require.True(t, s.finishIfEmpty())
	assert.ErrorIs(t, s.Track("app-1"), ErrStreamClosed)
	assert.Empty(t, s.Tracked())
	_, completed, _ := sink.snapshot()
	assert.Equal(t, 1, completed)
}

func TestStream_FinishIfEmptyYieldsToLateTrack(t *testing.T) {
	sink := &recordingSink{}
	p := NewPoller(newFakeAccessor(), newMemStore(), testConfig(), nil)
	s := newStream(t.Context(), p, "s-1", "user-1", sink)

	// the tick saw an empty set, then a Track landed before it finished
	require.NoError(t, s.Track("app-1"))
	assert.False(t, s.finishIfEmpty())
	_, completed, _ := sink.snapshot()
	assert.Equal(t, 0, completed)
	assert.NoError(t, s.Track("app-2"))
	assert.Equal(t, []string{"app-1", "app-2"}, s.Tracked())
}
