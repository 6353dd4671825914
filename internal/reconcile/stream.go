package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// tracked is the per-id state of a stream. Only the stream's tick goroutine reads or
// writes its fields after the entry was added.
type tracked struct {
	lifecycle     Lifecycle
	escalated     error
	startRecorded bool
	podsDigest    string
}

type fetchResult struct {
	id       string
	statuses []ResourceStatus
	err      error
}

// Stream follows a set of resource ids for one subscriber channel.
type Stream struct {
	id      string
	channel string
	poller  *Poller
	sink    Sink

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	entries        map[string]*tracked
	order          []string
	pendingDeletes map[string]struct{}
	// closing is set once the run loop flushed its pending deletes for the last time.
	closing bool

	// sendMu serializes sink calls with Stop so nothing is sent once Stop returned. It
	// also orders add against finish so no id joins a completed stream.
	sendMu  sync.Mutex
	stopped bool

	opened         time.Time
	lastTransition time.Time
	lastErr        error
}

func newStream(parent context.Context, p *Poller, id, channel string, sink Sink) *Stream {
	ctx, cancel := context.WithCancel(parent)
	now := p.now()
	return &Stream{
		id:             id,
		channel:        channel,
		poller:         p,
		sink:           sink,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		entries:        make(map[string]*tracked),
		pendingDeletes: make(map[string]struct{}),
		opened:         now,
		lastTransition: now,
	}
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Channel returns the subscriber channel name.
func (s *Stream) Channel() string { return s.channel }

// Done is closed once the stream has finished.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Track adds id to the stream.
func (s *Stream) Track(id string) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	if s.ctx.Err() != nil {
		return ErrStreamClosed
	}
	return s.add(id, s.poller.initialLifecycle(s.ctx, id))
}

// Untrack removes id from the stream. A stream whose last id was removed completes on
// its next tick.
func (s *Stream) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Tracked returns the tracked ids in insertion order.
func (s *Stream) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Stop cancels the stream. Once Stop returns no further event reaches the sink; the
// sink is not completed since its owner asked for the stop.
func (s *Stream) Stop() {
	s.cancel()
	s.sendMu.Lock()
	s.stopped = true
	s.sendMu.Unlock()
}

func (s *Stream) add(id string, lc Lifecycle) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.stopped {
		return ErrStreamClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return nil
	}
	s.entries[id] = &tracked{lifecycle: lc}
	s.order = append(s.order, id)
	return nil
}

func (s *Stream) removeLocked(id string) {
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	delete(s.pendingDeletes, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

func (s *Stream) tracks(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// queueDeleting hands id to the next tick. It reports false when the stream no longer
// ticks, leaving the caller to persist the change.
func (s *Stream) queueDeleting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing || s.ctx.Err() != nil {
		return false
	}
	if _, ok := s.entries[id]; !ok {
		return false
	}
	s.pendingDeletes[id] = struct{}{}
	return true
}

// flushDeletes persists deleting marks queued after the last tick.
func (s *Stream) flushDeletes() {
	s.mu.Lock()
	s.closing = true
	deletes := s.takeDeletesLocked()
	s.mu.Unlock()
	if len(deletes) == 0 {
		return
	}

	ctx := context.WithoutCancel(s.ctx)
	ids, entries := s.snapshot()
	for i, id := range ids {
		if _, ok := deletes[id]; ok && entries[i].lifecycle != LifecycleDeleting {
			s.transition(ctx, id, entries[i], Transition{Lifecycle: LifecycleDeleting})
		}
	}
}

func (s *Stream) run() {
	defer close(s.done)
	defer s.poller.remove(s)
	defer s.cancel()
	defer s.flushDeletes()

	p := s.poller
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()
	wallClock := time.NewTimer(p.streamTimeout)
	defer wallClock.Stop()

	if s.tick() {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			logging.Debug("Reconcile", "Stream %s stopped", s.id)
			return
		case <-wallClock.C:
			s.timeout(fmt.Sprintf("stream exceeded %v", p.streamTimeout))
			return
		case <-ticker.C:
			if p.now().Sub(s.lastTransition) >= p.idleTimeout {
				s.timeout(fmt.Sprintf("no lifecycle change for %v", p.idleTimeout))
				return
			}
			if s.tick() {
				return
			}
		}
	}
}

// tick runs one reconciliation cycle. It reports whether the stream finished.
func (s *Stream) tick() bool {
	p := s.poller
	start := p.now()
	defer func() { p.metrics.TickObserved(string(p.Kind()), p.now().Sub(start)) }()

	ids, entries := s.snapshot()
	deletes := s.takeDeletes()

	// Errors from the previous tick are escalated now.
	for i, id := range ids {
		e := entries[i]
		if e.escalated == nil {
			continue
		}
		s.emit(Event{Name: EventError, ResourceID: id, Lifecycle: e.lifecycle, Message: e.escalated.Error()})
		s.lastErr = e.escalated
		s.Untrack(id)
	}

	for i, id := range ids {
		if _, ok := deletes[id]; ok && entries[i].lifecycle != LifecycleDeleting {
			s.transition(s.ctx, id, entries[i], Transition{Lifecycle: LifecycleDeleting})
		}
	}

	ids, entries = s.snapshot()
	if len(ids) == 0 {
		return s.finishIfEmpty()
	}

	results := s.fetchAll(ids)
	if s.ctx.Err() != nil {
		return true
	}

	for i, res := range results {
		s.apply(res, entries[i])
	}

	if ids, _ := s.snapshot(); len(ids) == 0 && s.finishIfEmpty() {
		return true
	}
	return s.ctx.Err() != nil
}

func (s *Stream) snapshot() ([]string, []*tracked) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Clone(s.order)
	entries := make([]*tracked, len(ids))
	for i, id := range ids {
		entries[i] = s.entries[id]
	}
	return ids, entries
}

func (s *Stream) takeDeletes() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeDeletesLocked()
}

func (s *Stream) takeDeletesLocked() map[string]struct{} {
	deletes := s.pendingDeletes
	s.pendingDeletes = make(map[string]struct{})
	return deletes
}

func (s *Stream) fetchAll(ids []string) []fetchResult {
	p := s.poller
	ctx, cancel := context.WithTimeout(s.ctx, p.tickTimeout)
	defer cancel()

	results := make([]fetchResult, len(ids))
	var g errgroup.Group
	g.SetLimit(p.fanOutLimit)
	for i, id := range ids {
		g.Go(func() error {
			statuses, err := p.fetch(ctx, id)
			results[i] = fetchResult{id: id, statuses: statuses, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Stream) apply(res fetchResult, e *tracked) {
	p := s.poller
	kind := string(p.Kind())

	if !s.tracks(res.id) {
		return
	}

	switch {
	case res.err == nil:
		p.metrics.FetchResult(kind, "ok")
	case errors.Is(res.err, ErrNotFound):
		p.metrics.FetchResult(kind, "gone")
		logging.Info("Reconcile", "%s %s no longer exists", p.Kind(), res.id)
		s.emit(Event{Name: EventDeleted, ResourceID: res.id, Lifecycle: e.lifecycle})
		s.Untrack(res.id)
		return
	case errors.Is(res.err, ErrNotPlaced):
		p.metrics.FetchResult(kind, "not_placed")
		tr := Transition{Lifecycle: LifecycleCreated, Message: "not deployed"}
		if e.lifecycle == LifecycleDeleting {
			tr = Transition{Lifecycle: LifecycleDeleting}
		}
		s.transition(s.ctx, res.id, e, tr)
		s.emit(Event{Name: EventStatus, ResourceID: res.id, Lifecycle: e.lifecycle, Message: tr.Message})
		return
	case kube.IsTransient(res.err):
		p.metrics.FetchResult(kind, "transient")
		logging.Debug("Reconcile", "Transient error fetching %s %s: %v", p.Kind(), res.id, res.err)
		return
	default:
		p.metrics.FetchResult(kind, "error")
		logging.Warn("Reconcile", "Failed to fetch %s %s: %v", p.Kind(), res.id, res.err)
		e.escalated = res.err
		return
	}

	tr := p.resolve(e.lifecycle, res.statuses)
	s.transition(s.ctx, res.id, e, tr)
	s.record(res.id, e, res.statuses)

	message := tr.Message
	if message == "" && len(res.statuses) == 0 {
		message = "no resources found"
	}
	s.emit(Event{Name: EventStatus, ResourceID: res.id, Lifecycle: e.lifecycle, Message: message, Statuses: res.statuses})
}

// transition moves e to tr and persists the change. It is a no-op when the lifecycle
// did not change.
func (s *Stream) transition(ctx context.Context, id string, e *tracked, tr Transition) {
	if tr.Lifecycle == "" || tr.Lifecycle == e.lifecycle {
		return
	}
	p := s.poller
	from := e.lifecycle
	e.lifecycle = tr.Lifecycle
	s.lastTransition = p.now()
	p.metrics.LifecycleTransition(string(p.Kind()), string(from), string(tr.Lifecycle))
	logging.Info("Reconcile", "%s %s: %s -> %s %s", p.Kind(), id, from, tr.Lifecycle, tr.Message)

	if p.store != nil {
		if err := p.store.UpdateLifecycle(ctx, p.Kind(), id, tr.Lifecycle, tr.Message); err != nil {
			logging.Warn("Reconcile", "Failed to persist lifecycle of %s %s: %v", p.Kind(), id, err)
		}
	}
	if p.recorder != nil {
		p.recorder.Record(ctx, p.Kind(), id, from, tr.Lifecycle, tr.Message)
	}
}

// record persists the start time once and the pod list whenever it changed.
func (s *Stream) record(id string, e *tracked, statuses []ResourceStatus) {
	p := s.poller
	if p.store == nil {
		return
	}

	if !e.startRecorded {
		if started := earliestStart(statuses); !started.IsZero() {
			if err := p.store.UpdateStartTime(s.ctx, p.Kind(), id, started); err != nil {
				logging.Warn("Reconcile", "Failed to persist start time of %s %s: %v", p.Kind(), id, err)
			} else {
				e.startRecorded = true
			}
		}
	}

	pods := collectPods(statuses)
	digest := podsDigest(pods)
	if digest == e.podsDigest {
		return
	}
	if err := p.store.UpdatePods(s.ctx, p.Kind(), id, pods); err != nil {
		logging.Warn("Reconcile", "Failed to persist pods of %s %s: %v", p.Kind(), id, err)
		return
	}
	e.podsDigest = digest
}

func (s *Stream) emit(event Event) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.stopped || s.ctx.Err() != nil {
		return false
	}

	event.Stream = s.id
	event.Channel = s.channel
	event.Kind = s.poller.Kind()
	event.Time = s.poller.now()
	if err := s.sink.Send(s.ctx, event); err != nil {
		logging.Warn("Reconcile", "Failed to deliver %s event on stream %s, closing it: %v", event.Name, s.id, err)
		s.stopped = true
		s.cancel()
		return false
	}
	return true
}

// finish completes the sink.
func (s *Stream) finish() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.finishLocked()
}

// finishIfEmpty completes the sink unless an id was added since the caller saw the
// tracked set empty. It reports whether the stream finished.
func (s *Stream) finishIfEmpty() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	empty := len(s.order) == 0
	s.mu.Unlock()
	if !empty {
		return false
	}
	s.finishLocked()
	return true
}

func (s *Stream) finishLocked() {
	if s.stopped {
		return
	}
	s.stopped = true
	if s.lastErr != nil {
		s.sink.CompleteWithError(s.lastErr)
	} else {
		s.sink.Complete()
	}
	logging.Info("Reconcile", "Stream %s completed", s.id)
}

func (s *Stream) timeout(reason string) {
	logging.Info("Reconcile", "Stream %s timed out: %s", s.id, reason)
	if s.emit(Event{Name: EventTimeout, Message: reason}) {
		s.finish()
	}
}

func earliestStart(statuses []ResourceStatus) time.Time {
	var earliest time.Time
	for _, st := range statuses {
		if st.StartedAt.IsZero() {
			continue
		}
		if earliest.IsZero() || st.StartedAt.Before(earliest) {
			earliest = st.StartedAt
		}
	}
	return earliest
}

func collectPods(statuses []ResourceStatus) []SubStatus {
	var pods []SubStatus
	for _, st := range statuses {
		pods = append(pods, st.Pods...)
	}
	return pods
}

func podsDigest(pods []SubStatus) string {
	keys := make([]string, 0, len(pods))
	for _, p := range pods {
		keys = append(keys, fmt.Sprintf("%s/%s/%s/%t/%d", p.Pod, p.Container, p.Stage, p.Ready, p.Restarts))
	}
	slices.Sort(keys)
	return fmt.Sprint(keys)
}
