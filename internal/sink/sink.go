// Package sink delivers reconciliation events to subscribers: websocket
// connections, redis pub/sub channels, or several of them at once.
package sink

import (
	"context"
	"sync"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// completion is the last frame a sink writes.
type completion struct {
	Event string `json:"event"`
	Error string `json:"error,omitempty"`
}

func completionFrame(err error) completion {
	c := completion{Event: "complete"}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

// Multi sends to a primary sink and mirrors every event to secondary sinks. Only a
// failure of the primary is reported to the stream; mirror failures are logged.
type Multi struct {
	Primary reconcile.Sink
	Mirrors []reconcile.Sink
}

var _ reconcile.Sink = (*Multi)(nil)

func (m *Multi) Send(ctx context.Context, event reconcile.Event) error {
	for _, s := range m.Mirrors {
		if err := s.Send(ctx, event); err != nil {
			logging.Warn("Sink", "Mirror dropped %s event of stream %s: %v", event.Name, event.Stream, err)
		}
	}
	return m.Primary.Send(ctx, event)
}

func (m *Multi) Complete() {
	for _, s := range m.Mirrors {
		s.Complete()
	}
	m.Primary.Complete()
}

func (m *Multi) CompleteWithError(err error) {
	for _, s := range m.Mirrors {
		s.CompleteWithError(err)
	}
	m.Primary.CompleteWithError(err)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []reconcile.Event
	done   chan struct{}
	err    error
	closed bool
}

var _ reconcile.Sink = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{done: make(chan struct{})}
}

func (r *Recorder) Send(_ context.Context, event reconcile.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return reconcile.ErrStreamClosed
	}
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Complete() { r.CompleteWithError(nil) }

func (r *Recorder) CompleteWithError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.err = err
	close(r.done)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []reconcile.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reconcile.Event(nil), r.events...)
}

// Done is closed once the recorder was completed.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Err returns the completion error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
