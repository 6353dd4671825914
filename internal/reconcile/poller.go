package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Poller runs the streams of one resource kind.
type Poller struct {
	accessor StatusAccessor
	enricher Enricher
	resolver Resolver
	store    StateStore
	recorder Recorder
	metrics  *telemetry.Metrics

	tickInterval  time.Duration
	tickTimeout   time.Duration
	enrichTimeout time.Duration
	fanOutLimit   int
	streamTimeout time.Duration
	idleTimeout   time.Duration

	mu      sync.Mutex
	streams map[string]*Stream
	closed  bool

	now func() time.Time
}

// NewPoller creates a poller for the accessor's kind. The accessor may additionally
// implement Enricher and Resolver.
func NewPoller(accessor StatusAccessor, store StateStore, cfg config.ReconcileConfig, metrics *telemetry.Metrics) *Poller {
	p := &Poller{
		accessor:      accessor,
		store:         store,
		metrics:       metrics,
		tickInterval:  orDefault(cfg.TickInterval.D(), config.DefaultTickInterval),
		tickTimeout:   orDefault(cfg.TickTimeout.D(), config.DefaultTickTimeout),
		enrichTimeout: orDefault(cfg.EnrichTimeout.D(), config.DefaultEnrichTimeout),
		fanOutLimit:   cfg.FanOutLimit,
		streamTimeout: orDefault(cfg.StreamTimeout.D(), config.DefaultStreamTimeout),
		idleTimeout:   orDefault(cfg.IdleTimeout.D(), config.DefaultIdleTimeout),
		streams:       make(map[string]*Stream),
		now:           time.Now,
	}
	if p.fanOutLimit <= 0 {
		p.fanOutLimit = config.DefaultFanOutLimit
	}
	if e, ok := accessor.(Enricher); ok {
		p.enricher = e
	}
	if r, ok := accessor.(Resolver); ok {
		p.resolver = r
	}
	return p
}

// WithRecorder attaches a recorder notified of lifecycle transitions. It must be
// called before the first stream is opened.
func (p *Poller) WithRecorder(r Recorder) *Poller {
	p.recorder = r
	return p
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Kind returns the resource kind served by this poller.
func (p *Poller) Kind() resource.Kind {
	return p.accessor.Kind()
}

// Open starts a stream delivering events for ids to sink. The stream runs until it is
// stopped, ctx is cancelled, or it terminates on its own.
func (p *Poller) Open(ctx context.Context, channel string, sink Sink, ids ...string) (*Stream, error) {
	if len(ids) == 0 {
		return nil, ErrNoResources
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrStreamClosed
	}
	s := newStream(ctx, p, uuid.NewString(), channel, sink)
	p.streams[s.id] = s
	p.mu.Unlock()

	for _, id := range ids {
		// not running yet, so nothing can have stopped it
		_ = s.add(id, p.initialLifecycle(ctx, id))
	}

	p.metrics.StreamOpened(string(p.Kind()))
	logging.Info("Reconcile", "Opened %s stream %s on channel %s for %d resources", p.Kind(), s.id, channel, len(ids))

	go s.run()
	return s, nil
}

// MarkDeleting moves id into the deleting lifecycle. Live streams tracking id apply the
// change on their next tick, or when they stop before it. It reports whether such a
// stream took the change; when none did, the transition is persisted directly.
func (p *Poller) MarkDeleting(ctx context.Context, id string) bool {
	p.mu.Lock()
	var owners []*Stream
	for _, s := range p.streams {
		if s.tracks(id) {
			owners = append(owners, s)
		}
	}
	p.mu.Unlock()

	queued := false
	for _, s := range owners {
		if s.queueDeleting(id) {
			queued = true
		}
	}
	if queued {
		return true
	}

	if p.store != nil {
		from, _ := p.store.Lifecycle(ctx, p.Kind(), id)
		if err := p.store.UpdateLifecycle(ctx, p.Kind(), id, LifecycleDeleting, ""); err != nil {
			logging.Warn("Reconcile", "Failed to persist deleting state of %s %s: %v", p.Kind(), id, err)
			return false
		}
		if p.recorder != nil && from != LifecycleDeleting {
			p.recorder.Record(ctx, p.Kind(), id, from, LifecycleDeleting, "")
		}
	}
	return false
}

// Stream returns an open stream by id.
func (p *Poller) Stream(id string) (*Stream, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.streams[id]
	return s, ok
}

// Len returns the number of open streams.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

// Close stops every stream and waits for them to finish. No stream can be opened
// afterwards.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	streams := make([]*Stream, 0, len(p.streams))
	for _, s := range p.streams {
		streams = append(streams, s)
	}
	p.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	for _, s := range streams {
		<-s.Done()
	}
}

func (p *Poller) remove(s *Stream) {
	p.mu.Lock()
	delete(p.streams, s.id)
	p.mu.Unlock()
	p.metrics.StreamClosed(string(p.Kind()))
}

func (p *Poller) initialLifecycle(ctx context.Context, id string) Lifecycle {
	if p.store == nil {
		return LifecycleCreated
	}
	lc, err := p.store.Lifecycle(ctx, p.Kind(), id)
	if err != nil || lc == "" {
		if err != nil {
			logging.Debug("Reconcile", "No stored lifecycle for %s %s: %v", p.Kind(), id, err)
		}
		return LifecycleCreated
	}
	return lc
}

func (p *Poller) resolve(current Lifecycle, statuses []ResourceStatus) Transition {
	if current == LifecycleDeleting {
		return Transition{Lifecycle: LifecycleDeleting}
	}
	if p.resolver != nil {
		return p.resolver.Resolve(current, statuses)
	}
	return NextLifecycle(current, statuses)
}

// fetch asks the accessor for one id and enriches the result. Panics are turned into
// errors so a broken accessor only affects its own id.
func (p *Poller) fetch(ctx context.Context, id string) (statuses []ResourceStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			statuses, err = nil, fmt.Errorf("panic fetching %s %s: %v", p.Kind(), id, r)
		}
	}()

	statuses, err = p.accessor.Fetch(ctx, id)
	if err != nil || p.enricher == nil || len(statuses) == 0 {
		return statuses, err
	}

	enrichCtx, cancel := context.WithTimeout(ctx, p.enrichTimeout)
	defer cancel()
	p.enricher.Enrich(enrichCtx, id, statuses)
	return statuses, nil
}
