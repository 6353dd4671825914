package nodewatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	toolscache "k8s.io/client-go/tools/cache"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Options tunes a Watcher.
type Options struct {
	ResyncPeriod time.Duration
	// IgnoreUpdates forwards only additions and deletions.
	IgnoreUpdates bool
}

// Watcher feeds the node changes of one cluster to a Bookkeeper through a shared
// informer.
type Watcher struct {
	bundle  *cluster.Bundle
	book    Bookkeeper
	opts    Options
	metrics *telemetry.Metrics
	now     func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	factory informers.SharedInformerFactory
}

// NewWatcher creates a watcher for the nodes of bundle.
func NewWatcher(bundle *cluster.Bundle, book Bookkeeper, opts Options, metrics *telemetry.Metrics) *Watcher {
	return &Watcher{bundle: bundle, book: book, opts: opts, metrics: metrics, now: time.Now}
}

// Start runs the informer and blocks until its cache has synced.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.factory = informers.NewSharedInformerFactory(w.bundle.Kube(), w.opts.ResyncPeriod)
	factory, wctx := w.factory, w.ctx
	w.mu.Unlock()

	informer := factory.Core().V1().Nodes().Informer()
	if _, err := informer.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
		AddFunc:    w.onAdd,
		UpdateFunc: w.onUpdate,
		DeleteFunc: w.onDelete,
	}); err != nil {
		w.Stop()
		return fmt.Errorf("failed to add node handler for %s: %w", w.bundle, err)
	}

	factory.Start(wctx.Done())
	for typ, ok := range factory.WaitForCacheSync(wctx.Done()) {
		if !ok {
			w.Stop()
			return fmt.Errorf("node cache of %s did not sync (%v)", w.bundle, typ)
		}
	}
	logging.Info("NodeWatch", "Watching nodes of %s", w.bundle)
	return nil
}

// Stop ends the informer and waits for its goroutines.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, factory := w.cancel, w.factory
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	factory.Shutdown()
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func (w *Watcher) onAdd(obj interface{}) {
	node, ok := obj.(*corev1.Node)
	if !ok {
		return
	}
	w.upsert(node, "add")
}

func (w *Watcher) onUpdate(oldObj, newObj interface{}) {
	if w.opts.IgnoreUpdates {
		return
	}
	oldNode, ok1 := oldObj.(*corev1.Node)
	newNode, ok2 := newObj.(*corev1.Node)
	if !ok1 || !ok2 {
		return
	}
	// resyncs replay the cached object unchanged
	if oldNode.ResourceVersion == newNode.ResourceVersion {
		return
	}
	w.upsert(newNode, "update")
}

func (w *Watcher) onDelete(obj interface{}) {
	if tombstone, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	node, ok := obj.(*corev1.Node)
	if !ok {
		logging.Warn("NodeWatch", "Unexpected object in delete event of %s: %T", w.bundle, obj)
		return
	}

	w.metrics.NodeEvent(w.bundle.Zone(), w.bundle.ID(), "delete")
	err := w.book.MarkUnavailable(w.context(), w.bundle.Zone(), w.bundle.ID(), node.Name, w.now())
	if err != nil {
		logging.Error("NodeWatch", err, "Failed to mark node %s of %s unavailable", node.Name, w.bundle)
	}
}

func (w *Watcher) upsert(node *corev1.Node, eventType string) {
	w.metrics.NodeEvent(w.bundle.Zone(), w.bundle.ID(), eventType)
	n := FromNode(w.bundle.Zone(), w.bundle.ID(), node, w.now())
	if err := w.book.UpsertNode(w.context(), n); err != nil {
		logging.Error("NodeWatch", err, "Failed to record node %s of %s", node.Name, w.bundle)
	}
}

// StartAll starts a watcher for every bundle. A cluster whose cache does not sync is
// logged and left out.
func StartAll(ctx context.Context, bundles []*cluster.Bundle, book Bookkeeper, opts Options, metrics *telemetry.Metrics) []*Watcher {
	var (
		mu       sync.Mutex
		g        errgroup.Group
		watchers []*Watcher
	)
	for _, b := range bundles {
		g.Go(func() error {
			w := NewWatcher(b, book, opts, metrics)
			if err := w.Start(ctx); err != nil {
				logging.Error("NodeWatch", err, "Node watch of %s not started", b)
				return nil
			}
			mu.Lock()
			watchers = append(watchers, w)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return watchers
}
