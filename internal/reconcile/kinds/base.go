package kinds

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// BundleSource resolves a (zone, cluster) pair to its bundle. *cluster.Registry
// implements it.
type BundleSource interface {
	Get(zone, clusterID string) (*cluster.Bundle, error)
}

// Options tunes the accessors.
type Options struct {
	// LogTailLines is the number of log lines attached to a failing pod; 0 disables it.
	LogTailLines int64
	// FanOutLimit bounds concurrent log and metric reads within one resource.
	FanOutLimit int
}

type target struct {
	bundle    *cluster.Bundle
	namespace string
}

// locator is embedded by every accessor. It remembers the target of the last fetch of
// each id so Enrich does not have to look it up again.
type locator struct {
	kind    resource.Kind
	source  BundleSource
	locator reconcile.Locator
	opts    Options

	mu      sync.Mutex
	targets map[string]target
}

func newLocator(kind resource.Kind, source BundleSource, loc reconcile.Locator, opts Options) locator {
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = 4
	}
	return locator{kind: kind, source: source, locator: loc, opts: opts, targets: make(map[string]target)}
}

func (l *locator) Kind() resource.Kind { return l.kind }

func (l *locator) locate(ctx context.Context, id string) (target, error) {
	placement, err := l.locator.Locate(ctx, l.kind, id)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			l.forget(id)
		}
		return target{}, err
	}
	if placement.IsZero() {
		return target{}, reconcile.ErrNotPlaced
	}

	bundle, err := l.source.Get(placement.Zone, placement.Cluster)
	if err != nil {
		return target{}, fmt.Errorf("cluster of %s %s: %w", l.kind, id, err)
	}
	t := target{bundle: bundle, namespace: placement.Namespace}

	l.mu.Lock()
	l.targets[id] = t
	l.mu.Unlock()
	return t, nil
}

func (l *locator) cached(id string) (target, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.targets[id]
	return t, ok
}

func (l *locator) forget(id string) {
	l.mu.Lock()
	delete(l.targets, id)
	l.mu.Unlock()
}

func (l *locator) listPods(ctx context.Context, t target, selector string) ([]corev1.Pod, error) {
	pods, err := t.bundle.Kube().CoreV1().Pods(t.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods of %s in %s: %w", l.kind, t.bundle, err)
	}
	return pods.Items, nil
}

// attachLogs reads the log tail of every failing status concurrently. A failed read
// leaves the status' details empty.
func (l *locator) attachLogs(ctx context.Context, t target, statuses []reconcile.ResourceStatus) {
	if l.opts.LogTailLines <= 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(l.opts.FanOutLimit)
	for i := range statuses {
		st := &statuses[i]
		if st.Stage != reconcile.StageFailed && st.Stage != reconcile.StageRestarting {
			continue
		}
		sub, ok := troubledSub(st.Pods)
		if !ok {
			continue
		}
		g.Go(func() error {
			previous := sub.Stage == reconcile.StageRestarting
			lines, err := kube.TailLogs(ctx, t.bundle.Kube(), t.namespace, sub.Pod, sub.Container, l.opts.LogTailLines, previous)
			if err != nil {
				logging.Debug("Reconcile", "No log tail for %s/%s: %v", sub.Pod, sub.Container, err)
				return nil
			}
			st.Details = lines
			return nil
		})
	}
	_ = g.Wait()
}

// troubledSub picks the container whose log explains a failing pod.
func troubledSub(subs []reconcile.SubStatus) (reconcile.SubStatus, bool) {
	for _, sub := range subs {
		if sub.Stage == reconcile.StageFailed || sub.Stage == reconcile.StageRestarting {
			return sub, true
		}
	}
	if len(subs) > 0 {
		return subs[0], true
	}
	return reconcile.SubStatus{}, false
}
