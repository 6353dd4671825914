package events

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
	xstrings "github.com/invergent-ai/surogate-studio-sub002/pkg/strings"
)

const (
	// Component is the event source reported to the cluster.
	Component = "surogate-orchestrator"

	defaultRecordTimeout = 5 * time.Second

	// the API server rejects longer event messages
	maxMessageLen = 1024
)

// BundleSource resolves the clients of a cluster.
type BundleSource interface {
	Get(zone, clusterID string) (*cluster.Bundle, error)
}

type objectKind struct {
	apiVersion string
	kind       string
}

// involvedKinds is the workload object each resource kind is deployed as.
var involvedKinds = map[resource.Kind]objectKind{
	resource.KindApplication:    {"apps/v1", "Deployment"},
	resource.KindCompositeModel: {"apps/v1", "Deployment"},
	resource.KindDatabase:       {"apps/v1", "StatefulSet"},
	resource.KindTrainingJob:    {"batch/v1", "Job"},
	resource.KindTaskRun:        {"batch/v1", "Job"},
}

// Recorder writes lifecycle transitions as Kubernetes Events on the cluster a
// resource is placed on.
type Recorder struct {
	source    BundleSource
	locator   reconcile.Locator
	templates *MessageTemplateEngine
	timeout   time.Duration
	now       func() time.Time
}

var _ reconcile.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder that finds resources through locator.
func NewRecorder(source BundleSource, locator reconcile.Locator) *Recorder {
	return &Recorder{
		source:    source,
		locator:   locator,
		templates: NewMessageTemplateEngine(),
		timeout:   defaultRecordTimeout,
		now:       time.Now,
	}
}

// Templates exposes the message templates for customization.
func (r *Recorder) Templates() *MessageTemplateEngine {
	return r.templates
}

// Record implements reconcile.Recorder. Resources that are not placed, or whose
// cluster is gone, are skipped.
func (r *Recorder) Record(ctx context.Context, kind resource.Kind, id string, from, to reconcile.Lifecycle, message string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.record(ctx, kind, id, from, to, message); err != nil {
		logging.Warn("Events", "Failed to record %s event of %s %s: %v", to, kind, id, err)
	}
}

func (r *Recorder) record(ctx context.Context, kind resource.Kind, id string, from, to reconcile.Lifecycle, message string) error {
	p, err := r.locator.Locate(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("locate: %w", err)
	}
	if p.IsZero() {
		logging.Debug("Events", "Skipping event of %s %s: not placed", kind, id)
		return nil
	}
	b, err := r.source.Get(p.Zone, p.Cluster)
	if err != nil {
		return err
	}
	if b.Kube() == nil {
		return nil
	}

	event := r.build(kind, id, p, from, to, message)
	logging.Debug("Events", "Generating event on %s: reason=%s, type=%s, message=%s", b, event.Reason, event.Type, event.Message)

	if _, err := b.Kube().CoreV1().Events(p.Namespace).Create(ctx, event, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event: %w", err)
	}
	return nil
}

func (r *Recorder) build(kind resource.Kind, id string, p resource.Placement, from, to reconcile.Lifecycle, message string) *corev1.Event {
	name := kube.ObjectName(string(kind), id)
	reason := ReasonFor(to)
	text := r.templates.Render(reason, EventData{
		Kind:      string(kind),
		ID:        id,
		Namespace: p.Namespace,
		From:      string(from),
		To:        string(to),
		Message:   message,
	})

	obj := involvedKinds[kind]
	at := r.now()
	now := metav1.NewTime(at)
	return &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			// same naming as client-go's event recorder
			Name:      fmt.Sprintf("%s.%x", name, at.UnixNano()),
			Namespace: p.Namespace,
			Labels:    kube.ResourceLabels(string(kind), id),
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: obj.apiVersion,
			Kind:       obj.kind,
			Name:       name,
			Namespace:  p.Namespace,
		},
		Reason:         string(reason),
		Message:        xstrings.SingleLine(text, maxMessageLen),
		Type:           string(getEventType(reason)),
		Source:         corev1.EventSource{Component: Component},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}
}
