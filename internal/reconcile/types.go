package reconcile

import (
	"context"
	"time"

	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

// Stage is the observed condition of one workload component.
type Stage string

const (
	StageFailed       Stage = "failed"
	StageRestarting   Stage = "restarting"
	StageDegraded     Stage = "degraded"
	StageInitializing Stage = "initializing"
	StageWaiting      Stage = "waiting"
	StageRunning      Stage = "running"
	StageCompleted    Stage = "completed"
	StageStopped      Stage = "stopped"
	StageUnknown      Stage = "unknown"
)

// Lifecycle is the small state persisted for every orchestrated resource.
type Lifecycle string

const (
	LifecycleCreated      Lifecycle = "created"
	LifecycleInitializing Lifecycle = "initializing"
	LifecycleDeploying    Lifecycle = "deploying"
	LifecycleDeployed     Lifecycle = "deployed"
	LifecycleError        Lifecycle = "error"
	LifecycleDeleting     Lifecycle = "deleting"
	LifecycleStopped      Lifecycle = "stopped"
	LifecycleCompleted    Lifecycle = "completed"
)

// SubStatus describes one pod or container.
type SubStatus struct {
	Pod       string     `json:"pod"`
	Container string     `json:"container,omitempty"`
	Node      string     `json:"node,omitempty"`
	Stage     Stage      `json:"stage"`
	Ready     bool       `json:"ready"`
	Restarts  int32      `json:"restarts"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// ResourceStatus is one tick's snapshot of a resource, or of one component of a
// composite resource.
type ResourceStatus struct {
	ID        string             `json:"id"`
	Component string             `json:"component,omitempty"`
	Stage     Stage              `json:"stage"`
	Message   string             `json:"message,omitempty"`
	Details   []string           `json:"details,omitempty"`
	Pods      []SubStatus        `json:"pods,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	StartedAt time.Time          `json:"startedAt,omitzero"`
}

// Transition is the lifecycle a tick resolved for one resource.
type Transition struct {
	Lifecycle Lifecycle
	Message   string
}

// EventName tells subscribers what an event means.
type EventName string

const (
	EventStatus  EventName = "status"
	EventDeleted EventName = "deleted"
	EventTimeout EventName = "timeout"
	EventError   EventName = "error"
)

// Event is what a stream pushes to its subscriber.
type Event struct {
	Name       EventName        `json:"event"`
	Stream     string           `json:"stream"`
	Channel    string           `json:"channel"`
	Kind       resource.Kind    `json:"kind"`
	ResourceID string           `json:"resourceId,omitempty"`
	Lifecycle  Lifecycle        `json:"lifecycle,omitempty"`
	Message    string           `json:"message,omitempty"`
	Statuses   []ResourceStatus `json:"statuses,omitempty"`
	Time       time.Time        `json:"time"`
}

// StatusAccessor fetches the current status of resources of one kind.
//
// Fetch returns ErrNotFound when the resource no longer exists and ErrNotPlaced when it
// was never deployed. An empty slice with a nil error means the resource is placed but
// none of its cluster objects exist yet.
type StatusAccessor interface {
	Kind() resource.Kind
	Fetch(ctx context.Context, id string) ([]ResourceStatus, error)
}

// Enricher is implemented by accessors that attach extra data (metrics, logs) to the
// statuses of a tick. A failed branch leaves its fields empty; Enrich must return once
// ctx is done.
type Enricher interface {
	Enrich(ctx context.Context, id string, statuses []ResourceStatus)
}

// Resolver is implemented by accessors whose lifecycle is not a plain aggregation of
// their statuses, such as composite resources.
type Resolver interface {
	Resolve(current Lifecycle, statuses []ResourceStatus) Transition
}

// StateStore persists derived state. Writes are fire-and-forget from the tick's point
// of view: failures are logged and never stop the stream.
type StateStore interface {
	Lifecycle(ctx context.Context, kind resource.Kind, id string) (Lifecycle, error)
	UpdateLifecycle(ctx context.Context, kind resource.Kind, id string, lc Lifecycle, message string) error
	UpdateStartTime(ctx context.Context, kind resource.Kind, id string, at time.Time) error
	UpdatePods(ctx context.Context, kind resource.Kind, id string, pods []SubStatus) error
}

// Recorder is notified of every lifecycle transition, after it was applied. It must
// not block the tick for long; failures are its own concern.
type Recorder interface {
	Record(ctx context.Context, kind resource.Kind, id string, from, to Lifecycle, message string)
}

// Locator tells where a resource was deployed.
type Locator interface {
	Locate(ctx context.Context, kind resource.Kind, id string) (resource.Placement, error)
}

// Sink is a subscriber's push channel.
type Sink interface {
	Send(ctx context.Context, event Event) error
	Complete()
	CompleteWithError(err error)
}
