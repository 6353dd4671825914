package events

import (
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Lifecycle event reasons, one per lifecycle a resource can enter.
const (
	ReasonCreated      EventReason = "Created"
	ReasonInitializing EventReason = "Initializing"
	ReasonDeploying    EventReason = "Deploying"
	ReasonDeployed     EventReason = "Deployed"
	ReasonFailed       EventReason = "Failed"
	ReasonDeleting     EventReason = "Deleting"
	ReasonStopped      EventReason = "Stopped"
	ReasonCompleted    EventReason = "Completed"

	// ReasonTransition is used for lifecycles without a dedicated reason.
	ReasonTransition EventReason = "LifecycleChanged"
)

// EventData carries the values substituted into message templates.
type EventData struct {
	Kind      string
	ID        string
	Namespace string
	From      string
	To        string
	Message   string
}

var lifecycleReasons = map[reconcile.Lifecycle]EventReason{
	reconcile.LifecycleCreated:      ReasonCreated,
	reconcile.LifecycleInitializing: ReasonInitializing,
	reconcile.LifecycleDeploying:    ReasonDeploying,
	reconcile.LifecycleDeployed:     ReasonDeployed,
	reconcile.LifecycleError:        ReasonFailed,
	reconcile.LifecycleDeleting:     ReasonDeleting,
	reconcile.LifecycleStopped:      ReasonStopped,
	reconcile.LifecycleCompleted:    ReasonCompleted,
}

// ReasonFor maps the lifecycle a resource entered to an event reason.
func ReasonFor(lc reconcile.Lifecycle) EventReason {
	if r, ok := lifecycleReasons[lc]; ok {
		return r
	}
	return ReasonTransition
}

// getEventType returns the event type for a reason. Only failures are warnings.
func getEventType(reason EventReason) EventType {
	if reason == ReasonFailed {
		return EventTypeWarning
	}
	return EventTypeNormal
}
