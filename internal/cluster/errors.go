package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrZoneNotFound means the zone is unknown to the registry.
	ErrZoneNotFound = errors.New("zone not found")
	// ErrClusterNotInitialized means the cluster has no live bundle, either because it is
	// still starting up or because its construction was skipped.
	ErrClusterNotInitialized = errors.New("cluster not initialized")
	// ErrAlreadyRegistered is returned when a bundle is registered twice.
	ErrAlreadyRegistered = errors.New("cluster already registered")
	// ErrMissingCredentials marks a cluster configured without connection data.
	ErrMissingCredentials = errors.New("cluster has no connection credentials")
	// ErrNoClusterAvailable means the zone has no initialized cluster to choose from.
	ErrNoClusterAvailable = errors.New("no cluster available in zone")
	// ErrSelectionFailed wraps failures of a selection strategy.
	ErrSelectionFailed = errors.New("cluster selection failed")
	// ErrClusterNotResolved is returned by PinnedStrategy without a cluster id.
	ErrClusterNotResolved = errors.New("cluster id not resolved")
	// ErrInsufficientCapacity is returned when no cluster can fit a request.
	ErrInsufficientCapacity = errors.New("no cluster with enough allocatable capacity")
)

// ClusterError attaches the cluster identity to an error.
type ClusterError struct {
	Zone    string
	Cluster string
	Err     error
}

func (e *ClusterError) Error() string {
	if e.Cluster == "" {
		return fmt.Sprintf("zone %s: %v", e.Zone, e.Err)
	}
	return fmt.Sprintf("cluster %s/%s: %v", e.Zone, e.Cluster, e.Err)
}

func (e *ClusterError) Unwrap() error { return e.Err }

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
