package reconcile

import "errors"

var (
	// ErrNotFound is returned by accessors when the resource no longer exists.
	ErrNotFound = errors.New("resource not found")
	// ErrNotPlaced is returned by accessors when the resource has no cluster assigned.
	ErrNotPlaced = errors.New("resource not deployed")
	// ErrStreamClosed is returned when tracking ids on a finished stream.
	ErrStreamClosed = errors.New("stream closed")
	// ErrNoResources is returned when opening a stream without ids.
	ErrNoResources = errors.New("no resource ids to track")
)
