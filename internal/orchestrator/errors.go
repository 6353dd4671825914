package orchestrator

import "errors"

var (
	// ErrInvalidRequest marks a request missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoObjectClient is returned when an operation needs the controller-runtime
	// client of a cluster that was built without one.
	ErrNoObjectClient = errors.New("cluster has no object client")
)
