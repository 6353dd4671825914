// Package cluster maps logical (zone, cluster) pairs to live client bundles.
//
// At startup BuildRegistry constructs one Bundle per configured cluster in parallel.
// Clusters without credentials or whose clients cannot be built are skipped with a
// log entry and stay absent from the Registry; lookups treat a missing cluster as
// ErrClusterNotInitialized.
//
// Placement goes through a Selector and a Strategy:
//
//	bundle, err := selector.Select("eu-west", cluster.StrategyFor(resource.KindDatabase, hint, inventory, nil))
//	switch {
//	case errors.Is(err, cluster.ErrNoClusterAvailable):
//	    // zone has no initialized cluster
//	case errors.Is(err, cluster.ErrSelectionFailed):
//	    // strategy refused, e.g. not enough capacity
//	}
package cluster
