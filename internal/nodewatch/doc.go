// Package nodewatch follows the nodes of every registered cluster.
//
// A Watcher runs one shared node informer per cluster bundle and forwards changes,
// tagged with the zone and cluster they came from, to a Bookkeeper. Resyncs that
// carry an unchanged resource version are dropped, and with IgnoreUpdates only
// additions and deletions are forwarded. A deleted node is marked unavailable rather
// than forgotten.
//
// Inventory is the in-memory Bookkeeper used for capacity aware placement; Fanout
// feeds it together with the persistent store.
package nodewatch
