// Package reconcile turns raw per-resource status snapshots into lifecycle transitions
// and pushes them to subscribers.
//
// A Poller serves one resource kind. Each subscriber opens a Stream naming the ids it
// wants to follow; the stream ticks on a fixed interval, fetches the status of every
// tracked id concurrently through the kind's StatusAccessor, aggregates the result into
// a Lifecycle with worst-first precedence, persists transitions through the StateStore
// and emits one event per id to the subscriber's Sink.
//
// The tick is the only writer of a resource's lifecycle. Other code that needs to move
// a resource into the deleting state queues the change with Poller.MarkDeleting and the
// owning tick applies it.
//
// A stream ends when it is stopped, when its tracked set becomes empty (ids are removed
// when their resource vanished or failed persistently), or when its wall-clock or idle
// timeout fires, in which case the subscriber receives a timeout event first.
package reconcile
