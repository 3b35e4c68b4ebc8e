// Package reconcile keeps a client-side cache of orders consistent with the
// authoritative server while letting callers mutate it optimistically.
//
// A Reconciler owns the snapshot store (items plus the dense load-priority
// queue), the echo suppressor (pending markers per order id), and a delayed
// task scheduler. Mutations are applied to the store synchronously, sent to
// the Remote asynchronously, and rolled back exactly if the server refuses
// them. Broadcast events are filtered through the suppressor so a session
// does not re-apply its own changes, and periodic or debounced resyncs
// replace the cache wholesale while leaving pending ids alone.
//
// The Reconciler is single-threaded and never blocks. Engine wraps it in an
// event loop goroutine, runs remote calls on worker goroutines, and publishes
// immutable Views for readers such as the board renderer.
package reconcile
