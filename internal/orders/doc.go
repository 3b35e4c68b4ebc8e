// Package orders defines the dispatch work-item model shared by the server,
// the HTTP client, and the reconciliation engine.
//
// An Item moves through a fixed workflow (unassigned, queued, in preparation
// with its control and awaiting-load sub-stages, finished). While it holds a
// queue rank it participates in the load-priority queue; ranks are dense
// (1..N) and owned by whichever component maintains the queue view.
//
// Keep business ordering here: both the optimistic client transforms and the
// reference server consult NextStep so the two sides agree on the sequence.
package orders
