// Package broadcast carries order change notifications from the server to
// every connected session.
//
// Hub is the server side: a bounded, per-topic event buffer with monotonically
// increasing sequence numbers and a long-poll Fetch. A cursor that fell out of
// the buffer (or belongs to a previous server process) is answered with a
// single "changed" event so the subscriber knows to refetch.
//
// Manager is the client side connection manager. Holders Acquire a reference
// and Release it when done; the shared connection lifetime spans however many
// holders are active. Subscribe runs one long-poll loop per topic, reconnects
// with capped exponential backoff and reports every reconnect so the caller
// can resync what it may have missed.
package broadcast
