// Package client talks to the loadboard server over HTTP.
//
// Client implements reconcile.Remote for the optimistic engine and the
// broadcast.Source long-poll contract for the event feed, plus the order and
// crew administration calls the CLI needs. Any 4xx answer becomes a
// *RejectedError carrying the server's message; network failures, 5xx
// answers and undecodable bodies are returned as ordinary wrapped errors,
// which the engine treats as transport failures.
//
// Feed adapts a broadcast.Manager subscription into the reconcile.Feed shape,
// translating wire events into reconcile events.
package client
