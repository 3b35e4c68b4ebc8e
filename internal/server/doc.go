// Package server runs the authoritative loadboard service.
//
// Server owns the order store, the broadcast hub and a single-instance lock
// file. Its HTTP API accepts order and crew mutations, applies them through
// orderstore and publishes one broadcast event per changed order (renumbered
// queue neighbours included), so every session can merge or suppress them.
// The /api/events endpoint exposes the hub as a long poll.
package server
