// Package api defines the wire format shared by the loadboard server, the
// HTTP client, and the broadcast feed.
//
// # Key Types
//
// Order: transport representation of an orders.Item.
//
// Event/EventStreamResponse: broadcast envelopes delivered over the long-poll
// events endpoint. Type is one of created, updated, deleted or changed; a
// changed event carries no payload and tells subscribers to refetch.
//
// Status: server running state and per-state order counts.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Workflow states and preparation stages are
// exposed as lowercase strings, an absent stage as "". Timestamps use
// RFC3339 with nanoseconds so per-order update times stay strictly ordered
// across a round trip.
package api
