package reconcile

import (
	"context"

	"loadboard/internal/orders"
)

// Remote is the authoritative server as seen by the engine. Every mutation
// returns the server's snapshot(s) of the orders it changed, or an error.
// Errors implementing Rejected() bool with a true result are treated as
// server refusals; everything else is a transport failure.
type Remote interface {
	FetchQueued(ctx context.Context) ([]orders.Item, error)
	FetchUnqueued(ctx context.Context) ([]orders.Item, error)
	FetchByWorkflowState(ctx context.Context, state orders.WorkflowState) ([]orders.Item, error)

	Enqueue(ctx context.Context, id orders.ID) (orders.Item, error)
	Dequeue(ctx context.Context, id orders.ID) (orders.Item, error)
	Reorder(ctx context.Context, ids []orders.ID) ([]orders.Item, error)
	AdvanceStage(ctx context.Context, id orders.ID) (orders.Item, error)
	AssignCrew(ctx context.Context, id orders.ID, crewID string) (orders.Item, error)
	SetWorkflowState(ctx context.Context, id orders.ID, state orders.WorkflowState) (orders.Item, error)
	SetControlled(ctx context.Context, id orders.ID, controlled bool) (orders.Item, error)
}

// EventKind is the type of a broadcast event.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventUpdated     EventKind = "updated"
	EventDeleted     EventKind = "deleted"
	EventUnspecified EventKind = "changed"
)

// Event is a parsed broadcast notification. Item is set for created and
// updated events, ID for every kind except unspecified.
type Event struct {
	Kind EventKind
	ID   orders.ID
	Item orders.Item
}

// Feed delivers broadcast events for a topic. onReconnect fires after the
// subscription was re-established so the caller can resync. The returned
// function unsubscribes.
type Feed interface {
	Subscribe(topic string, handler func(Event), onReconnect func()) (unsubscribe func())
}

// Executor runs blocking work off the reconciler's turn. The continuation
// returned by work must be invoked back on the reconciler's goroutine.
type Executor interface {
	Go(work func(ctx context.Context) (resume func()))
}
