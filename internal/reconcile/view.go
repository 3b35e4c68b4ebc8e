package reconcile

import "loadboard/internal/orders"

// View is an immutable copy of the store published after each turn.
type View struct {
	Version uint64
	// Queue holds queued orders in rank order.
	Queue []orders.Item
	// Others holds every order without a rank, oldest first.
	Others []orders.Item
	byID   map[orders.ID]orders.Item
}

// Counts is what badge and counter displays read.
type Counts struct {
	Queued   int
	Unqueued int
}

// Get looks up one order.
func (v View) Get(id orders.ID) (orders.Item, bool) {
	item, ok := v.byID[id]
	return item, ok
}

// Len returns the number of orders in the view.
func (v View) Len() int { return len(v.byID) }

// QueueIDs returns the ids of queued orders in rank order.
func (v View) QueueIDs() []orders.ID {
	ids := make([]orders.ID, len(v.Queue))
	for i, item := range v.Queue {
		ids[i] = item.ID
	}
	return ids
}

// InState returns orders in the given workflow state, queued ones first in
// rank order.
func (v View) InState(state orders.WorkflowState) []orders.Item {
	var out []orders.Item
	for _, item := range v.Queue {
		if item.WorkflowState == state {
			out = append(out, item)
		}
	}
	for _, item := range v.Others {
		if item.WorkflowState == state {
			out = append(out, item)
		}
	}
	return out
}

// Counts returns the queue length and the number of unassigned orders.
func (v View) Counts() Counts {
	c := Counts{Queued: len(v.Queue)}
	for _, item := range v.Others {
		if item.WorkflowState == orders.StateUnassigned {
			c.Unqueued++
		}
	}
	return c
}
