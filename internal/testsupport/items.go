package testsupport

import (
	"time"

	"loadboard/internal/orders"
)

var itemEpoch = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

// Queued returns a queued order at rank.
func Queued(id string, rank int) orders.Item {
	return orders.Item{
		ID:            orders.ID(id),
		Reference:     "REF-" + id,
		WorkflowState: orders.StateQueued,
		QueueRank:     rank,
		CreatedAt:     itemEpoch.Add(time.Duration(rank) * time.Minute),
		UpdatedAt:     itemEpoch,
	}
}

// Unassigned returns an order outside the queue.
func Unassigned(id string) orders.Item {
	return orders.Item{
		ID:            orders.ID(id),
		Reference:     "REF-" + id,
		WorkflowState: orders.StateUnassigned,
		CreatedAt:     itemEpoch,
		UpdatedAt:     itemEpoch,
	}
}

// Preparing returns an order in preparation at stage that keeps its rank.
func Preparing(id string, rank int, stage orders.PreparationStage) orders.Item {
	item := Queued(id, rank)
	item.WorkflowState = orders.StateInPreparation
	item.PreparationStage = stage
	return item
}
