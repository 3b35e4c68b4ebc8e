package api

import (
	"fmt"
	"strings"
	"time"

	"loadboard/internal/orders"
)

// FromItem converts an order snapshot to its API representation.
func FromItem(item orders.Item) Order {
	dto := Order{
		ID:               string(item.ID),
		Reference:        item.Reference,
		WorkflowState:    string(item.WorkflowState),
		PreparationStage: string(item.PreparationStage),
		QueueRank:        item.QueueRank,
		CrewID:           item.CrewID,
		Controlled:       item.Controlled,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromItems converts a list, preserving order.
func FromItems(items []orders.Item) []Order {
	out := make([]Order, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// ToItem converts a DTO back into an order snapshot.
func (o Order) ToItem() (orders.Item, error) {
	if strings.TrimSpace(o.ID) == "" {
		return orders.Item{}, fmt.Errorf("order without id")
	}
	state, ok := orders.ParseState(o.WorkflowState)
	if !ok {
		return orders.Item{}, fmt.Errorf("order %s: unknown workflow state %q", o.ID, o.WorkflowState)
	}
	stage, ok := orders.ParseStage(o.PreparationStage)
	if !ok {
		return orders.Item{}, fmt.Errorf("order %s: unknown preparation stage %q", o.ID, o.PreparationStage)
	}
	if o.QueueRank < 0 {
		return orders.Item{}, fmt.Errorf("order %s: negative queue rank %d", o.ID, o.QueueRank)
	}
	item := orders.Item{
		ID:               orders.ID(o.ID),
		Reference:        o.Reference,
		WorkflowState:    state,
		PreparationStage: stage,
		QueueRank:        o.QueueRank,
		CrewID:           o.CrewID,
		Controlled:       o.Controlled,
	}
	var err error
	if item.CreatedAt, err = parseTime(o.CreatedAt); err != nil {
		return orders.Item{}, fmt.Errorf("order %s createdAt: %w", o.ID, err)
	}
	if item.UpdatedAt, err = parseTime(o.UpdatedAt); err != nil {
		return orders.Item{}, fmt.Errorf("order %s updatedAt: %w", o.ID, err)
	}
	return item, nil
}

// ToItems converts a list, failing on the first malformed entry.
func ToItems(dtos []Order) ([]orders.Item, error) {
	out := make([]orders.Item, 0, len(dtos))
	for _, dto := range dtos {
		item, err := dto.ToItem()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// FormatTime renders a timestamp the way API payloads carry it.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
