package client

import (
	"fmt"
	"log/slog"

	"loadboard/internal/api"
	"loadboard/internal/broadcast"
	"loadboard/internal/logging"
	"loadboard/internal/orders"
	"loadboard/internal/reconcile"
)

var _ reconcile.Feed = (*Feed)(nil)

// Feed exposes a broadcast.Manager as a reconcile.Feed.
type Feed struct {
	manager *broadcast.Manager
	logger  *slog.Logger
}

// NewFeed wraps manager.
func NewFeed(manager *broadcast.Manager, logger *slog.Logger) *Feed {
	return &Feed{manager: manager, logger: logging.NewComponentLogger(logger, "feed")}
}

// Subscribe delivers parsed events for topic. Events that cannot be parsed
// are handed on as unspecified changes so the engine resyncs.
func (f *Feed) Subscribe(topic string, handler func(reconcile.Event), onReconnect func()) func() {
	return f.manager.Subscribe(topic, func(evt api.Event) {
		parsed, err := ToEvent(evt)
		if err != nil {
			logging.WarnWithContext(f.logger, "malformed broadcast event", "broadcast_decode",
				logging.Uint64(logging.FieldSeq, evt.Sequence),
				logging.Error(err),
				logging.String(logging.FieldImpact, "treated as an unspecified change; a resync follows"),
			)
			parsed = reconcile.Event{Kind: reconcile.EventUnspecified}
		}
		handler(parsed)
	}, onReconnect)
}

// ToEvent converts a wire event into a reconcile event.
func ToEvent(evt api.Event) (reconcile.Event, error) {
	switch evt.Type {
	case api.EventCreated, api.EventUpdated:
		if evt.Order == nil {
			return reconcile.Event{}, fmt.Errorf("%s event %d without order", evt.Type, evt.Sequence)
		}
		item, err := evt.Order.ToItem()
		if err != nil {
			return reconcile.Event{}, err
		}
		kind := reconcile.EventUpdated
		if evt.Type == api.EventCreated {
			kind = reconcile.EventCreated
		}
		return reconcile.Event{Kind: kind, ID: item.ID, Item: item}, nil
	case api.EventDeleted:
		if evt.ID == "" {
			return reconcile.Event{}, fmt.Errorf("deleted event %d without id", evt.Sequence)
		}
		return reconcile.Event{Kind: reconcile.EventDeleted, ID: orders.ID(evt.ID)}, nil
	default:
		return reconcile.Event{Kind: reconcile.EventUnspecified}, nil
	}
}
