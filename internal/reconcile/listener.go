package reconcile

import (
	"loadboard/internal/logging"
)

// HandleEvent merges one broadcast event. Deletions always apply. Created
// and updated snapshots for pending ids are echoes of local mutations and
// are dropped; all others replace the whole local snapshot. Unspecified
// events schedule a debounced resync.
func (r *Reconciler) HandleEvent(ev Event) {
	if r.closed {
		return
	}
	switch ev.Kind {
	case EventDeleted:
		if r.store.Remove(ev.ID) {
			r.logger.Debug("order removed by broadcast", logging.String(logging.FieldOrderID, string(ev.ID)))
		}
		r.noteForeign()
	case EventCreated, EventUpdated:
		id := ev.Item.ID
		if id == "" {
			id = ev.ID
		}
		if r.sup.IsPending(id) {
			r.logger.Debug("broadcast echo suppressed",
				logging.String(logging.FieldOrderID, string(id)),
				logging.String(logging.FieldEventType, string(ev.Kind)),
			)
			return
		}
		item := ev.Item
		item.ID = id
		r.store.Upsert(item)
		r.noteForeign()
	case EventUnspecified:
		r.RequestResync("unspecified event")
	default:
		logging.WarnWithContext(r.logger, "unknown broadcast event kind", "broadcast_unknown_event",
			logging.String("kind", string(ev.Kind)),
			logging.String(logging.FieldImpact, "falling back to a full resync"),
			logging.String(logging.FieldErrorHint, "check server and client versions match"),
		)
		r.RequestResync("unknown event")
	}
}

// noteForeign counts applied foreign events and schedules a resync when a
// burst exceeds the threshold inside one debounce window.
func (r *Reconciler) noteForeign() {
	now := r.opts.Now()
	if r.burstStart.IsZero() || now.Sub(r.burstStart) >= r.opts.Debounce {
		r.burstStart = now
		r.burstCount = 0
	}
	r.burstCount++
	if r.burstCount > r.opts.BurstThreshold {
		r.RequestResync("event burst")
	}
}
