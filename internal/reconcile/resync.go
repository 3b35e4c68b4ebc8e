package reconcile

import (
	"context"
	"fmt"

	"loadboard/internal/logging"
	"loadboard/internal/orders"
)

// RequestResync schedules a resync after the debounce window. Requests made
// while one is already scheduled collapse into it.
func (r *Reconciler) RequestResync(reason string) {
	if r.closed || r.resyncDebounce.Active() {
		return
	}
	r.resyncDebounce = r.sched.After(r.opts.Debounce, func() {
		r.resync(reason)
	})
}

func (r *Reconciler) armResyncTick() {
	if r.closed {
		return
	}
	r.resyncTick = r.sched.After(r.opts.ResyncInterval, func() {
		r.resync("interval")
		r.armResyncTick()
	})
}

// resync fetches the authoritative state and replaces the store, skipping
// pending ids. A resync requested while one is in flight runs once more
// after it finishes.
func (r *Reconciler) resync(reason string) {
	if r.closed {
		return
	}
	if r.resyncRunning {
		r.resyncAgain = true
		return
	}
	r.resyncRunning = true
	states := append([]orders.WorkflowState(nil), r.opts.TrackedStates...)
	r.exec.Go(func(ctx context.Context) func() {
		items, err := fetchAll(ctx, r.remote, states)
		return func() { r.applyResync(reason, items, err) }
	})
}

func (r *Reconciler) applyResync(reason string, items []orders.Item, err error) {
	if r.closed {
		return
	}
	r.resyncRunning = false
	if err != nil {
		logging.WarnWithContext(r.logger, "resync fetch failed", "resync_failed",
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldImpact, "local view may drift until the next resync"),
			logging.String(logging.FieldErrorHint, "check that the server is reachable"),
		)
	} else {
		stats := r.store.ReplaceAll(items, r.sup.IsPending)
		r.resyncCount++
		r.logger.Info("resync applied",
			logging.String("reason", reason),
			logging.Int("replaced", stats.Replaced),
			logging.Int("skipped_pending", len(stats.Skipped)),
			logging.Int("dropped", len(stats.Dropped)),
		)
		for _, id := range stats.Dropped {
			r.logger.Info("stale snapshot dropped by resync",
				logging.String(logging.FieldOrderID, string(id)),
				logging.String("kind", string(KindStaleSnapshot)),
			)
		}
		for _, id := range stats.Skipped {
			r.logger.Debug("resync left pending order untouched", logging.String(logging.FieldOrderID, string(id)))
		}
	}
	if r.resyncAgain {
		r.resyncAgain = false
		r.RequestResync("coalesced")
	}
}

// fetchAll reads the queued, unqueued and tracked-state views and merges
// them by id; the snapshot with the latest UpdatedAt wins.
func fetchAll(ctx context.Context, remote Remote, states []orders.WorkflowState) ([]orders.Item, error) {
	queued, err := remote.FetchQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch queued: %w", err)
	}
	unqueued, err := remote.FetchUnqueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch unqueued: %w", err)
	}
	merged := make(map[orders.ID]int)
	out := make([]orders.Item, 0, len(queued)+len(unqueued))
	add := func(items []orders.Item) {
		for _, item := range items {
			if idx, ok := merged[item.ID]; ok {
				if item.UpdatedAt.After(out[idx].UpdatedAt) {
					out[idx] = item
				}
				continue
			}
			merged[item.ID] = len(out)
			out = append(out, item)
		}
	}
	add(queued)
	add(unqueued)
	for _, state := range states {
		items, err := remote.FetchByWorkflowState(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", state, err)
		}
		add(items)
	}
	return out, nil
}
