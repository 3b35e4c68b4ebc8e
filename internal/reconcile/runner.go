package reconcile

import (
	"context"
	"sort"

	"loadboard/internal/logging"
	"loadboard/internal/orders"
)

// Submit queues op. When no earlier operation holds any of its ids, it is
// applied locally before Submit returns and its remote call is started;
// precondition failures are then returned directly. Otherwise it waits for
// the conflicting operations and its outcome arrives on the ticket.
func (r *Reconciler) Submit(op Op) (*Ticket, error) {
	if r.closed {
		return nil, ErrEngineStopped
	}
	p := &pendingOp{op: op, keys: op.locks(r.store), ticket: newTicket(op)}
	if !r.gate.ready(p, len(r.gate.waiting)) {
		p.keys = op.locks(nil)
		r.gate.waiting = append(r.gate.waiting, p)
		r.logger.Debug("operation waiting for earlier mutation",
			logging.String(logging.FieldOp, op.String()),
			logging.Int("waiting", len(r.gate.waiting)),
		)
		return p.ticket, nil
	}
	if err := r.start(p); err != nil {
		return nil, err
	}
	return p.ticket, nil
}

// start applies p locally, marks its ids pending and fires the remote call.
func (r *Reconciler) start(p *pendingOp) error {
	// A waiting op holds the widest key set; narrow it to what the item
	// needs now. A subset of a ready set is still ready.
	p.keys = p.op.locks(r.store)
	effect, err := p.op.apply(r.store)
	if err != nil {
		return err
	}
	p.effect = effect
	for _, id := range effect.touched {
		r.sup.MarkPending(id, r.opts.PendingTTL)
	}
	r.gate.acquire(p.keys)
	r.inflight[p] = struct{}{}

	r.logger.Debug("optimistic mutation applied",
		logging.String(logging.FieldOp, p.op.String()),
		logging.Int("pending_ids", len(effect.touched)),
	)

	call := effect.call
	r.exec.Go(func(ctx context.Context) func() {
		items, err := call(ctx, r.remote)
		return func() { r.complete(p, items, err) }
	})
	return nil
}

// complete confirms or rolls back p, then starts any operations that were
// waiting on it.
func (r *Reconciler) complete(p *pendingOp, items []orders.Item, err error) {
	if r.closed {
		return
	}
	delete(r.inflight, p)
	touched := p.effect.touched

	if err == nil {
		r.applyConfirmed(p, items)
		r.sched.After(r.opts.Grace, func() {
			for _, id := range touched {
				r.sup.Clear(id)
			}
		})
		r.gate.release(p.keys)
		p.ticket.resolve(items, nil)
	} else {
		p.effect.undo(r.store)
		for _, id := range touched {
			r.sup.Clear(id)
		}
		r.gate.release(p.keys)
		mutErr := &MutationError{Op: p.op.Kind, IDs: p.op.IDs(), kind: classify(err), Err: err}
		logging.WarnWithContext(r.logger, "mutation rolled back",
			"mutation_rolled_back",
			logging.String(logging.FieldOp, p.op.String()),
			logging.String("kind", string(mutErr.kind)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "local change reverted"),
			logging.String(logging.FieldErrorHint, "retry the action once the server accepts it"),
		)
		p.ticket.resolve(nil, mutErr)
		if r.opts.OnFailure != nil {
			r.opts.OnFailure(mutErr)
		}
	}
	r.drainWaiting()
}

// applyConfirmed writes the server's snapshots for the op's ids. Orders that
// disappeared meanwhile stay gone, and a local snapshot with a newer server
// timestamp wins. While another structural op is in flight the local queue
// position is kept so the queue does not jump back and forth.
func (r *Reconciler) applyConfirmed(p *pendingOp, items []orders.Item) {
	sorted := append([]orders.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QueueRank < sorted[j].QueueRank
	})
	keepRank := r.gate.queueBusy(p)
	for _, item := range sorted {
		local, ok := r.store.Get(item.ID)
		if !ok || local.UpdatedAt.After(item.UpdatedAt) {
			continue
		}
		if keepRank && local.InQueue() && item.InQueue() {
			item.QueueRank = local.QueueRank
		}
		r.store.Upsert(item)
	}
}

func (r *Reconciler) drainWaiting() {
	for {
		p := r.gate.nextReady()
		if p == nil {
			return
		}
		if err := r.start(p); err != nil {
			r.logger.Info("queued operation no longer applies",
				logging.String(logging.FieldOp, p.op.String()),
				logging.Error(err),
			)
			p.ticket.resolve(nil, err)
		}
	}
}
