package reconcile

import (
	"context"

	"loadboard/internal/orders"
)

// Outcome is the final result of a submitted op. Err is nil on success, a
// precondition sentinel when a queued op turned out invalid by the time it
// ran, a *MutationError after a rollback, or ErrEngineStopped.
type Outcome struct {
	Op    Op
	Items []orders.Item
	Err   error
}

// Ticket tracks a submitted op until the server answers.
type Ticket struct {
	op      Op
	done    chan struct{}
	outcome Outcome
}

func newTicket(op Op) *Ticket {
	return &Ticket{op: op, done: make(chan struct{})}
}

// Op returns the submitted operation.
func (t *Ticket) Op() Op { return t.op }

// Done is closed once the outcome is known.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Outcome returns the result. It is only meaningful after Done is closed.
func (t *Ticket) Outcome() Outcome {
	select {
	case <-t.done:
		return t.outcome
	default:
		return Outcome{Op: t.op}
	}
}

// Resolved reports whether the outcome is known.
func (t *Ticket) Resolved() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the outcome is known or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.outcome.Err
	case <-ctx.Done():
		return Outcome{Op: t.op}, ctx.Err()
	}
}

func (t *Ticket) resolve(items []orders.Item, err error) {
	if t.Resolved() {
		return
	}
	t.outcome = Outcome{Op: t.op, Items: items, Err: err}
	close(t.done)
}

// pendingOp is a submitted op as tracked by the gate and runner.
type pendingOp struct {
	op     Op
	keys   []lockKey
	ticket *Ticket
	effect applied
}

func (p *pendingOp) holdsQueue() bool {
	for _, k := range p.keys {
		if k == queueLock {
			return true
		}
	}
	return false
}
