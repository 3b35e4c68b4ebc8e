package reconcile

import "loadboard/internal/orders"

// lockKey is either an order id or the shared queue lock.
type lockKey struct {
	queue bool
	id    orders.ID
}

var queueLock = lockKey{queue: true}

// locks returns the keys o must hold against the current contents of s. A
// nil store yields the widest set, used while o waits behind other ops and
// its item may still change.
func (o Op) locks(s *Store) []lockKey {
	ids := o.IDs()
	keys := make([]lockKey, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, lockKey{id: id})
	}
	if o.structural(s) {
		keys = append(keys, queueLock)
	}
	return keys
}

// gate serializes operations sharing an id (or the queue lock). Conflicting
// operations wait in submission order; an operation never overtakes an
// earlier waiting one it conflicts with.
type gate struct {
	held    map[lockKey]int
	waiting []*pendingOp
}

func newGate() *gate {
	return &gate{held: make(map[lockKey]int)}
}

// ready reports whether p may start given the ops held and the ops waiting
// ahead of position pos.
func (g *gate) ready(p *pendingOp, pos int) bool {
	for _, k := range p.keys {
		if g.held[k] > 0 {
			return false
		}
	}
	for _, ahead := range g.waiting[:pos] {
		if conflicts(ahead.keys, p.keys) {
			return false
		}
	}
	return true
}

func (g *gate) acquire(keys []lockKey) {
	for _, k := range keys {
		g.held[k]++
	}
}

func (g *gate) release(keys []lockKey) {
	for _, k := range keys {
		if g.held[k]--; g.held[k] <= 0 {
			delete(g.held, k)
		}
	}
}

// queueBusy reports whether an in-flight op other than self holds the queue lock.
func (g *gate) queueBusy(self *pendingOp) bool {
	n := g.held[queueLock]
	if self != nil && self.holdsQueue() {
		n--
	}
	return n > 0
}

// nextReady removes and returns the first waiting op that may start.
func (g *gate) nextReady() *pendingOp {
	for i, p := range g.waiting {
		if g.ready(p, i) {
			g.waiting = append(g.waiting[:i], g.waiting[i+1:]...)
			return p
		}
	}
	return nil
}

func conflicts(a, b []lockKey) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
