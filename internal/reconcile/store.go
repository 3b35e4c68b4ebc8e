package reconcile

import (
	"slices"
	"sort"

	"loadboard/internal/orders"
)

// Store is the in-memory snapshot cache: one Item per id plus the derived
// queue order. Ranks stored on items always equal their 1-based position in
// the queue; every mutator repacks before returning.
type Store struct {
	items   map[orders.ID]orders.Item
	queue   []orders.ID
	version uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[orders.ID]orders.Item)}
}

// Get returns the snapshot for id.
func (s *Store) Get(id orders.ID) (orders.Item, bool) {
	item, ok := s.items[id]
	return item, ok
}

// Len returns the number of known orders.
func (s *Store) Len() int { return len(s.items) }

// QueueLen returns the number of queued orders.
func (s *Store) QueueLen() int { return len(s.queue) }

// QueueIDs returns a copy of the queue order.
func (s *Store) QueueIDs() []orders.ID { return slices.Clone(s.queue) }

// Version increases on every mutation.
func (s *Store) Version() uint64 { return s.version }

// Upsert replaces or inserts a whole snapshot. An item with a rank is placed
// at that position (clamped to the tail); the rest of the queue keeps its
// relative order and is repacked.
func (s *Store) Upsert(item orders.Item) {
	s.dropFromQueue(item.ID)
	if item.QueueRank > 0 {
		pos := min(item.QueueRank-1, len(s.queue))
		s.queue = slices.Insert(s.queue, pos, item.ID)
	}
	s.items[item.ID] = item
	s.repack()
}

// Remove deletes a snapshot and repacks the queue if it was a member.
func (s *Store) Remove(id orders.ID) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.dropFromQueue(id)
	s.repack()
	return true
}

// setQueueOrder makes ids the head of the queue in the given order. Queue
// members not named keep their relative order after them. Unknown ids are
// skipped.
func (s *Store) setQueueOrder(ids []orders.ID) {
	next := make([]orders.ID, 0, len(s.queue))
	placed := make(map[orders.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.items[id]; !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		next = append(next, id)
	}
	for _, id := range s.queue {
		if _, ok := placed[id]; !ok {
			next = append(next, id)
		}
	}
	s.queue = next
	s.repack()
}

// ReplaceStats summarizes a wholesale replace.
type ReplaceStats struct {
	Replaced int
	Skipped  []orders.ID
	Dropped  []orders.ID
	Kept     []orders.ID
}

// ReplaceAll swaps the store contents for items. Ids for which skip returns
// true keep their current value (or absence). A local snapshot carrying a
// newer UpdatedAt than the fetched one is kept as well, since a broadcast
// can overtake an in-flight fetch. The queue is rebuilt by rank, ties broken
// by id, and repacked.
func (s *Store) ReplaceAll(items []orders.Item, skip func(orders.ID) bool) ReplaceStats {
	var stats ReplaceStats
	next := make(map[orders.ID]orders.Item, len(items))
	for _, item := range items {
		if skip != nil && skip(item.ID) {
			continue
		}
		if local, ok := s.items[item.ID]; ok && local.UpdatedAt.After(item.UpdatedAt) {
			next[item.ID] = local
			stats.Kept = append(stats.Kept, item.ID)
			continue
		}
		next[item.ID] = item
		stats.Replaced++
	}
	for id, local := range s.items {
		if skip != nil && skip(id) {
			next[id] = local
			stats.Skipped = append(stats.Skipped, id)
			continue
		}
		if _, ok := next[id]; !ok {
			stats.Dropped = append(stats.Dropped, id)
		}
	}
	for _, item := range items {
		if skip != nil && skip(item.ID) {
			if _, ok := s.items[item.ID]; !ok {
				stats.Skipped = append(stats.Skipped, item.ID)
			}
		}
	}

	// Skipped ids contribute their optimistic rank, fetched ids the server's.
	// On a tie the skipped id keeps its slot.
	pending := make(map[orders.ID]bool, len(stats.Skipped))
	for _, id := range stats.Skipped {
		pending[id] = true
	}
	queue := make([]orders.ID, 0, len(next))
	for id, item := range next {
		if item.QueueRank > 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		ri, rj := next[queue[i]].QueueRank, next[queue[j]].QueueRank
		if ri != rj {
			return ri < rj
		}
		if pi, pj := pending[queue[i]], pending[queue[j]]; pi != pj {
			return pi
		}
		return queue[i] < queue[j]
	})
	s.items = next
	s.queue = queue
	s.repack()

	slices.Sort(stats.Skipped)
	slices.Sort(stats.Dropped)
	slices.Sort(stats.Kept)
	return stats
}

func (s *Store) dropFromQueue(id orders.ID) {
	if idx := slices.Index(s.queue, id); idx >= 0 {
		s.queue = slices.Delete(s.queue, idx, idx+1)
	}
}

// repack rewrites ranks to match queue positions and clears ranks on items
// outside the queue.
func (s *Store) repack() {
	inQueue := make(map[orders.ID]struct{}, len(s.queue))
	for i, id := range s.queue {
		inQueue[id] = struct{}{}
		item := s.items[id]
		item.QueueRank = i + 1
		s.items[id] = item
	}
	for id, item := range s.items {
		if _, ok := inQueue[id]; !ok && item.QueueRank != 0 {
			item.QueueRank = 0
			s.items[id] = item
		}
	}
	s.version++
}

// ranks returns the current rank of every queued id.
func (s *Store) ranks() map[orders.ID]int {
	out := make(map[orders.ID]int, len(s.queue))
	for i, id := range s.queue {
		out[id] = i + 1
	}
	return out
}

// View returns an immutable copy of the store.
func (s *Store) View() View {
	v := View{
		Version: s.version,
		Queue:   make([]orders.Item, 0, len(s.queue)),
		byID:    make(map[orders.ID]orders.Item, len(s.items)),
	}
	for _, id := range s.queue {
		v.Queue = append(v.Queue, s.items[id])
	}
	for id, item := range s.items {
		v.byID[id] = item
		if item.QueueRank == 0 {
			v.Others = append(v.Others, item)
		}
	}
	sort.Slice(v.Others, func(i, j int) bool {
		a, b := v.Others[i], v.Others[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return v
}
