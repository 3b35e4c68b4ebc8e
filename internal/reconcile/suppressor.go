package reconcile

import (
	"time"

	"loadboard/internal/orders"
)

type pendingMark struct {
	refs    int
	expires time.Time
}

// Suppressor tracks ids owned by in-flight local mutations. Marks are
// reference counted so overlapping operations on one id each release their
// own claim, and every mark expires so a lost confirmation cannot blind the
// listener forever.
type Suppressor struct {
	now   func() time.Time
	marks map[orders.ID]*pendingMark
}

// NewSuppressor builds a suppressor reading time from now.
func NewSuppressor(now func() time.Time) *Suppressor {
	if now == nil {
		now = time.Now
	}
	return &Suppressor{now: now, marks: make(map[orders.ID]*pendingMark)}
}

// MarkPending adds a claim on id that lapses after ttl.
func (s *Suppressor) MarkPending(id orders.ID, ttl time.Duration) {
	expires := s.now().Add(ttl)
	mark, ok := s.marks[id]
	if !ok || !s.now().Before(mark.expires) {
		s.marks[id] = &pendingMark{refs: 1, expires: expires}
		return
	}
	mark.refs++
	if expires.After(mark.expires) {
		mark.expires = expires
	}
}

// IsPending reports whether id has a live claim. Expired marks are dropped.
func (s *Suppressor) IsPending(id orders.ID) bool {
	mark, ok := s.marks[id]
	if !ok {
		return false
	}
	if !s.now().Before(mark.expires) {
		delete(s.marks, id)
		return false
	}
	return true
}

// Clear releases one claim on id.
func (s *Suppressor) Clear(id orders.ID) {
	mark, ok := s.marks[id]
	if !ok {
		return
	}
	mark.refs--
	if mark.refs <= 0 {
		delete(s.marks, id)
	}
}

// Pending returns the number of ids currently marked, expired ones included
// until they are next inspected.
func (s *Suppressor) Pending() int { return len(s.marks) }
