package reconcile

import (
	"testing"
	"time"

	"loadboard/internal/testsupport"
)

func TestSuppressorRefcountsClaims(t *testing.T) {
	clock := testsupport.NewClock()
	s := NewSuppressor(clock.Now)

	s.MarkPending("A", time.Second)
	s.MarkPending("A", time.Second)
	s.Clear("A")
	if !s.IsPending("A") {
		t.Fatal("expected A still pending after releasing one of two claims")
	}
	s.Clear("A")
	if s.IsPending("A") {
		t.Fatal("expected A released")
	}
	s.Clear("A")
	if s.Pending() != 0 {
		t.Fatalf("pending = %d", s.Pending())
	}
}

func TestSuppressorMarksExpire(t *testing.T) {
	clock := testsupport.NewClock()
	s := NewSuppressor(clock.Now)

	s.MarkPending("A", 2*time.Second)
	clock.Advance(time.Second)
	if !s.IsPending("A") {
		t.Fatal("expected A pending before expiry")
	}
	clock.Advance(time.Second)
	if s.IsPending("A") {
		t.Fatal("expected A to expire")
	}
	if s.Pending() != 0 {
		t.Fatal("expected expired mark to be dropped on inspection")
	}

	s.MarkPending("B", time.Second)
	clock.Advance(900 * time.Millisecond)
	s.MarkPending("B", time.Second)
	clock.Advance(500 * time.Millisecond)
	if !s.IsPending("B") {
		t.Fatal("second claim should extend expiry")
	}
}
