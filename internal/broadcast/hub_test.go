package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"loadboard/internal/api"
)

func TestHubFetchReturnsEventsAfterCursor(t *testing.T) {
	hub := NewHub(10)
	for _, id := range []string{"a", "b", "c"} {
		hub.Publish("orders", api.Event{Type: api.EventUpdated, ID: id})
	}
	hub.Publish("crews", api.Event{Type: api.EventCreated, ID: "x"})

	events, next, err := hub.Fetch(context.Background(), "orders", 1, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || events[0].ID != "b" || events[1].ID != "c" {
		t.Fatalf("unexpected events %+v", events)
	}
	if next != 3 {
		t.Fatalf("next = %d, want 3", next)
	}
	if events[0].Topic != "orders" || events[0].Timestamp == "" {
		t.Fatalf("publish should stamp topic and time: %+v", events[0])
	}
	if got := hub.Head("crews"); got != 1 {
		t.Fatalf("topics should keep separate sequences, crews head = %d", got)
	}
}

func TestHubFetchLimitAdvancesCursorToLastReturned(t *testing.T) {
	hub := NewHub(10)
	for range 5 {
		hub.Publish("orders", api.Event{Type: api.EventUpdated})
	}
	events, next, err := hub.Fetch(context.Background(), "orders", 0, 2, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || next != 2 {
		t.Fatalf("got %d events next=%d, want 2/2", len(events), next)
	}
}

func TestHubGapYieldsChangedEvent(t *testing.T) {
	hub := NewHub(3)
	for range 6 {
		hub.Publish("orders", api.Event{Type: api.EventUpdated})
	}

	tests := []struct {
		name  string
		since uint64
		gap   bool
	}{
		{"cursor older than buffer", 1, true},
		{"cursor just before buffer", 3, false},
		{"cursor from previous process", 42, true},
		{"cursor at head", 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, next, err := hub.Fetch(context.Background(), "orders", tt.since, 0, false)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			isGap := len(events) == 1 && events[0].Type == api.EventChanged
			if isGap != tt.gap {
				t.Fatalf("gap = %v, want %v (events %+v)", isGap, tt.gap, events)
			}
			if tt.gap && next != 6 {
				t.Fatalf("gap should move cursor to head, got %d", next)
			}
		})
	}
}

func TestHubFetchWaitsForPublish(t *testing.T) {
	hub := NewHub(10)
	done := make(chan []api.Event, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), "orders", 0, 0, true)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish("orders", api.Event{Type: api.EventDeleted, ID: "a"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].ID != "a" {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting fetch did not wake on publish")
	}
}

func TestHubFetchDeliversAvailableEventsDespiteCancelledContext(t *testing.T) {
	hub := NewHub(10)
	hub.Publish("orders", api.Event{Type: api.EventUpdated, ID: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, wait := range []bool{false, true} {
		events, next, err := hub.Fetch(ctx, "orders", 0, 0, wait)
		if err != nil {
			t.Fatalf("wait=%v: Fetch error = %v with %d events", wait, err, len(events))
		}
		if len(events) != 1 || events[0].ID != "a" || next != 1 {
			t.Fatalf("wait=%v: got %+v next=%d", wait, events, next)
		}
	}
	if _, _, err := hub.Fetch(ctx, "orders", 1, 0, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("empty fetch on cancelled context = %v", err)
	}
}

func TestHubFetchHonorsCancellationAndClose(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() {
		_, _, err := hub.Fetch(ctx, "orders", 0, 0, true)
		errs <- err
	}()
	go func() {
		_, _, err := hub.Fetch(context.Background(), "orders", 0, 0, true)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch ignored cancellation")
	}

	hub.Close()
	select {
	case err := <-errs:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch ignored close")
	}
}
