package reconcile_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"loadboard/internal/orders"
	"loadboard/internal/reconcile"
	"loadboard/internal/testsupport"
)

type fakeFeed struct {
	mu           sync.Mutex
	topic        string
	handler      func(reconcile.Event)
	reconnect    func()
	unsubscribed bool
}

func (f *fakeFeed) Subscribe(topic string, handler func(reconcile.Event), onReconnect func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.handler = handler
	f.reconnect = onReconnect
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
	}
}

func (f *fakeFeed) deliver(ev reconcile.Event) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(ev)
}

func waitForView(t *testing.T, e *reconcile.Engine, cond func(reconcile.View) bool) reconcile.View {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if v := e.View(); cond(v) {
			return v
		}
		select {
		case <-e.Changes():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not reached; last view %+v", e.View())
		}
	}
}

func newEngine(t *testing.T, remote reconcile.Remote, feed reconcile.Feed) *reconcile.Engine {
	t.Helper()
	e := reconcile.NewEngine(remote, feed, reconcile.Options{
		Grace:          20 * time.Millisecond,
		PendingTTL:     time.Second,
		Debounce:       10 * time.Millisecond,
		ResyncInterval: time.Minute,
		BurstThreshold: 50,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func TestEngineLoadsMutatesAndMerges(t *testing.T) {
	remote := testsupport.NewFakeRemote(
		testsupport.Queued("A", 1),
		testsupport.Queued("B", 2),
		testsupport.Queued("C", 3),
		testsupport.Unassigned("D"),
	)
	feed := &fakeFeed{}
	e := newEngine(t, remote, feed)

	waitForView(t, e, func(v reconcile.View) bool { return len(v.Queue) == 3 })
	if c := e.Counts(); c.Queued != 3 || c.Unqueued != 1 {
		t.Fatalf("counts = %+v", c)
	}
	feed.mu.Lock()
	topic := feed.topic
	feed.mu.Unlock()
	if topic != reconcile.Topic {
		t.Fatalf("subscribed to %q", topic)
	}

	ctx := context.Background()
	if _, err := e.Do(ctx, reconcile.Dequeue("B")); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	waitForView(t, e, func(v reconcile.View) bool {
		return slices.Equal(v.QueueIDs(), []orders.ID{"A", "C"})
	})

	foreign := testsupport.Queued("N", 1)
	feed.deliver(reconcile.Event{Kind: reconcile.EventCreated, ID: "N", Item: foreign})
	waitForView(t, e, func(v reconcile.View) bool {
		return slices.Equal(v.QueueIDs(), []orders.ID{"N", "A", "C"})
	})
}

func TestEngineSurfacesRollback(t *testing.T) {
	remote := testsupport.NewFakeRemote(testsupport.Queued("A", 1), testsupport.Unassigned("D"))
	e := newEngine(t, remote, nil)
	waitForView(t, e, func(v reconcile.View) bool { return v.Len() == 2 })

	remote.Fail("enqueue", testsupport.Rejected("dock closed"))
	_, err := e.Do(context.Background(), reconcile.Enqueue("D"))
	var mutErr *reconcile.MutationError
	if !errors.As(err, &mutErr) || mutErr.Kind() != reconcile.KindRemoteRejected {
		t.Fatalf("expected rejected MutationError, got %v", err)
	}
	waitForView(t, e, func(v reconcile.View) bool {
		item, ok := v.Get("D")
		return ok && !item.InQueue() && item.WorkflowState == orders.StateUnassigned
	})
}

func TestEngineSubmitValidatesSynchronously(t *testing.T) {
	remote := testsupport.NewFakeRemote(testsupport.Queued("A", 1))
	e := newEngine(t, remote, nil)
	waitForView(t, e, func(v reconcile.View) bool { return v.Len() == 1 })

	if _, err := e.Submit(context.Background(), reconcile.Enqueue("A")); !errors.Is(err, reconcile.ErrAlreadyQueued) {
		t.Fatalf("Submit error = %v", err)
	}
}

func TestEngineStopRejectsFurtherWork(t *testing.T) {
	remote := testsupport.NewFakeRemote(testsupport.Queued("A", 1))
	feed := &fakeFeed{}
	e := reconcile.NewEngine(remote, feed, reconcile.Options{})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	waitForView(t, e, func(v reconcile.View) bool { return v.Len() == 1 })
	e.Stop()

	if _, err := e.Submit(context.Background(), reconcile.Dequeue("A")); !errors.Is(err, reconcile.ErrEngineStopped) {
		t.Fatalf("Submit after Stop = %v", err)
	}
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if !feed.unsubscribed {
		t.Fatal("expected feed unsubscribed on stop")
	}
	e.Stop()
}

func TestEngineSubmitReturnsWhenStopRacesIt(t *testing.T) {
	for round := 0; round < 20; round++ {
		remote := testsupport.NewFakeRemote(testsupport.Queued("A", 1), testsupport.Unassigned("D"))
		e := reconcile.NewEngine(remote, nil, reconcile.Options{})
		if err := e.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		waitForView(t, e, func(v reconcile.View) bool { return v.Len() == 2 })

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.Submit(context.Background(), reconcile.AssignCrew("A", "crew-1"))
			}()
		}
		e.Stop()

		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(3 * time.Second):
			t.Fatalf("round %d: Submit still blocked after Stop", round)
		}
		if _, err := e.Submit(context.Background(), reconcile.Dequeue("A")); !errors.Is(err, reconcile.ErrEngineStopped) {
			t.Fatalf("round %d: Submit after Stop = %v", round, err)
		}
	}
}
