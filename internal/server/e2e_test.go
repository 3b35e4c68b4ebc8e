package server_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"loadboard/internal/broadcast"
	"loadboard/internal/client"
	"loadboard/internal/logging"
	"loadboard/internal/orders"
	"loadboard/internal/reconcile"
	"loadboard/internal/server"
	"loadboard/internal/testsupport"
)

type session struct {
	client *client.Client
	engine *reconcile.Engine
}

func newSession(t *testing.T, url string, opts reconcile.Options) session {
	t.Helper()
	c, err := client.New(url, logging.NewNop())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	manager := broadcast.NewManager(c, logging.NewNop(), broadcast.WithBackoff(10*time.Millisecond))
	engine := reconcile.NewEngine(c, client.NewFeed(manager, logging.NewNop()), opts)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}
	t.Cleanup(func() {
		engine.Stop()
		manager.Wait()
	})
	return session{client: c, engine: engine}
}

func waitFor(t *testing.T, e *reconcile.Engine, what string, cond func(reconcile.View) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond(e.View()) {
		select {
		case <-e.Changes():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("%s: last view queue=%v", what, e.View().QueueIDs())
		}
	}
}

func TestSessionsConvergeThroughServer(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSyncWindows(50, 2000, 20))
	store := testsupport.MustOpenStore(t, cfg)
	srv, err := server.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		httpSrv.Close()
	})

	a := testsupport.NewQueuedOrder(t, store, "A")
	b := testsupport.NewQueuedOrder(t, store, "B")
	c := testsupport.NewQueuedOrder(t, store, "C")

	opts := reconcile.OptionsFromConfig(cfg.Sync)
	opts.Logger = logging.NewNop()
	// A short floor keeps the test independent of when each subscription
	// reads its first cursor.
	opts.ResyncInterval = 500 * time.Millisecond
	alice := newSession(t, httpSrv.URL, opts)
	bob := newSession(t, httpSrv.URL, opts)

	for _, s := range []session{alice, bob} {
		waitFor(t, s.engine, "initial load", func(v reconcile.View) bool { return v.Len() == 3 })
	}

	ctx := context.Background()
	out, err := alice.engine.Do(ctx, reconcile.Reorder([]orders.ID{c.ID, a.ID, b.ID}))
	if err != nil || out.Err != nil {
		t.Fatalf("reorder: %v / %v", err, out.Err)
	}
	want := []orders.ID{c.ID, a.ID, b.ID}
	waitFor(t, bob.engine, "bob sees reorder", func(v reconcile.View) bool {
		return slices.Equal(v.QueueIDs(), want)
	})

	out, err = bob.engine.Do(ctx, reconcile.Dequeue(a.ID))
	if err != nil || out.Err != nil {
		t.Fatalf("dequeue: %v / %v", err, out.Err)
	}
	waitFor(t, alice.engine, "alice sees dequeue", func(v reconcile.View) bool {
		return slices.Equal(v.QueueIDs(), []orders.ID{c.ID, b.ID}) && v.Counts().Unqueued == 1
	})

	// Leaving control without the check is refused and rolled back.
	for range 2 {
		if out, err := alice.engine.Do(ctx, reconcile.AdvanceStage(c.ID)); err != nil || out.Err != nil {
			t.Fatalf("advance: %v / %v", err, out.Err)
		}
	}
	out, err = alice.engine.Do(ctx, reconcile.AdvanceStage(c.ID))
	if !errors.Is(err, out.Err) || !reconcile.IsRejected(out.Err) {
		t.Fatalf("expected a rejected advance, got %v", out.Err)
	}
	if item, _ := alice.engine.View().Get(c.ID); item.PreparationStage != orders.StageControl {
		t.Fatalf("rollback should restore control stage, got %s", item.Label())
	}

	var mutErr *reconcile.MutationError
	if !errors.As(out.Err, &mutErr) || mutErr.Op != reconcile.OpAdvanceStage {
		t.Fatalf("expected MutationError for advance, got %T", out.Err)
	}

	authoritative, err := store.ListQueued(ctx)
	if err != nil {
		t.Fatalf("ListQueued: %v", err)
	}
	waitFor(t, bob.engine, "bob matches server", func(v reconcile.View) bool {
		got := v.Queue
		if len(got) != len(authoritative) {
			return false
		}
		for i := range got {
			want := authoritative[i]
			if got[i].ID != want.ID || got[i].Label() != want.Label() || got[i].QueueRank != want.QueueRank {
				return false
			}
		}
		return true
	})
}
