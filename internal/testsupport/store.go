package testsupport

import (
	"context"
	"testing"

	"loadboard/internal/config"
	"loadboard/internal/orders"
	"loadboard/internal/orderstore"
)

// MustOpenStore opens an orderstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *orderstore.Store {
	t.Helper()

	store, err := orderstore.Open(cfg)
	if err != nil {
		t.Fatalf("orderstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewOrder creates an unassigned order for tests.
func NewOrder(t testing.TB, store *orderstore.Store, reference string) orders.Item {
	t.Helper()

	item, err := store.Create(context.Background(), reference, "")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return item
}

// NewQueuedOrder creates an order and appends it to the queue.
func NewQueuedOrder(t testing.TB, store *orderstore.Store, reference string) orders.Item {
	t.Helper()

	item := NewOrder(t, store, reference)
	change, err := store.Enqueue(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return change.Order
}
