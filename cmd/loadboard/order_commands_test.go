package main

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"loadboard/internal/api"
	"loadboard/internal/orders"
	"loadboard/internal/testsupport"
)

func TestOrdersCreateListAndQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	for _, ref := range []string{"PO-1", "PO-2", "PO-3"} {
		out, _, err := runCLI(t, []string{"orders", "create", ref, "--enqueue"}, env.apiURL, env.configPath)
		if err != nil {
			t.Fatalf("orders create %s: %v", ref, err)
		}
		requireContains(t, out, "Created order")
		requireContains(t, out, "Queued at #")
	}

	out, _, err := runCLI(t, []string{"orders", "list"}, env.apiURL, env.configPath)
	if err != nil {
		t.Fatalf("orders list: %v", err)
	}
	if strings.Index(out, "PO-1") > strings.Index(out, "PO-3") {
		t.Fatalf("list should be in queue order: %q", out)
	}

	if _, _, err := runCLI(t, []string{"orders", "move", "PO-3", "1"}, env.apiURL, env.configPath); err != nil {
		t.Fatalf("orders move: %v", err)
	}
	assertQueueRefs(t, env, "PO-3", "PO-1", "PO-2")

	if _, _, err := runCLI(t, []string{"orders", "reorder", "PO-1", "PO-2", "PO-3"}, env.apiURL, env.configPath); err != nil {
		t.Fatalf("orders reorder: %v", err)
	}
	assertQueueRefs(t, env, "PO-1", "PO-2", "PO-3")

	out, _, err = runCLI(t, []string{"orders", "dequeue", "PO-2"}, env.apiURL, env.configPath)
	if err != nil {
		t.Fatalf("orders dequeue: %v", err)
	}
	requireContains(t, out, "PO-2: Unassigned")
	assertQueueRefs(t, env, "PO-1", "PO-3")

	unqueued, err := env.store.ListUnqueued(ctx)
	if err != nil {
		t.Fatalf("ListUnqueued: %v", err)
	}
	if len(unqueued) != 1 || unqueued[0].Reference != "PO-2" {
		t.Fatalf("unqueued = %+v", unqueued)
	}

	out, _, err = runCLI(t, []string{"orders", "list", "--view", "unqueued", "--json"}, env.apiURL, env.configPath)
	if err != nil {
		t.Fatalf("orders list --json: %v", err)
	}
	var listed []api.Order
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list json %q: %v", out, err)
	}
	if len(listed) != 1 || listed[0].Reference != "PO-2" {
		t.Fatalf("json list = %+v", listed)
	}
}

func TestOrdersWorkflowCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	item := testsupport.NewQueuedOrder(t, env.store, "PO-9")

	crew, err := env.store.CreateCrew(ctx, "North dock")
	if err != nil {
		t.Fatalf("CreateCrew: %v", err)
	}
	if _, _, err := runCLI(t, []string{"orders", "assign", "PO-9", crew.ID}, env.apiURL, env.configPath); err != nil {
		t.Fatalf("orders assign: %v", err)
	}

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"orders", "advance", "PO-9"}, "In Preparation"},
		{[]string{"orders", "advance", "PO-9"}, "Control"},
		{[]string{"orders", "control", "PO-9"}, "controlled"},
		{[]string{"orders", "return", "PO-9"}, "Queued at #1"},
	}
	for _, step := range steps {
		out, _, err := runCLI(t, step.args, env.apiURL, env.configPath)
		if err != nil {
			t.Fatalf("%v: %v", step.args, err)
		}
		requireContains(t, out, step.want)
	}

	got, err := env.store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.WorkflowState != orders.StateQueued || got.QueueRank != 1 || got.CrewID != crew.ID {
		t.Fatalf("unexpected order after workflow: %+v", got)
	}
}

func TestOrdersAdvanceRejectedWithoutControl(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	item := testsupport.NewQueuedOrder(t, env.store, "PO-5")
	for range 2 {
		if _, err := env.store.Advance(ctx, item.ID); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	_, _, err := runCLI(t, []string{"orders", "advance", string(item.ID)}, env.apiURL, env.configPath)
	if err == nil {
		t.Fatal("expected advance past control to be rejected")
	}
	requireContains(t, err.Error(), "server rejected")

	got, err := env.store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PreparationStage != orders.StageControl {
		t.Fatalf("stage = %q, want control", got.PreparationStage)
	}
}

func TestOrdersUnknownReference(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"orders", "enqueue", "missing"}, env.apiURL, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown order")
	}
	requireContains(t, err.Error(), "no order with id or reference")
}

func TestOrdersDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	item := testsupport.NewQueuedOrder(t, env.store, "PO-7")

	out, _, err := runCLI(t, []string{"orders", "delete", string(item.ID)}, env.apiURL, env.configPath)
	if err != nil {
		t.Fatalf("orders delete: %v", err)
	}
	requireContains(t, out, "Deleted order")
	if _, err := env.store.Get(context.Background(), item.ID); err == nil {
		t.Fatal("order should be gone")
	}
}

func TestMoveInQueue(t *testing.T) {
	queue := []orders.ID{"a", "b", "c", "d"}
	tests := []struct {
		name     string
		id       orders.ID
		position int
		want     []orders.ID
	}{
		{"to front", "c", 1, []orders.ID{"c", "a", "b", "d"}},
		{"to back", "a", 4, []orders.ID{"b", "c", "d", "a"}},
		{"same place", "b", 2, queue},
		{"clamped high", "b", 99, []orders.ID{"a", "c", "d", "b"}},
		{"clamped low", "d", 0, []orders.ID{"d", "a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := moveInQueue(queue, tt.id, tt.position)
			if err != nil {
				t.Fatalf("moveInQueue: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := moveInQueue(queue, "x", 1); err == nil {
		t.Fatal("expected error for an order outside the queue")
	}
	if !slices.Equal(queue, []orders.ID{"a", "b", "c", "d"}) {
		t.Fatalf("input queue mutated: %v", queue)
	}
}

func assertQueueRefs(t *testing.T, env *cliTestEnv, want ...string) {
	t.Helper()
	queued, err := env.store.ListQueued(context.Background())
	if err != nil {
		t.Fatalf("ListQueued: %v", err)
	}
	got := make([]string, len(queued))
	for i, item := range queued {
		got[i] = item.Reference
	}
	if !slices.Equal(got, want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
}
