package reconcile

import (
	"errors"
	"slices"
	"testing"
	"time"

	"loadboard/internal/orders"
	"loadboard/internal/testsupport"
)

const (
	testGrace    = 500 * time.Millisecond
	testTTL      = 5 * time.Second
	testDebounce = 200 * time.Millisecond
	testInterval = 10 * time.Second
)

type harness struct {
	t        *testing.T
	clock    *testsupport.Clock
	exec     *testsupport.ManualExecutor
	remote   *testsupport.FakeRemote
	rec      *Reconciler
	failures []*MutationError
}

func newHarness(t *testing.T, items ...orders.Item) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  testsupport.NewClock(),
		exec:   &testsupport.ManualExecutor{},
		remote: testsupport.NewFakeRemote(items...),
	}
	h.rec = NewReconciler(h.remote, h.exec, Options{
		Grace:          testGrace,
		PendingTTL:     testTTL,
		Debounce:       testDebounce,
		ResyncInterval: testInterval,
		BurstThreshold: 3,
		TrackedStates:  []orders.WorkflowState{orders.StateInPreparation, orders.StateFinished},
		Now:            h.clock.Now,
		OnFailure:      func(err *MutationError) { h.failures = append(h.failures, err) },
	})
	h.rec.Start()
	h.exec.RunAll()
	if h.rec.ResyncCount() != 1 {
		t.Fatalf("expected initial resync, got %d", h.rec.ResyncCount())
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.rec.RunDue()
}

func (h *harness) submit(op Op) *Ticket {
	h.t.Helper()
	ticket, err := h.rec.Submit(op)
	if err != nil {
		h.t.Fatalf("Submit(%s) failed: %v", op, err)
	}
	return ticket
}

func (h *harness) queue() []orders.ID { return h.rec.Store().QueueIDs() }

func (h *harness) item(id string) orders.Item {
	h.t.Helper()
	item, ok := h.rec.Store().Get(orders.ID(id))
	if !ok {
		h.t.Fatalf("order %s missing from store", id)
	}
	return item
}

type storeState struct {
	queue  []orders.Item
	others []orders.Item
}

func (h *harness) state() storeState {
	v := h.rec.View()
	return storeState{queue: v.Queue, others: v.Others}
}

func (s storeState) equal(o storeState) bool {
	return slices.Equal(s.queue, o.queue) && slices.Equal(s.others, o.others)
}

func seedABC() []orders.Item {
	return []orders.Item{
		testsupport.Queued("A", 1),
		testsupport.Queued("B", 2),
		testsupport.Queued("C", 3),
	}
}

func TestEnqueueAppliesLocallyThenConfirms(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"))...)

	ticket := h.submit(Enqueue("D"))
	d := h.item("D")
	if d.QueueRank != 4 || d.WorkflowState != orders.StateQueued {
		t.Fatalf("expected optimistic enqueue at rank 4, got %+v", d)
	}
	if !h.rec.IsPending("D") {
		t.Fatal("expected D pending")
	}
	if ticket.Resolved() {
		t.Fatal("ticket resolved before the server answered")
	}

	h.exec.RunAll()
	outcome := ticket.Outcome()
	if outcome.Err != nil {
		t.Fatalf("enqueue failed: %v", outcome.Err)
	}
	server, _ := h.remote.Get("D")
	if got := h.item("D"); got != server {
		t.Fatalf("confirmed snapshot not applied: got %+v want %+v", got, server)
	}
	if !h.rec.IsPending("D") {
		t.Fatal("suppression should outlive confirmation until the grace window")
	}
	h.advance(testGrace)
	if h.rec.IsPending("D") {
		t.Fatal("expected suppression cleared after grace")
	}
}

func TestEchoOfOwnMutationIsIgnored(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"))...)

	h.submit(Enqueue("D"))
	afterApply := h.state()

	echo := h.item("D")
	echo.UpdatedAt = echo.UpdatedAt.Add(time.Hour)
	h.rec.HandleEvent(Event{Kind: EventUpdated, ID: "D", Item: echo})
	reshaped := echo
	reshaped.QueueRank = 7
	h.rec.HandleEvent(Event{Kind: EventUpdated, ID: "D", Item: reshaped})

	if !h.state().equal(afterApply) {
		t.Fatalf("echo changed the store: %+v", h.state())
	}
}

func TestRollbackRestoresExactState(t *testing.T) {
	seed := []orders.Item{
		testsupport.Queued("A", 1),
		testsupport.Queued("B", 2),
		testsupport.Queued("C", 3),
		testsupport.Preparing("P", 4, orders.StageAwaitingLoad),
		testsupport.Preparing("K", 5, orders.StageControl),
		testsupport.Unassigned("D"),
	}
	tests := []struct {
		name   string
		op     Op
		method string
	}{
		{"enqueue", Enqueue("D"), "enqueue"},
		{"dequeue", Dequeue("B"), "dequeue"},
		{"reorder", Reorder(ids("C", "A", "K", "B", "P")), "reorder"},
		{"advance within queue", AdvanceStage("A"), "advance"},
		{"advance to finished", AdvanceStage("P"), "advance"},
		{"assign crew", AssignCrew("A", "crew-1"), "assign_crew"},
		{"return to queue", ReturnToQueue("P"), "set_state"},
		{"set controlled", SetControlled("K", true), "set_controlled"},
	}
	failures := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"rejected", testsupport.Rejected("conflict"), KindRemoteRejected},
		{"transport", testsupport.ErrTransport, KindTransportError},
	}
	for _, tt := range tests {
		for _, f := range failures {
			t.Run(tt.name+"/"+f.name, func(t *testing.T) {
				h := newHarness(t, seed...)
				before := h.state()

				h.remote.Fail(tt.method, f.err)
				ticket := h.submit(tt.op)
				if h.state().equal(before) {
					t.Fatal("operation had no local effect")
				}
				assertDense(t, h.rec.Store())

				h.exec.RunAll()
				if !h.state().equal(before) {
					t.Fatalf("rollback not exact:\n got %+v\nwant %+v", h.state(), before)
				}
				for _, id := range []string{"A", "B", "C", "P", "K", "D"} {
					if h.rec.IsPending(orders.ID(id)) {
						t.Fatalf("%s still pending after rollback", id)
					}
				}
				var mutErr *MutationError
				if !errors.As(ticket.Outcome().Err, &mutErr) {
					t.Fatalf("expected MutationError, got %v", ticket.Outcome().Err)
				}
				if mutErr.Kind() != f.kind || mutErr.Op != tt.op.Kind {
					t.Fatalf("unexpected error %v (kind %s)", mutErr, mutErr.Kind())
				}
				if !errors.Is(mutErr, f.err) {
					t.Fatalf("error does not wrap cause: %v", mutErr)
				}
				if len(h.failures) != 1 {
					t.Fatalf("OnFailure called %d times", len(h.failures))
				}
			})
		}
	}
}

func TestForeignUpdateReplacesWholeSnapshot(t *testing.T) {
	h := newHarness(t, seedABC()...)

	foreign := testsupport.Preparing("B", 2, orders.StageControl)
	foreign.CrewID = "crew-9"
	foreign.Reference = "changed elsewhere"
	foreign.UpdatedAt = foreign.UpdatedAt.Add(time.Minute)
	h.rec.HandleEvent(Event{Kind: EventUpdated, ID: "B", Item: foreign})

	if got := h.item("B"); got != foreign {
		t.Fatalf("store = %+v, want %+v", got, foreign)
	}

	created := testsupport.Queued("N", 1)
	h.rec.HandleEvent(Event{Kind: EventCreated, ID: "N", Item: created})
	if got := h.queue(); !slices.Equal(got, ids("N", "A", "B", "C")) {
		t.Fatalf("queue = %v", got)
	}
	assertDense(t, h.rec.Store())
}

func TestDequeueMarksOnlyRenumberedIDs(t *testing.T) {
	h := newHarness(t, seedABC()...)

	h.submit(Dequeue("B"))
	if got := h.queue(); !slices.Equal(got, ids("A", "C")) {
		t.Fatalf("queue = %v", got)
	}
	if h.item("C").QueueRank != 2 || h.item("A").QueueRank != 1 {
		t.Fatalf("unexpected ranks A=%d C=%d", h.item("A").QueueRank, h.item("C").QueueRank)
	}
	if b := h.item("B"); b.InQueue() || b.WorkflowState != orders.StateUnassigned {
		t.Fatalf("B not dequeued: %+v", b)
	}
	if !h.rec.IsPending("B") || !h.rec.IsPending("C") || h.rec.IsPending("A") {
		t.Fatalf("pending: A=%v B=%v C=%v", h.rec.IsPending("A"), h.rec.IsPending("B"), h.rec.IsPending("C"))
	}

	h.exec.RunAll()
	h.advance(testGrace / 2)
	lateEcho := testsupport.Queued("C", 3)
	h.rec.HandleEvent(Event{Kind: EventUpdated, ID: "C", Item: lateEcho})
	if h.item("C").QueueRank != 2 {
		t.Fatalf("late echo applied: %+v", h.item("C"))
	}

	h.advance(testGrace)
	if h.rec.IsPending("C") || h.rec.IsPending("B") {
		t.Fatal("expected pending cleared after grace window")
	}
}

func TestReorderRejectedRevertsAndSurfaces(t *testing.T) {
	h := newHarness(t, seedABC()...)
	h.remote.Fail("reorder", testsupport.Rejected("stale order"))

	ticket := h.submit(Reorder(ids("C", "A", "B")))
	if got := h.queue(); !slices.Equal(got, ids("C", "A", "B")) {
		t.Fatalf("local reorder = %v", got)
	}
	for _, id := range []string{"A", "B", "C"} {
		if !h.rec.IsPending(orders.ID(id)) {
			t.Fatalf("%s should be pending during reorder", id)
		}
	}
	if calls := h.remote.CallCount("reorder"); calls != 0 {
		t.Fatalf("remote called before executor ran: %d", calls)
	}

	h.exec.RunAll()
	if got := h.queue(); !slices.Equal(got, ids("A", "B", "C")) {
		t.Fatalf("queue after rejection = %v", got)
	}
	assertDense(t, h.rec.Store())
	if !IsRejected(ticket.Outcome().Err) {
		t.Fatalf("expected rejection surfaced, got %v", ticket.Outcome().Err)
	}
	if h.remote.CallCount("reorder") != 1 {
		t.Fatal("reorder must be a single batched call")
	}
}

func TestReorderConfirmedUsesServerOrder(t *testing.T) {
	h := newHarness(t, seedABC()...)
	h.submit(Reorder(ids("B", "C", "A")))
	h.exec.RunAll()
	if got := h.queue(); !slices.Equal(got, ids("B", "C", "A")) {
		t.Fatalf("queue = %v", got)
	}
	if got := h.remote.QueueIDs(); !slices.Equal(got, ids("B", "C", "A")) {
		t.Fatalf("server queue = %v", got)
	}
}

func TestSameIDOperationsRunInSubmissionOrder(t *testing.T) {
	h := newHarness(t, seedABC()...)

	first := h.submit(AssignCrew("A", "x"))
	second := h.submit(AssignCrew("A", "y"))
	other := h.submit(AssignCrew("B", "z"))

	if h.exec.Pending() != 2 {
		t.Fatalf("expected the A and B calls in flight, got %d", h.exec.Pending())
	}
	if h.item("A").CrewID != "x" {
		t.Fatalf("second op applied before first completed: %+v", h.item("A"))
	}
	if second.Resolved() {
		t.Fatal("waiting op resolved early")
	}

	h.exec.RunNext()
	if !first.Resolved() || h.item("A").CrewID != "y" {
		t.Fatalf("second op should start once the first completes: %+v", h.item("A"))
	}
	h.exec.RunAll()
	for _, ticket := range []*Ticket{first, second, other} {
		if err := ticket.Outcome().Err; err != nil {
			t.Fatalf("%s failed: %v", ticket.Op(), err)
		}
	}

	var order []string
	for _, call := range h.remote.Calls() {
		if call.Method == "assign_crew" {
			order = append(order, string(call.ID)+"="+call.Arg)
		}
	}
	if !slices.Equal(order, []string{"A=x", "B=z", "A=y"}) {
		t.Fatalf("call order = %v", order)
	}
	if server, _ := h.remote.Get("A"); server.CrewID != "y" {
		t.Fatalf("server crew = %q", server.CrewID)
	}
}

func TestStructuralOperationsShareTheQueueLock(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"))...)

	h.submit(Dequeue("A"))
	enqueue := h.submit(Enqueue("D"))
	if h.exec.Pending() != 1 || h.item("D").InQueue() {
		t.Fatal("enqueue should wait for the in-flight dequeue")
	}
	h.exec.RunAll()
	if enqueue.Outcome().Err != nil {
		t.Fatalf("enqueue failed: %v", enqueue.Outcome().Err)
	}
	if got := h.queue(); !slices.Equal(got, ids("B", "C", "D")) {
		t.Fatalf("queue = %v", got)
	}
}

func TestStageAdvanceLeavesQueueOpen(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"))...)

	h.submit(AdvanceStage("A"))
	enqueue := h.submit(Enqueue("D"))

	d := h.item("D")
	if !d.InQueue() || d.WorkflowState != orders.StateQueued {
		t.Fatalf("D = %+v, want queued immediately", d)
	}
	if !h.rec.IsPending("D") {
		t.Fatal("D should be pending")
	}
	if h.exec.Pending() != 2 {
		t.Fatalf("in-flight calls = %d, want 2", h.exec.Pending())
	}
	h.exec.RunAll()
	if enqueue.Outcome().Err != nil {
		t.Fatalf("enqueue failed: %v", enqueue.Outcome().Err)
	}
	if got := h.queue(); !slices.Equal(got, ids("A", "B", "C", "D")) {
		t.Fatalf("queue = %v", got)
	}
}

func TestRejectedStageAdvanceKeepsRenumberedRank(t *testing.T) {
	h := newHarness(t, seedABC()...)

	h.submit(AdvanceStage("C"))
	h.submit(Dequeue("A"))
	h.remote.Fail("advance", testsupport.Rejected("dock closed"))
	h.exec.RunNext()

	c := h.item("C")
	if c.WorkflowState != orders.StateQueued || c.QueueRank != 2 {
		t.Fatalf("C = %s rank %d, want queued rank 2", c.WorkflowState, c.QueueRank)
	}
	h.exec.RunAll()
	if got := h.queue(); !slices.Equal(got, ids("B", "C")) {
		t.Fatalf("queue = %v", got)
	}
}

func TestFinishingAdvanceTakesQueueLock(t *testing.T) {
	seed := append(seedABC(),
		testsupport.Preparing("P", 4, orders.StageAwaitingLoad),
		testsupport.Unassigned("D"),
	)
	h := newHarness(t, seed...)

	h.submit(AdvanceStage("P"))
	h.submit(Enqueue("D"))
	if h.exec.Pending() != 1 || h.item("D").InQueue() {
		t.Fatal("enqueue should wait for the advance into finished")
	}
	h.exec.RunAll()
	if h.item("P").WorkflowState != orders.StateFinished || !h.item("D").InQueue() {
		t.Fatalf("P = %s, D queued = %v", h.item("P").WorkflowState, h.item("D").InQueue())
	}
}

func TestWaitingAdvanceTakesQueueLockWhenItFinishes(t *testing.T) {
	controlled := testsupport.Preparing("P", 4, orders.StageControl)
	controlled.Controlled = true
	h := newHarness(t, append(seedABC(), controlled, testsupport.Unassigned("D"))...)

	h.submit(AdvanceStage("P"))
	h.submit(AdvanceStage("P"))
	h.submit(Enqueue("D"))
	if h.exec.Pending() != 1 || h.item("D").InQueue() {
		t.Fatal("enqueue should wait behind the waiting advance")
	}
	h.exec.RunNext()
	if h.item("P").WorkflowState != orders.StateFinished {
		t.Fatalf("P state = %s", h.item("P").WorkflowState)
	}
	if h.exec.Pending() != 1 || h.item("D").InQueue() {
		t.Fatal("enqueue should wait for the advance into finished")
	}
	h.exec.RunAll()
	if !h.item("D").InQueue() {
		t.Fatal("D not queued")
	}
}

func TestWaitingOperationRevalidatedWhenStarted(t *testing.T) {
	h := newHarness(t, seedABC()...)

	h.submit(Dequeue("A"))
	again := h.submit(Dequeue("A"))
	h.exec.RunAll()

	if !errors.Is(again.Outcome().Err, ErrNotQueued) {
		t.Fatalf("expected ErrNotQueued, got %v", again.Outcome().Err)
	}
	if h.remote.CallCount("dequeue") != 1 {
		t.Fatalf("dequeue called %d times", h.remote.CallCount("dequeue"))
	}
}

func TestPreconditionFailuresLeaveStoreUntouched(t *testing.T) {
	seed := append(seedABC(),
		testsupport.Unassigned("D"),
		testsupport.Preparing("P", 4, orders.StageNone),
	)
	tests := []struct {
		name string
		op   Op
		want error
	}{
		{"unknown", Enqueue("zz"), ErrUnknownItem},
		{"already queued", Enqueue("A"), ErrAlreadyQueued},
		{"dequeue unqueued", Dequeue("D"), ErrNotQueued},
		{"reorder missing id", Reorder(ids("A", "B")), ErrInvalidSequence},
		{"reorder duplicate", Reorder(ids("A", "A", "B", "P")), ErrInvalidSequence},
		{"advance unassigned", AdvanceStage("D"), ErrInvalidTransition},
		{"return from queued", ReturnToQueue("A"), ErrInvalidTransition},
		{"controlled off stage", SetControlled("P", true), ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, seed...)
			before := h.state()
			ticket, err := h.rec.Submit(tt.op)
			if !errors.Is(err, tt.want) || ticket != nil {
				t.Fatalf("Submit error = %v ticket = %v, want %v", err, ticket, tt.want)
			}
			if !h.state().equal(before) || h.exec.Pending() != 0 {
				t.Fatal("failed precondition changed state or called the server")
			}
		})
	}
}

func TestAdvanceToFinishedLeavesQueue(t *testing.T) {
	h := newHarness(t,
		testsupport.Preparing("P", 1, orders.StageAwaitingLoad),
		testsupport.Queued("B", 2),
		testsupport.Queued("C", 3),
	)
	h.submit(AdvanceStage("P"))
	p := h.item("P")
	if p.WorkflowState != orders.StateFinished || p.InQueue() {
		t.Fatalf("P = %+v", p)
	}
	if !h.rec.IsPending("B") || !h.rec.IsPending("C") {
		t.Fatal("renumbered ids should be pending")
	}
	h.exec.RunAll()
	if got := h.queue(); !slices.Equal(got, ids("B", "C")) {
		t.Fatalf("queue = %v", got)
	}
}

func TestReturnToQueueKeepsRank(t *testing.T) {
	h := newHarness(t,
		testsupport.Queued("A", 1),
		testsupport.Preparing("P", 2, orders.StageControl),
		testsupport.Queued("C", 3),
	)
	h.submit(ReturnToQueue("P"))
	p := h.item("P")
	if p.WorkflowState != orders.StateQueued || p.PreparationStage != orders.StageNone || p.QueueRank != 2 {
		t.Fatalf("P = %+v", p)
	}
	h.exec.RunAll()
	if got := h.queue(); !slices.Equal(got, ids("A", "P", "C")) {
		t.Fatalf("queue = %v", got)
	}
}

func TestPendingMarkerExpiresWithoutConfirmation(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"))...)

	h.submit(Enqueue("D"))
	foreign := testsupport.Unassigned("D")
	foreign.CrewID = "crew-2"

	h.rec.HandleEvent(Event{Kind: EventUpdated, ID: "D", Item: foreign})
	if h.item("D").CrewID == "crew-2" {
		t.Fatal("event applied while pending")
	}

	h.advance(testTTL)
	h.rec.HandleEvent(Event{Kind: EventUpdated, ID: "D", Item: foreign})
	if got := h.item("D"); got != foreign {
		t.Fatalf("expired marker still suppressing: %+v", got)
	}
}

func TestDeleteAppliesEvenWhilePending(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"))...)

	h.remote.Fail("enqueue", testsupport.Rejected("gone"))
	h.submit(Enqueue("D"))
	h.rec.HandleEvent(Event{Kind: EventDeleted, ID: "D"})
	if _, ok := h.rec.Store().Get("D"); ok {
		t.Fatal("delete not applied")
	}
	h.exec.RunAll()
	if _, ok := h.rec.Store().Get("D"); ok {
		t.Fatal("rollback resurrected a deleted order")
	}
	assertDense(t, h.rec.Store())
}

func TestUnspecifiedEventsCollapseIntoOneResync(t *testing.T) {
	h := newHarness(t, seedABC()...)
	fetches := h.remote.CallCount("fetch_queued")

	for range 3 {
		h.rec.HandleEvent(Event{Kind: EventUnspecified})
		h.advance(testDebounce / 4)
	}
	if h.exec.Pending() != 0 {
		t.Fatal("resync started before the debounce window closed")
	}
	h.advance(testDebounce)
	h.exec.RunAll()
	if got := h.remote.CallCount("fetch_queued") - fetches; got != 1 {
		t.Fatalf("expected one resync fetch, got %d", got)
	}
}

func TestEventBurstSchedulesResync(t *testing.T) {
	h := newHarness(t, seedABC()...)
	fetches := h.remote.CallCount("fetch_queued")

	for i := range 3 {
		h.rec.HandleEvent(Event{Kind: EventCreated, Item: testsupport.Unassigned("N" + string(rune('0'+i)))})
	}
	h.advance(testDebounce)
	if h.exec.Pending() != 0 {
		t.Fatal("threshold not exceeded yet, no resync expected")
	}

	for i := range 4 {
		h.rec.HandleEvent(Event{Kind: EventCreated, Item: testsupport.Unassigned("M" + string(rune('0'+i)))})
	}
	h.advance(testDebounce)
	h.exec.RunAll()
	if got := h.remote.CallCount("fetch_queued") - fetches; got != 1 {
		t.Fatalf("expected burst resync, got %d fetches", got)
	}
}

func TestResyncSkipsPendingAndDropsStale(t *testing.T) {
	h := newHarness(t, append(seedABC(), testsupport.Unassigned("D"), testsupport.Unassigned("E"))...)

	h.submit(Enqueue("D"))
	optimistic := h.item("D")
	resume := h.exec.Hold()

	a := testsupport.Queued("A", 1)
	a.CrewID = "crew-7"
	h.remote.Put(a)
	h.remote.Delete("E")

	h.rec.RequestResync("test")
	h.advance(testDebounce)
	h.exec.RunNext()

	if got := h.item("D"); got != optimistic {
		t.Fatalf("pending order replaced by resync: %+v", got)
	}
	if h.item("A").CrewID != "crew-7" {
		t.Fatal("non-pending order not refreshed")
	}
	if _, ok := h.rec.Store().Get("E"); ok {
		t.Fatal("stale order kept")
	}
	assertDense(t, h.rec.Store())

	resume()
	if server, _ := h.remote.Get("D"); h.item("D") != server {
		t.Fatal("confirmation not applied after resync")
	}
}

func TestResyncFailureRetriesOnNextTick(t *testing.T) {
	h := newHarness(t, seedABC()...)
	before := h.state()

	h.remote.Fail("fetch_queued", testsupport.ErrTransport)
	h.advance(testInterval)
	h.exec.RunAll()
	if !h.state().equal(before) || h.rec.ResyncCount() != 1 {
		t.Fatal("failed resync changed state")
	}

	h.remote.Put(testsupport.Unassigned("N"))
	h.advance(testInterval)
	h.exec.RunAll()
	if h.rec.ResyncCount() != 2 {
		t.Fatalf("resync count = %d", h.rec.ResyncCount())
	}
	if _, ok := h.rec.Store().Get("N"); !ok {
		t.Fatal("expected N after successful resync")
	}
}

func TestCloseResolvesOutstandingTickets(t *testing.T) {
	h := newHarness(t, seedABC()...)

	inflight := h.submit(AssignCrew("A", "x"))
	waiting := h.submit(AssignCrew("A", "y"))
	h.rec.Close()

	for _, ticket := range []*Ticket{inflight, waiting} {
		if !errors.Is(ticket.Outcome().Err, ErrEngineStopped) {
			t.Fatalf("%s outcome = %v", ticket.Op(), ticket.Outcome().Err)
		}
	}
	h.exec.RunAll()
	if _, err := h.rec.Submit(Dequeue("A")); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("Submit after Close = %v", err)
	}
}
