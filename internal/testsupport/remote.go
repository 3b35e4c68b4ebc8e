package testsupport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"loadboard/internal/orders"
)

// RejectedError is a server refusal as a FakeRemote reports it.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return "rejected: " + e.Message }

// Rejected marks the error as a server refusal.
func (e *RejectedError) Rejected() bool { return true }

// Rejected builds a refusal error.
func Rejected(msg string) error { return &RejectedError{Message: msg} }

// ErrTransport stands in for a network failure.
var ErrTransport = errors.New("connection refused")

// Call records one request made to a FakeRemote.
type Call struct {
	Method string
	ID     orders.ID
	IDs    []orders.ID
	Arg    string
}

// FakeRemote is an in-memory authoritative server. Mutations follow the same
// workflow rules as the real server and bump UpdatedAt; failures can be
// scripted per method.
type FakeRemote struct {
	mu       sync.Mutex
	items    map[orders.ID]orders.Item
	queue    []orders.ID
	calls    []Call
	failures map[string][]error
	stamp    time.Time
}

// NewFakeRemote seeds the fake with items. Items with a rank form the queue
// in rank order.
func NewFakeRemote(items ...orders.Item) *FakeRemote {
	f := &FakeRemote{
		items:    make(map[orders.ID]orders.Item),
		failures: make(map[string][]error),
		stamp:    time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.Seed(items...)
	return f
}

// Seed replaces the fake's state.
func (f *FakeRemote) Seed(items ...orders.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = make(map[orders.ID]orders.Item, len(items))
	f.queue = nil
	sorted := slices.Clone(items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].QueueRank < sorted[j].QueueRank })
	for _, item := range sorted {
		f.items[item.ID] = item
		if item.QueueRank > 0 {
			f.queue = append(f.queue, item.ID)
		}
	}
	f.repack()
}

// Put writes one snapshot as if another session changed it.
func (f *FakeRemote) Put(item orders.Item) orders.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := slices.Index(f.queue, item.ID); idx >= 0 {
		f.queue = slices.Delete(f.queue, idx, idx+1)
	}
	if item.QueueRank > 0 {
		pos := min(item.QueueRank-1, len(f.queue))
		f.queue = slices.Insert(f.queue, pos, item.ID)
	}
	item.UpdatedAt = f.tick()
	f.items[item.ID] = item
	f.repack()
	return f.items[item.ID]
}

// Delete removes an order as if another session deleted it.
func (f *FakeRemote) Delete(id orders.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	if idx := slices.Index(f.queue, id); idx >= 0 {
		f.queue = slices.Delete(f.queue, idx, idx+1)
	}
	f.repack()
}

// Get returns the fake's authoritative snapshot.
func (f *FakeRemote) Get(id orders.ID) (orders.Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	return item, ok
}

// QueueIDs returns the authoritative queue order.
func (f *FakeRemote) QueueIDs() []orders.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queue)
}

// Fail scripts the next call to method to return err. Multiple calls queue up.
func (f *FakeRemote) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], err)
}

// Calls returns every request received so far.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how many times method was called.
func (f *FakeRemote) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeRemote) FetchQueued(context.Context) ([]orders.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "fetch_queued"}); err != nil {
		return nil, err
	}
	out := make([]orders.Item, 0, len(f.queue))
	for _, id := range f.queue {
		out = append(out, f.items[id])
	}
	return out, nil
}

func (f *FakeRemote) FetchUnqueued(context.Context) ([]orders.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "fetch_unqueued"}); err != nil {
		return nil, err
	}
	return f.filter(func(item orders.Item) bool {
		return item.QueueRank == 0 && item.WorkflowState == orders.StateUnassigned
	}), nil
}

func (f *FakeRemote) FetchByWorkflowState(_ context.Context, state orders.WorkflowState) ([]orders.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "fetch_state", Arg: string(state)}); err != nil {
		return nil, err
	}
	return f.filter(func(item orders.Item) bool { return item.WorkflowState == state }), nil
}

func (f *FakeRemote) Enqueue(_ context.Context, id orders.ID) (orders.Item, error) {
	return f.mutate(Call{Method: "enqueue", ID: id}, func(item *orders.Item) error {
		if item.QueueRank > 0 {
			return Rejected("already queued")
		}
		item.WorkflowState = orders.StateQueued
		item.PreparationStage = orders.StageNone
		f.queue = append(f.queue, id)
		return nil
	})
}

func (f *FakeRemote) Dequeue(_ context.Context, id orders.ID) (orders.Item, error) {
	return f.mutate(Call{Method: "dequeue", ID: id}, func(item *orders.Item) error {
		idx := slices.Index(f.queue, id)
		if idx < 0 {
			return Rejected("not queued")
		}
		f.queue = slices.Delete(f.queue, idx, idx+1)
		item.WorkflowState = orders.StateUnassigned
		item.PreparationStage = orders.StageNone
		item.Controlled = false
		return nil
	})
}

func (f *FakeRemote) Reorder(_ context.Context, ids []orders.ID) ([]orders.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "reorder", IDs: slices.Clone(ids)}); err != nil {
		return nil, err
	}
	current := slices.Clone(f.queue)
	sorted := slices.Clone(ids)
	slices.Sort(current)
	slices.Sort(sorted)
	if !slices.Equal(current, sorted) {
		return nil, Rejected("sequence does not match queue")
	}
	f.queue = slices.Clone(ids)
	stamp := f.tick()
	for _, id := range ids {
		item := f.items[id]
		item.UpdatedAt = stamp
		f.items[id] = item
	}
	f.repack()
	out := make([]orders.Item, 0, len(f.queue))
	for _, id := range f.queue {
		out = append(out, f.items[id])
	}
	return out, nil
}

func (f *FakeRemote) AdvanceStage(_ context.Context, id orders.ID) (orders.Item, error) {
	return f.mutate(Call{Method: "advance", ID: id}, func(item *orders.Item) error {
		if item.PreparationStage == orders.StageControl && !item.Controlled {
			return Rejected("order has not passed control")
		}
		state, stage, err := orders.NextStep(item.WorkflowState, item.PreparationStage)
		if err != nil {
			return Rejected(err.Error())
		}
		item.WorkflowState = state
		item.PreparationStage = stage
		if state == orders.StateFinished {
			if idx := slices.Index(f.queue, id); idx >= 0 {
				f.queue = slices.Delete(f.queue, idx, idx+1)
			}
		}
		return nil
	})
}

func (f *FakeRemote) AssignCrew(_ context.Context, id orders.ID, crewID string) (orders.Item, error) {
	return f.mutate(Call{Method: "assign_crew", ID: id, Arg: crewID}, func(item *orders.Item) error {
		item.CrewID = crewID
		return nil
	})
}

func (f *FakeRemote) SetWorkflowState(_ context.Context, id orders.ID, state orders.WorkflowState) (orders.Item, error) {
	return f.mutate(Call{Method: "set_state", ID: id, Arg: string(state)}, func(item *orders.Item) error {
		if state != orders.StateQueued || item.WorkflowState != orders.StateInPreparation {
			return Rejected(fmt.Sprintf("cannot move %s to %s", item.WorkflowState, state))
		}
		item.WorkflowState = orders.StateQueued
		item.PreparationStage = orders.StageNone
		return nil
	})
}

func (f *FakeRemote) SetControlled(_ context.Context, id orders.ID, controlled bool) (orders.Item, error) {
	return f.mutate(Call{Method: "set_controlled", ID: id, Arg: fmt.Sprint(controlled)}, func(item *orders.Item) error {
		if item.PreparationStage != orders.StageControl {
			return Rejected("order is not at control")
		}
		item.Controlled = controlled
		return nil
	})
}

func (f *FakeRemote) mutate(call Call, change func(*orders.Item) error) (orders.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(call); err != nil {
		return orders.Item{}, err
	}
	item, ok := f.items[call.ID]
	if !ok {
		return orders.Item{}, Rejected("unknown order " + string(call.ID))
	}
	if err := change(&item); err != nil {
		return orders.Item{}, err
	}
	item.UpdatedAt = f.tick()
	f.items[call.ID] = item
	f.repack()
	return f.items[call.ID], nil
}

// begin records the call and pops a scripted failure. Caller holds mu.
func (f *FakeRemote) begin(call Call) error {
	f.calls = append(f.calls, call)
	if pending := f.failures[call.Method]; len(pending) > 0 {
		f.failures[call.Method] = pending[1:]
		return pending[0]
	}
	return nil
}

func (f *FakeRemote) filter(keep func(orders.Item) bool) []orders.Item {
	var out []orders.Item
	for _, item := range f.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeRemote) tick() time.Time {
	f.stamp = f.stamp.Add(time.Second)
	return f.stamp
}

func (f *FakeRemote) repack() {
	inQueue := make(map[orders.ID]int, len(f.queue))
	for i, id := range f.queue {
		inQueue[id] = i + 1
	}
	for id, item := range f.items {
		item.QueueRank = inQueue[id]
		f.items[id] = item
	}
}
