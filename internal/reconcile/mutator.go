package reconcile

import (
	"context"
	"fmt"
	"slices"

	"loadboard/internal/orders"
)

// OpKind names a mutation.
type OpKind string

const (
	OpEnqueue       OpKind = "enqueue"
	OpDequeue       OpKind = "dequeue"
	OpReorder       OpKind = "reorder"
	OpAdvanceStage  OpKind = "advance_stage"
	OpAssignCrew    OpKind = "assign_crew"
	OpReturnToQueue OpKind = "return_to_queue"
	OpSetControlled OpKind = "set_controlled"
)

// Op is one logical mutation requested by a caller.
type Op struct {
	Kind       OpKind
	ID         orders.ID
	Sequence   []orders.ID
	CrewID     string
	Controlled bool
}

// Enqueue appends an order that is not in the queue to its end.
func Enqueue(id orders.ID) Op { return Op{Kind: OpEnqueue, ID: id} }

// Dequeue removes an order from the queue and returns it to unassigned.
func Dequeue(id orders.ID) Op { return Op{Kind: OpDequeue, ID: id} }

// Reorder replaces the whole queue order with seq, sent as one batched call.
func Reorder(seq []orders.ID) Op { return Op{Kind: OpReorder, Sequence: slices.Clone(seq)} }

// AdvanceStage moves an order one step along its workflow. The step out of
// awaiting load finishes it and takes it off the queue.
func AdvanceStage(id orders.ID) Op { return Op{Kind: OpAdvanceStage, ID: id} }

// AssignCrew sets the crew; an empty crewID clears it.
func AssignCrew(id orders.ID, crewID string) Op {
	return Op{Kind: OpAssignCrew, ID: id, CrewID: crewID}
}

// ReturnToQueue sends an order in preparation back to queued, keeping its rank.
func ReturnToQueue(id orders.ID) Op { return Op{Kind: OpReturnToQueue, ID: id} }

// SetControlled marks whether an order at the control stage has passed control.
func SetControlled(id orders.ID, controlled bool) Op {
	return Op{Kind: OpSetControlled, ID: id, Controlled: controlled}
}

// IDs returns the orders the caller named.
func (o Op) IDs() []orders.ID {
	if o.Kind == OpReorder {
		return slices.Clone(o.Sequence)
	}
	return []orders.ID{o.ID}
}

func (o Op) String() string {
	if o.Kind == OpReorder {
		return fmt.Sprintf("%s%v", o.Kind, o.Sequence)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.ID)
}

// structural ops can change queue membership or order. AdvanceStage only
// does so on the step into Finished.
func (o Op) structural(s *Store) bool {
	switch o.Kind {
	case OpEnqueue, OpDequeue, OpReorder:
		return true
	case OpAdvanceStage:
		if s == nil {
			return true
		}
		item, ok := s.Get(o.ID)
		if !ok {
			return false
		}
		next, _, err := orders.NextStep(item.WorkflowState, item.PreparationStage)
		return err == nil && next == orders.StateFinished
	default:
		return false
	}
}

// applied is the local effect of an op together with its exact inverse and
// the remote call confirming it.
type applied struct {
	touched []orders.ID
	undo    func(*Store)
	call    func(context.Context, Remote) ([]orders.Item, error)
}

// apply validates op against s and, when valid, transforms s in place.
// Nothing is changed when an error is returned.
func (o Op) apply(s *Store) (applied, error) {
	if o.Kind == OpReorder {
		return o.applyReorder(s)
	}
	before, ok := s.Get(o.ID)
	if !ok {
		return applied{}, fmt.Errorf("%s %s: %w", o.Kind, o.ID, ErrUnknownItem)
	}
	switch o.Kind {
	case OpEnqueue:
		if before.InQueue() {
			return applied{}, fmt.Errorf("enqueue %s: %w", o.ID, ErrAlreadyQueued)
		}
		next := before
		next.WorkflowState = orders.StateQueued
		next.PreparationStage = orders.StageNone
		next.QueueRank = s.QueueLen() + 1
		s.Upsert(next)
		return applied{
			touched: []orders.ID{o.ID},
			undo:    restoreWhole(before),
			call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
				return one(r.Enqueue(ctx, o.ID))
			},
		}, nil

	case OpDequeue:
		if !before.InQueue() {
			return applied{}, fmt.Errorf("dequeue %s: %w", o.ID, ErrNotQueued)
		}
		next := before
		next.QueueRank = 0
		next.WorkflowState = orders.StateUnassigned
		next.PreparationStage = orders.StageNone
		next.Controlled = false
		touched := upsertTracking(s, next)
		return applied{
			touched: touched,
			undo:    restoreWhole(before),
			call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
				return one(r.Dequeue(ctx, o.ID))
			},
		}, nil

	case OpAdvanceStage:
		state, stage, err := orders.NextStep(before.WorkflowState, before.PreparationStage)
		if err != nil {
			return applied{}, fmt.Errorf("advance %s from %s: %w", o.ID, before.Label(), ErrInvalidTransition)
		}
		next := before
		next.WorkflowState = state
		next.PreparationStage = stage
		undo := restoreFields(before)
		if state == orders.StateFinished {
			next.QueueRank = 0
			undo = restoreWhole(before)
		}
		touched := upsertTracking(s, next)
		return applied{
			touched: touched,
			undo:    undo,
			call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
				return one(r.AdvanceStage(ctx, o.ID))
			},
		}, nil

	case OpAssignCrew:
		next := before
		next.CrewID = o.CrewID
		s.Upsert(next)
		return applied{
			touched: []orders.ID{o.ID},
			undo:    restoreFields(before),
			call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
				return one(r.AssignCrew(ctx, o.ID, o.CrewID))
			},
		}, nil

	case OpReturnToQueue:
		if before.WorkflowState != orders.StateInPreparation {
			return applied{}, fmt.Errorf("return %s from %s: %w", o.ID, before.Label(), ErrInvalidTransition)
		}
		if !before.InQueue() {
			return applied{}, fmt.Errorf("return %s: %w", o.ID, ErrNotQueued)
		}
		next := before
		next.WorkflowState = orders.StateQueued
		next.PreparationStage = orders.StageNone
		s.Upsert(next)
		return applied{
			touched: []orders.ID{o.ID},
			undo:    restoreFields(before),
			call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
				return one(r.SetWorkflowState(ctx, o.ID, orders.StateQueued))
			},
		}, nil

	case OpSetControlled:
		if before.WorkflowState != orders.StateInPreparation || before.PreparationStage != orders.StageControl {
			return applied{}, fmt.Errorf("set controlled on %s at %s: %w", o.ID, before.Label(), ErrInvalidTransition)
		}
		next := before
		next.Controlled = o.Controlled
		s.Upsert(next)
		return applied{
			touched: []orders.ID{o.ID},
			undo:    restoreFields(before),
			call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
				return one(r.SetControlled(ctx, o.ID, o.Controlled))
			},
		}, nil
	}
	return applied{}, fmt.Errorf("unsupported operation %q", o.Kind)
}

func (o Op) applyReorder(s *Store) (applied, error) {
	current := s.QueueIDs()
	if len(o.Sequence) != len(current) {
		return applied{}, fmt.Errorf("reorder of %d ids on a queue of %d: %w", len(o.Sequence), len(current), ErrInvalidSequence)
	}
	seen := make(map[orders.ID]struct{}, len(o.Sequence))
	for _, id := range o.Sequence {
		if _, dup := seen[id]; dup || !slices.Contains(current, id) {
			return applied{}, fmt.Errorf("reorder id %s: %w", id, ErrInvalidSequence)
		}
		seen[id] = struct{}{}
	}
	seq := slices.Clone(o.Sequence)
	s.setQueueOrder(seq)
	return applied{
		touched: seq,
		undo:    func(s *Store) { s.setQueueOrder(current) },
		call: func(ctx context.Context, r Remote) ([]orders.Item, error) {
			return r.Reorder(ctx, seq)
		},
	}, nil
}

// upsertTracking applies next and returns its id plus every other id whose
// rank changed as a result.
func upsertTracking(s *Store, next orders.Item) []orders.ID {
	prior := s.ranks()
	s.Upsert(next)
	after := s.ranks()
	touched := []orders.ID{next.ID}
	for _, id := range s.queue {
		if id != next.ID && prior[id] != after[id] {
			touched = append(touched, id)
		}
	}
	return touched
}

// restoreWhole puts back the entire prior snapshot, rank position included.
// Used by ops holding the queue lock, so no other local op moved the queue.
func restoreWhole(before orders.Item) func(*Store) {
	return func(s *Store) {
		if _, ok := s.Get(before.ID); !ok {
			return
		}
		s.Upsert(before)
	}
}

// restoreFields puts back the prior snapshot but keeps the current rank,
// which a concurrent structural op may have renumbered.
func restoreFields(before orders.Item) func(*Store) {
	return func(s *Store) {
		cur, ok := s.Get(before.ID)
		if !ok {
			return
		}
		before.QueueRank = cur.QueueRank
		s.Upsert(before)
	}
}

func one(item orders.Item, err error) ([]orders.Item, error) {
	if err != nil {
		return nil, err
	}
	return []orders.Item{item}, nil
}
