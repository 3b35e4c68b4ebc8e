package orders

import (
	"errors"
	"strings"
	"time"
)

// ID identifies an order. Values are opaque to every consumer.
type ID string

// WorkflowState is the top-level lifecycle stage of an order.
type WorkflowState string

const (
	StateUnassigned    WorkflowState = "unassigned"
	StateQueued        WorkflowState = "queued"
	StateInPreparation WorkflowState = "in_preparation"
	StateFinished      WorkflowState = "finished"
)

// PreparationStage is the sub-state while an order is in preparation.
type PreparationStage string

const (
	StageNone         PreparationStage = ""
	StageControl      PreparationStage = "control"
	StageAwaitingLoad PreparationStage = "awaiting_load"
)

// ErrNoNextStage is returned when an order has no successor in the workflow.
var ErrNoNextStage = errors.New("no next workflow stage")

var allStates = []WorkflowState{
	StateUnassigned,
	StateQueued,
	StateInPreparation,
	StateFinished,
}

// Item is a snapshot of one order. All fields are comparable so two
// snapshots can be checked for equality with ==.
type Item struct {
	ID               ID
	Reference        string
	WorkflowState    WorkflowState
	PreparationStage PreparationStage
	QueueRank        int // zero when the order is not in the queue
	CrewID           string
	Controlled       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InQueue reports whether the order currently holds a queue rank.
func (i Item) InQueue() bool {
	return i.QueueRank > 0
}

// AllStates returns the ordered list of known workflow states.
func AllStates() []WorkflowState {
	cp := make([]WorkflowState, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known WorkflowState.
func ParseState(value string) (WorkflowState, bool) {
	normalized := WorkflowState(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// ParseStage converts a string into a PreparationStage. Empty and "none"
// both map to StageNone.
func ParseStage(value string) (PreparationStage, bool) {
	switch PreparationStage(strings.ToLower(strings.TrimSpace(value))) {
	case "", "none":
		return StageNone, true
	case StageControl:
		return StageControl, true
	case StageAwaitingLoad:
		return StageAwaitingLoad, true
	default:
		return "", false
	}
}

// NextStep returns the workflow position following (state, stage):
//
//	queued -> in_preparation -> control -> awaiting_load -> finished
func NextStep(state WorkflowState, stage PreparationStage) (WorkflowState, PreparationStage, error) {
	switch state {
	case StateQueued:
		return StateInPreparation, StageNone, nil
	case StateInPreparation:
		switch stage {
		case StageNone:
			return StateInPreparation, StageControl, nil
		case StageControl:
			return StateInPreparation, StageAwaitingLoad, nil
		case StageAwaitingLoad:
			return StateFinished, StageNone, nil
		}
	}
	return state, stage, ErrNoNextStage
}

// Label returns a short display string for the workflow position.
func (i Item) Label() string {
	if i.WorkflowState == StateInPreparation && i.PreparationStage != StageNone {
		return string(i.PreparationStage)
	}
	return string(i.WorkflowState)
}
