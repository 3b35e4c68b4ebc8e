package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"loadboard/internal/orders"
)

// Precondition failures reported before anything is applied locally.
var (
	ErrUnknownItem       = errors.New("unknown order")
	ErrAlreadyQueued     = errors.New("order is already queued")
	ErrNotQueued         = errors.New("order is not queued")
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrInvalidSequence   = errors.New("reorder sequence does not match the queue")
	ErrEngineStopped     = errors.New("reconcile engine stopped")
)

// ErrorKind classifies reconciliation failures.
type ErrorKind string

const (
	// KindRemoteRejected means the server declined the mutation.
	KindRemoteRejected ErrorKind = "remote_rejected"
	// KindTransportError means the server could not be reached or answered garbage.
	KindTransportError ErrorKind = "transport_error"
	// KindStaleSnapshot marks local state a resync found diverged. It is logged, never surfaced.
	KindStaleSnapshot ErrorKind = "stale_snapshot"
)

// MutationError is surfaced when a remote mutation fails and its local
// effect has been rolled back.
type MutationError struct {
	Op   OpKind
	IDs  []orders.ID
	kind ErrorKind
	Err  error
}

func (e *MutationError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Op, strings.Join(ids, ","), e.kind, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Kind reports whether the server rejected the call or it never completed.
func (e *MutationError) Kind() ErrorKind { return e.kind }

// rejection is implemented by remote errors that carry a server refusal.
type rejection interface {
	Rejected() bool
}

// classify maps a remote error onto the reconciliation taxonomy.
func classify(err error) ErrorKind {
	var rej rejection
	if errors.As(err, &rej) && rej.Rejected() {
		return KindRemoteRejected
	}
	return KindTransportError
}

// IsRejected reports whether err is a mutation the server declined.
func IsRejected(err error) bool {
	var mutErr *MutationError
	if errors.As(err, &mutErr) {
		return mutErr.kind == KindRemoteRejected
	}
	return classify(err) == KindRemoteRejected
}
