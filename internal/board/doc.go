// Package board renders the engine's order view for terminals: a ranked
// queue table, the remaining orders and the queue/unqueued counters a badge
// display would show. Watch redraws on every engine change, clearing the
// screen on a terminal and appending otherwise.
package board
