package orderstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"loadboard/internal/orders"
)

// Change is the result of a single-order mutation: the order itself plus
// every other order whose queue rank moved in the same transaction.
type Change struct {
	Order      orders.Item
	Renumbered []orders.Item
}

// Create inserts an unassigned order.
func (s *Store) Create(ctx context.Context, reference, crewID string) (orders.Item, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return orders.Item{}, fmt.Errorf("create order: reference required: %w", ErrInvalid)
	}
	var created orders.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if crewID != "" {
			if err := crewExistsTx(ctx, tx, crewID); err != nil {
				return err
			}
		}
		now := s.clock()
		created = orders.Item{
			ID:            orders.ID(uuid.NewString()),
			Reference:     reference,
			WorkflowState: orders.StateUnassigned,
			CrewID:        crewID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(created.ID), created.Reference, string(created.WorkflowState), "",
			nil, nullableString(crewID), 0, formatTime(now), formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return orders.Item{}, err
	}
	return created, nil
}

// Get fetches one order.
func (s *Store) Get(ctx context.Context, id orders.ID) (orders.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, string(id))
	item, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Item{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return orders.Item{}, fmt.Errorf("get order: %w", err)
	}
	return item, nil
}

// ListQueued returns the queue in rank order.
func (s *Store) ListQueued(ctx context.Context) ([]orders.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE queue_rank IS NOT NULL ORDER BY queue_rank, id`)
	if err != nil {
		return nil, fmt.Errorf("query queued: %w", err)
	}
	return scanOrders(rows)
}

// ListUnqueued returns orders without a rank, oldest first.
func (s *Store) ListUnqueued(ctx context.Context) ([]orders.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE queue_rank IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query unqueued: %w", err)
	}
	return scanOrders(rows)
}

// ListByState returns orders in state, queue members first in rank order.
func (s *Store) ListByState(ctx context.Context, state orders.WorkflowState) ([]orders.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE workflow_state = ?
         ORDER BY queue_rank IS NULL, queue_rank, created_at, id`, string(state))
	if err != nil {
		return nil, fmt.Errorf("query by state: %w", err)
	}
	return scanOrders(rows)
}

// Counts returns the number of orders per workflow state.
func (s *Store) Counts(ctx context.Context) (map[orders.WorkflowState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT workflow_state, COUNT(*) FROM orders GROUP BY workflow_state`)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()
	counts := make(map[orders.WorkflowState]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[orders.WorkflowState(state)] = n
	}
	return counts, rows.Err()
}

// Enqueue appends an order without a rank to the queue tail.
func (s *Store) Enqueue(ctx context.Context, id orders.ID) (Change, error) {
	return s.mutate(ctx, id, func(tx *sql.Tx, item *orders.Item) error {
		if item.InQueue() {
			return fmt.Errorf("order %s already queued at rank %d: %w", id, item.QueueRank, ErrConflict)
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE queue_rank IS NOT NULL`).Scan(&n); err != nil {
			return fmt.Errorf("count queue: %w", err)
		}
		item.WorkflowState = orders.StateQueued
		item.PreparationStage = orders.StageNone
		item.QueueRank = n + 1
		return nil
	})
}

// Dequeue removes an order from the queue and returns it to unassigned.
func (s *Store) Dequeue(ctx context.Context, id orders.ID) (Change, error) {
	return s.mutate(ctx, id, func(_ *sql.Tx, item *orders.Item) error {
		if !item.InQueue() {
			return fmt.Errorf("order %s is not queued: %w", id, ErrConflict)
		}
		item.QueueRank = 0
		item.WorkflowState = orders.StateUnassigned
		item.PreparationStage = orders.StageNone
		item.Controlled = false
		return nil
	})
}

// Advance moves an order one step through preparation. Leaving the control
// stage requires the order to be marked controlled; reaching finished
// releases its queue rank.
func (s *Store) Advance(ctx context.Context, id orders.ID) (Change, error) {
	return s.mutate(ctx, id, func(_ *sql.Tx, item *orders.Item) error {
		state, stage, err := orders.NextStep(item.WorkflowState, item.PreparationStage)
		if err != nil {
			return fmt.Errorf("advance order %s from %s: %w", id, item.Label(), ErrConflict)
		}
		if item.PreparationStage == orders.StageControl && !item.Controlled {
			return fmt.Errorf("order %s must be controlled before loading: %w", id, ErrConflict)
		}
		item.WorkflowState = state
		item.PreparationStage = stage
		if state == orders.StateFinished {
			item.QueueRank = 0
		}
		return nil
	})
}

// SetState moves an order to state. Only the return from preparation to
// the queue is a valid direct transition; the order keeps its rank.
func (s *Store) SetState(ctx context.Context, id orders.ID, state orders.WorkflowState) (Change, error) {
	return s.mutate(ctx, id, func(_ *sql.Tx, item *orders.Item) error {
		if state != orders.StateQueued || item.WorkflowState != orders.StateInPreparation {
			return fmt.Errorf("order %s cannot move from %s to %s: %w", id, item.Label(), state, ErrConflict)
		}
		if !item.InQueue() {
			return fmt.Errorf("order %s has no queue rank to return to: %w", id, ErrConflict)
		}
		item.WorkflowState = orders.StateQueued
		item.PreparationStage = orders.StageNone
		return nil
	})
}

// AssignCrew sets the order's crew; an empty crewID clears it.
func (s *Store) AssignCrew(ctx context.Context, id orders.ID, crewID string) (Change, error) {
	return s.mutate(ctx, id, func(tx *sql.Tx, item *orders.Item) error {
		if crewID != "" {
			if err := crewExistsTx(ctx, tx, crewID); err != nil {
				return err
			}
		}
		item.CrewID = crewID
		return nil
	})
}

// SetControlled records the control check. Only valid at the control stage.
func (s *Store) SetControlled(ctx context.Context, id orders.ID, controlled bool) (Change, error) {
	return s.mutate(ctx, id, func(_ *sql.Tx, item *orders.Item) error {
		if item.WorkflowState != orders.StateInPreparation || item.PreparationStage != orders.StageControl {
			return fmt.Errorf("order %s is at %s, not control: %w", id, item.Label(), ErrConflict)
		}
		item.Controlled = controlled
		return nil
	})
}

// Reorder replaces the queue order. ids must be a permutation of the
// current queue. It returns the whole queue and the orders whose rank moved.
func (s *Store) Reorder(ctx context.Context, ids []orders.ID) (queue, changed []orders.Item, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := queueTx(ctx, tx)
		if err != nil {
			return err
		}
		if len(ids) != len(current) {
			return fmt.Errorf("reorder names %d orders, queue holds %d: %w", len(ids), len(current), ErrConflict)
		}
		byID := make(map[orders.ID]orders.Item, len(current))
		for _, item := range current {
			byID[item.ID] = item
		}
		queue, changed = make([]orders.Item, 0, len(ids)), nil
		for i, id := range ids {
			item, ok := byID[id]
			if !ok {
				return fmt.Errorf("reorder: order %s is not queued or listed twice: %w", id, ErrConflict)
			}
			delete(byID, id)
			if item.QueueRank != i+1 {
				item.QueueRank = i + 1
				item.UpdatedAt = s.stamp(item.UpdatedAt)
				if err := writeTx(ctx, tx, item); err != nil {
					return err
				}
				changed = append(changed, item)
			}
			queue = append(queue, item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return queue, changed, nil
}

// Delete removes an order and repacks the queue. It returns the orders
// whose rank moved.
func (s *Store) Delete(ctx context.Context, id orders.ID) ([]orders.Item, error) {
	var renumbered []orders.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		item, err := getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, string(id)); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		if item.InQueue() {
			renumbered, err = s.repackTx(ctx, tx, "")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return renumbered, nil
}

// mutate loads the order, lets fn change it, persists the result and repacks
// the queue when membership changed.
func (s *Store) mutate(ctx context.Context, id orders.ID, fn func(*sql.Tx, *orders.Item) error) (Change, error) {
	var change Change
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		item := before
		if err := fn(tx, &item); err != nil {
			return err
		}
		item.UpdatedAt = s.stamp(before.UpdatedAt)
		if err := writeTx(ctx, tx, item); err != nil {
			return err
		}
		change = Change{Order: item}
		if before.InQueue() && !item.InQueue() {
			change.Renumbered, err = s.repackTx(ctx, tx, id)
		}
		return err
	})
	if err != nil {
		return Change{}, err
	}
	return change, nil
}

// repackTx renumbers the queue to 1..N, stamping every order whose rank
// changed except skip.
func (s *Store) repackTx(ctx context.Context, tx *sql.Tx, skip orders.ID) ([]orders.Item, error) {
	queue, err := queueTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	var renumbered []orders.Item
	for i, item := range queue {
		if item.QueueRank == i+1 || item.ID == skip {
			continue
		}
		item.QueueRank = i + 1
		item.UpdatedAt = s.stamp(item.UpdatedAt)
		if err := writeTx(ctx, tx, item); err != nil {
			return nil, err
		}
		renumbered = append(renumbered, item)
	}
	return renumbered, nil
}

func getTx(ctx context.Context, tx *sql.Tx, id orders.ID) (orders.Item, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, string(id))
	item, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Item{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return orders.Item{}, fmt.Errorf("get order: %w", err)
	}
	return item, nil
}

func queueTx(ctx context.Context, tx *sql.Tx) ([]orders.Item, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE queue_rank IS NOT NULL ORDER BY queue_rank, id`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return scanOrders(rows)
}

func writeTx(ctx context.Context, tx *sql.Tx, item orders.Item) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders
         SET reference = ?, workflow_state = ?, preparation_stage = ?, queue_rank = ?,
             crew_id = ?, controlled = ?, updated_at = ?
         WHERE id = ?`,
		item.Reference,
		string(item.WorkflowState),
		string(item.PreparationStage),
		nullableRank(item.QueueRank),
		nullableString(item.CrewID),
		boolToInt(item.Controlled),
		formatTime(item.UpdatedAt),
		string(item.ID),
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", item.ID, err)
	}
	return nil
}
