package orderstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Crew is a team orders can be assigned to.
type Crew struct {
	ID   string
	Name string
}

// CreateCrew registers a crew with a unique name.
func (s *Store) CreateCrew(ctx context.Context, name string) (Crew, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Crew{}, fmt.Errorf("create crew: name required: %w", ErrInvalid)
	}
	crew := Crew{ID: uuid.NewString(), Name: name}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM crews WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check crew name: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("crew %q already exists: %w", name, ErrConflict)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO crews (id, name, created_at) VALUES (?, ?, ?)`,
			crew.ID, crew.Name, formatTime(s.clock())); err != nil {
			return fmt.Errorf("insert crew: %w", err)
		}
		return nil
	})
	if err != nil {
		return Crew{}, err
	}
	return crew, nil
}

// ListCrews returns every crew sorted by name.
func (s *Store) ListCrews(ctx context.Context) ([]Crew, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM crews ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query crews: %w", err)
	}
	defer rows.Close()
	var crews []Crew
	for rows.Next() {
		var c Crew
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		crews = append(crews, c)
	}
	return crews, rows.Err()
}

func crewExistsTx(ctx context.Context, tx *sql.Tx, id string) error {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM crews WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("crew %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup crew: %w", err)
	}
	return nil
}
