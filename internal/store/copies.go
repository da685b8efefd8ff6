// internal/store/copies.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"libracirc/internal/circulation"
)

// Copies is the Postgres-backed copy store.
type Copies struct {
	db *sql.DB
}

// NewCopies creates a copy store on the given database.
func NewCopies(db *sql.DB) *Copies {
	return &Copies{db: db}
}

// Create inserts a new copy row.
func (s *Copies) Create(ctx context.Context, c *circulation.Copy) error {
	query := `
		INSERT INTO copies (id, book_id, code, status, condition, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6)
	`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.BookID, c.Code, c.Status, c.Condition, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert copy: %w", err)
	}
	return nil
}

// GetByID retrieves a copy, or (nil, nil) when none exists.
func (s *Copies) GetByID(ctx context.Context, id uuid.UUID) (*circulation.Copy, error) {
	return s.getOne(ctx, `
		SELECT id, book_id, code, status, condition, created_at
		FROM copies
		WHERE id = $1
	`, id)
}

// GetByCode retrieves a copy by its code, case-insensitively.
func (s *Copies) GetByCode(ctx context.Context, code string) (*circulation.Copy, error) {
	return s.getOne(ctx, `
		SELECT id, book_id, code, status, condition, created_at
		FROM copies
		WHERE UPPER(code) = UPPER($1)
	`, code)
}

func (s *Copies) getOne(ctx context.Context, query string, arg interface{}) (*circulation.Copy, error) {
	c := &circulation.Copy{}
	var code, condition sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID,
		&c.BookID,
		&code,
		&c.Status,
		&condition,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get copy: %w", err)
	}
	c.Code = code.String
	c.Condition = condition.String
	return c, nil
}

// MarkCheckedOut is the conditional available → checked_out transition.
// The precondition lives in the statement's predicate, so two concurrent
// claims of the same copy cannot both see rows affected.
func (s *Copies) MarkCheckedOut(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE copies
		SET status = $1
		WHERE id = $2 AND status = $3
	`, circulation.CopyCheckedOut, id, circulation.CopyAvailable)
	if err != nil {
		return false, fmt.Errorf("failed to mark copy checked out: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetStatus is the unconditional transition for return and administrative
// flows.
func (s *Copies) SetStatus(ctx context.Context, id uuid.UUID, status circulation.CopyStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE copies
		SET status = $1
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update copy status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("copy %s not found", id)
	}
	return nil
}
