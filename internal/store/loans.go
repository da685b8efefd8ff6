// internal/store/loans.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"libracirc/internal/circulation"
)

const loanColumns = `id, user_id, checked_out_by, copy_id, status, checked_out_at, due_at, returned_at`

// Loans is the Postgres-backed loan store.
type Loans struct {
	db *sql.DB
}

// NewLoans creates a loan store on the given database.
func NewLoans(db *sql.DB) *Loans {
	return &Loans{db: db}
}

// Create inserts a new loan row.
func (s *Loans) Create(ctx context.Context, loan *circulation.Loan) error {
	query := `
		INSERT INTO loans (id, user_id, checked_out_by, copy_id, status, checked_out_at, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var actor interface{}
	if loan.CheckedOutBy != uuid.Nil {
		actor = loan.CheckedOutBy
	}
	_, err := s.db.ExecContext(ctx, query, loan.ID, loan.UserID, actor, loan.CopyID, loan.Status, loan.CheckedOutAt, loan.DueAt)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

// GetByID retrieves a loan, or (nil, nil) when none exists.
func (s *Loans) GetByID(ctx context.Context, id uuid.UUID) (*circulation.Loan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE id = $1
	`, id)
	return scanLoan(row)
}

// FindActiveByCopy returns the open (active or overdue) loan referencing
// the copy, if any. The partial unique index on loans guarantees at most
// one such row.
func (s *Loans) FindActiveByCopy(ctx context.Context, copyID uuid.UUID) (*circulation.Loan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE copy_id = $1 AND status IN ($2, $3)
	`, copyID, circulation.LoanActive, circulation.LoanOverdue)
	return scanLoan(row)
}

// ListByUser returns a user's loans, most recent checkout first.
func (s *Loans) ListByUser(ctx context.Context, userID uuid.UUID) ([]circulation.Loan, error) {
	return s.list(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE user_id = $1
		ORDER BY checked_out_at DESC
	`, userID)
}

// ListByActor returns the loans checked out by a given staff actor.
func (s *Loans) ListByActor(ctx context.Context, actorID uuid.UUID) ([]circulation.Loan, error) {
	return s.list(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE checked_out_by = $1
		ORDER BY checked_out_at DESC
	`, actorID)
}

// ListAll returns every loan, most recent checkout first.
func (s *Loans) ListAll(ctx context.Context) ([]circulation.Loan, error) {
	return s.list(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		ORDER BY checked_out_at DESC
	`)
}

// FindOverdue returns active loans due strictly before asOf.
func (s *Loans) FindOverdue(ctx context.Context, asOf time.Time) ([]circulation.Loan, error) {
	return s.list(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE status = $1 AND due_at < $2
		ORDER BY due_at ASC
	`, circulation.LoanActive, asOf)
}

// MarkReturned finalizes the loan, conditional on it still being open.
// Returns (nil, nil) when the loan does not exist or was already returned.
func (s *Loans) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (*circulation.Loan, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE loans
		SET status = $1, returned_at = $2
		WHERE id = $3 AND status IN ($4, $5)
		RETURNING `+loanColumns+`
	`, circulation.LoanReturned, at, id, circulation.LoanActive, circulation.LoanOverdue)
	return scanLoan(row)
}

// MarkOverdue transitions an active loan to overdue.
func (s *Loans) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE loans
		SET status = $1
		WHERE id = $2 AND status = $3
	`, circulation.LoanOverdue, id, circulation.LoanActive)
	if err != nil {
		return fmt.Errorf("failed to mark loan overdue: %w", err)
	}
	return nil
}

func (s *Loans) list(ctx context.Context, query string, args ...interface{}) ([]circulation.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []circulation.Loan
	for rows.Next() {
		loan, err := scanLoanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}
	return loans, nil
}

func scanLoan(row *sql.Row) (*circulation.Loan, error) {
	loan, err := scanLoanRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return loan, err
}

func scanLoanRow(scan func(...interface{}) error) (*circulation.Loan, error) {
	loan := &circulation.Loan{}
	var actor uuid.NullUUID
	var returnedAt sql.NullTime
	err := scan(
		&loan.ID,
		&loan.UserID,
		&actor,
		&loan.CopyID,
		&loan.Status,
		&loan.CheckedOutAt,
		&loan.DueAt,
		&returnedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan loan: %w", err)
	}
	loan.CheckedOutBy = actor.UUID
	if returnedAt.Valid {
		t := returnedAt.Time
		loan.ReturnedAt = &t
	}
	return loan, nil
}
