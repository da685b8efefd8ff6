// internal/store/requests.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"libracirc/internal/circulation"
)

const requestColumns = `id, user_id, book_id, status, requested_at, processed_at, processed_by, note`

// Requests is the Postgres-backed checkout request store.
type Requests struct {
	db *sql.DB
}

// NewRequests creates a request store on the given database.
func NewRequests(db *sql.DB) *Requests {
	return &Requests{db: db}
}

// Create inserts a new request. A partial unique index on (user_id,
// book_id) WHERE status = 'pending' backs the one-pending-per-pair
// invariant; a violation surfaces as circulation.ErrDuplicatePending.
func (s *Requests) Create(ctx context.Context, req *circulation.CheckoutRequest) error {
	query := `
		INSERT INTO loan_requests (id, user_id, book_id, status, requested_at, note)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`
	_, err := s.db.ExecContext(ctx, query, req.ID, req.UserID, req.BookID, req.Status, req.RequestedAt, req.Note)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return circulation.ErrDuplicatePending
		}
		return fmt.Errorf("failed to insert checkout request: %w", err)
	}
	return nil
}

// GetByID retrieves a request, or (nil, nil) when none exists.
func (s *Requests) GetByID(ctx context.Context, id uuid.UUID) (*circulation.CheckoutRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM loan_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

// FindPendingByUserAndBook returns the pending request for a (user, book)
// pair, if any.
func (s *Requests) FindPendingByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*circulation.CheckoutRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM loan_requests
		WHERE user_id = $1 AND book_id = $2 AND status = $3
	`, userID, bookID, circulation.RequestPending)
	return scanRequest(row)
}

// List returns requests, optionally filtered by status, newest first.
func (s *Requests) List(ctx context.Context, status *circulation.RequestStatus) ([]circulation.CheckoutRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM loan_requests
	`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY requested_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout requests: %w", err)
	}
	defer rows.Close()

	var requests []circulation.CheckoutRequest
	for rows.Next() {
		req, err := scanRequestRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkout requests: %w", err)
	}
	return requests, nil
}

// SetStatus finalizes the request, conditional on it still being pending.
// Returns (nil, nil) when no pending request matched.
func (s *Requests) SetStatus(ctx context.Context, id uuid.UUID, status circulation.RequestStatus, processedBy uuid.UUID, note string) (*circulation.CheckoutRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE loan_requests
		SET status = $1, processed_by = $2, processed_at = $3, note = COALESCE(NULLIF($4, ''), note)
		WHERE id = $5 AND status = $6
		RETURNING `+requestColumns+`
	`, status, processedBy, time.Now().UTC(), note, id, circulation.RequestPending)
	return scanRequest(row)
}

func scanRequest(row *sql.Row) (*circulation.CheckoutRequest, error) {
	req, err := scanRequestRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func scanRequestRow(scan func(...interface{}) error) (*circulation.CheckoutRequest, error) {
	req := &circulation.CheckoutRequest{}
	var processedAt sql.NullTime
	var processedBy uuid.NullUUID
	var note sql.NullString
	err := scan(
		&req.ID,
		&req.UserID,
		&req.BookID,
		&req.Status,
		&req.RequestedAt,
		&processedAt,
		&processedBy,
		&note,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkout request: %w", err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		req.ProcessedAt = &t
	}
	req.ProcessedBy = processedBy.UUID
	req.Note = note.String
	return req, nil
}
