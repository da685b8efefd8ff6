// internal/store/alerts.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"libracirc/internal/circulation"
)

// Alerts is the Postgres-backed alert store. Alert rows are append-only.
type Alerts struct {
	db *sql.DB
}

// NewAlerts creates an alert store on the given database.
func NewAlerts(db *sql.DB) *Alerts {
	return &Alerts{db: db}
}

// Create inserts an alert. The unique constraint on loan_id backs the
// one-alert-per-loan invariant; a violation surfaces as
// circulation.ErrDuplicateAlert.
func (s *Alerts) Create(ctx context.Context, alert *circulation.Alert) error {
	query := `
		INSERT INTO alerts (id, user_id, loan_id, type, status, channel, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query, alert.ID, alert.UserID, alert.LoanID, alert.Type, alert.Status, alert.Channel, alert.SentAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return circulation.ErrDuplicateAlert
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListByLoanIDs returns the alerts referencing any of the given loans.
func (s *Alerts) ListByLoanIDs(ctx context.Context, loanIDs []uuid.UUID) ([]circulation.Alert, error) {
	if len(loanIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(loanIDs))
	for i, id := range loanIDs {
		ids[i] = id.String()
	}
	return s.list(ctx, `
		SELECT id, user_id, loan_id, type, status, channel, sent_at
		FROM alerts
		WHERE loan_id = ANY($1)
	`, pq.Array(ids))
}

// ListByUser returns a user's alerts, newest first.
func (s *Alerts) ListByUser(ctx context.Context, userID uuid.UUID) ([]circulation.Alert, error) {
	return s.list(ctx, `
		SELECT id, user_id, loan_id, type, status, channel, sent_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY sent_at DESC
	`, userID)
}

func (s *Alerts) list(ctx context.Context, query string, args ...interface{}) ([]circulation.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []circulation.Alert
	for rows.Next() {
		var alert circulation.Alert
		if err := rows.Scan(
			&alert.ID,
			&alert.UserID,
			&alert.LoanID,
			&alert.Type,
			&alert.Status,
			&alert.Channel,
			&alert.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}
