// internal/circulation/stores.go
package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store lookups return (nil, nil) when no row matches; sentinel mapping is
// the orchestrator's job.

// ErrDuplicatePending is returned by RequestStore.Create when a pending
// request for the same (user, book) pair already exists.
var ErrDuplicatePending = errors.New("pending request already exists for user and book")

// ErrDuplicateAlert is returned by AlertStore.Create when the loan already
// has an alert.
var ErrDuplicateAlert = errors.New("alert already exists for loan")

// CopyStore persists physical copies and their status transitions.
type CopyStore interface {
	Create(ctx context.Context, c *Copy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Copy, error)
	// GetByCode resolves a copy by its human-readable code,
	// case-insensitively.
	GetByCode(ctx context.Context, code string) (*Copy, error)
	// MarkCheckedOut transitions the copy from available to checked_out in
	// a single conditional write. It reports false when the copy was not
	// available at the moment of the write; callers must trust only this
	// outcome, never a prior read.
	MarkCheckedOut(ctx context.Context, id uuid.UUID) (bool, error)
	// SetStatus is the unconditional transition used by return and
	// administrative flows. It must never be used on the checkout path.
	SetStatus(ctx context.Context, id uuid.UUID, status CopyStatus) error
}

// LoanStore persists loans.
type LoanStore interface {
	Create(ctx context.Context, loan *Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)
	// FindActiveByCopy returns the loan in status active or overdue that
	// references the copy, if any.
	FindActiveByCopy(ctx context.Context, copyID uuid.UUID) (*Loan, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Loan, error)
	ListByActor(ctx context.Context, actorID uuid.UUID) ([]Loan, error)
	ListAll(ctx context.Context) ([]Loan, error)
	// FindOverdue returns loans in status active whose due timestamp is
	// strictly before asOf.
	FindOverdue(ctx context.Context, asOf time.Time) ([]Loan, error)
	// MarkReturned finalizes the loan, conditional on it still being open
	// (active or overdue). Returns (nil, nil) when no open loan matched.
	MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (*Loan, error)
	// MarkOverdue transitions an active loan to overdue.
	MarkOverdue(ctx context.Context, id uuid.UUID) error
}

// RequestStore persists checkout requests.
type RequestStore interface {
	Create(ctx context.Context, req *CheckoutRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*CheckoutRequest, error)
	FindPendingByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*CheckoutRequest, error)
	List(ctx context.Context, status *RequestStatus) ([]CheckoutRequest, error)
	// SetStatus finalizes the request, conditional on it still being
	// pending. Returns (nil, nil) when no pending request matched.
	SetStatus(ctx context.Context, id uuid.UUID, status RequestStatus, processedBy uuid.UUID, note string) (*CheckoutRequest, error)
}

// AlertStore persists alerts. Alerts are append-only.
type AlertStore interface {
	Create(ctx context.Context, alert *Alert) error
	ListByLoanIDs(ctx context.Context, loanIDs []uuid.UUID) ([]Alert, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Alert, error)
}

// Catalog is the external book-lookup collaborator.
type Catalog interface {
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
}

// Membership is the external identity/role-lookup collaborator.
type Membership interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}
