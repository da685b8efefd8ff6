// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckoutParams identifies the copy, the borrower and optionally a
// distinct acting staff member. Exactly one of CopyID and CopyCode must be
// set.
type CheckoutParams struct {
	CopyID   uuid.UUID
	CopyCode string
	UserID   uuid.UUID
	// ActorID is the staff/admin performing the checkout on the borrower's
	// behalf; zero when the borrower acts for themselves.
	ActorID uuid.UUID
	// DueAt defaults to checkout time plus DefaultLoanPeriod when nil.
	DueAt *time.Time
}

// CheckoutToUserParams is the staff-mediated variant of CheckoutParams.
type CheckoutToUserParams struct {
	ActorID      uuid.UUID
	ActorRoles   []Role
	TargetUserID uuid.UUID
	CopyID       uuid.UUID
	CopyCode     string
	DueAt        *time.Time
	// RequestID links the checkout to a pending request; required for
	// staff actors that are not admins.
	RequestID uuid.UUID
}

// ReturnParams identifies the loan either directly or through its copy.
type ReturnParams struct {
	LoanID         uuid.UUID
	CopyID         uuid.UUID
	RequesterID    uuid.UUID
	RequesterRoles []Role
}

// Service defines the interface for the circulation service.
type Service interface {
	Checkout(ctx context.Context, p CheckoutParams) (*Loan, error)
	CheckoutToUser(ctx context.Context, p CheckoutToUserParams) (*Loan, error)
	ReturnLoan(ctx context.Context, p ReturnParams) (*Loan, error)
	CreateCheckoutRequest(ctx context.Context, userID, bookID uuid.UUID, note string) (*CheckoutRequest, error)
	ListCheckoutRequests(ctx context.Context, status *RequestStatus) ([]EnrichedRequest, error)
	RejectCheckoutRequest(ctx context.Context, requestID, actorID uuid.UUID, note string) (*CheckoutRequest, error)
	// RunOverdueSweep alerts and marks every overdue loan not yet alerted
	// and returns the loan ids newly alerted this run. The sweep never
	// fails; per-loan failures are exclusions from the result set.
	RunOverdueSweep(ctx context.Context) []uuid.UUID
	// ListLoans returns the loans of one user, or all loans when userID is
	// the zero UUID.
	ListLoans(ctx context.Context, userID uuid.UUID) ([]Loan, error)
	ListLoansByActor(ctx context.Context, actorID uuid.UUID) ([]Loan, error)
	ListAlerts(ctx context.Context, userID uuid.UUID) ([]Alert, error)
}
