// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// CopyStatus is the lifecycle state of a physical copy.
type CopyStatus string

const (
	CopyAvailable  CopyStatus = "available"
	CopyCheckedOut CopyStatus = "checked_out"
	CopyReserved   CopyStatus = "reserved"
	CopyArchived   CopyStatus = "archived"
	CopyLost       CopyStatus = "lost"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
)

// RequestStatus is the disposition of a checkout request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestRejected  RequestStatus = "rejected"
)

// Role is a membership role as reported by the membership service.
type Role string

const (
	RolePatron Role = "patron"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// UserStatus is the standing of a user account.
type UserStatus string

const (
	UserPendingApproval UserStatus = "pending_approval"
	UserActive          UserStatus = "active"
	UserSuspended       UserStatus = "suspended"
)

// DefaultLoanPeriod is applied when a checkout carries no explicit due date.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// Copy represents a single lendable instance of a catalog book.
type Copy struct {
	ID        uuid.UUID  `json:"id"`
	BookID    uuid.UUID  `json:"book_id"`
	Code      string     `json:"code,omitempty"`
	Status    CopyStatus `json:"status"`
	Condition string     `json:"condition,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Loan represents one copy lent to one borrower for one period.
type Loan struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	CheckedOutBy uuid.UUID  `json:"checked_out_by,omitempty"`
	CopyID       uuid.UUID  `json:"copy_id"`
	Status       LoanStatus `json:"status"`
	CheckedOutAt time.Time  `json:"checked_out_at"`
	DueAt        time.Time  `json:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
}

// CheckoutRequest is a patron's ask to borrow a book, awaiting staff
// fulfillment. The request names a book; a specific copy is chosen when the
// request is fulfilled.
type CheckoutRequest struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	BookID      uuid.UUID     `json:"book_id"`
	Status      RequestStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	ProcessedBy uuid.UUID     `json:"processed_by,omitempty"`
	Note        string        `json:"note,omitempty"`
}

// EnrichedRequest is a checkout request joined with borrower and book
// presentation fields. The enrichment is read-only and never stored.
type EnrichedRequest struct {
	CheckoutRequest
	UserEmail string `json:"user_email,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	BookTitle string `json:"book_title,omitempty"`
	BookCode  string `json:"book_code,omitempty"`
}

// Alert records a single notification issued to a user about a loan.
type Alert struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	LoanID  uuid.UUID `json:"loan_id"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
	Channel string    `json:"channel"`
	SentAt  time.Time `json:"sent_at"`
}

const (
	AlertTypeOverdue  = "overdue"
	AlertStatusSent   = "sent"
	AlertStatusFailed = "failed"
	AlertChannelInApp = "in_app"
)

// Book is the catalog view the circulation core needs: enough to know
// whether the book is archived and how to present it.
type Book struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Code   string    `json:"code,omitempty"`
	Status string    `json:"status"`
}

// BookArchived is the catalog status that blocks new checkouts.
const BookArchived = "archived"

// User is the membership view the circulation core needs.
type User struct {
	ID     uuid.UUID  `json:"id"`
	Email  string     `json:"email"`
	Name   string     `json:"name"`
	Status UserStatus `json:"status"`
	Roles  []Role     `json:"roles"`
}

// HasRole reports whether the role set contains the given role.
func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role set allows acting on other users'
// loans.
func IsPrivileged(roles []Role) bool {
	return HasRole(roles, RoleStaff) || HasRole(roles, RoleAdmin)
}
