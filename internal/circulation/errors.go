// internal/circulation/errors.go
package circulation

import "errors"

// Failure classes the HTTP layer (and any other caller) can branch on.
// Conflicts and failed preconditions are retryable-with-different-input;
// not-found and forbidden are not.
var (
	ErrCopyNotFound        = errors.New("copy not found")
	ErrCopyNotAvailable    = errors.New("copy is no longer available")
	ErrBookNotFound        = errors.New("book not found")
	ErrBookArchived        = errors.New("book is archived")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrActiveLoanNotFound  = errors.New("active loan not found")
	ErrLoanNotOpen         = errors.New("loan is not active or overdue")
	ErrUserNotFound        = errors.New("target user not found")
	ErrUserNotActive       = errors.New("target user is not active")
	ErrNotLoanOwner        = errors.New("cannot return another user's loan")
	ErrStaffNeedsRequest   = errors.New("staff can only checkout against an existing request")
	ErrRequestNotPending   = errors.New("checkout request not found or already processed")
	ErrRequestUserMismatch = errors.New("checkout request does not belong to selected patron")
	ErrRequestBookMismatch = errors.New("selected copy does not match requested book")
	ErrCopyRefRequired     = errors.New("copy id or copy code is required")
	ErrLoanRefRequired     = errors.New("loan id or copy id is required")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// IsNotFound reports whether err is one of the not-found failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCopyNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrActiveLoanNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsConflict reports whether err is a state conflict: the referenced
// records exist but are not in a state that permits the operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCopyNotAvailable) ||
		errors.Is(err, ErrLoanNotOpen) ||
		errors.Is(err, ErrRequestNotPending) ||
		errors.Is(err, ErrRequestUserMismatch) ||
		errors.Is(err, ErrRequestBookMismatch)
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotLoanOwner) || errors.Is(err, ErrStaffNeedsRequest)
}

// IsPreconditionFailed reports whether err is a failed business
// precondition on otherwise valid input.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrBookArchived) || errors.Is(err, ErrUserNotActive)
}
