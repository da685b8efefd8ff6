// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"libracirc/internal/audit"
)

// service implements the Service interface. It holds no state between
// calls; correctness under concurrent invocations rests entirely on the
// conditional writes the stores expose.
type service struct {
	copies     CopyStore
	loans      LoanStore
	requests   RequestStore
	alerts     AlertStore
	catalog    Catalog
	membership Membership
	auditSink  audit.Sink
	tracer     trace.Tracer

	requestLimiter *rate.Limiter
}

// NewService creates a new circulation service instance.
func NewService(copies CopyStore, loans LoanStore, requests RequestStore, alerts AlertStore, catalog Catalog, membership Membership, auditSink audit.Sink) Service {
	return &service{
		copies:         copies,
		loans:          loans,
		requests:       requests,
		alerts:         alerts,
		catalog:        catalog,
		membership:     membership,
		auditSink:      auditSink,
		tracer:         otel.Tracer("libracirc/circulation"),
		requestLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 request creations per minute
	}
}

// resolveCopy resolves the target copy from an id or a human-readable code.
// Codes are matched case-insensitively after trimming.
func (s *service) resolveCopy(ctx context.Context, copyID uuid.UUID, copyCode string) (*Copy, error) {
	if copyID != uuid.Nil {
		cp, err := s.copies.GetByID(ctx, copyID)
		if err != nil {
			return nil, fmt.Errorf("failed to get copy: %w", err)
		}
		if cp == nil {
			return nil, ErrCopyNotFound
		}
		return cp, nil
	}
	if code := strings.TrimSpace(copyCode); code != "" {
		cp, err := s.copies.GetByCode(ctx, strings.ToUpper(code))
		if err != nil {
			return nil, fmt.Errorf("failed to get copy by code: %w", err)
		}
		if cp == nil {
			return nil, ErrCopyNotFound
		}
		return cp, nil
	}
	return nil, ErrCopyRefRequired
}

// Checkout orchestrates the core checkout protocol.
func (s *service) Checkout(ctx context.Context, p CheckoutParams) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout",
		trace.WithAttributes(
			attribute.String("user.id", p.UserID.String()),
		),
	)
	defer span.End()

	// Step 1: Resolve the target copy
	cp, err := s.resolveCopy(ctx, p.CopyID, p.CopyCode)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("copy.id", cp.ID.String()))

	// Step 2: Verify the owning book is not archived
	book, err := s.catalog.GetBook(ctx, cp.BookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	if book.Status == BookArchived {
		return nil, ErrBookArchived
	}

	// Step 3: Claim the copy. The availability check and the status write
	// are one conditional operation; only its outcome is trusted. A failed
	// claim is terminal, not retried.
	claimed, err := s.copies.MarkCheckedOut(ctx, cp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark copy checked out: %w", err)
	}
	if !claimed {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return nil, ErrCopyNotAvailable
	}

	// Step 4: Create the loan record
	now := time.Now().UTC()
	dueAt := now.Add(DefaultLoanPeriod)
	if p.DueAt != nil {
		dueAt = p.DueAt.UTC()
	}
	actor := p.ActorID
	if actor == uuid.Nil {
		actor = p.UserID
	}
	loan := &Loan{
		ID:           uuid.New(),
		UserID:       p.UserID,
		CheckedOutBy: actor,
		CopyID:       cp.ID,
		Status:       LoanActive,
		CheckedOutAt: now,
		DueAt:        dueAt,
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		// Step 5: Compensate the claim. Best-effort: the original failure
		// stays the one reported.
		log.Printf("compensating failed checkout: releasing copy %s", cp.ID)
		if rbErr := s.copies.SetStatus(ctx, cp.ID, CopyAvailable); rbErr != nil {
			log.Printf("failed to release copy %s after failed checkout: %v", cp.ID, rbErr)
		}
		return nil, fmt.Errorf("failed to create loan: %w", err)
	}

	// Step 6: Audit (best-effort)
	s.auditSink.Record(ctx, audit.Event{
		ActorID:    actor,
		Action:     "loan.checkout",
		EntityType: "loan",
		EntityID:   loan.ID,
	})

	return loan, nil
}

// CheckoutToUser is the staff-mediated checkout path.
func (s *service) CheckoutToUser(ctx context.Context, p CheckoutToUserParams) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout_to_user",
		trace.WithAttributes(
			attribute.String("actor.id", p.ActorID.String()),
			attribute.String("target.id", p.TargetUserID.String()),
		),
	)
	defer span.End()

	isAdmin := HasRole(p.ActorRoles, RoleAdmin)
	if HasRole(p.ActorRoles, RoleStaff) && !isAdmin && p.RequestID == uuid.Nil {
		return nil, ErrStaffNeedsRequest
	}

	target, err := s.membership.GetUser(ctx, p.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get target user: %w", err)
	}
	if target == nil {
		return nil, ErrUserNotFound
	}
	if target.Status != UserActive {
		return nil, ErrUserNotActive
	}

	cp, err := s.resolveCopy(ctx, p.CopyID, p.CopyCode)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCopyAvailable(ctx, cp); err != nil {
		return nil, err
	}

	if p.RequestID != uuid.Nil {
		request, err := s.requests.GetByID(ctx, p.RequestID)
		if err != nil {
			return nil, fmt.Errorf("failed to get checkout request: %w", err)
		}
		if request == nil || request.Status != RequestPending {
			return nil, ErrRequestNotPending
		}
		if request.UserID != p.TargetUserID {
			return nil, ErrRequestUserMismatch
		}
		if cp.BookID != request.BookID {
			return nil, ErrRequestBookMismatch
		}
	}

	loan, err := s.Checkout(ctx, CheckoutParams{
		CopyID:  cp.ID,
		UserID:  p.TargetUserID,
		ActorID: p.ActorID,
		DueAt:   p.DueAt,
	})
	if err != nil {
		return nil, err
	}

	// The request is finalized only after the checkout succeeded; a failed
	// checkout leaves it pending.
	if p.RequestID != uuid.Nil {
		note := fmt.Sprintf("Fulfilled with copy %s", cp.ID)
		updated, err := s.requests.SetStatus(ctx, p.RequestID, RequestFulfilled, p.ActorID, note)
		if err != nil {
			return loan, fmt.Errorf("failed to fulfill checkout request: %w", err)
		}
		if updated == nil {
			log.Printf("checkout request %s was processed concurrently; loan %s stands", p.RequestID, loan.ID)
		}
	}

	return loan, nil
}

// ensureCopyAvailable is the advisory pre-check before the conditional
// claim: the copy must read available and no open loan may reference it.
// The two sources can only disagree transiently; the conditional write in
// Checkout remains the authoritative gate either way.
func (s *service) ensureCopyAvailable(ctx context.Context, cp *Copy) error {
	if cp.Status != CopyAvailable {
		return ErrCopyNotAvailable
	}
	existing, err := s.loans.FindActiveByCopy(ctx, cp.ID)
	if err != nil {
		return fmt.Errorf("failed to look up active loan: %w", err)
	}
	if existing != nil {
		return ErrCopyNotAvailable
	}
	return nil
}

// ReturnLoan finalizes a loan and releases its copy.
func (s *service) ReturnLoan(ctx context.Context, p ReturnParams) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(
			attribute.String("requester.id", p.RequesterID.String()),
		),
	)
	defer span.End()

	var loan *Loan
	switch {
	case p.LoanID != uuid.Nil:
		var err error
		loan, err = s.loans.GetByID(ctx, p.LoanID)
		if err != nil {
			return nil, fmt.Errorf("failed to get loan: %w", err)
		}
		if loan == nil {
			return nil, ErrLoanNotFound
		}
	case p.CopyID != uuid.Nil:
		var err error
		loan, err = s.loans.FindActiveByCopy(ctx, p.CopyID)
		if err != nil {
			return nil, fmt.Errorf("failed to find active loan: %w", err)
		}
		if loan == nil {
			return nil, ErrActiveLoanNotFound
		}
	default:
		return nil, ErrLoanRefRequired
	}

	if !IsPrivileged(p.RequesterRoles) && loan.UserID != p.RequesterID {
		return nil, ErrNotLoanOwner
	}

	// The loan is finalized before the copy is released. If the release
	// fails the copy is stuck checked_out against a returned loan, which
	// an administrative correction can repair; the reverse order could
	// re-lend a copy whose loan never closed.
	returned, err := s.loans.MarkReturned(ctx, loan.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to mark loan returned: %w", err)
	}
	if returned == nil {
		return nil, ErrLoanNotOpen
	}

	if err := s.copies.SetStatus(ctx, loan.CopyID, CopyAvailable); err != nil {
		log.Printf("loan %s returned but copy %s not released: %v", loan.ID, loan.CopyID, err)
		return returned, fmt.Errorf("failed to release copy: %w", err)
	}

	s.auditSink.Record(ctx, audit.Event{
		ActorID:    p.RequesterID,
		Action:     "loan.return",
		EntityType: "loan",
		EntityID:   returned.ID,
	})

	return returned, nil
}

// CreateCheckoutRequest records a patron's ask to borrow a book. Creation
// is deduplicated per (user, book) while a request is pending.
func (s *service) CreateCheckoutRequest(ctx context.Context, userID, bookID uuid.UUID, note string) (*CheckoutRequest, error) {
	if !s.requestLimiter.Allow() {
		return nil, ErrRateLimited
	}

	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	existing, err := s.requests.FindPendingByUserAndBook(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending request: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	request := &CheckoutRequest{
		ID:          uuid.New(),
		UserID:      userID,
		BookID:      bookID,
		Status:      RequestPending,
		RequestedAt: time.Now().UTC(),
		Note:        note,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, ErrDuplicatePending) {
			// Lost a concurrent race; the winner's request is the one to
			// return.
			return s.requests.FindPendingByUserAndBook(ctx, userID, bookID)
		}
		return nil, fmt.Errorf("failed to create checkout request: %w", err)
	}

	s.auditSink.Record(ctx, audit.Event{
		ActorID:    userID,
		Action:     "loan.request.create",
		EntityType: "loan_request",
		EntityID:   request.ID,
	})

	return request, nil
}

// ListCheckoutRequests lists requests, optionally filtered by status, each
// enriched with borrower and book presentation fields. Enrichment is
// best-effort; a failed lookup leaves the fields empty.
func (s *service) ListCheckoutRequests(ctx context.Context, status *RequestStatus) ([]EnrichedRequest, error) {
	requests, err := s.requests.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout requests: %w", err)
	}

	enriched := make([]EnrichedRequest, 0, len(requests))
	for _, request := range requests {
		item := EnrichedRequest{CheckoutRequest: request}
		if user, err := s.membership.GetUser(ctx, request.UserID); err == nil && user != nil {
			item.UserEmail = user.Email
			item.UserName = user.Name
		}
		if book, err := s.catalog.GetBook(ctx, request.BookID); err == nil && book != nil {
			item.BookTitle = book.Title
			item.BookCode = book.Code
		}
		enriched = append(enriched, item)
	}
	return enriched, nil
}

// RejectCheckoutRequest terminates a pending request.
func (s *service) RejectCheckoutRequest(ctx context.Context, requestID, actorID uuid.UUID, note string) (*CheckoutRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout request: %w", err)
	}
	if request == nil || request.Status != RequestPending {
		return nil, ErrRequestNotPending
	}

	updated, err := s.requests.SetStatus(ctx, requestID, RequestRejected, actorID, note)
	if err != nil {
		return nil, fmt.Errorf("failed to reject checkout request: %w", err)
	}
	if updated == nil {
		return nil, ErrRequestNotPending
	}

	s.auditSink.Record(ctx, audit.Event{
		ActorID:    actorID,
		Action:     "loan.request.reject",
		EntityType: "loan_request",
		EntityID:   updated.ID,
	})

	return updated, nil
}

// RunOverdueSweep alerts every overdue loan exactly once.
func (s *service) RunOverdueSweep(ctx context.Context) []uuid.UUID {
	ctx, span := s.tracer.Start(ctx, "circulation.overdue_sweep")
	defer span.End()

	overdue, err := s.loans.FindOverdue(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("overdue sweep: failed to query overdue loans: %v", err)
		return nil
	}
	if len(overdue) == 0 {
		return nil
	}

	loanIDs := make([]uuid.UUID, len(overdue))
	for i, loan := range overdue {
		loanIDs[i] = loan.ID
	}

	existing, err := s.alerts.ListByLoanIDs(ctx, loanIDs)
	if err != nil {
		log.Printf("overdue sweep: failed to query existing alerts: %v", err)
		return nil
	}
	alerted := make(map[uuid.UUID]struct{}, len(existing))
	for _, alert := range existing {
		alerted[alert.LoanID] = struct{}{}
	}

	// Each loan's alert-then-mark pair is independent of its siblings:
	// a failure excludes that loan from this run's result and leaves it
	// for the next sweep.
	var newlyAlerted []uuid.UUID
	for _, loan := range overdue {
		if _, ok := alerted[loan.ID]; ok {
			continue
		}
		alert := &Alert{
			ID:      uuid.New(),
			UserID:  loan.UserID,
			LoanID:  loan.ID,
			Type:    AlertTypeOverdue,
			Status:  AlertStatusSent,
			Channel: AlertChannelInApp,
			SentAt:  time.Now().UTC(),
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			if !errors.Is(err, ErrDuplicateAlert) {
				log.Printf("overdue sweep: failed to create alert for loan %s: %v", loan.ID, err)
			}
			continue
		}
		if err := s.loans.MarkOverdue(ctx, loan.ID); err != nil {
			log.Printf("overdue sweep: failed to mark loan %s overdue: %v", loan.ID, err)
			continue
		}
		newlyAlerted = append(newlyAlerted, loan.ID)
	}

	span.SetAttributes(
		attribute.Int("sweep.overdue", len(overdue)),
		attribute.Int("sweep.newly_alerted", len(newlyAlerted)),
	)
	return newlyAlerted
}

// ListLoans returns a user's loans, or all loans for the zero UUID.
func (s *service) ListLoans(ctx context.Context, userID uuid.UUID) ([]Loan, error) {
	if userID == uuid.Nil {
		return s.loans.ListAll(ctx)
	}
	return s.loans.ListByUser(ctx, userID)
}

// ListLoansByActor returns the loans a staff member checked out on behalf
// of patrons.
func (s *service) ListLoansByActor(ctx context.Context, actorID uuid.UUID) ([]Loan, error) {
	return s.loans.ListByActor(ctx, actorID)
}

// ListAlerts returns the alerts issued to a user.
func (s *service) ListAlerts(ctx context.Context, userID uuid.UUID) ([]Alert, error) {
	return s.alerts.ListByUser(ctx, userID)
}
