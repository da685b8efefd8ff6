// internal/circulation/fakes_test.go
package circulation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory stores for orchestrator tests. They enforce the same
// conditional-write semantics the Postgres stores do, under a mutex, so
// concurrency tests exercise real interleavings.

type fakeCopies struct {
	mu           sync.Mutex
	copies       map[uuid.UUID]Copy
	setStatusErr error
}

func newFakeCopies() *fakeCopies {
	return &fakeCopies{copies: make(map[uuid.UUID]Copy)}
}

func (f *fakeCopies) Create(_ context.Context, c *Copy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies[c.ID] = *c
	return nil
}

func (f *fakeCopies) GetByID(_ context.Context, id uuid.UUID) (*Copy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.copies[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCopies) GetByCode(_ context.Context, code string) (*Copy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.copies {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCopies) MarkCheckedOut(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[id]
	if !ok || c.Status != CopyAvailable {
		return false, nil
	}
	c.Status = CopyCheckedOut
	f.copies[id] = c
	return true, nil
}

func (f *fakeCopies) SetStatus(_ context.Context, id uuid.UUID, status CopyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	c, ok := f.copies[id]
	if !ok {
		return nil
	}
	c.Status = status
	f.copies[id] = c
	return nil
}

func (f *fakeCopies) status(id uuid.UUID) CopyStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copies[id].Status
}

type fakeLoans struct {
	mu        sync.Mutex
	loans     map[uuid.UUID]Loan
	createErr error
}

func newFakeLoans() *fakeLoans {
	return &fakeLoans{loans: make(map[uuid.UUID]Loan)}
}

func (f *fakeLoans) Create(_ context.Context, loan *Loan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.loans[loan.ID] = *loan
	return nil
}

func (f *fakeLoans) GetByID(_ context.Context, id uuid.UUID) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.loans[id]; ok {
		return &l, nil
	}
	return nil, nil
}

func (f *fakeLoans) FindActiveByCopy(_ context.Context, copyID uuid.UUID) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.loans {
		if l.CopyID == copyID && (l.Status == LoanActive || l.Status == LoanOverdue) {
			loan := l
			return &loan, nil
		}
	}
	return nil, nil
}

func (f *fakeLoans) ListByUser(_ context.Context, userID uuid.UUID) ([]Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Loan
	for _, l := range f.loans {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLoans) ListByActor(_ context.Context, actorID uuid.UUID) ([]Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Loan
	for _, l := range f.loans {
		if l.CheckedOutBy == actorID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLoans) ListAll(_ context.Context) ([]Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Loan, 0, len(f.loans))
	for _, l := range f.loans {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLoans) FindOverdue(_ context.Context, asOf time.Time) ([]Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Loan
	for _, l := range f.loans {
		if l.Status == LoanActive && l.DueAt.Before(asOf) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLoans) MarkReturned(_ context.Context, id uuid.UUID, at time.Time) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok || (l.Status != LoanActive && l.Status != LoanOverdue) {
		return nil, nil
	}
	l.Status = LoanReturned
	l.ReturnedAt = &at
	f.loans[id] = l
	return &l, nil
}

func (f *fakeLoans) MarkOverdue(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if ok && l.Status == LoanActive {
		l.Status = LoanOverdue
		f.loans[id] = l
	}
	return nil
}

func (f *fakeLoans) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loans)
}

func (f *fakeLoans) put(loan Loan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loans[loan.ID] = loan
}

func (f *fakeLoans) get(id uuid.UUID) Loan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loans[id]
}

type fakeRequests struct {
	mu       sync.Mutex
	requests map[uuid.UUID]CheckoutRequest
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: make(map[uuid.UUID]CheckoutRequest)}
}

func (f *fakeRequests) Create(_ context.Context, req *CheckoutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UserID == req.UserID && r.BookID == req.BookID && r.Status == RequestPending {
			return ErrDuplicatePending
		}
	}
	f.requests[req.ID] = *req
	return nil
}

func (f *fakeRequests) GetByID(_ context.Context, id uuid.UUID) (*CheckoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeRequests) FindPendingByUserAndBook(_ context.Context, userID, bookID uuid.UUID) (*CheckoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UserID == userID && r.BookID == bookID && r.Status == RequestPending {
			req := r
			return &req, nil
		}
	}
	return nil, nil
}

func (f *fakeRequests) List(_ context.Context, status *RequestStatus) ([]CheckoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []CheckoutRequest
	for _, r := range f.requests {
		if status == nil || r.Status == *status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) SetStatus(_ context.Context, id uuid.UUID, status RequestStatus, processedBy uuid.UUID, note string) (*CheckoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != RequestPending {
		return nil, nil
	}
	now := time.Now().UTC()
	r.Status = status
	r.ProcessedBy = processedBy
	r.ProcessedAt = &now
	if note != "" {
		r.Note = note
	}
	f.requests[id] = r
	return &r, nil
}

func (f *fakeRequests) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRequests) get(id uuid.UUID) CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

type fakeAlerts struct {
	mu        sync.Mutex
	alerts    map[uuid.UUID]Alert // keyed by loan id
	createErr map[uuid.UUID]error // per-loan injected failures
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{
		alerts:    make(map[uuid.UUID]Alert),
		createErr: make(map[uuid.UUID]error),
	}
}

func (f *fakeAlerts) Create(_ context.Context, alert *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.createErr[alert.LoanID]; ok {
		return err
	}
	if _, ok := f.alerts[alert.LoanID]; ok {
		return ErrDuplicateAlert
	}
	f.alerts[alert.LoanID] = *alert
	return nil
}

func (f *fakeAlerts) ListByLoanIDs(_ context.Context, loanIDs []uuid.UUID) ([]Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Alert
	for _, id := range loanIDs {
		if a, ok := f.alerts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) ListByUser(_ context.Context, userID uuid.UUID) ([]Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Alert
	for _, a := range f.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type fakeCatalog struct {
	mu    sync.Mutex
	books map[uuid.UUID]Book
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{books: make(map[uuid.UUID]Book)}
}

func (f *fakeCatalog) GetBook(_ context.Context, id uuid.UUID) (*Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.books[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (f *fakeCatalog) put(b Book) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[b.ID] = b
}

type fakeMembership struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{users: make(map[uuid.UUID]User)}
}

func (f *fakeMembership) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeMembership) put(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}
