// internal/circulation/handler.go
package circulation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the circulation endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/checkout", h.handleCheckout)
	r.Post("/checkout-to-user", h.handleCheckoutToUser)
	r.Post("/return", h.handleReturn)
	r.Post("/requests", h.handleCreateRequest)
	r.Get("/requests", h.handleListRequests)
	r.Post("/requests/{id}/reject", h.handleRejectRequest)
	r.Post("/sweep", h.handleSweep)
	r.Get("/loans", h.handleListLoans)
	r.Get("/alerts", h.handleListAlerts)
	return r
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CopyID   uuid.UUID `json:"copy_id"`
		CopyCode string    `json:"copy_code"`
		UserID   uuid.UUID `json:"user_id"`
		ActorID  uuid.UUID `json:"actor_id"`
		DueAt    *string   `json:"due_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dueAt, ok := parseDueAt(w, req.DueAt)
	if !ok {
		return
	}

	loan, err := h.service.Checkout(r.Context(), CheckoutParams{
		CopyID:   req.CopyID,
		CopyCode: req.CopyCode,
		UserID:   req.UserID,
		ActorID:  req.ActorID,
		DueAt:    dueAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleCheckoutToUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID    uuid.UUID `json:"actor_id"`
		ActorRoles []Role    `json:"actor_roles"`
		UserID     uuid.UUID `json:"user_id"`
		CopyID     uuid.UUID `json:"copy_id"`
		CopyCode   string    `json:"copy_code"`
		DueAt      *string   `json:"due_at"`
		RequestID  uuid.UUID `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dueAt, ok := parseDueAt(w, req.DueAt)
	if !ok {
		return
	}

	loan, err := h.service.CheckoutToUser(r.Context(), CheckoutToUserParams{
		ActorID:      req.ActorID,
		ActorRoles:   req.ActorRoles,
		TargetUserID: req.UserID,
		CopyID:       req.CopyID,
		CopyCode:     req.CopyCode,
		DueAt:        dueAt,
		RequestID:    req.RequestID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID         uuid.UUID `json:"loan_id"`
		CopyID         uuid.UUID `json:"copy_id"`
		RequesterID    uuid.UUID `json:"requester_id"`
		RequesterRoles []Role    `json:"requester_roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.ReturnLoan(r.Context(), ReturnParams{
		LoanID:         req.LoanID,
		CopyID:         req.CopyID,
		RequesterID:    req.RequesterID,
		RequesterRoles: req.RequesterRoles,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		BookID uuid.UUID `json:"book_id"`
		Note   string    `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := h.service.CreateCheckoutRequest(r.Context(), req.UserID, req.BookID, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	var status *RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := RequestStatus(raw)
		status = &s
	}

	requests, err := h.service.ListCheckoutRequests(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(requests)
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid request ID", http.StatusBadRequest)
		return
	}

	var req struct {
		ActorID uuid.UUID `json:"actor_id"`
		Note    string    `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := h.service.RejectCheckoutRequest(r.Context(), requestID, req.ActorID, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(request)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	newlyAlerted := h.service.RunOverdueSweep(r.Context())
	if newlyAlerted == nil {
		newlyAlerted = []uuid.UUID{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"newly_alerted": newlyAlerted})
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid actor ID", http.StatusBadRequest)
			return
		}
		loans, err := h.service.ListLoansByActor(r.Context(), actorID)
		if err != nil {
			writeError(w, err)
			return
		}
		json.NewEncoder(w).Encode(loans)
		return
	}

	userID := uuid.Nil
	if raw := r.URL.Query().Get("user_id"); raw != "" && raw != "all" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid user ID", http.StatusBadRequest)
			return
		}
		userID = parsed
	}

	loans, err := h.service.ListLoans(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(loans)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	alerts, err := h.service.ListAlerts(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(alerts)
}

func parseDueAt(w http.ResponseWriter, raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		http.Error(w, "invalid due date", http.StatusBadRequest)
		return nil, false
	}
	return &t, true
}

// writeError maps the failure taxonomy onto HTTP statuses: clients can
// tell a retryable conflict from bad input or a permission problem.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case IsForbidden(err):
		http.Error(w, err.Error(), http.StatusForbidden)
	case IsPreconditionFailed(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, ErrCopyRefRequired), errors.Is(err, ErrLoanRefRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
