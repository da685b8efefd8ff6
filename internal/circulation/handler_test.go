// internal/circulation/handler_test.go
package circulation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *testEnv) {
	t.Helper()
	env := newTestEnv()
	srv := httptest.NewServer(NewHandler(env.svc).Routes())
	t.Cleanup(srv.Close)
	return srv, env
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandlerCheckout(t *testing.T) {
	srv, env := newTestServer(t)
	_, c := env.addBookWithCopy(t, "C1")
	user := env.addActiveUser()

	resp := postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": c.ID,
		"user_id": user.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var loan Loan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loan))
	assert.Equal(t, c.ID, loan.CopyID)
	assert.Equal(t, LoanActive, loan.Status)

	// Second attempt conflicts: the copy is taken.
	resp = postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": c.ID,
		"user_id": user.ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerErrorStatuses(t *testing.T) {
	srv, env := newTestServer(t)
	book, c := env.addBookWithCopy(t, "C1")
	user := env.addActiveUser()

	// Unknown copy.
	resp := postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": uuid.New(),
		"user_id": user.ID,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// No copy reference at all.
	resp = postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"user_id": user.ID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed due date.
	resp = postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": c.ID,
		"user_id": user.ID,
		"due_at":  "next tuesday",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Archived book.
	book.Status = BookArchived
	env.catalog.put(book)
	resp = postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": c.ID,
		"user_id": user.ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Staff checkout without a backing request.
	resp = postJSON(t, srv.URL+"/checkout-to-user", map[string]interface{}{
		"actor_id":    uuid.New(),
		"actor_roles": []Role{RoleStaff},
		"user_id":     user.ID,
		"copy_id":     c.ID,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandlerRequestLifecycle(t *testing.T) {
	srv, env := newTestServer(t)
	book, _ := env.addBookWithCopy(t, "C1")
	user := env.addActiveUser()
	staff := uuid.New()

	resp := postJSON(t, srv.URL+"/requests", map[string]interface{}{
		"user_id": user.ID,
		"book_id": book.ID,
		"note":    "needed for class",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var request CheckoutRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&request))
	assert.Equal(t, RequestPending, request.Status)

	listResp, err := http.Get(srv.URL + "/requests?status=pending")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var listed []EnrichedRequest
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, user.Email, listed[0].UserEmail)
	assert.Equal(t, book.Title, listed[0].BookTitle)

	resp = postJSON(t, srv.URL+"/requests/"+request.ID.String()+"/reject", map[string]interface{}{
		"actor_id": staff,
		"note":     "out of stock",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Rejecting again conflicts.
	resp = postJSON(t, srv.URL+"/requests/"+request.ID.String()+"/reject", map[string]interface{}{
		"actor_id": staff,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerReturnAndLoanListing(t *testing.T) {
	srv, env := newTestServer(t)
	_, c := env.addBookWithCopy(t, "C1")
	user := env.addActiveUser()

	resp := postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": c.ID,
		"user_id": user.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var loan Loan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loan))

	listResp, err := http.Get(fmt.Sprintf("%s/loans?user_id=%s", srv.URL, user.ID))
	require.NoError(t, err)
	defer listResp.Body.Close()
	var loans []Loan
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&loans))
	require.Len(t, loans, 1)

	resp = postJSON(t, srv.URL+"/return", map[string]interface{}{
		"loan_id":         loan.ID,
		"requester_id":    user.ID,
		"requester_roles": []Role{RolePatron},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var returned Loan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&returned))
	assert.Equal(t, LoanReturned, returned.Status)

	// Double return conflicts.
	resp = postJSON(t, srv.URL+"/return", map[string]interface{}{
		"loan_id":         loan.ID,
		"requester_id":    user.ID,
		"requester_roles": []Role{RolePatron},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerSweep(t *testing.T) {
	srv, env := newTestServer(t)
	_, c := env.addBookWithCopy(t, "C1")
	user := env.addActiveUser()

	resp := postJSON(t, srv.URL+"/checkout", map[string]interface{}{
		"copy_id": c.ID,
		"user_id": user.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Nothing overdue yet: the sweep reports an empty list, not null.
	sweepResp, err := http.Post(srv.URL+"/sweep", "application/json", nil)
	require.NoError(t, err)
	defer sweepResp.Body.Close()
	require.Equal(t, http.StatusOK, sweepResp.StatusCode)
	var body struct {
		NewlyAlerted []uuid.UUID `json:"newly_alerted"`
	}
	require.NoError(t, json.NewDecoder(sweepResp.Body).Decode(&body))
	assert.NotNil(t, body.NewlyAlerted)
	assert.Empty(t, body.NewlyAlerted)
}
