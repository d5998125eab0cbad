package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adukes40/ReqPath/api"
	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/storage"
	"github.com/adukes40/ReqPath/store/sqlite"
)

const adminKey = "pk_static_admin"

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	t      *testing.T
	server *httptest.Server
	store  *sqlite.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	require.NoError(t, store.SaveUser(context.Background(), &procure.User{
		ID: api.SystemUserID, Email: api.SystemUserEmail, Name: "System",
		Role: procure.RoleAdmin, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))

	log := logrus.New()
	log.SetOutput(io.Discard)

	files := storage.New(t.TempDir(), 1024*1024, []string{".pdf", ".png"})
	handler := api.NewHandler(store, files, log, []string{adminKey})
	server := httptest.NewServer(api.NewRouter(handler, []string{"*"}))
	t.Cleanup(server.Close)

	return &fixture{t: t, server: server, store: store}
}

// do issues a JSON request with the given API key and decodes the response
// into out when non-nil.
func (f *fixture) do(key, method, path string, body any, out any) *http.Response {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp
}

// createUser provisions a user through the API and returns their key.
func (f *fixture) createUser(name, role string) (id, key string) {
	f.t.Helper()
	var user api.UserDTO
	resp := f.do(adminKey, http.MethodPost, "/api/users", map[string]string{
		"email": strings.ToLower(name) + "@example.com",
		"name":  name,
		"role":  role,
	}, &user)
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(f.t, user.APIKey)
	return user.ID, user.APIKey
}

func (f *fixture) createRequest(key string, items ...map[string]any) api.RequestDTO {
	f.t.Helper()
	var out api.RequestDTO
	resp := f.do(key, http.MethodPost, "/api/requests", map[string]any{
		"title":      "Team laptops",
		"department": "Engineering",
		"line_items": items,
	}, &out)
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	return out
}

func item(desc string, qty int, price string) map[string]any {
	m := map[string]any{"description": desc, "quantity": qty}
	if price != "" {
		m["unit_price"] = price
	}
	return m
}

// =============================================================================
// AUTH TESTS
// =============================================================================

func TestHealth_NoAuthRequired(t *testing.T) {
	f := newFixture(t)
	resp := f.do("", http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_MissingOrBadKey_Unauthorized(t *testing.T) {
	f := newFixture(t)

	resp := f.do("", http.MethodGet, "/api/requests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do("pk_nonsense", http.MethodGet, "/api/requests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStaticKey_ActsAsSystemAdmin(t *testing.T) {
	f := newFixture(t)

	var me api.UserDTO
	resp := f.do(adminKey, http.MethodGet, "/api/users/me", nil, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(api.SystemUserID), me.ID)
	assert.Equal(t, "admin", me.Role)
	assert.Empty(t, me.APIKey, "keys must never be readable")
}

func TestUserCreation_OnlyAdmin(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")

	resp := f.do(key, http.MethodPost, "/api/users", map[string]string{
		"email": "x@example.com", "name": "X",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeactivatedUser_KeyStopsWorking(t *testing.T) {
	f := newFixture(t)
	id, key := f.createUser("Rowan", "requester")

	resp := f.do(key, http.MethodGet, "/api/users/me", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	active := false
	resp = f.do(adminKey, http.MethodPut, "/api/users/"+id, map[string]any{"is_active": &active}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(key, http.MethodGet, "/api/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// =============================================================================
// REQUEST LIFECYCLE OVER HTTP
// =============================================================================

func TestRequestLifecycle_EndToEnd(t *testing.T) {
	// GIVEN: A requester and an approver
	// WHEN: Create -> submit -> approve -> ordered -> received -> complete
	// THEN: Every step lands with the right status and totals

	f := newFixture(t)
	_, reqKey := f.createUser("Rowan", "requester")
	_, apprKey := f.createUser("Alex", "approver")

	created := f.createRequest(reqKey, item("laptop", 4, "1200.00"))
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, "1200", created.LineItems[0].UnitPrice.String())
	assert.Equal(t, "4800", created.TotalAmount.String())

	var out api.RequestDTO
	resp := f.do(reqKey, http.MethodPost, "/api/requests/"+created.ID+"/submit", nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", out.Status)

	var approval api.ApprovalDTO
	resp = f.do(apprKey, http.MethodPost, "/api/requests/"+created.ID+"/approve",
		map[string]string{"comments": "within budget"}, &approval)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", approval.Status)

	for _, status := range []string{"ordered", "received", "complete"} {
		resp = f.do(reqKey, http.MethodPost, "/api/requests/"+created.ID+"/transition",
			map[string]string{"status": status}, &out)
		require.Equal(t, http.StatusOK, resp.StatusCode, "transition to %s", status)
		assert.Equal(t, status, out.Status)
	}
	assert.NotNil(t, out.OrderedAt)
	assert.NotNil(t, out.ReceivedAt)

	// The audit trail covers every mutation.
	var audit []api.AuditEntryDTO
	resp = f.do(reqKey, http.MethodGet, "/api/requests/"+created.ID+"/audit", nil, &audit)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, audit, 6) // created, submitted, approved, 3 transitions
}

func TestSubmit_EmptyRequest_BadRequest(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	created := f.createRequest(key)

	resp := f.do(key, http.MethodPost, "/api/requests/"+created.ID+"/submit", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransition_Illegal_BadRequest(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	created := f.createRequest(key, item("desk", 1, "100"))

	resp := f.do(key, http.MethodPost, "/api/requests/"+created.ID+"/transition",
		map[string]string{"status": "complete"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRequest_Unknown_NotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.do(adminKey, http.MethodGet, "/api/requests/req-missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprove_RequiresApproverRole(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	created := f.createRequest(key, item("desk", 1, "100"))
	f.do(key, http.MethodPost, "/api/requests/"+created.ID+"/submit", nil, nil)

	resp := f.do(key, http.MethodPost, "/api/requests/"+created.ID+"/approve", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLineItems_LockedOncePending(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	created := f.createRequest(key, item("desk", 1, "100"))
	f.do(key, http.MethodPost, "/api/requests/"+created.ID+"/submit", nil, nil)

	resp := f.do(key, http.MethodPost, "/api/requests/"+created.ID+"/items",
		item("chair", 1, "50"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalQueue_PendingAndHistory(t *testing.T) {
	f := newFixture(t)
	_, reqKey := f.createUser("Rowan", "requester")
	apprID, apprKey := f.createUser("Alex", "approver")

	created := f.createRequest(reqKey, item("desk", 1, "100"))
	f.do(reqKey, http.MethodPost, "/api/requests/"+created.ID+"/submit", nil, nil)

	resp := f.do(reqKey, http.MethodPost, "/api/requests/"+created.ID+"/approvals",
		map[string]string{"approver_id": apprID}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pending []api.ApprovalDTO
	resp = f.do(apprKey, http.MethodGet, "/api/approvals/pending", nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].RequestID)

	f.do(apprKey, http.MethodPost, "/api/requests/"+created.ID+"/approve", nil, nil)

	resp = f.do(apprKey, http.MethodGet, "/api/approvals/pending", nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, pending)

	var history []api.ApprovalDTO
	resp = f.do(apprKey, http.MethodGet, "/api/approvals/history", nil, &history)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history, 1)
	assert.Equal(t, "approved", history[0].Status)
}

// =============================================================================
// DOCUMENTS OVER HTTP
// =============================================================================

func (f *fixture) upload(key, requestID, filename, content string) *http.Response {
	f.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(f.t, err)
	fmt.Fprint(fw, content)
	mw.WriteField("doc_type", "quote")
	require.NoError(f.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/requests/"+requestID+"/documents", &buf)
	require.NoError(f.t, err)
	req.Header.Set("X-API-Key", key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	return resp
}

func TestDocuments_UploadAndDownload(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	created := f.createRequest(key, item("desk", 1, "100"))

	resp := f.upload(key, created.ID, "quote.pdf", "fake pdf bytes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc api.DocumentDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	assert.Equal(t, "quote.pdf", doc.OriginalFilename)
	assert.Equal(t, "quote", doc.DocType)

	dl, err := http.Get(f.server.URL + "/api/requests/" + created.ID +
		"/documents/" + doc.ID + "/download?api_key=" + key)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	body, _ := io.ReadAll(dl.Body)
	assert.Equal(t, "fake pdf bytes", string(body))
}

func TestDocuments_BadExtensionRejected(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	created := f.createRequest(key, item("desk", 1, "100"))

	resp := f.upload(key, created.ID, "malware.exe", "nope")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// REPORTS OVER HTTP
// =============================================================================

func TestReports_MonthlyAlwaysTwelveRows(t *testing.T) {
	f := newFixture(t)

	var rows []api.MonthlySpendDTO
	year := time.Now().UTC().Year()
	resp := f.do(adminKey, http.MethodGet, fmt.Sprintf("/api/reports/spending/monthly?year=%d", year), nil, &rows)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 12)
	assert.Equal(t, fmt.Sprintf("%d-01", year), rows[0].Month)
	assert.Equal(t, 0, rows[0].Count)
}

func TestReports_ExportCSV(t *testing.T) {
	f := newFixture(t)
	_, key := f.createUser("Rowan", "requester")
	f.createRequest(key, item("desk", 1, "100"))

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/reports/export?format=csv", nil)
	req.Header.Set("X-API-Key", adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Title,Requester"))
	assert.Contains(t, lines[1], "Team laptops")
}
