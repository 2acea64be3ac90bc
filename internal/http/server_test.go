package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"agencyledger/internal/auth"
	"agencyledger/internal/metrics"
	"agencyledger/internal/storage/memory"
)

type testAPI struct {
	t     *testing.T
	srv   *Server
	token string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	signer := auth.NewSigner("test-secret")
	token, err := signer.Issue(uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	srv := NewServer(Config{
		Backend: "memory",
		Metrics: metrics.New(),
		Auth:    auth.NewAuthenticator(signer, auth.NewMemoryRevocations(), nil),
	}, NewServices(memory.New()))
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testAPI{t: t, srv: srv, token: token}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func (a *testAPI) do(method, path string, body any) (int, apiResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)

	var resp apiResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr.Code, resp
}

// create posts body and returns the new entity's id.
func (a *testAPI) create(path string, body any) string {
	a.t.Helper()
	code, resp := a.do(http.MethodPost, path, body)
	if code != http.StatusCreated {
		a.t.Fatalf("POST %s status=%d error=%+v", path, code, resp.Error)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		a.t.Fatalf("decode id: %v", err)
	}
	return out.ID
}

func expectError(t *testing.T, code int, resp apiResponse, wantStatus int, wantCode string) {
	t.Helper()
	if code != wantStatus {
		t.Fatalf("status=%d want %d (error=%+v)", code, wantStatus, resp.Error)
	}
	if resp.Success || resp.Error == nil {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	if resp.Error.Code != wantCode {
		t.Fatalf("error code=%q want %q", resp.Error.Code, wantCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""

	code, resp := api.do(http.MethodGet, "/api/health", nil)
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("health status=%d resp=%+v", code, resp)
	}
	var health map[string]string
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["backend"] != "memory" {
		t.Fatalf("unexpected health payload %v", health)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""
	code, resp := api.do(http.MethodGet, "/api/payments", nil)
	expectError(t, code, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	api.token = "garbage"
	code, resp = api.do(http.MethodGet, "/api/payments", nil)
	expectError(t, code, resp, http.StatusUnauthorized, "INVALID_TOKEN")
}

func TestPaymentLifecycle(t *testing.T) {
	api := newTestAPI(t)
	projectID := api.create("/api/projects", map[string]any{"name": "Website", "budget": 100})

	code, resp := api.do(http.MethodPost, "/api/payments", map[string]any{"project": projectID, "amount": "60,50"})
	if code != http.StatusCreated {
		t.Fatalf("create payment status=%d error=%+v", code, resp.Error)
	}
	var pay struct {
		ID      string      `json:"id"`
		Amount  json.Number `json:"amount"`
		Project string      `json:"project"`
	}
	if err := json.Unmarshal(resp.Data, &pay); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	if pay.Amount.String() != "60.5" || pay.Project != projectID {
		t.Fatalf("unexpected payment %+v", pay)
	}

	code, resp = api.do(http.MethodPost, "/api/payments", map[string]any{"project": projectID, "amount": 50})
	expectError(t, code, resp, http.StatusConflict, "PAYMENT_EXCEEDS_BUDGET")

	code, resp = api.do(http.MethodDelete, "/api/projects/"+projectID, nil)
	expectError(t, code, resp, http.StatusConflict, "PROJECT_DELETE_BLOCKED")

	code, resp = api.do(http.MethodDelete, "/api/payments/"+pay.ID, nil)
	if code != http.StatusOK {
		t.Fatalf("delete payment status=%d error=%+v", code, resp.Error)
	}
	var msg map[string]string
	_ = json.Unmarshal(resp.Data, &msg)
	if msg["message"] != "Payment deleted" {
		t.Fatalf("delete message=%q", msg["message"])
	}

	code, resp = api.do(http.MethodDelete, "/api/projects/"+projectID, nil)
	if code != http.StatusOK {
		t.Fatalf("delete project status=%d error=%+v", code, resp.Error)
	}
}

func TestValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(http.MethodGet, "/api/payments/not-a-uuid", nil)
	expectError(t, code, resp, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	code, resp = api.do(http.MethodPost, "/api/payments", map[string]any{"amount": "abc", "date": "yesterday"})
	expectError(t, code, resp, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if len(resp.Error.Details) != 2 {
		t.Fatalf("details=%+v, want two issues", resp.Error.Details)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`["not","an","object"]`))
	req.Header.Set("Authorization", "Bearer "+api.token)
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("array body status=%d", rr.Code)
	}
}

func TestRejectsOutOfRangeAmounts(t *testing.T) {
	api := newTestAPI(t)
	projectID := api.create("/api/projects", map[string]any{"title": "Launch", "budget": "3000"})

	for _, amount := range []string{"1e-10000000", "1e10000000"} {
		code, resp := api.do(http.MethodPost, "/api/payments", map[string]any{"project": projectID, "amount": amount})
		expectError(t, code, resp, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	}

	code, resp := api.do(http.MethodGet, "/api/payments?project="+projectID, nil)
	if code != http.StatusOK || string(resp.Data) != "[]" {
		t.Fatalf("rejected amounts were stored: status=%d data=%s", code, resp.Data)
	}
}

func TestMilestoneWarningInsideData(t *testing.T) {
	api := newTestAPI(t)
	projectID := api.create("/api/projects", map[string]any{"title": "Rebrand", "budget": "1000"})

	code, resp := api.do(http.MethodPost, "/api/projects/"+projectID+"/milestones",
		map[string]any{"name": "Kickoff", "amount": 400, "dueDate": "2025-06-01"})
	if code != http.StatusCreated {
		t.Fatalf("create milestone status=%d error=%+v", code, resp.Error)
	}
	var m struct {
		ProjectID string `json:"projectId"`
		Warning   string `json:"warning"`
	}
	if err := json.Unmarshal(resp.Data, &m); err != nil {
		t.Fatalf("decode milestone: %v", err)
	}
	if m.ProjectID != projectID {
		t.Fatalf("projectId=%q want %q", m.ProjectID, projectID)
	}
	if !strings.Contains(m.Warning, "does not match project budget") {
		t.Fatalf("warning=%q", m.Warning)
	}

	code, resp = api.do(http.MethodPost, "/api/milestones", map[string]any{"name": "Orphan", "dueDate": "2025-06-01"})
	expectError(t, code, resp, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	code, resp = api.do(http.MethodGet, "/api/milestones?projectId="+projectID, nil)
	if code != http.StatusOK {
		t.Fatalf("list milestones status=%d", code)
	}
	var list []json.RawMessage
	_ = json.Unmarshal(resp.Data, &list)
	if len(list) != 1 {
		t.Fatalf("milestones=%d want 1", len(list))
	}
}

func TestEmptyListsAreArrays(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/api/payments", "/api/projects", "/api/clients", "/api/categories", "/api/reminders"} {
		code, resp := api.do(http.MethodGet, path, nil)
		if code != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, code)
		}
		if string(resp.Data) != "[]" {
			t.Fatalf("GET %s data=%s, want []", path, resp.Data)
		}
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(http.MethodPost, "/api/auth/logout", nil)
	if code != http.StatusOK {
		t.Fatalf("logout status=%d error=%+v", code, resp.Error)
	}

	code, resp = api.do(http.MethodGet, "/api/projects", nil)
	expectError(t, code, resp, http.StatusUnauthorized, "TOKEN_BLACKLISTED")
}

func TestTenantIsolation(t *testing.T) {
	api := newTestAPI(t)
	projectID := api.create("/api/projects", map[string]any{"title": "Private"})

	signer := auth.NewSigner("test-secret")
	other, err := signer.Issue(uuid.New(), 2*time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	api.token = other

	code, resp := api.do(http.MethodGet, "/api/projects/"+projectID, nil)
	expectError(t, code, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestRouteNotFoundAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(http.MethodGet, "/nope", nil)
	expectError(t, code, resp, http.StatusNotFound, "NOT_FOUND")

	api.do(http.MethodGet, "/api/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "http_request_duration_seconds") {
		t.Fatalf("metrics output missing http histogram")
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}
