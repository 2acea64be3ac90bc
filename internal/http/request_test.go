package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agencyledger/internal/core"
)

func newParser(t *testing.T, body string) *bodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	p, err := parseBody(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("parseBody(%q): %v", body, err)
	}
	return p
}

func TestBodyParserPresence(t *testing.T) {
	p := newParser(t, `{"name":"  Acme\u0007 ","notes":null,"amount":"12,50","read":true,"data":{"k":1}}`)

	if s := p.String("name"); s == nil || *s != "Acme" {
		t.Fatalf("name=%v", s)
	}
	if p.String("notes") != nil {
		t.Fatal("null should read as absent")
	}
	if p.String("missing") != nil {
		t.Fatal("missing should read as absent")
	}
	if a := p.Amount("amount"); a == nil || a.String() != "12.5" {
		t.Fatalf("amount=%v", a)
	}
	if b := p.Bool("read"); b == nil || !*b {
		t.Fatalf("read=%v", b)
	}
	if o := p.Object("data"); string(o) != `{"k":1}` {
		t.Fatalf("data=%s", o)
	}
	if err := p.Err(); err != nil {
		t.Fatalf("unexpected issues: %v", err)
	}
}

func TestBodyParserCollectsIssues(t *testing.T) {
	p := newParser(t, `{"amount":"ten","project":"nope","read":"yes","date":"01/02/2025","data":[1]}`)
	p.Amount("amount")
	p.UUID("project")
	p.Bool("read")
	p.Time("date")
	p.Object("data")

	err := p.Err()
	e, ok := core.AsError(err)
	if !ok || e.Kind != core.KindValidation {
		t.Fatalf("Err() = %v, want validation error", err)
	}
	if len(e.Details) != 5 {
		t.Fatalf("details=%+v, want 5", e.Details)
	}
	if e.Message != "amount must be a number" {
		t.Fatalf("message=%q", e.Message)
	}
}

func TestParseBodyRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "array", body: `[1,2]`, want: errBodyNotJSON},
		{name: "broken object", body: `{"a":`, want: errBodyNotJSON},
		{name: "too large", body: `{"a":"` + strings.Repeat("x", maxBodyBytes) + `"}`, want: errBodyTooBig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			_, err := parseBody(httptest.NewRecorder(), req)
			if err != tt.want {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
		})
	}

	p := newParser(t, "  ")
	if p.String("x") != nil || p.Err() != nil {
		t.Fatal("empty body should parse as an empty object")
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2025-03-01", "2025-03-01T10:00:00+02:00"} {
		if _, err := parseTime(s); err != nil {
			t.Errorf("parseTime(%q): %v", s, err)
		}
	}
	if got, _ := parseTime("2025-03-01T10:00:00+02:00"); got.Hour() != 8 {
		t.Errorf("expected UTC normalisation, got %v", got)
	}
	if _, err := parseTime("March 1"); err == nil {
		t.Error("expected error for free-form date")
	}
}

func TestPathID(t *testing.T) {
	id := uuid.New()
	withParam := func(v string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", v)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := pathID(withParam(id.String()), "id")
	if err != nil || got != id {
		t.Fatalf("pathID = %v, %v", got, err)
	}
	if _, err := pathID(withParam("42"), "id"); err != errInvalidID {
		t.Fatalf("err=%v want errInvalidID", err)
	}
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?client=bad&startDate=2025-01-01&limit=7", nil)

	if _, err := queryUUID(req, "client"); err == nil {
		t.Error("expected error for malformed client id")
	}
	if v, err := queryUUID(req, "project"); err != nil || v != nil {
		t.Errorf("absent project = %v, %v", v, err)
	}
	if v, err := queryTime(req, "startDate"); err != nil || v == nil || v.Year() != 2025 {
		t.Errorf("startDate = %v, %v", v, err)
	}
	if n := queryInt(req, "limit"); n != 7 {
		t.Errorf("limit=%d", n)
	}
	if n := queryInt(req, "missing"); n != 0 {
		t.Errorf("missing limit=%d", n)
	}
}
