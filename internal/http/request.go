package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidID   = core.Invalid("id", "Invalid id")
	errBodyNotJSON = core.BadRequest(core.CodeBadRequest, "Request body must be a JSON object")
	errBodyTooBig  = core.BadRequest(core.CodeBadRequest, "Request body too large")
)

// bodyParser reads a JSON object once and hands out its fields with
// presence tracking, so patches can tell "absent" from "empty". Type
// problems are collected and reported together by Err.
type bodyParser struct {
	fields map[string]json.RawMessage
	issues []core.FieldIssue
}

func parseBody(w http.ResponseWriter, r *http.Request) (*bodyParser, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, errBodyTooBig
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}

	p := &bodyParser{fields: map[string]json.RawMessage{}}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return p, nil
	}
	if raw[0] != '{' {
		return nil, errBodyNotJSON
	}
	if err := json.Unmarshal(raw, &p.fields); err != nil {
		return nil, errBodyNotJSON
	}
	return p, nil
}

// present reports whether key was sent with a non-null value.
func (p *bodyParser) present(key string) (json.RawMessage, bool) {
	v, ok := p.fields[key]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func (p *bodyParser) fail(key, msg string) {
	p.issues = append(p.issues, core.FieldIssue{Param: key, Msg: msg})
}

func (p *bodyParser) String(key string) *string {
	v, ok := p.present(key)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		p.fail(key, fmt.Sprintf("%s must be a string", key))
		return nil
	}
	s = sanitizeInput(s)
	return &s
}

// Text is String with the empty string for absent fields.
func (p *bodyParser) Text(key string) string {
	if s := p.String(key); s != nil {
		return *s
	}
	return ""
}

// Amount accepts a JSON number or a numeric string.
func (p *bodyParser) Amount(key string) *decimal.Decimal {
	v, ok := p.present(key)
	if !ok {
		return nil
	}
	text := string(v)
	if v[0] == '"' {
		if err := json.Unmarshal(v, &text); err != nil {
			p.fail(key, fmt.Sprintf("%s must be a number", key))
			return nil
		}
		text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		p.fail(key, fmt.Sprintf("%s must be a number", key))
		return nil
	}
	return &d
}

func (p *bodyParser) UUID(key string) *uuid.UUID {
	s := p.String(key)
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		p.fail(key, fmt.Sprintf("%s must be a valid id", key))
		return nil
	}
	return &id
}

func (p *bodyParser) Time(key string) *time.Time {
	s := p.String(key)
	if s == nil || *s == "" {
		return nil
	}
	t, err := parseTime(*s)
	if err != nil {
		p.fail(key, fmt.Sprintf("%s must be a date (YYYY-MM-DD or RFC 3339)", key))
		return nil
	}
	return &t
}

func (p *bodyParser) Bool(key string) *bool {
	v, ok := p.present(key)
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		p.fail(key, fmt.Sprintf("%s must be a boolean", key))
		return nil
	}
	return &b
}

// Object returns a nested JSON object verbatim.
func (p *bodyParser) Object(key string) json.RawMessage {
	v, ok := p.present(key)
	if !ok {
		return nil
	}
	if v[0] != '{' {
		p.fail(key, fmt.Sprintf("%s must be an object", key))
		return nil
	}
	return v
}

// Err returns the collected field problems as one validation error.
func (p *bodyParser) Err() error {
	if len(p.issues) == 0 {
		return nil
	}
	return &core.Error{
		Kind:    core.KindValidation,
		Code:    core.CodeValidation,
		Message: p.issues[0].Msg,
		Details: p.issues,
	}
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// pathID parses a uuid URL parameter.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, core.Invalid(key, fmt.Sprintf("%s must be a valid id", key))
	}
	return &id, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, core.Invalid(key, fmt.Sprintf("%s must be a date (YYYY-MM-DD or RFC 3339)", key))
	}
	return &t, nil
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return n
}

// sanitizeInput drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
