package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an Error for transport mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindBadRequest
	KindNotFound
	KindConflict
	KindUnauthorized
	KindRateLimited
)

// Stable machine-readable codes returned to API clients.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeBadRequest            = "BAD_REQUEST"
	CodeNotFound              = "NOT_FOUND"
	CodeProjectNotFound       = "PROJECT_NOT_FOUND"
	CodeMilestoneNotFound     = "MILESTONE_NOT_FOUND"
	CodePaymentExceedsBudget  = "PAYMENT_EXCEEDS_BUDGET"
	CodeExpenseExceedsBudget  = "EXPENSE_EXCEEDS_BUDGET"
	CodeProjectDeleteBlocked  = "PROJECT_DELETE_BLOCKED"
	CodeClientDeleteBlocked   = "CLIENT_DELETE_BLOCKED"
	CodeCategoryDeleteBlocked = "CATEGORY_DELETE_BLOCKED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeTokenBlacklisted      = "TOKEN_BLACKLISTED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeServerError           = "SERVER_ERROR"
)

// FieldIssue describes one invalid input field.
type FieldIssue struct {
	Param string `json:"param"`
	Msg   string `json:"msg"`
}

// Error is a classified failure that is safe to show to the caller.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details []FieldIssue
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid builds a validation error for a single field.
func Invalid(param, msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: msg,
		Details: []FieldIssue{{Param: param, Msg: msg}},
	}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func BadRequest(code, msg string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: msg}
}

func Unauthorized(code, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: msg}
}

// AsError extracts a classified Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err is a classified Error carrying code.
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Code: CodeRateLimited, Message: msg}
}
