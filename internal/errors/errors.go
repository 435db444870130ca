// Package errors provides the typed error model shared by every domain
// service. Domain services return *ServiceError (or wrap one); the HTTP
// boundary is the only place that maps a ServiceError to a status code
// and the wire error envelope. Modeled directly on the teacher's
// infrastructure/errors package.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors into the taxonomy spec.md §7 defines.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindBusinessRule Kind = "business_rule"
	KindAuth         Kind = "auth"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// ServiceError is the error type every domain service raises.
type ServiceError struct {
	Kind       Kind
	Code       string // stable machine code, e.g. "business_rule.insufficient_funds"
	Message    string // localization key / human-readable default
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches structured context to the error (field names,
// rejected values) surfaced to callers that inspect it programmatically;
// never echoed into the wire envelope's "detail" string for internal
// errors.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func new(kind Kind, code, message string, status int) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: status}
}

func wrap(kind Kind, code, message string, status int, err error) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation errors (400).

func Validation(field, reason string) *ServiceError {
	return new(KindValidation, "validation_error", "invalid input", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return new(KindValidation, "validation_error", "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

// Business rule errors (400/403/409/422 depending on rule).

func BusinessRule(name, message string, status int) *ServiceError {
	return new(KindBusinessRule, "business_rule."+name, message, status)
}

func InsufficientFunds() *ServiceError {
	return BusinessRule("insufficient_funds", "insufficient funds for this operation", http.StatusBadRequest)
}

func DependencyCycle() *ServiceError {
	return BusinessRule("dependency_cycle", "this dependency would create a cycle", http.StatusUnprocessableEntity)
}

func InvitationExpired() *ServiceError {
	return BusinessRule("invitation_expired", "this invitation has expired", http.StatusBadRequest)
}

func AlreadyAccepted() *ServiceError {
	return BusinessRule("already_accepted", "this invitation was already accepted", http.StatusBadRequest)
}

// Auth errors (401).

func InvalidToken() *ServiceError {
	return new(KindAuth, "auth.invalid_token", "invalid authentication token", http.StatusUnauthorized)
}

func ExpiredToken() *ServiceError {
	return new(KindAuth, "auth.expired_token", "authentication token has expired", http.StatusUnauthorized)
}

func InactiveUser() *ServiceError {
	return new(KindAuth, "auth.inactive_user", "user account is inactive", http.StatusUnauthorized)
}

// Forbidden errors (403).

func Forbidden(subCode, message string) *ServiceError {
	return new(KindForbidden, "authz.denied", message, http.StatusForbidden).WithDetails("rule", subCode)
}

func LastAdmin() *ServiceError {
	return Forbidden("last_admin", "cannot remove or demote the last active admin of this group")
}

func DebtCapExceeded() *ServiceError {
	return Forbidden("debt_cap_exceeded", "operation would exceed the group's debt cap")
}

// Not found (404).

func NotFound(resource string) *ServiceError {
	return new(KindNotFound, "not_found", resource+" not found", http.StatusNotFound)
}

// Conflict (409).

func Conflict(name, message string) *ServiceError {
	return new(KindConflict, "conflict."+name, message, http.StatusConflict)
}

// Internal (500) — never echoes the wrapped error's details to callers.

func Internal(message string, err error) *ServiceError {
	return wrap(KindInternal, "internal_error", message, http.StatusInternalServerError, err)
}

// Helpers.

func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	ok := errors.As(err, &se)
	return se, ok
}

func HTTPStatus(err error) int {
	if se, ok := As(err); ok {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
