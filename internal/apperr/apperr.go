package apperr

import (
	"errors"
	"net/http"
)

// Code is a stable machine-readable error code returned to clients.
type Code string

const (
	CodeInvalidTransition       Code = "INVALID_TRANSITION"
	CodeForbidden               Code = "FORBIDDEN"
	CodeConflict                Code = "CONFLICT"
	CodeDisputeBlocking         Code = "DISPUTE_BLOCKING"
	CodeInvalidResolutionAmount Code = "INVALID_RESOLUTION_AMOUNT"
	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeLedgerIntegrity         Code = "LEDGER_INTEGRITY_ERROR"
	CodeOrderNotDelivered       Code = "ORDER_NOT_DELIVERED"
	CodeDuplicateReview         Code = "DUPLICATE_REVIEW"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeAmountMismatch          Code = "AMOUNT_MISMATCH"
	CodeUnauthenticated         Code = "UNAUTHENTICATED"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrInvalidTransition       = New(CodeInvalidTransition, "invalid transition")
	ErrForbidden               = New(CodeForbidden, "forbidden")
	ErrConflict                = New(CodeConflict, "version conflict")
	ErrDisputeBlocking         = New(CodeDisputeBlocking, "dispute blocking")
	ErrInvalidResolutionAmount = New(CodeInvalidResolutionAmount, "invalid resolution amount")
	ErrInsufficientStock       = New(CodeInsufficientStock, "insufficient stock")
	ErrLedgerIntegrity         = New(CodeLedgerIntegrity, "ledger integrity violation")
	ErrOrderNotDelivered       = New(CodeOrderNotDelivered, "order not delivered")
	ErrDuplicateReview         = New(CodeDuplicateReview, "duplicate review")
	ErrNotFound                = New(CodeNotFound, "not found")
	ErrInvalidInput            = New(CodeInvalidInput, "invalid input")
	ErrAmountMismatch          = New(CodeAmountMismatch, "amount mismatch")
	ErrUnauthenticated         = New(CodeUnauthenticated, "unauthenticated")
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              `json:"error"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Cause    error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// InvalidTransition reports an illegal state edge with both endpoints.
func InvalidTransition(entity, current, requested string) *Error {
	return WithMetadata(CodeInvalidTransition, entity+" cannot move from "+current+" to "+requested, map[string]string{
		"entity":    entity,
		"current":   current,
		"requested": requested,
	})
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

func NotFound(entity string) *Error {
	return WithMetadata(CodeNotFound, entity+" not found", map[string]string{"entity": entity})
}

func InvalidInput(message string) *Error {
	return New(CodeInvalidInput, message)
}

func Conflict(entity, id string) *Error {
	return WithMetadata(CodeConflict, entity+" was modified concurrently", map[string]string{
		"entity": entity,
		"id":     id,
	})
}

func Integrity(message string, metadata map[string]string) *Error {
	return WithMetadata(CodeLedgerIntegrity, message, metadata)
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error code to its HTTP response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeInvalidResolutionAmount, CodeAmountMismatch:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeDuplicateReview, CodeDisputeBlocking:
		return http.StatusConflict
	case CodeInsufficientStock, CodeOrderNotDelivered:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
