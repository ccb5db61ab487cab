package model

import "errors"

// ErrorCode is the stable, enumerable identifier of a failure.
type ErrorCode string

const (
	CodeAlreadyExists  ErrorCode = "already_exists"
	CodeSoldOut        ErrorCode = "sold_out"
	CodeNotStarted     ErrorCode = "not_started"
	CodeDuplicateClaim ErrorCode = "duplicate_claim"
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeAtCapacity     ErrorCode = "at_capacity"
	CodeOverflow       ErrorCode = "overflow"
	CodeNotFound       ErrorCode = "not_found"
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeInternal       ErrorCode = "internal"
)

// Error is a typed domain failure. Sentinels are compared by identity, so
// callers use errors.Is against the Err* values below.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrAlreadyExists  = &Error{Code: CodeAlreadyExists, Message: "a record already exists at this address"}
	ErrSoldOut        = &Error{Code: CodeSoldOut, Message: "sold out"}
	ErrNotStarted     = &Error{Code: CodeNotStarted, Message: "claiming has not started yet"}
	ErrDuplicateClaim = &Error{Code: CodeDuplicateClaim, Message: "principal already holds a claim on this counter"}
	ErrUnauthorized   = &Error{Code: CodeUnauthorized, Message: "principal does not own this receipt"}
	ErrAtCapacity     = &Error{Code: CodeAtCapacity, Message: "counter at capacity"}
	ErrOverflow       = &Error{Code: CodeOverflow, Message: "counter overflow"}
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
)

// Codes lists every code a domain operation can return.
func Codes() []ErrorCode {
	return []ErrorCode{
		CodeAlreadyExists,
		CodeSoldOut,
		CodeNotStarted,
		CodeDuplicateClaim,
		CodeUnauthorized,
		CodeAtCapacity,
		CodeOverflow,
		CodeNotFound,
		CodeInvalidRequest,
		CodeInternal,
	}
}

// CodeOf extracts the domain code from err. Errors outside the taxonomy
// (driver failures, cancelled contexts) report CodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
