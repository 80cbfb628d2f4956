package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorConfig   ErrorCode = "CONFIG_ERROR"
	ErrorAuth     ErrorCode = "AUTH_ERROR"
	ErrorQuery    ErrorCode = "QUERY_ERROR"
	ErrorNotFound ErrorCode = "NOT_FOUND"
	ErrorFetch    ErrorCode = "FETCH_ERROR"
	ErrorStorage  ErrorCode = "STORAGE_ERROR"
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrorInternal when there is none.
func CodeOf(err error) ErrorCode {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Code
	}
	return ErrorInternal
}
