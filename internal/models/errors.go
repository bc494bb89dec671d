package models

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidMessage = errors.New("invalid message")
	ErrPersistence    = errors.New("persistence error")
	ErrDelivery       = errors.New("delivery failure")
)

type ErrorCode string

const (
	ErrorCodeNotFound       ErrorCode = "not_found"
	ErrorCodeForbidden      ErrorCode = "forbidden"
	ErrorCodeInvalidMessage ErrorCode = "invalid_message"
	ErrorCodePersistence    ErrorCode = "persistence_error"
	ErrorCodeInternal       ErrorCode = "internal"
)

// CodeOf maps an error onto the code reported to clients.
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, ErrForbidden):
		return ErrorCodeForbidden
	case errors.Is(err, ErrInvalidMessage):
		return ErrorCodeInvalidMessage
	case errors.Is(err, ErrPersistence):
		return ErrorCodePersistence
	}
	return ErrorCodeInternal
}
