package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
	ErrEmptyResult  = errors.New("empty result set")
	ErrPersistence  = errors.New("persistence failure")
)
