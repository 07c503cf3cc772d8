package store

import "errors"

var (
	ErrNotFound        = errors.New("not_found")
	ErrDuplicateKey    = errors.New("duplicate_key")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrValidation      = errors.New("validation_failed")
	ErrInternal        = errors.New("internal_error")
)
