package core

import "errors"

var (
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTimestamp    = errors.New("invalid timestamp")
	ErrEncoding            = errors.New("encoding error")
	ErrFileUnreadable      = errors.New("file unreadable")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidBucket       = errors.New("invalid bucket")
)
