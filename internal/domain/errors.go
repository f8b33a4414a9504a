package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrVenueRejected = errors.New("venue rejected")
	ErrTransport     = errors.New("transport failure")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrLockHeld      = errors.New("lock already held")
)
