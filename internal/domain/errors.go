package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrAggregateMissing      = errors.New("aggregate counters missing")
	ErrWriteConflict         = errors.New("write conflict")
	ErrSubscriptionTransport = errors.New("subscription transport error")
)
