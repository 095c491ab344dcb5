package store

import (
	"errors"
	"time"
)

// ErrStoreUnavailable is returned on write paths when Redis cannot be
// reached. Read paths degrade to empty results instead and never return
// this error.
var ErrStoreUnavailable = errors.New("shared store unavailable")

// RejectReason classifies why an append was refused admission.
type RejectReason string

const (
	// ReasonFlood: the origin address exceeded its per-window write cap.
	ReasonFlood RejectReason = "flood"
	// ReasonCapacity: the store is at hard cap and emergency cleanup
	// could not free room.
	ReasonCapacity RejectReason = "capacity"
	// ReasonMemory: Redis is over the configured memory budget.
	ReasonMemory RejectReason = "memory"
	// ReasonRateLimit: the session exceeded its per-window write cap.
	ReasonRateLimit RejectReason = "rate_limit"
)

// RejectionError is an admission failure. It carries a user-facing
// message and, for rate limiting, how long the caller should wait.
type RejectionError struct {
	Reason RejectReason
	Wait   time.Duration // nonzero only for ReasonRateLimit
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonFlood:
		return "too many messages from your address, slow down"
	case ReasonCapacity:
		return "chat is full, try again later"
	case ReasonMemory:
		return "chat is overloaded, try again later"
	case ReasonRateLimit:
		return "posting too fast, wait a moment"
	}
	return "message rejected"
}

// AsRejection unwraps err into a *RejectionError, or nil.
func AsRejection(err error) *RejectionError {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej
	}
	return nil
}
