package kenter

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindTransient Kind = iota
	KindUnauthorized
	KindNotFound
	KindRateLimited
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	default:
		return "transient"
	}
}

// Sentinel errors matched by FetchError.Is.
var (
	ErrTransient    = errors.New("transient failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrMalformed    = errors.New("malformed response")
)

// FetchError describes a failed request against the metering API.
type FetchError struct {
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	msg := "kenter fetch " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is match a FetchError against the sentinel of its kind.
func (e *FetchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Retryable reports whether the backoff loop should try again.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrTransient
	}
}
