package sas

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded is returned when a fixed buffer is too small for the data
// written into it. Nothing is ever truncated silently.
var ErrCapacityExceeded = errors.New("buffer capacity exceeded")

// ErrMalformedInput is returned for a device key which is not valid Base64, for
// an invalid validity period and for tokens which cannot be parsed.
var ErrMalformedInput = errors.New("malformed input")

// ErrUpstreamFailure matches every error reported by the broker client.
var ErrUpstreamFailure = errors.New("broker client failure")

// ErrTokenExpired is returned by Verify for a token past its expiry
var ErrTokenExpired = errors.New("token expired")

// ErrSignatureMismatch is returned by Verify when the signature does not match the key
var ErrSignatureMismatch = errors.New("signature mismatch")

// UpstreamError wraps an error reported by the broker client. The original
// error is kept verbatim and is reachable with errors.Is and errors.As.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the broker client's error
func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes every UpstreamError match ErrUpstreamFailure
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamFailure }

// ErrorKind classifies errors returned by this package
type ErrorKind int

// the error kinds
const (
	KindNone ErrorKind = iota
	KindCapacityExceeded
	KindMalformedInput
	KindUpstreamFailure
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCapacityExceeded:
		return "capacity exceeded"
	case KindMalformedInput:
		return "malformed input"
	case KindUpstreamFailure:
		return "upstream failure"
	}
	return "unknown"
}

// Kind returns the kind of err. Capacity problems win over upstream failures, so a
// broker client that runs out of buffer space is reported as KindCapacityExceeded.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrUpstreamFailure):
		return KindUpstreamFailure
	}
	return KindUnknown
}

// upstream turns a broker client error into the error returned by Generate
func upstream(op string, err error) error {
	if errors.Is(err, ErrCapacityExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &UpstreamError{Op: op, Err: err}
}
