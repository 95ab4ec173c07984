package identity

import (
	"errors"
	"fmt"
)

// Kind classifies verification failures.
type Kind int

const (
	// KindInvalid covers bad signatures, wrong issuer or audience, missing
	// subject and any other rejection of a well-formed token.
	KindInvalid Kind = iota
	KindMissing
	KindMalformed
	KindExpired
	KindRevoked
	// KindUnavailable means the token could not be checked at all
	// (provider timeout or fault). It is not a verdict on the token.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindRevoked:
		return "revoked"
	case KindUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// Error is a verification failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "identity token " + e.Kind.String()
	}
	return fmt.Sprintf("identity token %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so callers can write
// errors.Is(err, identity.ErrExpired).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMissing     = &Error{Kind: KindMissing}
	ErrMalformed   = &Error{Kind: KindMalformed}
	ErrExpired     = &Error{Kind: KindExpired}
	ErrRevoked     = &Error{Kind: KindRevoked}
	ErrInvalid     = &Error{Kind: KindInvalid}
	ErrUnavailable = &Error{Kind: KindUnavailable}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err. Errors that are not verification
// errors are reported as KindUnavailable: the outcome is unknown, not a
// rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}
