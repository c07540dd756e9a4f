// Package utils provides shared error-wrapping helpers used across the
// federation core. See Version for the module's semantic version.
package utils

import (
	"errors"
	"fmt"
)

// Version is the semantic version of this package's API contract.
const Version = "v0.1.0"

// Kind classifies an error the way the governance core's callers need to
// react to it: retry, reject, or surface as not-found. It mirrors the error
// taxonomy described for the DAG core (Integrity, Signature, Structural,
// Authorization, Quorum, Storage, NotFound, Cancelled).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIntegrity
	KindSignature
	KindStructural
	KindAuthorization
	KindQuorum
	KindStorage
	KindNotFound
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIntegrity:
		return "integrity"
	case KindSignature:
		return "signature"
	case KindStructural:
		return "structural"
	case KindAuthorization:
		return "authorization"
	case KindQuorum:
		return "quorum"
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TypedError pairs a Kind with a wrapped cause so CLI and gateway layers can
// map it to an exit code or HTTP status without string-matching messages.
type TypedError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error { return e.Cause }

// New builds a TypedError of the given kind.
func New(kind Kind, message string) error {
	return &TypedError{Kind: kind, Message: message}
}

// Wrap adds context to err and tags it with kind. It returns nil if err is
// nil, and preserves an existing Kind if err already carries one and kind is
// KindUnknown.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	if kind == KindUnknown {
		var te *TypedError
		if errors.As(err, &te) {
			kind = te.Kind
		}
	}
	return &TypedError{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the Kind from err, or KindUnknown if err does not carry
// one.
func KindOf(err error) Kind {
	var te *TypedError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}
