// Package apperr defines the error kinds that cross the storeguard boundary.
// Every error returned by the lifecycle manager and the access gate is an *Error
// (or wraps one); callers branch on Kind via errors.Is against the sentinels.
package apperr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error for propagation policy and client-visible behavior.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthentication: bad, expired, or malformed token or refresh token. Caller must re-authenticate.
	KindAuthentication
	// KindAccessDenied: authenticated but not authorized for the store/operation. Final.
	KindAccessDenied
	// KindValidation: malformed input, including cross-tenant write attempts.
	KindValidation
	// KindConcurrency: lost a rotation race or replayed a refresh token; the session was revoked.
	KindConcurrency
	// KindPersistence: the underlying store failed. Caller may retry with backoff.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAccessDenied:
		return "access_denied"
	case KindValidation:
		return "validation"
	case KindConcurrency:
		return "concurrency"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAccessDenied   = &Error{Kind: KindAccessDenied}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConcurrency    = &Error{Kind: KindConcurrency}
	ErrPersistence    = &Error{Kind: KindPersistence}

	// ErrTimeout marks a bounded wait that expired. It is always wrapped inside an
	// authentication or access-denied error; it is never returned on its own.
	ErrTimeout = errors.New("deadline exceeded")
)

// Error is a classified error. Code is a stable machine-readable reason
// (e.g. "invalid_refresh"); Message is safe to show a client. Err is the
// internal cause and is never rendered by SafeMessage.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrAccessDenied) works
// regardless of code or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Authentication returns an authentication error with the given code.
func Authentication(code string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: "authentication required"}
}

// AuthenticationCause is Authentication with an internal cause attached.
func AuthenticationCause(code string, cause error) *Error {
	e := Authentication(code)
	e.Err = cause
	return e
}

// Denied returns the generic access-denied error. The message never reveals whether
// the target exists in another tenant.
func Denied() *Error {
	return &Error{Kind: KindAccessDenied, Code: "forbidden", Message: "forbidden"}
}

// DeniedCause is Denied with an internal cause attached (e.g. resolver timeout).
func DeniedCause(cause error) *Error {
	e := Denied()
	e.Err = cause
	return e
}

// Validation returns a validation error with a safe message.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Concurrency returns the error for a lost rotation race or detected replay.
func Concurrency(code string) *Error {
	return &Error{Kind: KindConcurrency, Code: code, Message: "session revoked; sign in again"}
}

// Persistence wraps a store failure. A nil cause returns nil; an error that is
// already classified is returned unchanged.
func Persistence(cause error) error {
	if cause == nil {
		return nil
	}
	var ae *Error
	if errors.As(cause, &ae) {
		return cause
	}
	return &Error{Kind: KindPersistence, Code: "unavailable", Message: "temporarily unavailable", Err: cause}
}

// KindOf returns the Kind of err, or KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// SafeMessage returns the client-safe rendering of err: stable code and message, no cause.
func SafeMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	if ae.Message == "" {
		return ae.Kind.String()
	}
	return ae.Message
}

// GRPCStatus maps err to a gRPC status carrying only the safe message.
func GRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var c codes.Code
	switch KindOf(err) {
	case KindAuthentication:
		c = codes.Unauthenticated
	case KindAccessDenied:
		c = codes.PermissionDenied
	case KindValidation:
		c = codes.InvalidArgument
	case KindConcurrency:
		c = codes.Aborted
	case KindPersistence:
		c = codes.Unavailable
	default:
		c = codes.Internal
	}
	return status.New(c, SafeMessage(err))
}
