// Package clienterr defines the typed error taxonomy shared by the helper
// and HTTP backends. Every operation exposed by the backends returns one of
// these types for runtime conditions; programmer errors (missing
// collaborators) panic instead.
package clienterr

import (
	"errors"
	"fmt"
)

// AuthenticationError reports bad or missing credentials.
type AuthenticationError struct {
	Msg string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Msg
}

// AuthorizationError reports a request the server refused (HTTP 403).
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return "forbidden: " + e.Msg
}

// ConnectionError reports that the transport itself failed before any
// server response was available.
type ConnectionError struct {
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Msg, e.Err)
	}
	return "connection failed: " + e.Msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response or a response body that did not match
// the expected shape. Message carries the server's best-effort explanation.
type APIError struct {
	Status     int
	StatusText string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api error: %d %s: %s", e.Status, e.StatusText, e.Message)
	}
	return "api error: " + e.Message
}

// RuntimeKind distinguishes why a helper invocation failed.
type RuntimeKind int

const (
	// KindProcess covers crashes, logical helper errors and spawn failures.
	KindProcess RuntimeKind = iota
	// KindTimeout means the invocation exceeded its wall-clock deadline and
	// the process tree was killed.
	KindTimeout
	// KindInterrupted means the caller interrupted the invocation.
	KindInterrupted
)

// RuntimeError reports a failed helper invocation. Timeouts and manual
// interruptions share the kill mechanics but stay distinguishable by Kind.
type RuntimeError struct {
	Kind RuntimeKind
	Msg  string
}

func (e *RuntimeError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "helper timed out: " + e.Msg
	case KindInterrupted:
		return "helper interrupted: " + e.Msg
	default:
		return "helper failed: " + e.Msg
	}
}

// IsTimeout reports whether err is a RuntimeError caused by the deadline.
func IsTimeout(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Kind == KindTimeout
}

// IsInterrupted reports whether err is a RuntimeError caused by an explicit
// interrupt.
func IsInterrupted(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Kind == KindInterrupted
}
