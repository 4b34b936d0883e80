// Package apierr is the single place where failures become client-visible
// responses.
//
// Handlers and middleware return *Error values tagged with a Kind. Report
// turns any error into a status code and JSON body; Write and Handle put that
// on the wire. Errors that are not *Error are reported as a generic 500 and
// never leak their text to the client.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindNotFound
	KindInvalidInput
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "generic"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is an immutable domain error.
type Error struct {
	kind    Kind
	msg     string
	status  int
	payload map[string]any
	compact bool
	cause   error
}

// Option customizes an Error at construction.
type Option func(*Error)

// WithStatus overrides the kind's default status code.
func WithStatus(code int) Option {
	return func(e *Error) { e.status = code }
}

// WithPayload merges extra scalar fields into the reported body.
func WithPayload(p map[string]any) Option {
	return func(e *Error) {
		if len(p) == 0 {
			return
		}
		if e.payload == nil {
			e.payload = make(map[string]any, len(p))
		}
		for k, v := range p {
			e.payload[k] = v
		}
	}
}

// Compact renders only {"message": ...}. Used for rejections raised by
// middleware, whose wire format predates the status_code field.
func Compact() Option {
	return func(e *Error) { e.compact = true }
}

// WithCause records an underlying error for logs. It is never sent to clients.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

// New builds an Error of kind with msg as its client-facing message. The
// status defaults to kind.Status() unless an option overrides it.
func New(kind Kind, msg string, opts ...Option) *Error {
	e := &Error{kind: kind, msg: msg, status: kind.Status()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NotFound is a lookup miss for resource with the given id.
func NotFound(resource string, id any, opts ...Option) *Error {
	return New(KindNotFound, fmt.Sprintf("%s with ID %v not found", resource, id), opts...)
}

// InvalidInput is a 400 carrying msg, typically a validation failure.
func InvalidInput(msg string, opts ...Option) *Error {
	return New(KindInvalidInput, msg, opts...)
}

// RateLimited is the 429 returned once a client exhausts its window. Pair it
// with Compact() to match the rate limiter's body.
func RateLimited(opts ...Option) *Error {
	return New(KindRateLimited, "Rate limit exceeded", opts...)
}

// Generic is a 500 with msg. Use WithCause to keep the underlying error in logs.
func Generic(msg string, opts ...Option) *Error {
	return New(KindGeneric, msg, opts...)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind      { return e.kind }
func (e *Error) Message() string { return e.msg }
func (e *Error) Status() int     { return e.status }

// Payload returns a copy of the extra fields.
func (e *Error) Payload() map[string]any {
	out := make(map[string]any, len(e.payload))
	for k, v := range e.payload {
		out[k] = v
	}
	return out
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries a domain error of kind k.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.kind == k
}
