package apierr

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/sopranos-api/internal/log"
)

const internalMessage = "Internal server error"

// Body is the JSON object written for an error. Key order is not significant.
type Body map[string]any

// Report converts err into a status code and body. Payload fields are
// written first, so message and status_code always win a collision.
func Report(err error) (int, Body) {
	e, ok := As(err)
	if !ok {
		e = Generic(internalMessage)
	}

	if e.compact {
		return e.status, Body{"message": e.msg}
	}

	body := make(Body, len(e.payload)+2)
	for k, v := range e.payload {
		body[k] = v
	}
	body["message"] = e.msg
	body["status_code"] = e.status
	return e.status, body
}

// Observer is told about every reported error, e.g. to count them by kind.
type Observer func(ctx context.Context, kind Kind, status int)

// Writer reports errors onto HTTP responses.
type Writer struct {
	observe Observer
}

// NewWriter returns a Writer; observe may be nil.
func NewWriter(observe Observer) *Writer {
	return &Writer{observe: observe}
}

// Write reports err on w. Server faults are logged at error level with the
// full chain; client faults at debug.
func (rw *Writer) Write(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := Report(err)

	kind := KindGeneric
	if e, ok := As(err); ok {
		kind = e.kind
	}

	L := log.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		L.Error(ctx, err, "request failed", "error_kind", kind.String(), "status", status)
	} else {
		L.Debug(ctx, "request rejected", "error_kind", kind.String(), "status", status, "reason", err.Error())
	}

	if rw != nil && rw.observe != nil {
		rw.observe(ctx, kind, status)
	}

	WriteJSON(ctx, w, status, body)
}

// Handle adapts a handler that returns an error. The error is reported here
// exactly once.
func (rw *Writer) Handle(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			rw.Write(r.Context(), w, err)
		}
	}
}

// WriteJSON writes v with status as a JSON response.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(ctx).Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

var defaultWriter = &Writer{}

// Write reports err using a Writer without an observer.
func Write(ctx context.Context, w http.ResponseWriter, err error) {
	defaultWriter.Write(ctx, w, err)
}

// Handle is Writer.Handle without an observer.
func Handle(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return defaultWriter.Handle(fn)
}
