package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceResponseHeaders exposes the server span to clients as traceHdr and
// spanHdr (X-Trace-Id and X-Span-Id when empty) and tags the span with the
// request ID, so a rejected request can be found from either id.
func TraceResponseHeaders(traceHdr, spanHdr string) Middleware {
	if traceHdr == "" {
		traceHdr = "X-Trace-Id"
	}
	if spanHdr == "" {
		spanHdr = "X-Span-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := trace.SpanFromContext(r.Context())
			sc := span.SpanContext()
			if !sc.IsValid() {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set(traceHdr, sc.TraceID().String())
			h.Set(spanHdr, sc.SpanID().String())
			if id := RequestIDFromContext(r.Context()); id != "" {
				span.SetAttributes(attribute.String("http.request.id", id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
