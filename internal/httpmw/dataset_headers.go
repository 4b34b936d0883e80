package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DatasetInfo identifies the dataset being served.
type DatasetInfo interface {
	DatasetVersion() string
	DatasetHash() string
}

// DatasetHeaders sets X-Dataset-Version and a 12 character X-Dataset-Hash,
// and tags the active span with both.
func DatasetHeaders(info DatasetInfo) Middleware {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, h := info.DatasetVersion(), info.DatasetHash()
			if v != "" {
				w.Header().Set("X-Dataset-Version", v)
			}
			if h != "" {
				short := h
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Dataset-Hash", short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("dataset.version", v),
					attribute.String("dataset.hash", h),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
