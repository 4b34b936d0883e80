package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MatchedPattern returns the route pattern chi matched, or "" before or
// without a match. Unlike chi's RoutePattern it keeps a trailing slash, so
// "/api/characters/" and its redirect "/api/characters" stay distinct.
func MatchedPattern(ctx context.Context) string {
	rc := chi.RouteContext(ctx)
	if rc == nil || len(rc.RoutePatterns) == 0 {
		return ""
	}
	p := strings.Join(rc.RoutePatterns, "")
	// mounted subrouters leave "/*/" joints
	for strings.Contains(p, "/*/") {
		p = strings.ReplaceAll(p, "/*/", "/")
	}
	return p
}

// RoutePattern returns MatchedPattern, or the raw path when routing has not
// matched anything.
func RoutePattern(r *http.Request) string {
	if p := MatchedPattern(r.Context()); p != "" {
		return p
	}
	return r.URL.Path
}

// AnnotateHTTPRoute renames the server span to "METHOD /route/{pattern}"
// once routing is done.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		route := RoutePattern(r)
		span.SetAttributes(attribute.String("http.route", route))
		span.SetName(r.Method + " " + route)
	})
}
