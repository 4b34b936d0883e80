// Package httpmw provides the process-wide HTTP middleware.
//
// httpserver.NewHandler composes it outermost first: security headers,
// panic recovery, request ID, client IP, OTEL tracing, trace response
// headers, dataset headers, metrics, request-scoped logger, then the chi
// router with compression, route annotation, access log and body limit. Per-route
// admission (rate limiting, validation) is chained at route registration
// with Chain.
//
// Query strings are logged; headers and bodies are not.
package httpmw
