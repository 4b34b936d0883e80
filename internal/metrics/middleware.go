package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/sopranos-api/internal/httpmw"
)

// unmatchedRoute labels requests chi could not route, keeping scanner
// traffic from creating one series per path.
const unmatchedRoute = "unmatched"

// recorder remembers the first status written and counts body bytes.
type recorder struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (rw *recorder) WriteHeader(code int) {
	if rw.code == 0 {
		rw.code = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(p []byte) (int, error) {
	if rw.code == 0 {
		rw.code = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *recorder) status() int {
	if rw.code == 0 {
		return http.StatusOK
	}
	return rw.code
}

// Middleware records in-flight, totals, latency and response size, labelled
// by method, chi route pattern and status only.
//
// It wraps the router from outside, so it seeds the chi route context itself
// and reads the matched pattern back after the handler returns.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		rw := &recorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		ctx := r.Context()
		route := routeLabel(ctx)
		code := rw.status()

		m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		if code >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(r.Method, route).Inc()
		}
		observe(ctx, m.reqDur.WithLabelValues(r.Method, route), time.Since(start).Seconds())
		m.respBytes.WithLabelValues(r.Method, route).Observe(float64(rw.bytes))
	})
}

// routeLabel keeps the trailing slash of the matched pattern, so a slash
// redirect route is counted apart from the route it redirects to.
func routeLabel(ctx context.Context) string {
	if p := httpmw.MatchedPattern(ctx); p != "" {
		return p
	}
	return unmatchedRoute
}

// observe attaches the trace id as an exemplar when the request was sampled.
func observe(ctx context.Context, obs prometheus.Observer, v float64) {
	sc := trace.SpanContextFromContext(ctx)
	if eo, ok := obs.(prometheus.ExemplarObserver); ok && sc.IsValid() && sc.IsSampled() {
		eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
		return
	}
	obs.Observe(v)
}
