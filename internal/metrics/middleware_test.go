package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func requestSeries(t *testing.T, m *ServerMetrics) map[string]float64 {
	t.Helper()
	out := make(map[string]float64)
	f := gatherMetric(t, m.reg, "http_requests_total")
	if f == nil {
		return out
	}
	for _, s := range f.GetMetric() {
		l := labelsOf(s)
		out[l["method"]+" "+l["route"]+" "+l["status"]] = s.GetCounter().GetValue()
	}
	return out
}

func TestMiddleware_ChiRoutePattern(t *testing.T) {
	m := New(nil)
	r := chi.NewRouter()
	r.Get("/api/characters/{id}/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Middleware(r)

	for _, p := range []string{"/api/characters/1/", "/api/characters/2/"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, http.NoBody))
	}

	got := requestSeries(t, m)
	if got["GET /api/characters/{id}/ 404"] != 2 {
		t.Fatalf("series = %v", got)
	}
}

func TestMiddleware_SlashRedirectLabelledApart(t *testing.T) {
	m := New(nil)
	r := chi.NewRouter()
	r.Get("/api/characters/", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/api/characters", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPermanentRedirect)
	})
	h := m.Middleware(r)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/characters/", http.NoBody))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/characters", http.NoBody))

	got := requestSeries(t, m)
	if got["GET /api/characters/ 200"] != 1 || got["GET /api/characters 308"] != 1 {
		t.Fatalf("series = %v", got)
	}
}

func TestMiddleware_UnmatchedRouteLabel(t *testing.T) {
	m := New(nil)
	h := m.Middleware(chi.NewRouter())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", http.NoBody))

	got := requestSeries(t, m)
	if got["GET unmatched 404"] != 1 {
		t.Fatalf("series = %v", got)
	}
}

func TestMiddleware_5xxIncrementsErrorCounter(t *testing.T) {
	m := New(nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	if counterValue(t, m.reg, "http_errors_total") != 1 {
		t.Fatal("5xx should be counted")
	}
}

func TestMiddleware_4xxDoesNotIncrementErrorCounter(t *testing.T) {
	m := New(nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	if f := gatherMetric(t, m.reg, "http_errors_total"); f != nil && len(f.GetMetric()) > 0 {
		t.Fatal("4xx should not be counted as server error")
	}
}

func TestMiddleware_NoWriteDefaultsTo200(t *testing.T) {
	m := New(nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	got := requestSeries(t, m)
	if got["GET unmatched 200"] != 1 {
		t.Fatalf("series = %v", got)
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New(nil)
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gaugeValue(t, m.reg, "http_inflight_requests")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	if during != 1 || gaugeValue(t, m.reg, "http_inflight_requests") != 0 {
		t.Fatalf("during=%v after=%v", during, gaugeValue(t, m.reg, "http_inflight_requests"))
	}
}

func TestRecorder_FirstStatusWins(t *testing.T) {
	rw := &recorder{ResponseWriter: httptest.NewRecorder()}
	if rw.status() != http.StatusOK {
		t.Fatalf("default status = %d", rw.status())
	}
	rw.WriteHeader(http.StatusTooManyRequests)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("abc"))
	if rw.status() != http.StatusTooManyRequests || rw.bytes != 3 {
		t.Fatalf("status=%d bytes=%d", rw.status(), rw.bytes)
	}
}
