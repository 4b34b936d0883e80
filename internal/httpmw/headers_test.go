package httpmw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	want := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if len(seen) != 36 {
		t.Fatalf("generated id = %q", seen)
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatal("response should echo the id")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	h := RequestID("X-Correlation-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("X-Correlation-Id", "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen != "abc-123" {
		t.Fatalf("id = %q", seen)
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	long := make([]byte, maxRequestIDLen+1)
	for i := range long {
		long[i] = 'a'
	}
	r.Header.Set("X-Request-Id", string(long))
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen == string(long) || seen == "" {
		t.Fatalf("oversized id should be replaced, got %q", seen)
	}
}

type fakeDataset struct{ version, hash string }

func (f fakeDataset) DatasetVersion() string { return f.version }
func (f fakeDataset) DatasetHash() string    { return f.hash }

func TestDatasetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	h := DatasetHeaders(fakeDataset{"2007-06-10", "0123456789abcdef0123"})(okHandler)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := rec.Header().Get("X-Dataset-Version"); got != "2007-06-10" {
		t.Errorf("version = %q", got)
	}
	if got := rec.Header().Get("X-Dataset-Hash"); got != "0123456789ab" {
		t.Errorf("hash = %q", got)
	}
}

func TestDatasetHeaders_NilInfo(t *testing.T) {
	rec := httptest.NewRecorder()
	DatasetHeaders(nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Header().Get("X-Dataset-Version") != "" {
		t.Fatal("no headers expected without dataset info")
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	h.ServeHTTP(httptest.NewRecorder(), r)

	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Fatalf("err = %v, want MaxBytesError", readErr)
	}
}

func TestTraceResponseHeaders_NoSpan(t *testing.T) {
	rec := httptest.NewRecorder()
	TraceResponseHeaders("", "")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Header().Get("X-Trace-Id") != "" {
		t.Fatal("no trace header expected without a span")
	}
}

func TestTraceResponseHeaders_WithSpan(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r = r.WithContext(trace.ContextWithSpanContext(WithRequestID(r.Context(), "req-1"), sc))
	rec := httptest.NewRecorder()
	TraceResponseHeaders("X-Trace", "X-Span")(okHandler).ServeHTTP(rec, r)

	if got := rec.Header().Get("X-Trace"); got != tid.String() {
		t.Fatalf("X-Trace = %q", got)
	}
	if got := rec.Header().Get("X-Span"); got != sid.String() {
		t.Fatalf("X-Span = %q", got)
	}
}

func TestMaxBody_Disabled(t *testing.T) {
	var n int
	h := MaxBody(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ = r.Body.Read(buf)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if n != 10 {
		t.Fatalf("read %d bytes, want 10", n)
	}
}
