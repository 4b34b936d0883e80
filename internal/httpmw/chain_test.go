package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tag(name string, trail *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trail = append(*trail, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_Order(t *testing.T) {
	var trail []string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trail = append(trail, "handler")
	}), tag("a", &trail), nil, tag("b", &trail))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := strings.Join(trail, ","); got != "a,b,handler" {
		t.Fatalf("order = %s", got)
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	called := false
	stop := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }), stop)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if called || rec.Code != http.StatusTeapot {
		t.Fatalf("called=%v code=%d", called, rec.Code)
	}
}

func TestChain_Empty(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d", rec.Code)
	}
}
