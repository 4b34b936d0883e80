package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/characterhttp"
	"github.com/keithlinneman/sopranos-api/internal/characters"
	"github.com/keithlinneman/sopranos-api/internal/log"
	"github.com/keithlinneman/sopranos-api/internal/metahttp"
	"github.com/keithlinneman/sopranos-api/internal/ratelimit"
	"github.com/keithlinneman/sopranos-api/internal/version"
)

// newStack wires the public handler the way main does, with the embedded
// dataset and a real limiter.
func newStack(t *testing.T, limit int) http.Handler {
	t.Helper()
	store, err := characters.Load()
	if err != nil {
		t.Fatalf("load characters: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errs := apierr.NewWriter(nil)
	limiter := ratelimit.New(ctx,
		ratelimit.WithLimit(limit),
		ratelimit.WithWindow(time.Minute),
		ratelimit.WithTTL(0),
		ratelimit.WithErrorWriter(errs),
	)

	chars := characterhttp.NewAPI(store, limiter.Middleware, errs, log.Nop())
	meta := metahttp.NewAPI(store, limiter, limiter.Middleware, version.Get(), log.Nop())

	return NewHandler(&Options{
		Logger:       log.Nop(),
		UseRecoverMW: true,
		APIRoutes:    []func(chi.Router){chars.RegisterRoutes, meta.RegisterRoutes},
		DatasetInfo:  store,
		Errors:       errs,
	})
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	req.RemoteAddr = "198.51.100.7:40000"
	h.ServeHTTP(rec, req)
	return rec
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []characters.Character {
	t.Helper()
	var out []characters.Character
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestIntegration_ListAll(t *testing.T) {
	rec := get(newStack(t, 100), "/api/characters/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeList(t, rec); len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" || rec.Header().Get("X-RateLimit-Remaining") != "99" {
		t.Fatalf("rate limit headers = %v", rec.Header())
	}
}

func TestIntegration_ListFilters(t *testing.T) {
	h := newStack(t, 100)

	tests := []struct {
		query string
		want  int
	}{
		{"lastName=Soprano", 5},
		{"firstName=tony", 1},
		{"firstName=a&lastName=soprano", 4},
		{"lastName=Gandolfini", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := get(h, "/api/characters/?"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decodeList(t, rec); len(got) != tt.want {
				t.Fatalf("len = %d, want %d: %v", len(got), tt.want, got)
			}
		})
	}
}

func TestIntegration_EmptyResultIsArray(t *testing.T) {
	rec := get(newStack(t, 100), "/api/characters/?lastName=zzz")
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("body = %q, want []", got)
	}
}

func TestIntegration_GetByID(t *testing.T) {
	rec := get(newStack(t, 100), "/api/characters/1/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var c characters.Character
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatal(err)
	}
	if c.FirstName != "Tony" || c.LastName != "Soprano" {
		t.Fatalf("character = %+v", c)
	}
}

func TestIntegration_GetMissing(t *testing.T) {
	h := newStack(t, 100)
	for _, id := range []string{"999", "0", "99999999999999999999"} {
		rec := get(h, "/api/characters/"+id+"/")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("id %s: status = %d", id, rec.Code)
		}
		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["message"] != "Character with ID "+id+" not found" || body["status_code"] != float64(404) {
			t.Fatalf("id %s: body = %v", id, body)
		}
	}
}

func TestIntegration_GetInvalidID(t *testing.T) {
	rec := get(newStack(t, 100), "/api/characters/abc/")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"message\":\"Invalid format for id\"}\n" {
		t.Fatalf("body = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing on validation failure")
	}
}

func TestIntegration_InvalidFilter(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	rec := get(newStack(t, 100), "/api/characters/?firstName="+string(long))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIntegration_RateLimit(t *testing.T) {
	h := newStack(t, 100)

	for i := 0; i < 100; i++ {
		if rec := get(h, "/api/characters/"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := get(h, "/api/characters/1/")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 101: status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"message\":\"Rate limit exceeded\"}\n" {
		t.Fatalf("body = %q", got)
	}
	if s, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || s < 1 || s > 60 {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("security headers missing on 429")
	}

	// another client is unaffected
	other := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/characters/", http.NoBody)
	req.RemoteAddr = "198.51.100.8:40000"
	h.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Fatalf("other client status = %d", other.Code)
	}
}

func TestIntegration_RateLimitBeforeValidation(t *testing.T) {
	h := newStack(t, 1)
	get(h, "/api/characters/")

	// an invalid id still counts against the limit and is rejected as 429 first
	if rec := get(h, "/api/characters/abc/"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestIntegration_TrailingSlashRedirect(t *testing.T) {
	h := newStack(t, 100)

	tests := []struct{ in, want string }{
		{"/api/characters", "/api/characters/"},
		{"/api/characters?lastName=Soprano", "/api/characters/?lastName=Soprano"},
		{"/api/characters/3", "/api/characters/3/"},
	}
	for _, tt := range tests {
		rec := get(h, tt.in)
		if rec.Code != http.StatusPermanentRedirect {
			t.Fatalf("%s: status = %d", tt.in, rec.Code)
		}
		if got := rec.Header().Get("Location"); got != tt.want {
			t.Fatalf("%s: Location = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntegration_DatasetHeaders(t *testing.T) {
	rec := get(newStack(t, 100), "/api/characters/")
	if rec.Header().Get("X-Dataset-Version") != "2007-06-10" {
		t.Fatalf("X-Dataset-Version = %q", rec.Header().Get("X-Dataset-Version"))
	}
	if len(rec.Header().Get("X-Dataset-Hash")) != 12 {
		t.Fatalf("X-Dataset-Hash = %q", rec.Header().Get("X-Dataset-Hash"))
	}
}

func TestIntegration_Meta(t *testing.T) {
	rec := get(newStack(t, 100), "/api/meta")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m metahttp.MetaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.Dataset == nil || m.Dataset.Records != 10 {
		t.Fatalf("dataset = %+v", m.Dataset)
	}
	if m.RateLimit == nil || m.RateLimit.Limit != 100 || m.RateLimit.WindowSeconds != 60 {
		t.Fatalf("rate limit = %+v", m.RateLimit)
	}
}

func TestIntegration_WrongMethod(t *testing.T) {
	h := newStack(t, 100)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/characters/", http.NoBody))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIntegration_ThirdRequestOverLimitOfTwo(t *testing.T) {
	h := newStack(t, 2)
	get(h, "/api/characters/")
	get(h, "/api/characters/?firstName=Tony")

	rec := get(h, "/api/characters/1/")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"message\":\"Rate limit exceeded\"}\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestIntegration_MetaSharesRateLimit(t *testing.T) {
	h := newStack(t, 2)
	get(h, "/api/characters/")
	get(h, "/api/meta")

	rec := get(h, "/api/meta")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"message\":\"Rate limit exceeded\"}\n" {
		t.Fatalf("body = %q", got)
	}
}
