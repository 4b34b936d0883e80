package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, h http.Handler) (int, status) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
	var s status
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, s
}

func TestHealthzHandler(t *testing.T) {
	code, s := serve(t, HealthzHandler(Fixed(true, "")))
	if code != http.StatusOK || s.Status != "ok" {
		t.Fatalf("code=%d status=%+v", code, s)
	}

	code, s = serve(t, HealthzHandler(Fixed(false, "dataset missing")))
	if code != http.StatusServiceUnavailable || s.Reason != "dataset missing" {
		t.Fatalf("code=%d status=%+v", code, s)
	}
}

func TestReadyzHandler_NilProbe(t *testing.T) {
	code, s := serve(t, ReadyzHandler(nil))
	if code != http.StatusOK || s.Status != "ready" {
		t.Fatalf("code=%d status=%+v", code, s)
	}
}

func TestFixed_DefaultReason(t *testing.T) {
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("err = %v", err)
	}
}

func TestReady(t *testing.T) {
	ready := false
	p := Ready("characters", func() bool { return ready })
	if err := p.Check(context.Background()); err == nil || err.Error() != "characters: not ready" {
		t.Fatalf("err = %v", err)
	}
	ready = true
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("err = %v", err)
	}
	if Ready("x", nil).Check(context.Background()) == nil {
		t.Fatal("nil func should not be ready")
	}
}

func TestAll(t *testing.T) {
	first := errors.New("first")
	p := All(nil, CheckFunc(func(context.Context) error { return nil }),
		CheckFunc(func(context.Context) error { return first }),
		Fixed(false, "second"))
	if err := p.Check(context.Background()); err != first {
		t.Fatalf("err = %v, want first failure", err)
	}
	if All().Check(context.Background()) != nil {
		t.Fatal("empty All should pass")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	if p.Check(context.Background()) != nil {
		t.Fatal("open gate should pass")
	}
	g.Set("")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("err = %v", err)
	}
	g.Set("shutting down")
	if err := p.Check(context.Background()); err == nil || err.Error() != "shutting down" {
		t.Fatalf("err = %v", err)
	}
	if !g.Draining() {
		t.Fatal("Draining should report a closed gate")
	}
	g.Clear()
	if g.Draining() || p.Check(context.Background()) != nil {
		t.Fatal("cleared gate should pass")
	}
}
