package opshttp

import (
	"net/http"

	"github.com/keithlinneman/sopranos-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic is called after a panic in an ops handler is recovered.
	OnPanic func()
}
