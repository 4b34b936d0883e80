package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/health"
	"github.com/keithlinneman/sopranos-api/internal/httpmw"
	"github.com/keithlinneman/sopranos-api/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes are registered on the router in order.
	APIRoutes []func(chi.Router)

	// DatasetInfo feeds X-Dataset-Version and X-Dataset-Hash.
	DatasetInfo  httpmw.DatasetInfo
	ClientIPOpts httpmw.ClientIPOptions

	// Errors reports unmatched routes and wrong methods. nil uses an
	// unobserved writer.
	Errors *apierr.Writer

	// MaxBodyBytes caps request bodies, 0 uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
}
