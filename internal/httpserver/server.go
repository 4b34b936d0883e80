package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/health"
	"github.com/keithlinneman/sopranos-api/internal/httpmw"
	"github.com/keithlinneman/sopranos-api/internal/log"
	"github.com/keithlinneman/sopranos-api/internal/xerrors"
)

// DefaultMaxBodyBytes is enough for any JSON filter object the API accepts.
const DefaultMaxBodyBytes = 16 << 10

// NewHandler builds the public handler: the chi router with its routes,
// wrapped in the process-wide middleware. opts must not be nil.
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	errs := opts.Errors
	if errs == nil {
		errs = apierr.NewWriter(nil)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5, "application/json"))

	// renames the server span to the chi route pattern once routing is done
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog)
	r.Use(httpmw.MaxBody(maxBody))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	for _, register := range opts.APIRoutes {
		if register != nil {
			register(r)
		}
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errs.Write(r.Context(), w, apierr.New(apierr.KindNotFound, "Resource not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errs.Write(r.Context(), w, apierr.InvalidInput("Method not allowed",
			apierr.WithStatus(http.StatusMethodNotAllowed)))
	})

	// Middleware below wraps the router, listed innermost first
	var h http.Handler = r

	// request-scoped logger, inside tracing so records carry trace ids
	h = httpmw.WithLogger(L)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	if opts.DatasetInfo != nil {
		h = httpmw.DatasetHeaders(opts.DatasetInfo)(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute will rename the span later to the final route pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// resolved before anything that keys on the client
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	h = httpmw.RequestID("X-Request-Id")(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}

	// outermost so every response carries them, including panics and 404s
	h = httpmw.SecurityHeaders(h)

	return h
}

// shouldTrace skips health probes and browser noise.
func shouldTrace(p string) bool {
	switch p {
	case "/-/healthy", "/-/ready", "/favicon.ico", "/robots.txt":
		return false
	}
	return true
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen addr=%s", addr)
	}

	go func() {
		L.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
