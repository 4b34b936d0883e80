package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/version"
)

type ServerMetrics struct {
	reg            *prometheus.Registry
	handler        http.Handler
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal    prometheus.Counter
	ratelimitThrottledTotal prometheus.Counter
	ratelimitClients        prometheus.GaugeFunc

	apiErrorsTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec

	datasetInfo    *prometheus.GaugeVec
	datasetRecords prometheus.Gauge

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions.
// trackedClients may be nil; when set it backs a gauge of rate limiter keys.
func New(trackedClients func() int) *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if trackedClients == nil {
		trackedClients = func() int { return 0 }
	}

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(64, 4, 6),
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitThrottledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_clients_throttled_total",
			Help: "Number of times a client went from admitted to rejected",
		}),
		ratelimitClients: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ratelimit_tracked_clients",
			Help: "Client windows currently held by the rate limiter",
		}, func() float64 { return float64(trackedClients()) }),
		apiErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Errors reported to clients by kind and status",
		}, []string{"kind", "status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		datasetInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dataset_info",
			Help: "Dataset being served (labels carry identity, value is always 1)",
		}, []string{"version", "sha256"}),
		datasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataset_records",
			Help: "Number of records in the loaded dataset",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitThrottledTotal,
		m.ratelimitClients,
		m.apiErrorsTotal,
		m.errorsTotal,
		m.datasetInfo,
		m.datasetRecords,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied(string) {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitThrottled(string) {
	m.ratelimitThrottledTotal.Inc()
}

// ObserveAPIError matches apierr.Observer.
func (m *ServerMetrics) ObserveAPIError(_ context.Context, kind apierr.Kind, status int) {
	m.apiErrorsTotal.WithLabelValues(kind.String(), strconv.Itoa(status)).Inc()
}

// SetDataset records the dataset identity, set once at startup.
func (m *ServerMetrics) SetDataset(version, sha256 string, records int) {
	m.datasetInfo.Reset()
	m.datasetInfo.WithLabelValues(version, sha256).Set(1)
	m.datasetRecords.Set(float64(records))
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
