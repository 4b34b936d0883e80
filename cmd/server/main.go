package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/cfg"
	"github.com/keithlinneman/sopranos-api/internal/characterhttp"
	"github.com/keithlinneman/sopranos-api/internal/characters"
	"github.com/keithlinneman/sopranos-api/internal/health"
	"github.com/keithlinneman/sopranos-api/internal/httpmw"
	"github.com/keithlinneman/sopranos-api/internal/httpserver"
	"github.com/keithlinneman/sopranos-api/internal/log"
	"github.com/keithlinneman/sopranos-api/internal/metahttp"
	"github.com/keithlinneman/sopranos-api/internal/metrics"
	"github.com/keithlinneman/sopranos-api/internal/opshttp"
	"github.com/keithlinneman/sopranos-api/internal/otelx"
	"github.com/keithlinneman/sopranos-api/internal/prof"
	"github.com/keithlinneman/sopranos-api/internal/ratelimit"
	v "github.com/keithlinneman/sopranos-api/internal/version"
)

// drainPeriod is how long readiness fails before listeners close, so load
// balancers stop routing here first.
const drainPeriod = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	var envFile string

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file read before flags are resolved (missing is fine)")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// dotenv only seeds the environment, real env vars and flags still win
	if err := cfg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "env file error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"rate_limit", conf.RateLimit,
		"rate_window", conf.RateWindow.String(),
		"rate_client_ttl", conf.RateClientTTL.String(),
		"max_request_bytes", conf.MaxRequestBytes,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)

	// limiter is created after metrics, the gauge reads it lazily at scrape time
	var limiter *ratelimit.Limiter
	m := metrics.New(func() int {
		if limiter == nil {
			return 0
		}
		return limiter.Len()
	})
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		OnStatus:      m.SetProfilingActive,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  conf.OTLPInsecure,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, continuing without export")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// dataset is embedded, failing to parse it is a broken build
	store, err := characters.Load()
	if err != nil {
		L.Error(ctx, err, "failed to load character dataset")
		os.Exit(1)
	}
	m.SetDataset(store.DatasetVersion(), store.DatasetHash(), store.Len())
	L.Info(ctx, "loaded character dataset",
		"dataset_version", store.DatasetVersion(),
		"dataset_hash", store.DatasetHash()[:12],
		"records", store.Len(),
	)

	errs := apierr.NewWriter(m.ObserveAPIError)

	limiter = ratelimit.New(ctx,
		ratelimit.WithLimit(conf.RateLimit),
		ratelimit.WithWindow(conf.RateWindow),
		ratelimit.WithTTL(conf.RateClientTTL),
		ratelimit.WithErrorWriter(errs),
		ratelimit.WithOnDenied(m.IncRateLimitDenied),
		// logged once per run of rejections, the counter covers the rest
		ratelimit.WithOnFirstDenied(func(ip string) {
			m.IncRateLimitThrottled(ip)
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)

	charactersAPI := characterhttp.NewAPI(store, limiter.Middleware, errs, L)
	metaAPI := metahttp.NewAPI(store, limiter, limiter.Middleware, vi, L)

	var gate health.ShutdownGate

	readiness := health.All(
		gate.Probe(),
		health.Ready("characters", store.Ready),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    []func(chi.Router){charactersAPI.RegisterRoutes, metaAPI.RegisterRoutes},
		DatasetInfo:  store,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Errors:       errs,
		MaxBodyBytes: conf.MaxRequestBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin listener rejects public peers, see opshttp
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills us after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_period", drainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return nil
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
