// Command signaccess serves the access-request API used by the game-server
// plugin: signs and commands become grant or revoke tasks in the tenant.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"signaccess/internal/access/bootstrap"
	"signaccess/internal/access/handler"
	"signaccess/internal/access/metrics"
	"signaccess/internal/access/tracer"
	"signaccess/internal/platform/config"
	"signaccess/internal/platform/health"
	"signaccess/internal/platform/logger"
	"signaccess/pkg/platform/audit"
	auditmetrics "signaccess/pkg/platform/audit/metrics"
	auditpublisher "signaccess/pkg/platform/audit/publisher"
	auditstore "signaccess/pkg/platform/audit/store/memory"
	"signaccess/pkg/platform/middleware/admin"
	"signaccess/pkg/platform/middleware/request"
	"signaccess/pkg/platform/middleware/requesttime"
	"signaccess/pkg/platform/validation"
)

const requestTimeout = 30 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to the YAML config file")
	addr := pflag.String("addr", "", "Listen address (overrides server.addr)")
	debug := pflag.Bool("debug", false, "Start in debug mode")
	pflag.Parse()

	if err := run(*configPath, *addr, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "signaccess:", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, debug bool) error {
	load := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		cfg.Debug.Enabled = cfg.Debug.Enabled || debug
		return cfg, nil
	}
	cfg, err := load()
	if err != nil {
		return err
	}

	level := logger.Level(cfg.Debug.Enabled)
	log := logger.New(level)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	accessMetrics := metrics.New(reg)

	store := auditstore.NewInMemoryStore(cfg.Audit.Capacity)
	publisher := auditpublisher.NewPublisher(store,
		auditpublisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		auditpublisher.WithPublisherLogger(log),
		auditpublisher.WithMetrics(auditmetrics.New(reg)),
	)
	defer publisher.Close()

	holder, err := bootstrap.NewHolder(cfg, load, bootstrap.Deps{
		Logger:  log,
		Level:   level,
		Metrics: accessMetrics,
		Tracer:  tracer.NewOTel(),
		Audit:   audit.NewLogger(log, publisher),
	})
	if err != nil {
		return err
	}

	log.Info("initializing signaccess",
		"addr", cfg.Server.Addr,
		"auth_mode", holder.Current().Broker.Mode(),
		"subject_mode", cfg.ConductorOne.SubjectMode,
		"debug", cfg.Debug.Enabled,
		"conductorone", cfg.ConductorOne,
	)

	healthHandler := health.New(holder.Mode)
	healthHandler.RegisterCheck("access_client", holder.Ready)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(request.Latency(accessMetrics))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(chimw.AllowContentType("application/json"))
	r.Use(chimw.Timeout(requestTimeout))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if cfg.Server.AdminToken == "" {
		log.Warn("no admin token configured, control routes are open")
	}
	handler.New(holder, publisher, log).
		WithGuard(admin.RequireToken(cfg.Server.AdminToken, log)).
		Register(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				if err := holder.Reload(ctx); err == nil {
					log.Info("configuration reloaded on SIGHUP")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.Default().Server.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := holder.Drain(shutdownCtx); err != nil {
		log.Warn("workflows still running at shutdown", "error", err)
	}

	log.Info("server stopped")
	return nil
}

