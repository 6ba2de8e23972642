// Command portal serves the certificate portal's web front: server-rendered
// pages behind the route guard, the backend API proxy, health and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"certportal/internal/apiclient"
	"certportal/internal/guard"
	guardmetrics "certportal/internal/guard/metrics"
	"certportal/internal/platform/config"
	"certportal/internal/platform/health"
	"certportal/internal/platform/logger"
	"certportal/internal/platform/metrics"
	"certportal/internal/platform/tracer"
	"certportal/internal/portal"
	"certportal/internal/session/models"
	"certportal/pkg/platform/circuit"
	"certportal/pkg/platform/middleware/metadata"
	request "certportal/pkg/platform/middleware/request"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	log.Info("initializing certportal",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"backend", cfg.Backend.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := buildHandler(cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func buildHandler(cfg config.Portal, log *slog.Logger) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.TracingEnabled {
		tr = tracer.NewOTel()
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.Backend.URL,
		Timeout:   cfg.Backend.Timeout,
		Tracer:    tr,
		Logger:    log,
		UserAgent: "certportal",
	})
	if err != nil {
		return nil, fmt.Errorf("configure backend client: %w", err)
	}

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	breaker := circuit.New("certificate-backend",
		circuit.WithFailureThreshold(cfg.Guard.BreakerThreshold),
		circuit.WithCooldown(cfg.Guard.BreakerCooldown),
	)
	g := guard.New(client, log,
		guard.WithRules([]guard.Rule{
			{Family: guard.FamilyAdmin, Prefix: cfg.Guard.AdminPrefix, RequiredRole: models.RoleAdmin},
			{Family: guard.FamilyMember, Prefix: cfg.Guard.MemberPrefix},
		}),
		guard.WithBreaker(breaker),
		guard.WithMetrics(guardmetrics.New(registry)),
		guard.WithSessionCookie(cfg.Guard.SessionCookie),
	)

	portalMetrics := metrics.New(registry)
	pages, err := portal.NewPages(log, portalMetrics)
	if err != nil {
		return nil, err
	}

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("backend", func(context.Context) error {
		if breaker.State() == circuit.StateOpen {
			return errors.New("circuit open")
		}
		return nil
	})

	backend := client.BaseURL()
	return portal.NewRouter(portal.Deps{
		Logger:         log,
		Pages:          pages,
		Guard:          g,
		APIProxy:       portal.NewAPIProxy(backend, log, portalMetrics),
		Health:         healthHandler,
		Metadata:       metadata.NewMiddleware(proxies),
		RequestMetrics: request.NewMetrics(registry),
		Gatherer:       registry,
		RequestTimeout: cfg.RequestTimeout,
	}), nil
}
