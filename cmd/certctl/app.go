package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"certportal/internal/apiclient"
	"certportal/internal/navigation"
	"certportal/internal/platform/config"
	"certportal/internal/platform/tracer"
	"certportal/internal/session/initializer"
	sessionmetrics "certportal/internal/session/metrics"
	"certportal/internal/session/store"
	"certportal/internal/shell"
	"certportal/internal/storage/local"
	"certportal/internal/storage/transient"
)

// app is one client process: a single session store, initializer and router.
type app struct {
	log       *slog.Logger
	local     *local.Store
	transient *transient.Store
	store     *store.Store
	router    *navigation.Router
	jar       *apiclient.PersistentJar
	client    *apiclient.Client
	toasts    *shell.Toasts
	registry  *prometheus.Registry
	session   *initializer.Initializer
	logouter  *shell.Logouter
	login     *shell.LoginFlow
}

func newApp(ctx context.Context, cfg config.Client, log *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := local.Open(ctx, local.DSN(cfg.DatabasePath()))
	if err != nil {
		return nil, err
	}

	router, err := navigation.New(cfg.Open)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		log:       log,
		local:     db,
		transient: transient.New(),
		router:    router,
		toasts:    shell.NewToasts(),
		registry:  prometheus.NewRegistry(),
	}
	a.store = store.Open(ctx, db, a.transient, log)

	origin, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	jar, err := apiclient.OpenJar(ctx, origin, db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	client, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		Jar:       jar,
		Tracer:    tracer.NewOTel(),
		Logger:    log,
		UserAgent: cfg.API.UserAgent,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.jar, a.client = jar, client

	sm := sessionmetrics.New(a.registry)
	a.session = initializer.New(a.store, client, router, a.toasts, log,
		initializer.WithRecorder(sm),
		initializer.WithTimeout(cfg.API.Timeout),
	)
	a.logouter = shell.NewLogouter(client, a.store, a.transient, router, a.toasts, log,
		shell.WithCookieJar(jar),
		shell.WithLogoutRecorder(sm),
	)
	a.login = shell.NewLoginFlow(client, a.store, router, a.toasts, log)
	return a, nil
}

func (a *app) shellDeps() shell.Deps {
	return shell.Deps{
		Store:    a.store,
		Router:   a.router,
		Session:  a.session,
		Logouter: a.logouter,
		Login:    a.login,
		Toasts:   a.toasts,
		Logger:   a.log,
	}
}

// printToasts writes queued notifications for the non-interactive commands.
func (a *app) printToasts(w io.Writer) {
	for _, t := range a.toasts.Drain() {
		mark := "✓"
		if t.Kind == shell.ToastError {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, t.Message)
	}
}

// logMetrics records the process's session counters in the log on exit.
func (a *app) logMetrics(ctx context.Context) {
	families, err := a.registry.Gather()
	if err != nil {
		a.log.WarnContext(ctx, "failed to gather session metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, "count", m.GetHistogram().GetSampleCount(), "sum", m.GetHistogram().GetSampleSum())
			}
			a.log.DebugContext(ctx, "session metric", attrs...)
		}
	}
}

func (a *app) Close() error {
	return a.local.Close()
}
