// Package portal assembles the web front server: page handlers behind the
// route guard, the backend API proxy, health probes and metrics.
package portal

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certportal/internal/guard"
	"certportal/internal/platform/health"
	"certportal/pkg/platform/middleware/metadata"
	request "certportal/pkg/platform/middleware/request"
)

// Deps are the components the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Pages          *Pages
	Guard          *guard.Guard
	APIProxy       http.Handler
	Health         *health.Handler
	Metadata       *metadata.Middleware
	RequestMetrics *request.Metrics
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

// NewRouter wires every portal route with its middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	if d.Metadata != nil {
		r.Use(d.Metadata.Handler)
	}
	r.Use(request.Logger(d.Logger))
	r.Use(request.LatencyMiddleware(d.RequestMetrics, routePattern))

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	if d.APIProxy != nil {
		r.Handle("/api/*", d.APIProxy)
		r.Handle("/oauth2/*", d.APIProxy)
	}

	r.Group(func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(request.Timeout(d.RequestTimeout))
		}
		r.Use(d.Guard.Middleware)

		r.Get("/", d.Pages.Handler(PageHome))
		r.Get("/login", d.Pages.Handler(PageLogin))
		r.Get("/unauthorized", d.Pages.Handler(PageUnauthorized))

		// Area pages are mounted under the guard's own prefixes so a page is
		// never reachable without the rule that protects it.
		for _, rule := range d.Guard.Rules() {
			page, ok := areaPages[rule.Family]
			if !ok {
				continue
			}
			prefix := strings.TrimRight(rule.Prefix, "/")
			if prefix == "" {
				continue
			}
			r.Get(prefix, d.Pages.Handler(page))
			r.Get(prefix+"/*", d.Pages.Handler(page))
		}
	})

	return r
}

var areaPages = map[guard.Family]string{
	guard.FamilyAdmin:  PageAdmin,
	guard.FamilyMember: PageMy,
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
