package portal

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"certportal/internal/platform/metrics"
	dErrors "certportal/pkg/domain-errors"
	httpx "certportal/pkg/platform/httputil"
	"certportal/pkg/requestcontext"
)

// NewAPIProxy forwards requests to the certificate backend unchanged, so the
// browser talks to one origin and the session cookie stays first-party.
func NewAPIProxy(backend *url.URL, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(backend)
			pr.SetXForwarded()
			pr.Out.Host = backend.Host
			if id := requestcontext.RequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set("X-Request-ID", id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			ctx := r.Context()
			logger.ErrorContext(ctx, "api proxy failed",
				"request_id", requestcontext.RequestID(ctx),
				"path", r.URL.Path,
				"error", err,
			)
			if m != nil {
				m.IncrementProxyErrors()
			}
			httpx.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "certificate backend unavailable"))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		proxy.ServeHTTP(w, r)
		if m != nil {
			m.ObserveProxyLatency(time.Since(start).Seconds())
		}
	})
}
