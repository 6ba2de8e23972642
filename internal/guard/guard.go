// Package guard authorizes requests for protected portal routes before any
// page is rendered.
//
// Every request under a protected prefix is checked afresh against the
// backend using the browser's own cookies; nothing is cached between
// requests. Any doubt about the session, including a backend failure,
// resolves to "not authenticated".
package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"certportal/internal/guard/metrics"
	"certportal/internal/session/models"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/platform/circuit"
	"certportal/pkg/requestcontext"
)

const (
	DefaultLoginPath        = "/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// SessionChecker resolves a Cookie header to the user it belongs to.
type SessionChecker interface {
	CurrentUserWithCookie(ctx context.Context, cookieHeader string) (*models.CurrentUser, error)
}

type principalKey struct{}

// WithPrincipal stores the authenticated user on ctx.
func WithPrincipal(ctx context.Context, u *models.CurrentUser) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// Principal returns the user the guard admitted, or nil on unguarded routes.
func Principal(ctx context.Context) *models.CurrentUser {
	u, _ := ctx.Value(principalKey{}).(*models.CurrentUser)
	return u
}

// Guard is the route guard middleware.
type Guard struct {
	rules            []Rule
	checker          SessionChecker
	breaker          *circuit.Breaker
	logger           *slog.Logger
	metrics          *metrics.Metrics
	cookieName       string
	loginPath        string
	unauthorizedPath string
}

type Option func(*Guard)

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(g *Guard) {
		g.rules = rules
	}
}

// WithBreaker sets the backend circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Guard) {
		g.breaker = b
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithSessionCookie requires a cookie with this name before the backend is
// consulted. By default any Cookie header is forwarded.
func WithSessionCookie(name string) Option {
	return func(g *Guard) {
		g.cookieName = name
	}
}

// WithRedirects overrides the login and unauthorized destinations.
func WithRedirects(login, unauthorized string) Option {
	return func(g *Guard) {
		if login != "" {
			g.loginPath = login
		}
		if unauthorized != "" {
			g.unauthorizedPath = unauthorized
		}
	}
}

func New(checker SessionChecker, logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		rules:            DefaultRules(),
		checker:          checker,
		logger:           logger,
		loginPath:        DefaultLoginPath,
		unauthorizedPath: DefaultUnauthorizedPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return g
}

// Rules returns a copy of the rules the guard enforces.
func (g *Guard) Rules() []Rule {
	return append([]Rule(nil), g.rules...)
}

// Middleware enforces the rules in front of next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, ok := match(g.rules, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		cookieHeader := r.Header.Get("Cookie")
		principal := g.authenticate(ctx, cookieHeader)
		outcome := Decide(rule, principal)

		g.record(ctx, r, rule, outcome, principal, cookieHeader)

		switch outcome {
		case OutcomeRedirectLogin:
			http.Redirect(w, r, g.loginPath, http.StatusTemporaryRedirect)
		case OutcomeRedirectUnauthorized:
			http.Redirect(w, r, g.unauthorizedPath, http.StatusTemporaryRedirect)
		default:
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		}
	})
}

// authenticate returns the session owner, or nil when the request is not
// (or cannot be shown to be) authenticated.
func (g *Guard) authenticate(ctx context.Context, cookieHeader string) *models.CurrentUser {
	if !g.hasSessionCookie(cookieHeader) {
		return nil
	}

	if g.breaker != nil && !g.breaker.Allow() {
		if g.metrics != nil {
			g.metrics.IncrementShortCircuited()
		}
		g.logger.WarnContext(ctx, "session check skipped, backend circuit open",
			"request_id", requestcontext.RequestID(ctx),
			"breaker", g.breaker.Name(),
		)
		return nil
	}

	start := time.Now()
	user, err := g.checker.CurrentUserWithCookie(ctx, cookieHeader)
	if g.metrics != nil {
		g.metrics.ObserveCheck(time.Since(start))
	}

	switch {
	case err == nil && user != nil:
		g.breakerSuccess(ctx)
		return user
	case err == nil, dErrors.IsUnauthenticated(err):
		g.breakerSuccess(ctx)
		return nil
	default:
		g.breakerFailure(ctx)
		code := string(dErrors.CodeInternal)
		var de *dErrors.Error
		if errors.As(err, &de) {
			code = string(de.Code)
		}
		if g.metrics != nil {
			g.metrics.IncrementCheckFailure(code)
		}
		g.logger.WarnContext(ctx, "session check failed, treating request as unauthenticated",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil
	}
}

func (g *Guard) hasSessionCookie(cookieHeader string) bool {
	if strings.TrimSpace(cookieHeader) == "" {
		return false
	}
	if g.cookieName == "" {
		return true
	}
	header := http.Header{"Cookie": {cookieHeader}}
	req := http.Request{Header: header}
	c, err := req.Cookie(g.cookieName)
	return err == nil && c.Value != ""
}

func (g *Guard) breakerSuccess(ctx context.Context) {
	if g.breaker == nil {
		return
	}
	if g.breaker.RecordSuccess() {
		g.logger.InfoContext(ctx, "backend circuit closed", "breaker", g.breaker.Name())
		if g.metrics != nil {
			g.metrics.SetBreakerOpen(false)
		}
	}
}

func (g *Guard) breakerFailure(ctx context.Context) {
	if g.breaker == nil {
		return
	}
	if g.breaker.RecordFailure() {
		g.logger.ErrorContext(ctx, "backend circuit opened", "breaker", g.breaker.Name())
		if g.metrics != nil {
			g.metrics.SetBreakerOpen(true)
		}
	}
}

func (g *Guard) record(ctx context.Context, r *http.Request, rule Rule, outcome Outcome, principal *models.CurrentUser, cookieHeader string) {
	if g.metrics != nil {
		g.metrics.IncrementDecision(string(rule.Family), string(outcome))
	}

	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"path", r.URL.Path,
		"family", string(rule.Family),
		"outcome", string(outcome),
		"cookie", Fingerprint(cookieHeader),
		"device", requestcontext.DeviceName(ctx),
	}
	if principal != nil {
		attrs = append(attrs, "user_id", principal.ID, "role", string(principal.Role))
	}

	if outcome == OutcomeAllow {
		g.logger.DebugContext(ctx, "route guard admitted request", attrs...)
		return
	}
	g.logger.InfoContext(ctx, "route guard redirected request", attrs...)
}
