// Package apiclient talks to the certificate backend's auth endpoints on
// behalf of the terminal client and the portal's route guard.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"certportal/internal/platform/tracer"
	"certportal/internal/session/models"
	dErrors "certportal/pkg/domain-errors"
)

const (
	PathCurrentUser = "/api/auth/me"
	PathLogin       = "/api/auth/login"
	PathLogout      = "/api/auth/logout"

	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// HTTPDoer is the part of *http.Client the API client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	// Jar, when set, is attached to the default HTTP client so the session
	// cookie survives restarts. Ignored when HTTPClient is supplied.
	Jar       http.CookieJar
	Tracer    tracer.Tracer
	Logger    *slog.Logger
	UserAgent string
}

// JarFlusher is a cookie jar that persists its changes on demand.
type JarFlusher interface {
	Flush(ctx context.Context) error
}

// Client is the backend auth API.
type Client struct {
	baseURL   *url.URL
	http      HTTPDoer
	jar       JarFlusher
	timeout   time.Duration
	tracer    tracer.Tracer
	logger    *slog.Logger
	userAgent string
}

// LoginResult is the backend's reply to a password login.
type LoginResult struct {
	Message     string     `json:"message"`
	Success     bool       `json:"success"`
	RedirectURL string     `json:"redirectUrl,omitempty"`
	User        *LoginUser `json:"user,omitempty"`
}

type LoginUser struct {
	ID    int64       `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid api base url %q", cfg.BaseURL))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var jar JarFlusher
	if f, ok := cfg.Jar.(JarFlusher); ok && cfg.HTTPClient == nil {
		jar = f
	}
	return &Client{
		baseURL:   base,
		http:      selectHTTPClient(cfg),
		jar:       jar,
		timeout:   cfg.Timeout,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
		userAgent: cfg.UserAgent,
	}, nil
}

func selectHTTPClient(cfg Config) HTTPDoer {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{
		Timeout: cfg.Timeout,
		Jar:     cfg.Jar,
		// The login endpoint answers browsers with 303; the client inspects
		// that response itself instead of following it.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// CurrentUser asks the backend who owns the ambient session cookie.
// A missing or rejected session yields an error for which
// dErrors.IsUnauthenticated is true.
func (c *Client) CurrentUser(ctx context.Context) (*models.CurrentUser, error) {
	return c.currentUser(ctx, "")
}

// CurrentUserWithCookie is CurrentUser with an explicit Cookie header, used
// by the portal to forward a browser's cookies.
func (c *Client) CurrentUserWithCookie(ctx context.Context, cookieHeader string) (*models.CurrentUser, error) {
	if strings.TrimSpace(cookieHeader) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no session cookie")
	}
	return c.currentUser(ctx, cookieHeader)
}

func (c *Client) currentUser(ctx context.Context, cookieHeader string) (_ *models.CurrentUser, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanCurrentUser,
		tracer.String(tracer.AttrHTTPMethod, http.MethodGet),
		tracer.String(tracer.AttrHTTPPath, PathCurrentUser),
		tracer.Bool("cookie_forwarded", cookieHeader != ""),
	)
	defer func() { span.End(err) }()

	status, body, err := c.do(ctx, http.MethodGet, PathCurrentUser, nil, cookieHeader)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, status))
	if err = classifyStatus(status, body); err != nil {
		return nil, err
	}

	var cu models.CurrentUser
	if err = json.Unmarshal(body, &cu); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedRemote, "current user response is not valid JSON")
	}
	if cu.Email == "" {
		return nil, dErrors.New(dErrors.CodeMalformedRemote, "current user response has no email")
	}
	return &cu, nil
}

// Login submits credentials. When the backend does not answer with a JSON
// success payload (a redirect, an empty 204), the session cookie may still
// have been set, so the current-user endpoint decides.
func (c *Client) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanLogin,
		tracer.String(tracer.AttrHTTPMethod, http.MethodPost),
		tracer.String(tracer.AttrHTTPPath, PathLogin),
	)
	defer func() { span.End(err) }()

	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode login request")
	}

	status, body, err := c.do(ctx, http.MethodPost, PathLogin, payload, "")
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, status))

	var res LoginResult
	if status == http.StatusOK && json.Unmarshal(body, &res) == nil && res.Success {
		return &res, nil
	}

	if _, meErr := c.CurrentUser(ctx); meErr != nil {
		msg := remoteMessage(body)
		if msg == "" {
			msg = meErr.Error()
		}
		return nil, dErrors.Wrap(meErr, dErrors.CodeUnauthorized, msg)
	}
	c.logger.InfoContext(ctx, "login confirmed through current user endpoint", "status", status)
	return &LoginResult{Message: "ok", Success: true, RedirectURL: "/"}, nil
}

// Logout asks the backend to revoke the session.
func (c *Client) Logout(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanLogout,
		tracer.String(tracer.AttrHTTPMethod, http.MethodPost),
		tracer.String(tracer.AttrHTTPPath, PathLogout),
	)
	defer func() { span.End(err) }()

	status, body, err := c.do(ctx, http.MethodPost, PathLogout, nil, "")
	if err != nil {
		return err
	}
	span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, status))
	return classifyStatus(status, body)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, cookieHeader string) (int, []byte, error) {
	defer c.flushJar(ctx)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reqBody)
	if err != nil {
		return 0, nil, dErrors.Wrap(err, dErrors.CodeInternal, "build backend request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return 0, nil, dErrors.Wrap(err, dErrors.CodeTimeout, fmt.Sprintf("%s %s timed out", method, path))
		}
		return 0, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, fmt.Sprintf("%s %s failed", method, path))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, dErrors.Wrap(err, dErrors.CodeMalformedRemote, "read backend response")
	}
	return resp.StatusCode, body, nil
}

// flushJar persists cookies the backend set during a call. A failure only
// costs the session across a restart, so it is logged rather than returned.
func (c *Client) flushJar(ctx context.Context) {
	if c.jar == nil {
		return
	}
	if err := c.jar.Flush(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist cookie jar", "error", err)
	}
}

// classifyStatus maps a backend status onto the session error codes: 401/403
// mean "no valid session", anything else outside 2xx is a failure to find out.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeUnauthorized, withRemote("session rejected", body))
	case status == http.StatusForbidden:
		return dErrors.New(dErrors.CodeForbidden, withRemote("session forbidden", body))
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return dErrors.New(dErrors.CodeTimeout, fmt.Sprintf("backend timed out: %d", status))
	case status >= 500:
		return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("backend unavailable: %d", status))
	default:
		return dErrors.New(dErrors.CodeMalformedRemote, fmt.Sprintf("unexpected backend status: %d", status))
	}
}

func withRemote(msg string, body []byte) string {
	if remote := remoteMessage(body); remote != "" {
		return msg + ": " + remote
	}
	return msg
}

// remoteMessage extracts the backend's human readable error, if any.
func remoteMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
