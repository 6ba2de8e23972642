package portal

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"certportal/internal/guard"
	"certportal/internal/platform/metrics"
	"certportal/internal/session/models"
	"certportal/pkg/requestcontext"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names double as template file names and metric labels.
const (
	PageHome         = "home"
	PageLogin        = "login"
	PageUnauthorized = "unauthorized"
	PageAdmin        = "admin"
	PageMy           = "my"
)

var pageTitles = map[string]string{
	PageHome:         "Dashboard",
	PageLogin:        "Sign in",
	PageUnauthorized: "Access denied",
	PageAdmin:        "Administration",
	PageMy:           "My account",
}

type menuLink struct {
	Label string
	Route string
}

var menu = []menuLink{
	{Label: "Dashboard", Route: "/"},
	{Label: "Certificates", Route: "/certificates"},
	{Label: "Applications", Route: "/applications"},
	{Label: "Analytics", Route: "/analytics"},
}

type principalView struct {
	Name  string
	Email string
	Role  models.Role
}

type pageData struct {
	Title     string
	Menu      []menuLink
	Principal *principalView
	Flash     string
}

// Pages renders the portal's server-side pages.
type Pages struct {
	templates map[string]*template.Template
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewPages parses every page template against the shared layout.
func NewPages(logger *slog.Logger, m *metrics.Metrics) (*Pages, error) {
	p := &Pages{templates: make(map[string]*template.Template), logger: logger, metrics: m}
	for name := range pageTitles {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.templates[name] = t
	}
	return p, nil
}

// Handler serves the named page.
func (p *Pages) Handler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.render(w, r, name, http.StatusOK)
	}
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, name string, status int) {
	ctx := r.Context()
	data := pageData{Title: pageTitles[name], Menu: menu}
	if u := guard.Principal(ctx); u != nil {
		data.Principal = &principalView{Name: models.DeriveUser(*u).Name, Email: u.Email, Role: u.Role}
	}
	if name == PageLogin {
		if reason := r.URL.Query().Get("error"); reason != "" {
			data.Flash = "Login failed: " + reason
		}
	}

	var buf bytes.Buffer
	if err := p.templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		p.logger.ErrorContext(ctx, "failed to render page",
			"request_id", requestcontext.RequestID(ctx),
			"page", name,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.IncrementPageFailures(name)
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	if p.metrics != nil {
		p.metrics.IncrementPagesRendered(name)
	}
}
