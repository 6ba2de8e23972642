// Package shell is the client's navigation shell: the terminal UI around the
// portal pages, the login screen and the logout sequence.
//
// The shell never decides on its own whether a session is valid. It renders
// whatever the session store publishes and asks the session initializer to
// reconcile on every navigation.
package shell

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"certportal/internal/navigation"
	"certportal/internal/session/models"
)

// oauthErrorParam carries a provider failure back to the home route.
const oauthErrorParam = "error"

const (
	toastTTL       = 4 * time.Second
	maxToasts      = 3
	sidebarWidth   = 30
	focusEmail     = 0
	focusPassword  = 1
	routeQueueSize = 1
)

// StateSource publishes session snapshots.
type StateSource interface {
	Snapshot() models.AuthState
	Subscribe() (<-chan models.AuthState, func())
}

// Router is the navigation surface the shell drives.
type Router interface {
	Current() *url.URL
	Push(target string) error
	Replace(target string) error
	Back() bool
	OnNavigate(fn func(*url.URL))
}

// Reconciler starts server reconciliation of the stored session.
type Reconciler interface {
	Start(ctx context.Context) <-chan struct{}
}

// Deps are the collaborators the shell renders and drives.
type Deps struct {
	Store    StateSource
	Router   Router
	Session  Reconciler
	Logouter *Logouter
	Login    *LoginFlow
	Toasts   *Toasts
	Logger   *slog.Logger
}

type menuItem struct {
	Label string
	Route string
}

var menuItems = []menuItem{
	{Label: "Dashboard", Route: navigation.HomeRoute},
	{Label: "Certificates", Route: "/certificates"},
	{Label: "Applications", Route: "/applications"},
	{Label: "Analytics", Route: "/analytics"},
}

type (
	stateMsg         models.AuthState
	routeMsg         struct{ url *url.URL }
	toastMsg         Toast
	toastExpiredMsg  uint64
	logoutDoneMsg    struct{ started bool }
	loginDoneMsg     struct{ err error }
	redirectDoneMsg  struct{}
	subscriptionDone struct{}
)

// Model is the bubbletea model of the shell.
type Model struct {
	ctx   context.Context
	deps  Deps
	keys  keyMap
	theme theme

	states      <-chan models.AuthState
	unsubscribe func()
	routes      chan *url.URL

	state       models.AuthState
	route       *url.URL
	cursor      int
	toasts      []Toast
	loggingOut  bool
	submitting  bool
	redirecting bool
	width       int

	email    textinput.Model
	password textinput.Model
	focus    int
}

// NewModel subscribes to the store and the router. Call Close when the
// program exits.
func NewModel(ctx context.Context, deps Deps) Model {
	m := Model{
		ctx:    ctx,
		deps:   deps,
		keys:   defaultKeys,
		theme:  defaultTheme,
		routes: make(chan *url.URL, routeQueueSize),
		state:  deps.Store.Snapshot(),
	}
	m.states, m.unsubscribe = deps.Store.Subscribe()

	routes := m.routes
	deps.Router.OnNavigate(func(u *url.URL) {
		for {
			select {
			case routes <- u:
				return
			default:
			}
			select {
			case <-routes:
			default:
			}
		}
	})

	m.email = textinput.New()
	m.email.Prompt = "Email    "
	m.email.Placeholder = "you@company.com"
	m.password = textinput.New()
	m.password.Prompt = "Password "
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '•'

	m.setRoute(deps.Router.Current())
	return m
}

// Close stops the store subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.states),
		waitForRoute(m.routes),
		waitForToast(m.deps.Toasts.C()),
		m.routeCmds(m.route),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateMsg:
		m.state = models.AuthState(msg)
		return m, tea.Batch(waitForState(m.states), m.guardCmd())

	case routeMsg:
		m.redirecting = false
		m.setRoute(msg.url)
		return m, tea.Batch(waitForRoute(m.routes), m.routeCmds(msg.url), m.guardCmd())

	case toastMsg:
		m.toasts = append(m.toasts, Toast(msg))
		if len(m.toasts) > maxToasts {
			m.toasts = m.toasts[len(m.toasts)-maxToasts:]
		}
		id := msg.ID
		return m, tea.Batch(
			waitForToast(m.deps.Toasts.C()),
			tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg(id) }),
		)

	case toastExpiredMsg:
		var kept []Toast
		for _, t := range m.toasts {
			if t.ID != uint64(msg) {
				kept = append(kept, t)
			}
		}
		m.toasts = kept
		return m, nil

	case logoutDoneMsg:
		m.loggingOut = false
		return m, nil

	case loginDoneMsg:
		m.submitting = false
		if msg.err == nil {
			m.password.Reset()
		}
		return m, nil

	case tea.KeyMsg:
		if m.onLoginScreen() {
			return m.updateLogin(msg)
		}
		return m.updateMain(msg)
	}

	if m.onLoginScreen() {
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(menuItems)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if !m.state.IsReady() {
			return m, nil
		}
		target := menuItems[m.cursor].Route
		return m, m.navigate(func(r Router) error { return r.Push(target) })
	case key.Matches(msg, m.keys.Back):
		return m, m.navigate(func(r Router) error {
			r.Back()
			return nil
		})
	case key.Matches(msg, m.keys.Logout):
		if !m.state.IsLoggedIn || m.loggingOut || m.deps.Logouter == nil {
			return m, nil
		}
		m.loggingOut = true
		ctx, logouter := m.ctx, m.deps.Logouter
		return m, func() tea.Msg {
			return logoutDoneMsg{started: logouter.Logout(ctx)}
		}
	case key.Matches(msg, m.keys.Login):
		if !m.state.IsReady() || m.state.IsLoggedIn {
			return m, nil
		}
		return m, m.navigate(func(r Router) error { return r.Push(navigation.LoginRoute) })
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextField), key.Matches(msg, m.keys.PrevField):
		return m, m.toggleFocus()
	case key.Matches(msg, m.keys.Submit):
		if m.focus == focusEmail {
			return m, m.toggleFocus()
		}
		if m.submitting || m.deps.Login == nil {
			return m, nil
		}
		m.submitting = true
		ctx, flow := m.ctx, m.deps.Login
		email, password := m.email.Value(), m.password.Value()
		return m, func() tea.Msg {
			return loginDoneMsg{err: flow.Submit(ctx, email, password)}
		}
	}
	return m.updateInputs(msg)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var emailCmd, passwordCmd tea.Cmd
	m.email, emailCmd = m.email.Update(msg)
	m.password, passwordCmd = m.password.Update(msg)
	return m, tea.Batch(emailCmd, passwordCmd)
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.focus == focusEmail {
		m.focus = focusPassword
		m.email.Blur()
		return m.password.Focus()
	}
	m.focus = focusEmail
	m.password.Blur()
	return m.email.Focus()
}

func (m *Model) setRoute(u *url.URL) {
	m.route = u
	for i, item := range menuItems {
		if routeActive(item.Route, u.Path) {
			m.cursor = i
		}
	}
	if m.onLoginScreen() {
		m.focus = focusEmail
		m.password.Blur()
		m.email.Focus()
	} else {
		m.email.Blur()
		m.password.Blur()
	}
}

func (m Model) onLoginScreen() bool {
	return m.route != nil && m.route.Path == navigation.LoginRoute
}

// routeCmds runs on every navigation: provider failures are surfaced and sent
// to login, the login screen probes for an existing session, and every route
// asks the initializer to reconcile.
func (m Model) routeCmds(u *url.URL) tea.Cmd {
	ctx, deps := m.ctx, m.deps
	if u.Path == navigation.HomeRoute {
		if reason := u.Query().Get(oauthErrorParam); reason != "" {
			return func() tea.Msg {
				deps.Toasts.Error("Login failed: " + reason)
				if err := deps.Router.Replace(navigation.LoginRoute); err != nil {
					deps.Logger.ErrorContext(ctx, "failed to navigate to login", "error", err)
				}
				return redirectDoneMsg{}
			}
		}
	}

	cmds := []tea.Cmd{func() tea.Msg {
		deps.Session.Start(ctx)
		return nil
	}}
	if u.Path == navigation.LoginRoute && deps.Login != nil {
		cmds = append(cmds, func() tea.Msg {
			deps.Login.Probe(ctx)
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// guardCmd sends a settled, signed-out user to the login screen.
func (m *Model) guardCmd() tea.Cmd {
	if m.redirecting || !m.state.IsReady() || m.state.IsLoggedIn || isPublicRoute(m.route.Path) {
		return nil
	}
	m.redirecting = true
	return m.navigate(func(r Router) error { return r.Replace(navigation.LoginRoute) })
}

func (m Model) navigate(fn func(Router) error) tea.Cmd {
	ctx, router, logger := m.ctx, m.deps.Router, m.deps.Logger
	return func() tea.Msg {
		if err := fn(router); err != nil {
			logger.ErrorContext(ctx, "navigation failed", "error", err)
		}
		return redirectDoneMsg{}
	}
}

func isPublicRoute(path string) bool {
	return path == navigation.LoginRoute || path == navigation.UnauthorizedRoute
}

func routeActive(itemRoute, path string) bool {
	if itemRoute == navigation.HomeRoute {
		return path == navigation.HomeRoute
	}
	return path == itemRoute || strings.HasPrefix(path, itemRoute+"/")
}

func waitForState(ch <-chan models.AuthState) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return subscriptionDone{}
		}
		return stateMsg(s)
	}
}

func waitForRoute(ch <-chan *url.URL) tea.Cmd {
	return func() tea.Msg {
		return routeMsg{url: <-ch}
	}
}

func waitForToast(ch <-chan Toast) tea.Cmd {
	return func() tea.Msg {
		return toastMsg(<-ch)
	}
}
