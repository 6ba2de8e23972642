package shell

import (
	"context"
	"net/url"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"certportal/internal/navigation"
	"certportal/internal/session/models"
	"certportal/internal/shell/mocks"
)

type modelHarness struct {
	f          *fixture
	reconciler *fakeReconciler
	revoker    *mocks.MockRevoker
	auth       *mocks.MockAuthenticator
	model      Model
}

func newHarness(t *testing.T, target string) *modelHarness {
	t.Helper()
	f, err := newFixture(context.Background(), target)
	require.NoError(t, err)
	t.Cleanup(f.close)

	ctrl := gomock.NewController(t)
	h := &modelHarness{
		f:          f,
		reconciler: &fakeReconciler{},
		revoker:    mocks.NewMockRevoker(ctrl),
		auth:       mocks.NewMockAuthenticator(ctrl),
	}
	h.model = NewModel(f.ctx, Deps{
		Store:    f.store,
		Router:   f.router,
		Session:  h.reconciler,
		Logouter: NewLogouter(h.revoker, f.store, f.transient, f.router, f.toasts, f.logger),
		Login:    NewLoginFlow(h.auth, f.store, f.router, f.toasts, f.logger),
		Toasts:   f.toasts,
		Logger:   f.logger,
	})
	t.Cleanup(h.model.Close)
	return h
}

func (h *modelHarness) send(msg tea.Msg) tea.Cmd {
	updated, cmd := h.model.Update(msg)
	h.model = updated.(Model)
	return cmd
}

func (h *modelHarness) key(r rune) tea.Cmd {
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

func (h *modelHarness) signedIn() {
	h.f.store.Login(h.f.ctx, kim)
	h.f.store.MarkAuthChecked()
	h.send(stateMsg(h.f.store.Snapshot()))
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestModelView_HydrationGate(t *testing.T) {
	h := newHarness(t, "/")

	h.send(stateMsg(models.AuthState{}))
	view := h.model.View()
	assert.Contains(t, view, "░")
	assert.NotContains(t, view, "Dashboard")

	h.send(stateMsg(models.AuthState{IsHydrated: true, IsLoggedIn: true, User: &kim}))
	view = h.model.View()
	assert.Contains(t, view, "Verifying session")
	assert.NotContains(t, view, "kim@totaro.kr")
}

func TestModelView_SignedIn(t *testing.T) {
	h := newHarness(t, "/")
	h.signedIn()

	view := h.model.View()
	for _, item := range menuItems {
		assert.Contains(t, view, item.Label)
	}
	assert.Contains(t, view, "kim@totaro.kr")
	assert.Contains(t, view, string(models.RoleUser))
	assert.Contains(t, view, "Log out")
}

func TestModelNavigation(t *testing.T) {
	h := newHarness(t, "/")
	h.signedIn()

	h.key('j')
	assert.Equal(t, 1, h.model.cursor)
	h.key('k')
	h.key('k')
	assert.Equal(t, 0, h.model.cursor)

	h.key('j')
	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, "/certificates", h.f.router.Path())

	h.send(routeMsg{url: h.f.router.Current()})
	assert.Equal(t, 1, h.model.cursor)
	assert.Contains(t, h.model.View(), "Certificates will appear here.")
}

func TestModelNavigation_WaitsForAuthCheck(t *testing.T) {
	h := newHarness(t, "/")
	h.send(stateMsg(models.AuthState{IsHydrated: true}))

	h.key('j')
	assert.Nil(t, h.send(tea.KeyMsg{Type: tea.KeyEnter}))
	assert.Equal(t, "/", h.f.router.Path())
}

func TestModelRouteCmds_StartReconciliation(t *testing.T) {
	h := newHarness(t, "/")

	cmd := h.model.routeCmds(mustURL(t, "/certificates"))
	require.NotNil(t, cmd)
	runAll(cmd)

	assert.Equal(t, 1, h.reconciler.count())
}

func TestModelRouteCmds_OAuthError(t *testing.T) {
	h := newHarness(t, "/")

	runAll(h.model.routeCmds(mustURL(t, "/?error=access_denied")))

	assert.Equal(t, navigation.LoginRoute, h.f.router.Path())
	assert.Equal(t, []string{"Login failed: access_denied"}, h.f.toastMessages())
	assert.Zero(t, h.reconciler.count())
}

func TestModelGuard_SettledLoggedOutGoesToLogin(t *testing.T) {
	h := newHarness(t, "/certificates")
	h.model.state = models.AuthState{IsHydrated: true, IsAuthChecked: true}

	cmd := h.model.guardCmd()
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, navigation.LoginRoute, h.f.router.Path())
	assert.Nil(t, h.model.guardCmd(), "one redirect per route change")
}

func TestModelGuard_UnsettledStays(t *testing.T) {
	h := newHarness(t, "/certificates")
	h.model.state = models.AuthState{IsHydrated: true}

	assert.Nil(t, h.model.guardCmd())
}

func TestModelLoggedOut_OffersLogin(t *testing.T) {
	h := newHarness(t, navigation.UnauthorizedRoute)
	h.f.store.MarkAuthChecked()
	h.send(stateMsg(h.f.store.Snapshot()))

	view := h.model.View()
	assert.Contains(t, view, "Your account does not have access to that page.")
	assert.Contains(t, view, "[l] Log in")
	assert.Contains(t, view, "l log in")
	assert.NotContains(t, view, "Log out")
	assert.NotContains(t, view, "Redirecting to login")

	assert.Nil(t, h.key('o'), "nothing to log out of")

	cmd := h.key('l')
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, navigation.LoginRoute, h.f.router.Path())
	assert.Equal(t, 1, h.f.router.Depth(), "login is pushed so back returns here")
}

func TestModelLoginKey_IgnoredWhenSignedIn(t *testing.T) {
	h := newHarness(t, "/")
	h.signedIn()

	assert.Nil(t, h.key('l'))
	assert.Equal(t, "/", h.f.router.Path())
}

func TestModelLogout(t *testing.T) {
	h := newHarness(t, "/certificates")
	h.signedIn()
	h.revoker.EXPECT().Logout(gomock.Any()).Return(nil)

	cmd := h.key('o')
	require.NotNil(t, cmd)
	assert.True(t, h.model.loggingOut)
	assert.Contains(t, h.model.View(), "Logging out")
	assert.Nil(t, h.key('o'), "second press while logging out is ignored")

	msg := cmd()
	assert.Equal(t, logoutDoneMsg{started: true}, msg)
	h.send(msg)

	assert.False(t, h.model.loggingOut)
	assert.False(t, h.f.store.Snapshot().IsLoggedIn)
	assert.Equal(t, navigation.LoginRoute, h.f.router.Path())
}

func TestModelLoginScreen(t *testing.T) {
	h := newHarness(t, navigation.LoginRoute)
	h.send(stateMsg(h.f.store.Snapshot()))

	view := h.model.View()
	assert.Contains(t, view, "Sign in")
	assert.NotContains(t, view, "Verifying session", "the login screen does not wait for the auth check")

	for _, r := range "kim@totaro.kr" {
		h.key(r)
	}
	h.key('q')
	assert.Equal(t, "kim@totaro.krq", h.model.email.Value(), "q types instead of quitting")

	h.send(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusPassword, h.model.focus)
	for _, r := range "secret" {
		h.key(r)
	}
	assert.NotContains(t, h.model.View(), "secret")

	h.auth.EXPECT().Login(gomock.Any(), "kim@totaro.krq", "secret").
		Return(nil, assert.AnError)
	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, h.model.submitting)

	h.send(cmd())
	assert.False(t, h.model.submitting)
	assert.Equal(t, "secret", h.model.password.Value(), "failed sign-in keeps the input")
}

func TestModelToasts(t *testing.T) {
	h := newHarness(t, "/")
	h.signedIn()

	h.send(toastMsg(Toast{ID: 1, Kind: ToastSuccess, Message: "Welcome, kim!"}))
	assert.Contains(t, h.model.View(), "Welcome, kim!")

	h.send(toastExpiredMsg(1))
	assert.NotContains(t, h.model.View(), "Welcome, kim!")
}

func TestModelQuit(t *testing.T) {
	h := newHarness(t, "/")
	h.signedIn()

	cmd := h.send(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestPageFor(t *testing.T) {
	title, _ := pageFor("/applications/42")
	assert.Equal(t, "Applications", title)

	title, text := pageFor(navigation.UnauthorizedRoute)
	assert.Equal(t, "Unauthorized", title)
	assert.True(t, strings.Contains(text, "access"))

	title, _ = pageFor("/nowhere")
	assert.Equal(t, "Not found", title)
}

// runAll executes cmd and any batched commands it expands to.
func runAll(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	if batch, ok := cmd().(tea.BatchMsg); ok {
		for _, c := range batch {
			runAll(c)
		}
	}
}
