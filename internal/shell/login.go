package shell

import (
	"context"
	"log/slog"
	"strings"

	"certportal/internal/navigation"
	"certportal/internal/session/models"
	dErrors "certportal/pkg/domain-errors"
)

const (
	msgMissingCredentials = "Enter your email and password."
	msgLoginSucceeded     = "Signed in successfully!"
	msgLoginFailed        = "Login failed."
)

// SessionStarter records a confirmed identity.
type SessionStarter interface {
	Login(ctx context.Context, user models.User)
}

// LoginFlow drives the login screen.
type LoginFlow struct {
	auth     Authenticator
	store    SessionStarter
	nav      Replacer
	notifier Notifier
	logger   *slog.Logger
}

func NewLoginFlow(auth Authenticator, st SessionStarter, nav Replacer, notifier Notifier, logger *slog.Logger) *LoginFlow {
	return &LoginFlow{auth: auth, store: st, nav: nav, notifier: notifier, logger: logger}
}

// Probe checks whether the cookie already carries a session when the login
// screen opens. If it does, the user is signed in and sent home.
func (f *LoginFlow) Probe(ctx context.Context) bool {
	cu, err := f.auth.CurrentUser(ctx)
	if err != nil {
		f.logger.DebugContext(ctx, "no existing session on login screen", "error", err)
		return false
	}
	f.store.Login(ctx, models.DeriveUser(*cu))
	f.replace(ctx, navigation.HomeRoute)
	return true
}

// Submit signs in with credentials. On success the identity is stored, a
// toast is shown and the user lands on the backend's redirect target.
func (f *LoginFlow) Submit(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		f.notifier.Error(msgMissingCredentials)
		return dErrors.New(dErrors.CodeInvalidInput, msgMissingCredentials)
	}

	res, err := f.auth.Login(ctx, email, password)
	if err != nil {
		f.logger.WarnContext(ctx, "login failed", "error", err)
		msg := err.Error()
		if msg == "" {
			msg = msgLoginFailed
		}
		f.notifier.Error(msg)
		return err
	}

	if cu, err := f.auth.CurrentUser(ctx); err != nil {
		f.logger.WarnContext(ctx, "signed in but current user unavailable", "error", err)
	} else {
		f.store.Login(ctx, models.DeriveUser(*cu))
	}

	f.notifier.Success(msgLoginSucceeded)
	target := navigation.HomeRoute
	if res != nil && res.RedirectURL != "" {
		target = res.RedirectURL
	}
	f.replace(ctx, target)
	return nil
}

func (f *LoginFlow) replace(ctx context.Context, target string) {
	if err := f.nav.Replace(target); err != nil {
		f.logger.WarnContext(ctx, "redirect target rejected, going home", "target", target, "error", err)
		_ = f.nav.Replace(navigation.HomeRoute)
	}
}
