package shell

import (
	"context"
	"log/slog"
	"sync/atomic"

	"certportal/internal/navigation"
)

const (
	msgLoggedOut    = "You have been logged out."
	msgLogoutFailed = "Something went wrong while logging out."
)

// SessionEnder clears the local session.
type SessionEnder interface {
	Logout(ctx context.Context)
}

// TransientStorage is wiped as part of logout.
type TransientStorage interface {
	Clear()
}

// CookieJar holds the client's copy of the session cookie.
type CookieJar interface {
	Clear(ctx context.Context) error
}

// Replacer rewrites the current route without a history entry.
type Replacer interface {
	Replace(target string) error
}

// Notifier surfaces one-off messages.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// LogoutRecorder counts logouts by whether the server revoke succeeded.
type LogoutRecorder interface {
	IncrementLogout(revoked bool)
}

// Logouter runs the logout sequence. Only one sequence runs at a time; calls
// made while one is in progress return immediately.
type Logouter struct {
	revoker   Revoker
	store     SessionEnder
	transient TransientStorage
	nav       Replacer
	notifier  Notifier
	logger    *slog.Logger
	jar       CookieJar
	recorder  LogoutRecorder

	inFlight atomic.Bool
}

// LogoutOption configures a Logouter.
type LogoutOption func(*Logouter)

// WithCookieJar clears jar after the local session is dropped.
func WithCookieJar(jar CookieJar) LogoutOption {
	return func(l *Logouter) { l.jar = jar }
}

// WithLogoutRecorder records each completed logout.
func WithLogoutRecorder(r LogoutRecorder) LogoutOption {
	return func(l *Logouter) { l.recorder = r }
}

func NewLogouter(revoker Revoker, st SessionEnder, transient TransientStorage, nav Replacer, notifier Notifier, logger *slog.Logger, opts ...LogoutOption) *Logouter {
	l := &Logouter{
		revoker:   revoker,
		store:     st,
		transient: transient,
		nav:       nav,
		notifier:  notifier,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InFlight reports whether a logout is running.
func (l *Logouter) InFlight() bool {
	return l.inFlight.Load()
}

// Logout revokes the server session, then always clears local state and
// lands on the login route, even if the revoke failed. It reports false when
// another logout was already running.
func (l *Logouter) Logout(ctx context.Context) bool {
	if !l.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer l.inFlight.Store(false)

	revokeErr := l.revoker.Logout(ctx)
	if revokeErr != nil {
		l.logger.WarnContext(ctx, "server logout failed, clearing local session anyway", "error", revokeErr)
	}

	l.store.Logout(ctx)
	if l.transient != nil {
		l.transient.Clear()
	}
	if l.jar != nil {
		if err := l.jar.Clear(ctx); err != nil {
			l.logger.ErrorContext(ctx, "failed to clear cookie jar", "error", err)
		}
	}

	if revokeErr != nil {
		l.notifier.Error(msgLogoutFailed)
	} else {
		l.notifier.Success(msgLoggedOut)
	}
	if l.recorder != nil {
		l.recorder.IncrementLogout(revokeErr == nil)
	}

	if err := l.nav.Replace(navigation.LoginRoute); err != nil {
		l.logger.ErrorContext(ctx, "failed to navigate to login", "error", err)
	}
	l.logger.InfoContext(ctx, "logged out", "revoked", revokeErr == nil)
	return true
}
