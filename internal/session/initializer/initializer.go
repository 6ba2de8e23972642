// Package initializer reconciles the restored session with the backend once
// per process.
//
// The first Start after hydration decides, from local state alone, whether a
// network round trip is needed at all. When it is, exactly one reconciliation
// task runs; every caller that arrives while it is in flight gets the same
// completion channel. Whatever the backend says (or fails to say), the task
// ends with the store marked auth-checked, so consumers never wait forever.
package initializer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"certportal/internal/navigation"
	"certportal/internal/session/models"
	"certportal/internal/session/store"
	dErrors "certportal/pkg/domain-errors"
)

// Phase is the reconciliation state machine.
type Phase int

const (
	PhaseUnstarted Phase = iota
	PhaseInFlight
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseUnstarted:
		return "unstarted"
	case PhaseInFlight:
		return "in_flight"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// OAuthSuccessParam marks a navigation that lands right after an external
// provider login.
const OAuthSuccessParam = "success"

// Navigator exposes the current navigation target.
type Navigator interface {
	Current() *url.URL
	IsLoginRoute() bool
	Replace(target string) error
}

// SessionStore is the part of the session store the initializer drives.
type SessionStore interface {
	Snapshot() models.AuthState
	SessionRestored() bool
	Generation() uint64
	RawSnapshot(ctx context.Context) ([]byte, error)
	Logout(ctx context.Context)
	LoginIfCurrent(ctx context.Context, gen uint64, user models.User) bool
	LogoutIfCurrent(ctx context.Context, gen uint64) bool
	MarkAuthChecked()
}

// Outcome labels how a Start call was resolved; it feeds logs and metrics.
type Outcome string

const (
	OutcomeNotHydrated   Outcome = "not_hydrated"
	OutcomeAlreadyDone   Outcome = "already_done"
	OutcomeConfirmed     Outcome = "session_confirmed"
	OutcomeSettled       Outcome = "settled_logged_out"
	OutcomeLoginRoute    Outcome = "login_route"
	OutcomeEmptySnapshot Outcome = "empty_snapshot"
	OutcomeJoined        Outcome = "joined_in_flight"
	OutcomeStarted       Outcome = "reconcile_started"
	OutcomeLoggedIn      Outcome = "logged_in"
	OutcomeLoggedOut     Outcome = "logged_out"
	OutcomeStale         Outcome = "stale_discarded"
)

// Recorder receives reconciliation outcomes; see NewMetrics.
type Recorder interface {
	Observe(outcome Outcome)
	ObserveDuration(d time.Duration)
}

type Option func(*Initializer)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(i *Initializer) {
		i.recorder = r
	}
}

// WithTimeout bounds the reconciliation call independently of the transport.
func WithTimeout(d time.Duration) Option {
	return func(i *Initializer) {
		i.timeout = d
	}
}

// Initializer owns the single reconciliation task.
type Initializer struct {
	store    SessionStore
	fetcher  Fetcher
	nav      Navigator
	notifier Notifier
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration

	mu    sync.Mutex
	phase Phase
	done  chan struct{}
}

func New(st SessionStore, fetcher Fetcher, nav Navigator, notifier Notifier, logger *slog.Logger, opts ...Option) *Initializer {
	i := &Initializer{
		store:    st,
		fetcher:  fetcher,
		nav:      nav,
		notifier: notifier,
		logger:   logger,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Phase returns the current state machine phase.
func (i *Initializer) Phase() Phase {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.phase
}

// Start evaluates the guards and, if a reconciliation is needed, launches it.
// It never blocks on the network. The returned channel closes once the store
// reflects the outcome of this call; it is already closed when nothing had
// to run.
func (i *Initializer) Start(ctx context.Context) <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()

	outcome, done := i.startLocked(ctx)
	i.recorder.Observe(outcome)
	if outcome != OutcomeJoined && outcome != OutcomeAlreadyDone {
		i.logger.DebugContext(ctx, "session initializer evaluated", "outcome", string(outcome), "phase", i.phase.String())
	}
	return done
}

func (i *Initializer) startLocked(ctx context.Context) (Outcome, <-chan struct{}) {
	if i.phase == PhaseInFlight {
		return OutcomeJoined, i.done
	}

	snap := i.store.Snapshot()
	if !snap.IsHydrated {
		return OutcomeNotHydrated, closedChan()
	}
	if i.phase == PhaseDone {
		i.store.MarkAuthChecked()
		return OutcomeAlreadyDone, closedChan()
	}
	if snap.HasSession() && !i.store.SessionRestored() {
		i.finishLocked()
		return OutcomeConfirmed, closedChan()
	}
	if snap.IsSettledLoggedOut() {
		i.phase = PhaseDone
		return OutcomeSettled, closedChan()
	}
	if i.nav.IsLoginRoute() {
		return OutcomeLoginRoute, closedChan()
	}

	raw, err := i.store.RawSnapshot(ctx)
	if err != nil {
		i.logger.WarnContext(ctx, "session snapshot unreadable, treating as empty", "error", err)
	}
	if err != nil || store.IsEmptySnapshot(raw) {
		i.store.Logout(ctx)
		i.finishLocked()
		return OutcomeEmptySnapshot, closedChan()
	}

	i.phase = PhaseInFlight
	i.done = make(chan struct{})
	gen := i.store.Generation()
	target := i.nav.Current()

	// The task outlives the caller's context: a re-render that cancels its
	// own context must not leave the session unchecked.
	taskCtx := context.WithoutCancel(ctx)
	go i.reconcile(taskCtx, gen, target, i.done)

	return OutcomeStarted, i.done
}

func (i *Initializer) finishLocked() {
	i.phase = PhaseDone
	i.store.MarkAuthChecked()
}

func (i *Initializer) reconcile(ctx context.Context, gen uint64, target *url.URL, done chan struct{}) {
	started := time.Now()
	outcome := OutcomeLoggedOut

	defer func() {
		i.mu.Lock()
		i.finishLocked()
		i.mu.Unlock()
		close(done)

		i.recorder.Observe(outcome)
		i.recorder.ObserveDuration(time.Since(started))
	}()

	callCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	cu, err := i.fetcher.CurrentUser(callCtx)
	if err != nil || cu == nil {
		i.logFailure(ctx, err)
		if !i.store.LogoutIfCurrent(ctx, gen) {
			outcome = OutcomeStale
		}
		return
	}

	user := models.DeriveUser(*cu)
	if !i.store.LoginIfCurrent(ctx, gen, user) {
		outcome = OutcomeStale
		i.logger.InfoContext(ctx, "discarding reconciliation result, session changed while in flight", "user_id", user.UserID)
		return
	}
	outcome = OutcomeLoggedIn
	i.logger.InfoContext(ctx, "session restored", "user_id", user.UserID, "role", string(user.Role))

	if target.Query().Get(OAuthSuccessParam) == "true" {
		i.notifier.Success(fmt.Sprintf("Welcome, %s!", user.Name))
		if err := i.nav.Replace(navigation.WithoutQueryParam(target, OAuthSuccessParam)); err != nil {
			i.logger.WarnContext(ctx, "failed to strip oauth marker", "error", err)
		}
	}
}

func (i *Initializer) logFailure(ctx context.Context, err error) {
	switch {
	case err == nil:
		i.logger.InfoContext(ctx, "no session on server")
	case dErrors.IsUnauthenticated(err):
		i.logger.InfoContext(ctx, "server rejected restored session", "error", err)
	default:
		i.logger.WarnContext(ctx, "session reconciliation failed, logging out", "error", err)
	}
}

// Run starts reconciliation and waits for it. It returns the resulting
// state, or ctx's error if ctx ends first; the task itself keeps running.
func (i *Initializer) Run(ctx context.Context) (models.AuthState, error) {
	select {
	case <-i.Start(ctx):
		return i.store.Snapshot(), nil
	case <-ctx.Done():
		return i.store.Snapshot(), ctx.Err()
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type noopRecorder struct{}

func (noopRecorder) Observe(Outcome)               {}
func (noopRecorder) ObserveDuration(time.Duration) {}
