package shell

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"certportal/internal/navigation"
	"certportal/internal/session/models"
	"certportal/internal/session/store"
	"certportal/internal/storage/local"
	"certportal/internal/storage/transient"
)

var kim = models.User{Email: "kim@totaro.kr", Name: "kim", UserID: 7, Role: models.RoleUser}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires a real store and router around an in-memory database.
type fixture struct {
	ctx       context.Context
	local     *local.Store
	transient *transient.Store
	store     *store.Store
	router    *navigation.Router
	toasts    *Toasts
	logger    *slog.Logger
}

func newFixture(ctx context.Context, target string) (*fixture, error) {
	db, err := local.Open(ctx, local.MemoryDSN)
	if err != nil {
		return nil, err
	}
	router, err := navigation.New(target)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ts := transient.New()
	logger := discardLogger()
	return &fixture{
		ctx:       ctx,
		local:     db,
		transient: ts,
		store:     store.Open(ctx, db, ts, logger),
		router:    router,
		toasts:    NewToasts(),
		logger:    logger,
	}, nil
}

func (f *fixture) close() {
	_ = f.local.Close()
}

func (f *fixture) toastMessages() []string {
	var out []string
	for _, t := range f.toasts.Drain() {
		out = append(out, t.Message)
	}
	return out
}

type fakeJar struct {
	mu      sync.Mutex
	cleared int
	err     error
}

func (j *fakeJar) Clear(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cleared++
	return j.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	revoked []bool
}

func (r *fakeRecorder) IncrementLogout(revoked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, revoked)
}

type fakeReconciler struct {
	mu     sync.Mutex
	starts int
}

func (r *fakeReconciler) Start(context.Context) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (r *fakeReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}
