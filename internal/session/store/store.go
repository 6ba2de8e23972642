// Package store holds the client's session state for the lifetime of the
// process and persists it across restarts.
//
// The store is constructed once and injected into the components that need it;
// consumers read immutable snapshots and watch the update channel. Login,
// Logout and SetHydrated are the only identity mutators; MarkAuthChecked is
// reserved for the session initializer.
package store

import (
	"context"
	"log/slog"
	"sync"

	"certportal/internal/session/models"
)

// LocalStorage is durable key/value storage (see internal/storage/local).
type LocalStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// TransientStorage is per-process scratch storage wiped on logout.
type TransientStorage interface {
	Clear()
}

// Store is the process-wide session state.
type Store struct {
	local     LocalStorage
	transient TransientStorage
	logger    *slog.Logger

	mu         sync.Mutex
	state      models.AuthState
	generation uint64
	restored   bool
	subs       map[uint64]chan models.AuthState
	nextSubID  uint64
}

// Open builds the store and rehydrates it from local storage before returning,
// so the first render already sees the restored state. Hydration always
// completes, whether or not a session was found.
func Open(ctx context.Context, local LocalStorage, transient TransientStorage, logger *slog.Logger) *Store {
	s := &Store{
		local:     local,
		transient: transient,
		logger:    logger,
		subs:      make(map[uint64]chan models.AuthState),
	}
	s.rehydrate(ctx)
	return s
}

func (s *Store) rehydrate(ctx context.Context) {
	defer s.SetHydrated()

	raw, err := s.local.Get(ctx, SnapshotKey)
	if err != nil {
		s.logger.WarnContext(ctx, "session snapshot unreadable, starting logged out", "error", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	ps, err := decodeSnapshot(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding session snapshot", "error", err)
		return
	}
	if ps.IsLoggedIn {
		s.mu.Lock()
		u := *ps.User
		s.state.User = &u
		s.state.IsLoggedIn = true
		s.restored = true
		s.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() models.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Generation identifies the current identity epoch. It changes on every Login
// and Logout, so a caller that captured it before a slow operation can tell
// whether the user has acted in the meantime.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SessionRestored reports whether the current session was loaded from disk
// and has not been confirmed by a Login in this process.
func (s *Store) SessionRestored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// RawSnapshot returns the persisted bytes, or nil when nothing is stored.
func (s *Store) RawSnapshot(ctx context.Context) ([]byte, error) {
	return s.local.Get(ctx, SnapshotKey)
}

// Login records user as signed in and persists the snapshot. The caller is
// responsible for having validated the session with the server.
func (s *Store) Login(ctx context.Context, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginLocked(ctx, user)
}

// LoginIfCurrent applies Login only if no Login/Logout happened since gen was
// observed. It reports whether the login was applied.
func (s *Store) LoginIfCurrent(ctx context.Context, gen uint64, user models.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.loginLocked(ctx, user)
	return true
}

func (s *Store) loginLocked(ctx context.Context, user models.User) {
	s.state.User = &user
	s.state.IsLoggedIn = true
	s.restored = false
	s.generation++

	raw, err := EncodeSnapshot(s.state)
	if err == nil {
		err = s.local.Set(ctx, SnapshotKey, raw)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist session snapshot", "error", err)
	}
	s.publishLocked()
}

// Logout clears the session, deletes the persisted snapshot and wipes
// transient storage. Calling it while logged out is harmless.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutLocked(ctx)
}

// LogoutIfCurrent applies Logout only if no Login/Logout happened since gen
// was observed. It reports whether the logout was applied.
func (s *Store) LogoutIfCurrent(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.logoutLocked(ctx)
	return true
}

func (s *Store) logoutLocked(ctx context.Context) {
	s.state.User = nil
	s.state.IsLoggedIn = false
	s.restored = false
	s.generation++

	if err := s.local.Delete(ctx, SnapshotKey); err != nil {
		s.logger.ErrorContext(ctx, "failed to purge session snapshot", "error", err)
	}
	if s.transient != nil {
		s.transient.Clear()
	}
	s.publishLocked()
}

// SetHydrated marks the restore attempt as finished. Idempotent.
func (s *Store) SetHydrated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsHydrated {
		return
	}
	s.state.IsHydrated = true
	s.publishLocked()
}

// MarkAuthChecked records that server reconciliation has finished. Idempotent.
func (s *Store) MarkAuthChecked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsAuthChecked {
		return
	}
	s.state.IsAuthChecked = true
	s.publishLocked()
}

// Subscribe returns a channel that always holds the latest state; slow readers
// skip intermediate states rather than block the store. The current state is
// delivered immediately. Call cancel to stop receiving; it closes the channel.
func (s *Store) Subscribe() (<-chan models.AuthState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan models.AuthState, 1)
	ch <- s.state.Clone()
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publishLocked() {
	for _, ch := range s.subs {
		snap := s.state.Clone()
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
