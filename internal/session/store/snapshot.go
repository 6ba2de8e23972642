package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"certportal/internal/session/models"
)

const (
	// SnapshotKey is the local storage key holding the persisted session.
	SnapshotKey = "auth-storage"
	// SnapshotVersion is bumped whenever the persisted layout changes.
	SnapshotVersion = 0
)

// EmptySnapshot is the serialisation of a client that never logged in.
var EmptySnapshot = []byte(`{"state":{"user":null,"isLoggedIn":false,"isHydrated":false},"version":0}`)

var (
	ErrSnapshotCorrupt = errors.New("session snapshot is corrupt")
	ErrSnapshotVersion = errors.New("session snapshot has an unsupported version")
)

// persistedState is the subset of AuthState written to disk. IsAuthChecked is
// deliberately absent: it is recomputed on every start.
type persistedState struct {
	User       *models.User `json:"user"`
	IsLoggedIn bool         `json:"isLoggedIn"`
	IsHydrated bool         `json:"isHydrated"`
}

type envelope struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

// EncodeSnapshot serialises the persistable part of s.
func EncodeSnapshot(s models.AuthState) ([]byte, error) {
	return json.Marshal(envelope{
		State: persistedState{
			User:       s.User,
			IsLoggedIn: s.IsLoggedIn,
			IsHydrated: s.IsHydrated,
		},
		Version: SnapshotVersion,
	})
}

func decodeSnapshot(raw []byte) (persistedState, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&env); err != nil {
		return persistedState{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if env.Version != SnapshotVersion {
		return persistedState{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, env.Version)
	}
	if env.State.IsLoggedIn && env.State.User == nil {
		return persistedState{}, fmt.Errorf("%w: logged in without a user", ErrSnapshotCorrupt)
	}
	return env.State, nil
}

// IsEmptySnapshot reports whether raw carries no session worth revalidating:
// absent, the never-logged-in sentinel, unreadable, or logged out.
func IsEmptySnapshot(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, EmptySnapshot) {
		return true
	}
	ps, err := decodeSnapshot(raw)
	if err != nil {
		return true
	}
	return !ps.IsLoggedIn
}
