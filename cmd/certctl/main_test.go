package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal certificate API with cookie sessions.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]bool
	logouts  int
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid email or password"}`))
			return
		}
		b.mu.Lock()
		b.sessions["s-1"] = true
		b.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "s-1", Path: "/", HttpOnly: true})
		_, _ = w.Write([]byte(`{"message":"ok","success":true,"redirectUrl":"/"}`))
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("SESSION")
		b.mu.Lock()
		ok := err == nil && b.sessions[c.Value]
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"kim@totaro.kr","id":7,"role":"USER"}`))
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logouts++
		if c, err := r.Cookie("SESSION"); err == nil {
			delete(b.sessions, c.Value)
		}
		b.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type cli struct {
	t       *testing.T
	dataDir string
	api     string
}

func (c cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	base := []string{
		"--config", filepath.Join(c.dataDir, "absent.yaml"),
		"--data-dir", c.dataDir,
		"--api", c.api,
	}
	var out, errOut bytes.Buffer
	err := run(context.Background(), append(base, args...), strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestCertctl_SessionLifecycle(t *testing.T) {
	backend := &fakeBackend{sessions: make(map[string]bool)}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	c := cli{t: t, dataDir: t.TempDir(), api: srv.URL}

	out, err := c.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in.\n", out)

	out, err = c.run("wrong\n", "login", "--email", "kim@totaro.kr")
	require.Error(t, err)
	assert.Contains(t, out, "Invalid email or password")

	out, err = c.run("secret\n", "login", "--email", "kim@totaro.kr")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in successfully!")

	// A new process restores the session from disk and confirms it.
	out, err = c.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "kim <kim@totaro.kr> USER\n", out)

	out, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "You have been logged out.")
	assert.Equal(t, 1, backend.logouts)

	out, err = c.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in.\n", out)
}

func TestCertctl_ServerRevokedSession(t *testing.T) {
	backend := &fakeBackend{sessions: make(map[string]bool)}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	c := cli{t: t, dataDir: t.TempDir(), api: srv.URL}

	_, err := c.run("secret\n", "login", "--email", "kim@totaro.kr")
	require.NoError(t, err)

	backend.mu.Lock()
	backend.sessions = make(map[string]bool)
	backend.mu.Unlock()

	out, err := c.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in.\n", out)
}

func TestCertctl_OAuthReturnWelcomes(t *testing.T) {
	backend := &fakeBackend{sessions: make(map[string]bool)}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	c := cli{t: t, dataDir: t.TempDir(), api: srv.URL}

	_, err := c.run("secret\n", "login", "--email", "kim@totaro.kr")
	require.NoError(t, err)

	out, err := c.run("", "--open", "/?success=true", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, kim!")
	assert.Contains(t, out, "kim <kim@totaro.kr> USER")
}

func TestCertctl_UnknownCommand(t *testing.T) {
	c := cli{t: t, dataDir: t.TempDir(), api: "http://127.0.0.1:1"}
	_, err := c.run("", "frobnicate")
	assert.ErrorContains(t, err, "unknown command")
}
