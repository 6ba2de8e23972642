package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

// CookieJarKey is the local storage key holding the persisted cookies.
const CookieJarKey = "cookie-jar"

// JarStorage is the durable storage the jar writes through to.
type JarStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// PersistentJar is an http.CookieJar for a single backend origin whose
// cookies are kept in local storage, so a session cookie set by the backend
// survives client restarts. http.CookieJar carries no context, so SetCookies
// only records the change; Flush writes it out under the caller's context.
// Client flushes after every backend call.
type PersistentJar struct {
	origin  *url.URL
	storage JarStorage
	now     func() time.Time

	mu      sync.Mutex
	inner   *cookiejar.Jar
	cookies map[string]storedCookie
	dirty   bool
}

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func (c storedCookie) httpCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// OpenJar loads any cookies previously stored for origin.
func OpenJar(ctx context.Context, origin *url.URL, storage JarStorage, logger *slog.Logger) (*PersistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	j := &PersistentJar{
		origin:  origin,
		storage: storage,
		now:     time.Now,
		inner:   inner,
		cookies: make(map[string]storedCookie),
	}

	raw, err := storage.Get(ctx, CookieJarKey)
	if err != nil {
		return nil, fmt.Errorf("load cookie jar: %w", err)
	}
	if len(raw) == 0 {
		return j, nil
	}
	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.WarnContext(ctx, "discarding unreadable cookie jar", "error", err)
		return j, nil
	}

	now := j.now()
	restored := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.expired(now) {
			continue
		}
		j.cookies[c.Name] = c
		restored = append(restored, c.httpCookie())
	}
	inner.SetCookies(origin, restored)
	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)
	if u.Host != j.origin.Host {
		return
	}

	now := j.now()
	for _, c := range cookies {
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || sc.expired(now) || c.Value == "" {
			delete(j.cookies, c.Name)
			continue
		}
		j.cookies[c.Name] = sc
	}
	j.dirty = true
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// HasCookies reports whether any cookie would be sent to the backend.
func (j *PersistentJar) HasCookies() bool {
	return len(j.Cookies(j.origin)) > 0
}

// Clear forgets every cookie, in memory and on disk.
func (j *PersistentJar) Clear(ctx context.Context) error {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("reset cookie jar: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner = inner
	clear(j.cookies)
	j.dirty = false
	return j.storage.Delete(ctx, CookieJarKey)
}

// Flush writes cookie changes since the last flush to local storage. It is a
// no-op when nothing changed; a failed write is retried on the next Flush.
func (j *PersistentJar) Flush(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.dirty {
		return nil
	}

	if len(j.cookies) == 0 {
		if err := j.storage.Delete(ctx, CookieJarKey); err != nil {
			return fmt.Errorf("purge cookie jar: %w", err)
		}
		j.dirty = false
		return nil
	}

	stored := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		stored = append(stored, c)
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cookie jar: %w", err)
	}
	if err := j.storage.Set(ctx, CookieJarKey, raw); err != nil {
		return fmt.Errorf("persist cookie jar: %w", err)
	}
	j.dirty = false
	return nil
}

var _ http.CookieJar = (*PersistentJar)(nil)
