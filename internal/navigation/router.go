// Package navigation is the client's in-process router. It tracks the current
// route and a back stack the way a browser history does, and lets the shell
// and the session initializer observe and rewrite the current target.
package navigation

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

const (
	// LoginRoute is where unauthenticated users are sent.
	LoginRoute = "/login"
	// HomeRoute is the default landing route.
	HomeRoute = "/"
	// UnauthorizedRoute is shown when the session lacks the required role.
	UnauthorizedRoute = "/unauthorized"
)

// Router holds the current navigation target.
type Router struct {
	mu      sync.RWMutex
	current *url.URL
	history []*url.URL
	onMove  []func(*url.URL)
}

// New returns a router positioned at target, or at HomeRoute when target is empty.
func New(target string) (*Router, error) {
	if strings.TrimSpace(target) == "" {
		target = HomeRoute
	}
	u, err := parse(target)
	if err != nil {
		return nil, err
	}
	return &Router{current: u}, nil
}

func parse(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse navigation target %q: %w", target, err)
	}
	if u.IsAbs() || u.Host != "" {
		return nil, fmt.Errorf("navigation target %q must be a local path", target)
	}
	if u.Path == "" {
		u.Path = HomeRoute
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u, nil
}

// Current returns a copy of the current target.
func (r *Router) Current() *url.URL {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u := *r.current
	return &u
}

// Path is a shorthand for Current().Path.
func (r *Router) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Path
}

// IsLoginRoute reports whether the current path is the login page.
func (r *Router) IsLoginRoute() bool {
	return r.Path() == LoginRoute
}

// Push navigates to target, keeping the previous route on the back stack.
func (r *Router) Push(target string) error {
	u, err := parse(target)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.history = append(r.history, r.current)
	r.current = u
	listeners := r.onMove
	r.mu.Unlock()

	notify(listeners, u)
	return nil
}

// Replace navigates to target without adding a history entry.
func (r *Router) Replace(target string) error {
	u, err := parse(target)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = u
	listeners := r.onMove
	r.mu.Unlock()

	notify(listeners, u)
	return nil
}

// Back returns to the previous route. It reports false when there is none.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) == 0 {
		r.mu.Unlock()
		return false
	}
	last := len(r.history) - 1
	r.current = r.history[last]
	r.history = r.history[:last]
	u := *r.current
	listeners := r.onMove
	r.mu.Unlock()

	notify(listeners, &u)
	return true
}

// Depth is the number of entries on the back stack.
func (r *Router) Depth() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}

// OnNavigate registers fn to run after every route change.
func (r *Router) OnNavigate(fn func(*url.URL)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMove = append(r.onMove, fn)
}

func notify(listeners []func(*url.URL), u *url.URL) {
	for _, fn := range listeners {
		c := *u
		fn(&c)
	}
}

// WithoutQueryParam returns u's path and query with key removed, in a form
// suitable for Replace.
func WithoutQueryParam(u *url.URL, key string) string {
	q := u.Query()
	q.Del(key)
	out := url.URL{Path: u.Path, RawQuery: q.Encode(), Fragment: u.Fragment}
	return out.String()
}
