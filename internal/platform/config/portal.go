package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Portal is the web front server's configuration, read from PORTAL_*
// environment variables.
type Portal struct {
	Addr            string        `env:"ADDR" envDefault:":3000"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	TracingEnabled  bool          `env:"TRACING_ENABLED" envDefault:"false"`
	Backend         Backend       `envPrefix:"BACKEND_"`
	Guard           Guard         `envPrefix:"GUARD_"`
}

// Backend locates the certificate API.
type Backend struct {
	URL     string        `env:"URL" envDefault:"http://localhost:8080"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Guard tunes the route guard.
type Guard struct {
	AdminPrefix      string        `env:"ADMIN_PREFIX" envDefault:"/admin"`
	MemberPrefix     string        `env:"MEMBER_PREFIX" envDefault:"/my"`
	SessionCookie    string        `env:"SESSION_COOKIE"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"10s"`
}

// FromEnv loads the portal configuration.
func FromEnv() (Portal, error) {
	return parsePortal(env.Options{Prefix: "PORTAL_"})
}

func parsePortal(opts env.Options) (Portal, error) {
	var cfg Portal
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Portal{}, fmt.Errorf("failed to parse portal config: %w", err)
	}
	if _, err := cfg.TrustedProxyPrefixes(); err != nil {
		return Portal{}, err
	}
	if err := cfg.Guard.validate(); err != nil {
		return Portal{}, err
	}
	return cfg, nil
}

// reservedPrefixes are served outside the guard and cannot host a protected area.
var reservedPrefixes = []string{"/login", "/unauthorized", "/api", "/oauth2", "/metrics", "/health"}

func (g Guard) validate() error {
	prefixes := map[string]string{"admin": g.AdminPrefix, "member": g.MemberPrefix}
	for name, prefix := range prefixes {
		trimmed := strings.TrimRight(prefix, "/")
		if !strings.HasPrefix(prefix, "/") || trimmed == "" {
			return fmt.Errorf("invalid %s prefix %q: must be an absolute path below /", name, prefix)
		}
		for _, reserved := range reservedPrefixes {
			if trimmed == reserved || strings.HasPrefix(trimmed, reserved+"/") {
				return fmt.Errorf("invalid %s prefix %q: %s is served outside the guard", name, prefix, reserved)
			}
		}
	}
	if strings.TrimRight(g.AdminPrefix, "/") == strings.TrimRight(g.MemberPrefix, "/") {
		return fmt.Errorf("admin and member prefixes must differ, both are %q", g.AdminPrefix)
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies; bare addresses become /32 or /128.
func (p Portal) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(p.TrustedProxies))
	for _, raw := range p.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			pfx, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			out = append(out, pfx)
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
