package guard

import (
	"strings"

	"certportal/internal/session/models"
)

// Family names a group of protected routes.
type Family string

const (
	FamilyAdmin  Family = "admin"
	FamilyMember Family = "member"
	// FamilyPublic labels requests no rule matched.
	FamilyPublic Family = "public"
)

// Rule protects every path under Prefix. An empty RequiredRole admits any
// authenticated session.
type Rule struct {
	Family       Family
	Prefix       string
	RequiredRole models.Role
}

// DefaultRules gates the administrative area on ADMIN and the personal area
// on any session.
func DefaultRules() []Rule {
	return []Rule{
		{Family: FamilyAdmin, Prefix: "/admin", RequiredRole: models.RoleAdmin},
		{Family: FamilyMember, Prefix: "/my"},
	}
}

// Matches reports whether path is Prefix itself or lies beneath it.
// "/admin" matches "/admin" and "/admin/users" but not "/administrator".
func (r Rule) Matches(path string) bool {
	prefix := strings.TrimRight(r.Prefix, "/")
	if prefix == "" {
		return true
	}
	rest, ok := strings.CutPrefix(path, prefix)
	return ok && (rest == "" || rest[0] == '/')
}

// Admits reports whether an authenticated user with role may pass.
func (r Rule) Admits(role models.Role) bool {
	return r.RequiredRole == "" || r.RequiredRole == role
}

func match(rules []Rule, path string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(path) {
			return r, true
		}
	}
	return Rule{}, false
}
