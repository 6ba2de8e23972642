// Package models defines the session identity and the four-field auth state
// every UI consumer reads.
package models

import "strings"

// Role is the account role reported by the certificate backend.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the signed-in identity as the client keeps it.
type User struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	UserID int64  `json:"userId"`
	Role   Role   `json:"role"`
}

// CurrentUser is the backend's "who am I" payload.
type CurrentUser struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
}

// DeriveUser builds the client-side User from the backend payload. The display
// name falls back to the local part of the email.
func DeriveUser(cu CurrentUser) User {
	name := strings.TrimSpace(cu.Name)
	if name == "" {
		name = EmailLocalPart(cu.Email)
	}
	return User{
		Email:  cu.Email,
		Name:   name,
		UserID: cu.ID,
		Role:   cu.Role,
	}
}

// EmailLocalPart returns the part of an address before '@'.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// AuthState is an immutable snapshot of the session as seen by the UI.
//
// Invariant: IsLoggedIn implies User != nil.
type AuthState struct {
	User          *User
	IsLoggedIn    bool
	IsHydrated    bool
	IsAuthChecked bool
}

// HasSession reports whether the state carries a usable session.
func (s AuthState) HasSession() bool {
	return s.IsLoggedIn && s.User != nil
}

// IsSettledLoggedOut reports whether a check has completed and found no session.
func (s AuthState) IsSettledLoggedOut() bool {
	return s.IsAuthChecked && !s.IsLoggedIn && s.User == nil
}

// IsReady reports whether consumers can stop showing placeholders.
func (s AuthState) IsReady() bool {
	return s.IsHydrated && s.IsAuthChecked
}

// IsAdmin reports whether the signed-in user has the ADMIN role.
func (s AuthState) IsAdmin() bool {
	return s.HasSession() && s.User.Role == RoleAdmin
}

// Clone returns a copy that shares no pointers with s.
func (s AuthState) Clone() AuthState {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
