package shell

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Revoker,Authenticator

import (
	"context"

	"certportal/internal/apiclient"
	"certportal/internal/session/models"
)

// Revoker asks the backend to end the server-side session.
type Revoker interface {
	Logout(ctx context.Context) error
}

// Authenticator signs in with credentials and resolves the current user.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*apiclient.LoginResult, error)
	CurrentUser(ctx context.Context) (*models.CurrentUser, error)
}
