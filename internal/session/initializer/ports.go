package initializer

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Fetcher,Notifier

import (
	"context"

	"certportal/internal/session/models"
)

// Fetcher resolves the session cookie to a user.
type Fetcher interface {
	CurrentUser(ctx context.Context) (*models.CurrentUser, error)
}

// Notifier surfaces one-off messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}
