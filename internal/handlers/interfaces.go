package handlers

import (
	"context"

	"github.com/aora/backend/internal/models"
)

// Backend is the set of backend operations exposed over HTTP.
type Backend interface {
	CreateAccount(ctx context.Context, email, password, username string) (models.UserRecord, error)
	SignIn(ctx context.Context, email, password string) (models.Session, error)
	GetCurrentAccount(ctx context.Context) (models.Account, error)
	GetCurrentUser(ctx context.Context) (models.UserRecord, bool)
	SignOut(ctx context.Context) error
	Session() (models.Session, bool)

	CreateVideoPost(ctx context.Context, form models.VideoForm) (models.VideoPost, error)
	ListAllPosts(ctx context.Context) ([]models.VideoPost, error)
	ListLatestPosts(ctx context.Context) ([]models.VideoPost, error)
	ListUserPosts(ctx context.Context, userID string) ([]models.VideoPost, error)
	SearchPosts(ctx context.Context, query string) ([]models.VideoPost, error)
}

// BackendFactory returns a Backend bound to the caller's session secret. An
// empty secret yields an anonymous Backend.
type BackendFactory func(secret string) (Backend, error)

// SessionTracker remembers sessions established through the gateway.
type SessionTracker interface {
	Remember(ctx context.Context, session models.Session) error
	Revoke(ctx context.Context, secret string)
}

// Sanitizer strips markup from user supplied text.
type Sanitizer interface {
	Sanitize(raw string) string
}

// ObjectPolicy decides which s3:// objects callers may import.
type ObjectPolicy interface {
	Check(uri string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
