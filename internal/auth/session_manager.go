package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/aora/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the session was never seen by this gateway.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrMissingBearer indicates the request carried no bearer token.
	ErrMissingBearer = errors.New("missing bearer token")
)

// SessionStore keeps known sessions keyed by the fingerprint of their secret.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, fingerprint string) (Session, error)
	Delete(ctx context.Context, fingerprint string) error
}

// Session is what the gateway remembers about a remote session. The secret
// itself is never stored.
type Session struct {
	Fingerprint string
	SessionID   string
	UserID      string
	ExpiresAt   time.Time
}

// Manager tracks sessions issued through the gateway so expired ones can be
// refused without a remote round trip.
type Manager struct {
	store SessionStore
	now   func() time.Time
}

// NewManager constructs a Manager backed by store.
func NewManager(store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Manager{store: store, now: time.Now}
}

// Remember records a session established by sign in or sign up.
func (m *Manager) Remember(ctx context.Context, session models.Session) error {
	if session.Secret == "" {
		return errors.New("session secret must be provided")
	}
	return m.store.Save(ctx, Session{
		Fingerprint: Fingerprint(session.Secret),
		SessionID:   session.ID,
		UserID:      session.UserID,
		ExpiresAt:   session.Expire,
	})
}

// Check looks up the session for secret. Sessions created elsewhere are
// reported as ErrSessionNotFound and left for the remote to judge.
func (m *Manager) Check(ctx context.Context, secret string) (Session, error) {
	if secret == "" {
		return Session{}, ErrSessionNotFound
	}

	fingerprint := Fingerprint(secret)
	session, err := m.store.Find(ctx, fingerprint)
	if err != nil {
		return Session{}, err
	}

	if !session.ExpiresAt.IsZero() && m.now().UTC().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, fingerprint)
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// Revoke forgets the session for secret.
func (m *Manager) Revoke(ctx context.Context, secret string) {
	if secret == "" {
		return
	}
	_ = m.store.Delete(ctx, Fingerprint(secret))
}

// Fingerprint returns a stable, non-reversible identifier for a session
// secret, safe to log and to use as a rate limit key.
func Fingerprint(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:16])
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

type ctxKey struct{}

// WithSecret stores the caller's session secret on the context.
func WithSecret(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, ctxKey{}, secret)
}

// SecretFromContext returns the session secret stored by WithSecret.
func SecretFromContext(ctx context.Context) string {
	secret, _ := ctx.Value(ctxKey{}).(string)
	return secret
}
