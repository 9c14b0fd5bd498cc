package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aora/backend/internal/auth"
	"github.com/aora/backend/internal/logging"
)

// SessionChecker reports what the gateway knows about a session secret.
type SessionChecker interface {
	Check(ctx context.Context, secret string) (auth.Session, error)
}

// RequireSession rejects requests without a bearer session secret, or whose
// session is known to have expired. Unknown sessions are passed through for
// the remote service to judge.
func RequireSession(checker SessionChecker) func(http.Handler) http.Handler {
	return sessionMiddleware(checker, true)
}

// OptionalSession attaches a bearer session secret when one is present and
// not known to have expired.
func OptionalSession(checker SessionChecker) func(http.Handler) http.Handler {
	return sessionMiddleware(checker, false)
}

func sessionMiddleware(checker SessionChecker, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			secret, err := auth.BearerToken(r)
			if err != nil {
				if required {
					unauthorized(w, "missing bearer session")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			fingerprint := auth.Fingerprint(secret)
			if checker != nil {
				_, err := checker.Check(ctx, secret)
				switch {
				case err == nil, errors.Is(err, auth.ErrSessionNotFound):
				case errors.Is(err, auth.ErrSessionExpired):
					logging.FromContext(ctx).Info("expired session presented", "session", fingerprint)
					if required {
						unauthorized(w, "session expired")
						return
					}
					next.ServeHTTP(w, r)
					return
				default:
					logging.FromContext(ctx).Warn("session lookup failed", "session", fingerprint, "error", err)
				}
			}

			logger := logging.FromContext(ctx).With("session", fingerprint)
			ctx = logging.WithLogger(auth.WithSecret(ctx, secret), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
