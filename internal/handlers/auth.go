package handlers

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/aora/backend/internal/auth"
	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/models"
)

// AuthHandler implements the identity endpoints.
type AuthHandler struct {
	Backends BackendFactory
	Sessions SessionTracker
	Limiter  RateLimiter
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "signup") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many signup attempts"})
		return
	}

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email, password and username are required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warn("signup invalid email", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}

	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	user, err := b.CreateAccount(ctx, req.Email, req.Password, req.Username)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	session, _ := b.Session()
	h.remember(r, session)
	respondJSON(ctx, w, http.StatusCreated, signUpResponse{User: user, Session: session})
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	session, err := b.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	h.remember(r, session)
	respondJSON(ctx, w, http.StatusOK, sessionResponse{Session: session})
}

// Account handles GET /api/v1/auth/account requests.
func (h AuthHandler) Account(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	account, err := b.GetCurrentAccount(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]models.Account{"account": account})
}

// Me handles GET /api/v1/auth/me requests. Callers without a usable session
// receive a null user.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if auth.SecretFromContext(ctx) == "" {
		respondJSON(ctx, w, http.StatusOK, userResponse{})
		return
	}

	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	user, found := b.GetCurrentUser(ctx)
	if !found {
		respondJSON(ctx, w, http.StatusOK, userResponse{})
		return
	}
	respondJSON(ctx, w, http.StatusOK, userResponse{User: &user})
}

// Logout handles POST /api/v1/auth/logout requests.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	if err := b.SignOut(ctx); err != nil {
		respondError(ctx, w, err)
		return
	}

	if h.Sessions != nil {
		h.Sessions.Revoke(ctx, auth.SecretFromContext(ctx))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h AuthHandler) remember(r *http.Request, session models.Session) {
	if h.Sessions == nil || session.Secret == "" {
		return
	}
	if err := h.Sessions.Remember(r.Context(), session); err != nil {
		logging.FromContext(r.Context()).Warn("remember session", "error", err, "session", auth.Fingerprint(session.Secret))
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpResponse struct {
	User    models.UserRecord `json:"user"`
	Session models.Session    `json:"session"`
}

type sessionResponse struct {
	Session models.Session `json:"session"`
}

type userResponse struct {
	User *models.UserRecord `json:"user"`
}
