package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/auth"
	"github.com/aora/backend/internal/backend"
	"github.com/aora/backend/internal/logging"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// statusFor maps a backend error to the HTTP status reported to callers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backend.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrAccountCreation) && appwrite.IsStatus(err, http.StatusConflict):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := http.StatusText(status)
	if status == http.StatusBadRequest || status == http.StatusConflict {
		message = err.Error()
	}
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// backendFor builds a Backend bound to the secret stored on the request context.
func backendFor(ctx context.Context, w http.ResponseWriter, factory BackendFactory) (Backend, bool) {
	if factory == nil {
		logging.FromContext(ctx).Error("backend factory unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "backend unavailable"})
		return nil, false
	}
	b, err := factory(auth.SecretFromContext(ctx))
	if err != nil {
		logging.FromContext(ctx).Error("build backend", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "backend unavailable"})
		return nil, false
	}
	return b, true
}
