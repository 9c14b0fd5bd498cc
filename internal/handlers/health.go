package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aora/backend/internal/logging"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	// Journal is optional; when set its reachability is reported.
	Journal Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload := map[string]string{
		"status": "ok",
	}
	status := http.StatusOK

	if h.Journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Journal.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("journal unreachable", "error", err)
			payload["status"] = "degraded"
			payload["journal"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			payload["journal"] = "ok"
		}
	}

	respondJSON(r.Context(), w, status, payload)
}
