package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/videogen/orchestrator/internal/api/response"
)

// Pinger reports connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// It reports per-dependency connectivity; any failing check degrades the
// response to 503.
func NewHealthHandler(db, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status: "ok",
			Checks: map[string]string{"database": "ok", "redis": "ok"},
		}
		code := http.StatusOK

		if err := db.Ping(ctx); err != nil {
			resp.Checks["database"] = "unreachable"
		}
		if err := redis.Ping(ctx); err != nil {
			resp.Checks["redis"] = "unreachable"
		}
		for _, v := range resp.Checks {
			if v != "ok" {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}

// NewReadyHandler returns an http.HandlerFunc for GET /api/v1/ready. Readiness
// only requires the store, since jobs cannot be accepted without it.
func NewReadyHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			response.Error(w, http.StatusServiceUnavailable,
				response.CodeServiceUnavailable, "Store is unreachable", nil)
			return
		}
		response.JSON(w, map[string]string{"status": "ready"})
	}
}
