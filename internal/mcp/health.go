package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bull/docchat/internal/qa"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Session   string `json:"session"`
	Chunks    int    `json:"chunks"`
	Qdrant    string `json:"qdrant,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The storage layer implements this via its Health() method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StatusReporter is the part of the session the health check reads.
type StatusReporter interface {
	Status() qa.Status
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// An Unindexed session is healthy. store may be nil when indexes live in memory.
func NewHealthHandler(session StatusReporter, store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		st := session.Status()
		response := HealthResponse{
			Status:    "healthy",
			Session:   st.State.String(),
			Chunks:    st.Chunks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if store != nil {
			if err := store.Health(ctx); err != nil {
				response.Status = "unhealthy"
				response.Qdrant = "disconnected"
				code = http.StatusServiceUnavailable
			} else {
				response.Qdrant = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(response)
	}
}
