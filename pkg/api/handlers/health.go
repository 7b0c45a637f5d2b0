package handlers

import (
	"net/http"
	"time"

	"github.com/sfts-dev/sfts/pkg/store"
)

// healthResponse is the health endpoint payload.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	store *store.GORMStore
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(s *store.GORMStore) *HealthHandler {
	return &HealthHandler{store: s}
}

// Health handles GET /health. It pings the database so orchestration can
// distinguish a live process from a usable coordinator.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"service": "sfts"},
	})
}
