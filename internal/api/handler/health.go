package handler

import (
	"net/http"

	"github.com/mcoot/escaperoom/internal/api/response"
	"github.com/mcoot/escaperoom/internal/realtime"
)

// HealthHandler reports liveness
type HealthHandler struct {
	storageType string
	hubs        *realtime.HubManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(storageType string, hubs *realtime.HubManager) *HealthHandler {
	return &HealthHandler{storageType: storageType, hubs: hubs}
}

// Get handles GET /api/v1/health
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.HealthResponse{
		Status:  "ok",
		Storage: h.storageType,
		Rooms:   h.hubs.Count(),
		Sockets: h.hubs.ClientCount(),
	})
}
