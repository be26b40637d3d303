package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for overlay connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleWarConnection streams one war to one overlay client
func (h *WebSocketHandler) HandleWarConnection(w http.ResponseWriter, r *http.Request) {
	warID := r.PathValue("warID")
	if warID == "" {
		http.Error(w, "war id is required", http.StatusBadRequest)
		return
	}

	// The upgrader has already answered the request when upgrading fails
	if err := h.connectionManager.Serve(w, r, warID); err != nil {
		log.Error().
			Err(err).
			Str("war_id", warID).
			Str("remote_addr", r.RemoteAddr).
			Msg("overlay connection failed")
	}
}

// HandleConnectionStats returns statistics about active sessions
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("GET /ws/{warID}", h.HandleWarConnection)
}
