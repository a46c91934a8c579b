package relay

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests from displays
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleChannelConnection attaches a display to its channel
func (h *WebSocketHandler) HandleChannelConnection(w http.ResponseWriter, r *http.Request) {
	channelStr := r.URL.Query().Get("channel")
	if channelStr == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}

	n, err := strconv.Atoi(channelStr)
	if err != nil {
		http.Error(w, "invalid channel format", http.StatusBadRequest)
		return
	}
	channelID := videosync.ChannelID(n)

	// The upgrader has already written an HTTP error on failure
	if err := h.connectionManager.UpgradeConnection(w, r, channelID); err != nil {
		log.Error().
			Err(err).
			Stringer("channel_id", channelID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetStats()); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/channel", h.HandleChannelConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
