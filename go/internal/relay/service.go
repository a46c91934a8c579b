// Package relay is the message hub displays connect to when no NATS server is
// available. Each display holds one WebSocket and addresses frames to channel
// IDs; the relay stamps the sender's channel on every frame it delivers.
package relay

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Service is the relay service that handles display connections and routing
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the relay service
type Config struct {
	ConnectionConfig ConnectionConfig
	AllowedOrigins   []string
}

// DefaultConfig returns default configuration for the relay
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

// NewService creates a new relay service
func NewService(config Config) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
}

// Run routes frames until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	log.Info().Msg("starting relay service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("relay service stopped")
	return nil
}

// RegisterRoutes registers the relay HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

// Handler returns the relay's routes wrapped with CORS
func (s *Service) Handler(config Config) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedOrigins: config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// GetStats returns statistics about the relay
func (s *Service) GetStats() Stats {
	return s.connectionManager.GetStats()
}
