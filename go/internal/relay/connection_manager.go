package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages display WebSocket connections and routes frames
// between them by channel ID.
type ConnectionManager struct {
	// Connection pools organized by channel ID
	channelConnections map[videosync.ChannelID]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	routeCh chan RouteMessage

	routed  uint64
	dropped uint64
}

// Connection represents a WebSocket connection to a display
type Connection struct {
	ID        string
	ChannelID videosync.ChannelID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	RouteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// RouteMessage is a frame waiting to be routed
type RouteMessage struct {
	Source  videosync.ChannelID
	To      []videosync.ChannelID
	All     bool
	Payload json.RawMessage
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		RouteBufferSize: 1000,
		CheckOrigin: func(r *http.Request) bool {
			// Displays are served from arbitrary kiosk origins
			return true
		},
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		channelConnections: make(map[videosync.ChannelID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		routeCh: make(chan RouteMessage, config.RouteBufferSize),
	}
}

// Start processes routed frames until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.routeCh:
			cm.handleRoute(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket for a channel
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, channelID videosync.ChannelID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ChannelID:   channelID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Stringer("channel_id", channelID).
		Msg("display connected")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.channelConnections[conn.ChannelID] == nil {
		cm.channelConnections[conn.ChannelID] = make(map[*Connection]bool)
	}
	cm.channelConnections[conn.ChannelID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Stringer("channel_id", conn.ChannelID).
		Int("channel_connections", len(cm.channelConnections[conn.ChannelID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.channelConnections[conn.ChannelID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.channelConnections, conn.ChannelID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Stringer("channel_id", conn.ChannelID).
				Msg("display disconnected")
		}
	}
}

// Route queues a frame for delivery. A full queue drops the frame, which the
// protocol tolerates like any other lost message.
func (cm *ConnectionManager) Route(msg RouteMessage) {
	select {
	case cm.routeCh <- msg:
	default:
		cm.mu.Lock()
		cm.dropped++
		cm.mu.Unlock()
		log.Warn().Stringer("source", msg.Source).Msg("route channel full, dropping frame")
	}
}

func (cm *ConnectionManager) handleRoute(message RouteMessage) {
	// Marshal the frame once
	data, err := json.Marshal(RelayFrame{Source: message.Source, Payload: message.Payload})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal relay frame")
		return
	}

	// Sends happen under the read lock so no Send channel is closed mid-write.
	var delivered int
	var slow []*Connection
	cm.mu.RLock()
	deliver := func(conn *Connection) {
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	if message.All {
		for _, connections := range cm.channelConnections {
			for conn := range connections {
				deliver(conn)
			}
		}
	} else {
		for _, id := range message.To {
			for conn := range cm.channelConnections[id] {
				deliver(conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Stringer("channel_id", conn.ChannelID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	cm.mu.Lock()
	cm.routed++
	cm.mu.Unlock()

	log.Debug().
		Stringer("source", message.Source).
		Bool("broadcast", message.All).
		Int("connections", delivered).
		Msg("frame routed")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.channelConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.Conn.Close()
	}
}

// Stats is a snapshot of relay activity
type Stats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveChannels     int            `json:"active_channels"`
	ChannelConnections map[string]int `json:"channel_connections"`
	FramesRouted       uint64         `json:"frames_routed"`
	FramesDropped      uint64         `json:"frames_dropped"`
}

// GetStats returns statistics about active connections
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{
		ActiveChannels:     len(cm.channelConnections),
		ChannelConnections: make(map[string]int),
		FramesRouted:       cm.routed,
		FramesDropped:      cm.dropped,
	}
	for id, connections := range cm.channelConnections {
		stats.TotalConnections += len(connections)
		stats.ChannelConnections[id.String()] = len(connections)
	}
	return stats
}

// writePump handles sending frames to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write frame to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames from the display and queues them for routing
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientFrame(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientFrame(message []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring malformed client frame")
		return
	}
	if len(frame.Payload) == 0 || (!frame.All && len(frame.To) == 0) {
		return
	}

	c.Manager.Route(RouteMessage{
		Source:  c.ChannelID,
		To:      frame.To,
		All:     frame.All,
		Payload: frame.Payload,
	})
}
