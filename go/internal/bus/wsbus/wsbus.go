// Package wsbus is a videosync.Channel that talks to the relay over a single
// WebSocket per display.
package wsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/videowall/go/internal/relay"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("wsbus: connection closed")

// Config holds client settings
type Config struct {
	URL            string // relay base, e.g. ws://localhost:8090/ws/channel
	WriteTimeout   time.Duration
	SendBufferSize int
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		URL:            "ws://localhost:8090/ws/channel",
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 256,
	}
}

// Client is a relay-backed channel for one display.
type Client struct {
	conn   *websocket.Conn
	local  videosync.ChannelID
	config Config
	log    zerolog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

var _ videosync.Channel = (*Client)(nil)

// Dial connects to the relay as the given channel.
func Dial(ctx context.Context, cfg Config, local videosync.ChannelID) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("channel", strconv.Itoa(int(local)))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultConfig().SendBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	c := &Client{
		conn:   conn,
		local:  local,
		config: cfg,
		log: log.With().
			Str("component", "wsbus").
			Stringer("channel_id", local).
			Logger(),
		send: make(chan []byte, cfg.SendBufferSize),
		done: make(chan struct{}),
		subs: make(map[*subscription]struct{}),
	}

	go c.writePump()
	go c.readPump()

	return c, nil
}

// LocalID implements videosync.Channel.
func (c *Client) LocalID() videosync.ChannelID { return c.local }

// Send implements videosync.Channel. Frames are queued for the write pump;
// a full queue drops the frame.
func (c *Client) Send(to videosync.Addresses, payload []byte) error {
	frame := relay.ClientFrame{
		To:      to.IDs,
		All:     to.All,
		Payload: json.RawMessage(payload),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal client frame: %w", err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.log.Warn().Msg("send buffer full, dropping frame")
		return nil
	}
}

// Subscribe implements videosync.Channel.
func (c *Client) Subscribe(handler func(videosync.Delivery)) (videosync.Subscription, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	s := &subscription{client: c, handler: handler}
	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()
	return s, nil
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.config.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("failed to write frame")
				c.Close()
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.Close()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Error().Err(err).Msg("relay connection lost")
				}
			}
			return
		}

		var frame relay.RelayFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed relay frame")
			continue
		}
		c.dispatch(videosync.Delivery{Source: frame.Source, Payload: frame.Payload})
	}
}

func (c *Client) dispatch(d videosync.Delivery) {
	c.mu.RLock()
	handlers := make([]func(videosync.Delivery), 0, len(c.subs))
	for s := range c.subs {
		handlers = append(handlers, s.handler)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(d)
	}
}

type subscription struct {
	client  *Client
	handler func(videosync.Delivery)
}

func (s *subscription) Unsubscribe() error {
	s.client.mu.Lock()
	delete(s.client.subs, s)
	s.client.mu.Unlock()
	return nil
}
