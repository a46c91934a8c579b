// Package natsbus carries videosync traffic over core NATS subjects.
//
// Every endpoint listens on <prefix>.<channel_id> for unicast traffic and on
// <prefix>.all for broadcasts. The sender's channel ID travels in a header.
package natsbus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SourceHeader carries the sending channel ID.
const SourceHeader = "Videosync-Source"

// Config holds NATS connection settings for the bus
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default bus configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "videowall",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Bus is a videosync.Channel backed by a NATS connection.
type Bus struct {
	nc     *nats.Conn
	local  videosync.ChannelID
	prefix string
	owned  bool
}

var _ videosync.Channel = (*Bus)(nil)

// Connect dials NATS and returns a bus for the local channel.
func Connect(cfg Config, local videosync.ChannelID) (*Bus, error) {
	opts := []nats.Option{
		nats.Name(fmt.Sprintf("videowall-%d", local)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := New(nc, cfg.SubjectPrefix, local)
	b.owned = true
	return b, nil
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *nats.Conn, prefix string, local videosync.ChannelID) *Bus {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Bus{
		nc:     nc,
		local:  local,
		prefix: prefix,
	}
}

// Conn returns the underlying connection.
func (b *Bus) Conn() *nats.Conn { return b.nc }

// LocalID implements videosync.Channel.
func (b *Bus) LocalID() videosync.ChannelID { return b.local }

// Send implements videosync.Channel. Publishing is buffered by the NATS
// client and never waits for delivery.
func (b *Bus) Send(to videosync.Addresses, payload []byte) error {
	if to.All {
		return b.publish(BroadcastSubject(b.prefix), payload)
	}

	var errs []error
	for _, id := range to.IDs {
		if err := b.publish(ChannelSubject(b.prefix, id), payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) publish(subject string, payload []byte) error {
	msg := &nats.Msg{
		Subject: subject,
		Header:  nats.Header{},
		Data:    payload,
	}
	msg.Header.Set(SourceHeader, b.local.String())
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe implements videosync.Channel.
func (b *Bus) Subscribe(handler func(videosync.Delivery)) (videosync.Subscription, error) {
	cb := func(msg *nats.Msg) {
		d, ok := toDelivery(msg)
		if !ok {
			log.Debug().
				Str("subject", msg.Subject).
				Msg("dropping message without source header")
			return
		}
		handler(d)
	}

	direct, err := b.nc.Subscribe(ChannelSubject(b.prefix, b.local), cb)
	if err != nil {
		return nil, fmt.Errorf("subscribe unicast: %w", err)
	}
	all, err := b.nc.Subscribe(BroadcastSubject(b.prefix), cb)
	if err != nil {
		_ = direct.Unsubscribe()
		return nil, fmt.Errorf("subscribe broadcast: %w", err)
	}

	return &subscription{subs: []*nats.Subscription{direct, all}}, nil
}

func toDelivery(msg *nats.Msg) (videosync.Delivery, bool) {
	if msg.Header == nil {
		return videosync.Delivery{}, false
	}
	src, err := strconv.Atoi(msg.Header.Get(SourceHeader))
	if err != nil {
		return videosync.Delivery{}, false
	}
	return videosync.Delivery{
		Source:  videosync.ChannelID(src),
		Payload: msg.Data,
	}, true
}

// Close closes the connection if the bus created it.
func (b *Bus) Close() error {
	if b.owned && b.nc != nil {
		b.nc.Close()
	}
	return nil
}

// ChannelSubject is the unicast subject for id.
func ChannelSubject(prefix string, id videosync.ChannelID) string {
	return prefix + "." + id.String()
}

// BroadcastSubject is the subject every endpoint listens on.
func BroadcastSubject(prefix string) string {
	return prefix + ".all"
}

type subscription struct {
	subs []*nats.Subscription
}

func (s *subscription) Unsubscribe() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
