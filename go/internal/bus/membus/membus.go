// Package membus is an in-process videosync.Channel used by tests and by
// single-host demos. It can drop or delay messages to mimic a lossy network.
package membus

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when sending on a port that left the network.
var ErrClosed = errors.New("membus: port closed")

// DropFunc decides whether a single delivery is lost.
type DropFunc func(from, to videosync.ChannelID, payload []byte) bool

// TapFunc observes every send before routing.
type TapFunc func(from videosync.ChannelID, to videosync.Addresses, payload []byte)

// Option configures a Network.
type Option func(*Network)

// WithClock sets the clock used for delayed delivery.
func WithClock(c clockwork.Clock) Option {
	return func(n *Network) { n.clock = c }
}

// WithDelay delays every delivery by d.
func WithDelay(d time.Duration) Option {
	return func(n *Network) { n.delay = d }
}

// WithLoss drops each delivery with probability p using the given seed.
func WithLoss(p float64, seed int64) Option {
	return func(n *Network) {
		rng := rand.New(rand.NewSource(seed))
		var mu sync.Mutex
		n.drop = func(_, _ videosync.ChannelID, _ []byte) bool {
			mu.Lock()
			defer mu.Unlock()
			return rng.Float64() < p
		}
	}
}

// WithDrop installs a custom drop policy.
func WithDrop(fn DropFunc) Option {
	return func(n *Network) { n.drop = fn }
}

// WithTap installs a traffic observer.
func WithTap(fn TapFunc) Option {
	return func(n *Network) { n.tap = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Network) { n.log = l }
}

// Network routes payloads between ports.
type Network struct {
	clock clockwork.Clock
	delay time.Duration
	drop  DropFunc
	tap   TapFunc
	log   zerolog.Logger

	mu    sync.RWMutex
	ports map[videosync.ChannelID]*Port
}

// NewNetwork creates an empty network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		clock: clockwork.NewRealClock(),
		log:   log.Logger,
		ports: make(map[videosync.ChannelID]*Port),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With().Str("component", "membus").Logger()
	return n
}

// Join attaches a port for id, replacing any previous port with that ID.
func (n *Network) Join(id videosync.ChannelID) *Port {
	p := &Port{
		id:   id,
		net:  n,
		subs: make(map[*subscription]struct{}),
	}
	n.mu.Lock()
	n.ports[id] = p
	n.mu.Unlock()
	return p
}

func (n *Network) route(from videosync.ChannelID, to videosync.Addresses, payload []byte) {
	if n.tap != nil {
		n.tap(from, to, payload)
	}

	n.mu.RLock()
	var targets []*Port
	if to.All {
		targets = make([]*Port, 0, len(n.ports))
		for _, p := range n.ports {
			targets = append(targets, p)
		}
	} else {
		for _, id := range to.IDs {
			if p, ok := n.ports[id]; ok {
				targets = append(targets, p)
			}
		}
	}
	n.mu.RUnlock()

	for _, p := range targets {
		if n.drop != nil && n.drop(from, p.id, payload) {
			n.log.Debug().
				Stringer("from", from).
				Stringer("to", p.id).
				Msg("dropped delivery")
			continue
		}
		d := videosync.Delivery{Source: from, Payload: payload}
		if n.delay > 0 {
			target := p
			n.clock.AfterFunc(n.delay, func() { target.dispatch(d) })
			continue
		}
		p.dispatch(d)
	}
}

// Port is one endpoint's attachment to the network.
type Port struct {
	id  videosync.ChannelID
	net *Network

	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ videosync.Channel = (*Port)(nil)

// LocalID implements videosync.Channel.
func (p *Port) LocalID() videosync.ChannelID { return p.id }

// Send implements videosync.Channel.
func (p *Port) Send(to videosync.Addresses, payload []byte) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	p.net.route(p.id, to, buf)
	return nil
}

// Subscribe implements videosync.Channel.
func (p *Port) Subscribe(handler func(videosync.Delivery)) (videosync.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	s := &subscription{port: p, handler: handler}
	p.subs[s] = struct{}{}
	return s, nil
}

// Close detaches the port from the network.
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.subs = make(map[*subscription]struct{})
	p.mu.Unlock()

	p.net.mu.Lock()
	if p.net.ports[p.id] == p {
		delete(p.net.ports, p.id)
	}
	p.net.mu.Unlock()
	return nil
}

// Subscribers returns the number of active subscriptions.
func (p *Port) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func (p *Port) dispatch(d videosync.Delivery) {
	p.mu.RLock()
	handlers := make([]func(videosync.Delivery), 0, len(p.subs))
	for s := range p.subs {
		handlers = append(handlers, s.handler)
	}
	p.mu.RUnlock()

	for _, h := range handlers {
		h(d)
	}
}

type subscription struct {
	port    *Port
	handler func(videosync.Delivery)
}

func (s *subscription) Unsubscribe() error {
	s.port.mu.Lock()
	delete(s.port.subs, s)
	s.port.mu.Unlock()
	return nil
}
