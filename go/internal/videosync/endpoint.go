package videosync

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Endpoint is one display participating in a synchronized session.
//
// All protocol state is owned by a single goroutine that drains the inbox and
// the two tickers; channel handlers, surface callbacks and API queries reach
// that state only by enqueueing closures.
type Endpoint struct {
	id        ChannelID
	sessionID string
	group     Group
	channel   Channel
	surface   Surface
	clock     clockwork.Clock
	tuning    Tuning
	metrics   MetricsCollector
	log       zerolog.Logger

	inbox chan func()
	done  chan struct{}

	listenersMu  sync.Mutex
	listeners    map[ListenerID]func()
	nextListener ListenerID

	// loop-owned
	state       State
	sub         Subscription
	canPlay     map[ChannelID]bool
	pinged      bool
	playIntent  bool
	pausedAt    time.Time
	probe       uint32
	probeSentAt time.Time
	latency     time.Duration
	bias        time.Duration
	retry       clockwork.Ticker
	syncTicker  clockwork.Ticker
}

// New validates the configuration, subscribes to the channel and starts the
// endpoint's event loop. The readiness barrier begins immediately.
func New(cfg Config) (*Endpoint, error) {
	if cfg.Channel == nil {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidArgument)
	}
	if cfg.Surface == nil {
		return nil, fmt.Errorf("%w: media surface is required", ErrInvalidArgument)
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}
	group, err := NewGroup(cfg.Topology)
	if err != nil {
		return nil, err
	}
	id := cfg.Channel.LocalID()
	if !group.Contains(id) {
		return nil, fmt.Errorf("%w: channel %d is not in the topology", ErrInvalidArgument, id)
	}

	cfg.withDefaults()

	e := &Endpoint{
		id:        id,
		sessionID: cfg.SessionID,
		group:     group,
		channel:   cfg.Channel,
		surface:   cfg.Surface,
		clock:     cfg.Clock,
		tuning:    cfg.Tuning,
		metrics:   cfg.Metrics,
		log: cfg.Logger.With().
			Str("component", "videosync").
			Str("session_id", cfg.SessionID).
			Stringer("channel_id", id).
			Bool("reference", id == group.Reference()).
			Logger(),
		inbox:     make(chan func(), cfg.InboxSize),
		done:      make(chan struct{}),
		listeners: make(map[ListenerID]func()),
		canPlay:   make(map[ChannelID]bool),
		bias:      cfg.Tuning.InitialBias,
	}

	sub, err := e.channel.Subscribe(e.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribe to channel: %w", err)
	}
	e.sub = sub

	e.surface.OnEnded(func() { e.enqueue(e.handleEnded) })

	e.log.Info().
		Int("group_size", group.Size()).
		Stringer("reference_id", group.Reference()).
		Msg("endpoint created")

	e.enqueue(e.beginBarrier)
	go e.run()

	return e, nil
}

// run is the endpoint's event loop.
func (e *Endpoint) run() {
	defer close(e.done)

	for {
		select {
		case fn := <-e.inbox:
			fn()
		case <-tickerChan(e.retry):
			e.onRetryTick()
		case <-tickerChan(e.syncTicker):
			e.broadcastSync()
		}
		if e.state == StateDestroyed {
			return
		}
	}
}

// deliver is the channel handler. Decoding happens on the caller's goroutine;
// only well-formed messages for this session reach the loop.
func (e *Endpoint) deliver(d Delivery) {
	msg, ok := Decode(e.sessionID, d)
	if !ok {
		return
	}
	e.enqueue(func() { e.handle(msg) })
}

// enqueue hands fn to the loop without blocking. A full inbox drops the event,
// which the protocol treats like a lost message.
func (e *Endpoint) enqueue(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.inbox <- fn:
		return true
	default:
		e.log.Warn().Msg("inbox full, dropping event")
		e.metrics.RecordDropped(e.sessionID, e.id, "inbox_full")
		return false
	}
}

// call runs fn on the loop and waits for it. It returns false if the loop
// has exited; loop-owned fields may then be read directly.
func (e *Endpoint) call(fn func()) bool {
	ran := make(chan struct{})
	select {
	case e.inbox <- func() { fn(); close(ran) }:
	case <-e.done:
		return false
	}

	select {
	case <-ran:
		return true
	case <-e.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// handle dispatches one decoded message.
func (e *Endpoint) handle(msg Message) {
	if e.state == StateDestroyed {
		return
	}
	if !e.group.Contains(msg.Source) {
		e.log.Debug().
			Stringer("source", msg.Source).
			Str("kind", string(msg.Kind)).
			Msg("ignoring message from non-member")
		return
	}

	switch msg.Kind {
	case KindCanPlay:
		e.handleCanPlay(msg.Source)
	case KindStandby:
		e.handleStandby(msg.Source)
	case KindPing:
		e.handlePing(msg.Source)
	case KindPingAck:
		e.handlePingAck(msg)
	case KindMeasured:
		e.handleMeasured(msg)
	case KindPlay:
		e.handlePlay()
	case KindSync:
		e.handleSync(msg)
	case KindPause:
		e.handlePause()
	case KindSeek:
		e.handleSeek(msg)
	case KindDestroy:
		e.teardown("destroy command")
	}
}

func (e *Endpoint) isReference() bool {
	return e.id == e.group.Reference()
}

func (e *Endpoint) setState(s State) {
	if e.state == s {
		return
	}
	from := e.state
	e.state = s
	e.log.Debug().
		Stringer("from", from).
		Stringer("to", s).
		Msg("state transition")
	e.metrics.RecordStateChange(e.sessionID, e.id, from, s)
}

// send encodes and hands a message to the channel. Failures are logged and
// otherwise treated as message loss.
func (e *Endpoint) send(to Addresses, kind Kind, pos *time.Duration, probe uint32) {
	payload, err := Encode(e.sessionID, kind, pos, probe)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to encode message")
		return
	}
	if err := e.channel.Send(to, payload); err != nil {
		e.log.Warn().
			Err(err).
			Str("kind", string(kind)).
			Msg("channel send failed")
	}
}

func (e *Endpoint) startRetry() {
	if e.retry != nil {
		return
	}
	e.retry = e.clock.NewTicker(e.tuning.RetryInterval)
}

func (e *Endpoint) stopRetry() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
}

func (e *Endpoint) startSync() {
	if e.syncTicker != nil {
		return
	}
	e.syncTicker = e.clock.NewTicker(e.tuning.SyncInterval)
}

func (e *Endpoint) stopSync() {
	if e.syncTicker != nil {
		e.syncTicker.Stop()
		e.syncTicker = nil
	}
}

// tickerChan returns nil for a stopped ticker so its select case never fires.
func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

// teardown is the terminal transition. It runs on every exit path.
func (e *Endpoint) teardown(reason string) {
	if e.state == StateDestroyed {
		return
	}

	if err := e.surface.Pause(); err != nil {
		e.log.Warn().Err(err).Msg("surface pause failed during teardown")
	}
	e.stopRetry()
	e.stopSync()
	if e.sub != nil {
		if err := e.sub.Unsubscribe(); err != nil {
			e.log.Warn().Err(err).Msg("failed to unsubscribe from channel")
		}
		e.sub = nil
	}
	e.playIntent = false
	e.setState(StateDestroyed)

	e.listenersMu.Lock()
	e.listeners = make(map[ListenerID]func())
	e.listenersMu.Unlock()

	e.log.Info().Str("reason", reason).Msg("endpoint destroyed")
}

// ID returns the local channel ID.
func (e *Endpoint) ID() ChannelID { return e.id }

// SessionID returns the content identifier shared by the group.
func (e *Endpoint) SessionID() string { return e.sessionID }

// Group returns the session membership.
func (e *Endpoint) Group() Group { return e.group }

// IsReference reports whether this endpoint is the elected reference.
func (e *Endpoint) IsReference() bool { return e.isReference() }

// Done is closed once the endpoint has been torn down.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// State returns the current session state.
func (e *Endpoint) State() State {
	var s State
	if !e.call(func() { s = e.state }) {
		return e.state
	}
	return s
}

// Latency returns the measured one-way delay to the reference. It is zero
// until the endpoint reaches Ready, and always zero on the reference.
func (e *Endpoint) Latency() time.Duration {
	var d time.Duration
	if !e.call(func() { d = e.latency }) {
		return e.latency
	}
	return d
}

// Bias returns the current restart bias.
func (e *Endpoint) Bias() time.Duration {
	var d time.Duration
	if !e.call(func() { d = e.bias }) {
		return e.bias
	}
	return d
}
