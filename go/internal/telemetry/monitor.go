package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// MonitorConfig holds configuration for the JetStream monitor consumer
type MonitorConfig struct {
	Config
	ConsumerName  string
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
}

// DefaultMonitorConfig returns default monitor configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Config:        DefaultConfig(),
		ConsumerName:  "wall-monitor",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// ChannelView is the latest known condition of one display.
type ChannelView struct {
	ChannelID   int       `json:"channel_id"`
	State       string    `json:"state"`
	LatencyMs   float64   `json:"latency_ms"`
	BiasMs      float64   `json:"bias_ms"`
	LastDriftMs float64   `json:"last_drift_ms"`
	Corrections int       `json:"corrections"`
	Dropped     int       `json:"dropped"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionView aggregates every display of one session.
type SessionView struct {
	SessionID string        `json:"session_id"`
	Channels  []ChannelView `json:"channels"`
}

// Monitor replays session telemetry and keeps a per-session view of every
// display. Apply is safe for concurrent use.
type Monitor struct {
	consumer jetstream.Consumer
	config   MonitorConfig

	mu       sync.RWMutex
	sessions map[string]map[int]*ChannelView
	seen     map[string]struct{}
}

// NewMonitor creates a monitor that is not yet attached to a stream.
func NewMonitor(config MonitorConfig) *Monitor {
	return &Monitor{
		config:   config,
		sessions: make(map[string]map[int]*ChannelView),
		seen:     make(map[string]struct{}),
	}
}

// Attach creates or gets the durable consumer on the telemetry stream.
func (m *Monitor) Attach(ctx context.Context, js jetstream.JetStream) error {
	stream, err := js.Stream(ctx, m.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          m.config.ConsumerName,
		Durable:       m.config.ConsumerName,
		Description:   "Video wall session monitor",
		FilterSubject: m.config.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverAllPolicy, // Replay to rebuild views
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    m.config.MaxDeliver,
		AckWait:       m.config.AckWait,
		MaxAckPending: m.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	// Try to get existing consumer
	consumer, err := stream.Consumer(ctx, m.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", m.config.ConsumerName).
			Str("stream", m.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", m.config.ConsumerName).
			Str("stream", m.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	m.consumer = consumer
	return nil
}

// Run consumes telemetry until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.consumer == nil {
		return fmt.Errorf("monitor not attached to a stream")
	}

	log.Info().
		Str("consumer", m.config.ConsumerName).
		Str("stream", m.config.StreamName).
		Msg("starting telemetry monitor")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := m.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("telemetry monitor shutting down")
			return nil
		case msg := <-messageCh:
			if err := m.processMessage(msg); err != nil {
				// a malformed event will never parse, so it is not redelivered
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process telemetry event")
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (m *Monitor) processMessage(msg jetstream.Msg) error {
	var env Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return m.Apply(env)
}

// Apply folds one event into the session views. Events already applied are
// skipped so redeliveries do not double count.
func (m *Monitor) Apply(env Envelope) error {
	if env.SessionID == "" {
		return fmt.Errorf("event %s has no session", env.EventID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if env.EventID != "" {
		if _, ok := m.seen[env.EventID]; ok {
			return nil
		}
	}

	channels := m.sessions[env.SessionID]
	if channels == nil {
		channels = make(map[int]*ChannelView)
	}
	view := channels[env.ChannelID]
	if view == nil {
		view = &ChannelView{ChannelID: env.ChannelID}
	}

	switch env.EventType {
	case EventTypeStateChanged:
		var p StateChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", env.EventType, err)
		}
		view.State = p.To
		log.Info().
			Str("session_id", env.SessionID).
			Int("channel_id", env.ChannelID).
			Str("from", p.From).
			Str("to", p.To).
			Msg("display state changed")
	case EventTypeLatency:
		var p LatencyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", env.EventType, err)
		}
		view.LatencyMs = p.LatencyMs
	case EventTypeCorrection:
		var p CorrectionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", env.EventType, err)
		}
		view.Corrections++
		view.LastDriftMs = p.DriftMs
		view.BiasMs = p.BiasMs
	case EventTypeDropped:
		view.Dropped++
	default:
		return fmt.Errorf("unknown event type: %s", env.EventType)
	}

	if env.Timestamp.After(view.UpdatedAt) {
		view.UpdatedAt = env.Timestamp
	}
	channels[env.ChannelID] = view
	m.sessions[env.SessionID] = channels
	if env.EventID != "" {
		m.seen[env.EventID] = struct{}{}
	}
	return nil
}

// Sessions returns a snapshot of every session, ordered by session ID with
// channels ordered by channel ID.
func (m *Monitor) Sessions() []SessionView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionView, 0, len(m.sessions))
	for id, channels := range m.sessions {
		sv := SessionView{SessionID: id, Channels: make([]ChannelView, 0, len(channels))}
		for _, view := range channels {
			sv.Channels = append(sv.Channels, *view)
		}
		sort.Slice(sv.Channels, func(i, j int) bool { return sv.Channels[i].ChannelID < sv.Channels[j].ChannelID })
		out = append(out, sv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
