// Package telemetry publishes endpoint session events to a JetStream stream
// so wall operators can replay how a session converged.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds JetStream settings for the recorder
type Config struct {
	StreamName    string
	SubjectPrefix string // events go to <prefix>.<session>.<type>
	MaxAge        time.Duration
}

// DefaultConfig returns default recorder configuration
func DefaultConfig() Config {
	return Config{
		StreamName:    "PLAYBACK_EVENTS",
		SubjectPrefix: "playback.events",
		MaxAge:        24 * time.Hour,
	}
}

// Publisher is the subset of jetstream.JetStream the recorder uses
type Publisher interface {
	PublishMsgAsync(msg *nats.Msg, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// Recorder implements videosync.MetricsCollector by publishing each event
// asynchronously. Publishing never blocks the endpoint's loop.
type Recorder struct {
	pub    Publisher
	config Config
	clock  clockwork.Clock
}

var _ videosync.MetricsCollector = (*Recorder)(nil)

// NewRecorder creates a recorder over an existing publisher
func NewRecorder(pub Publisher, config Config) *Recorder {
	return &Recorder{
		pub:    pub,
		config: config,
		clock:  clockwork.NewRealClock(),
	}
}

// EnsureStream creates or updates the telemetry stream
func EnsureStream(ctx context.Context, js jetstream.JetStream, config Config) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.StreamName,
		Description: "Synchronized playback session telemetry",
		Subjects:    []string{config.SubjectPrefix + ".>"},
		MaxAge:      config.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("create or update stream %s: %w", config.StreamName, err)
	}
	log.Info().
		Str("stream", config.StreamName).
		Str("subjects", config.SubjectPrefix+".>").
		Msg("telemetry stream ready")
	return nil
}

// Subject returns the subject an event is published on. sessionID must be a
// single subject token; nodeconfig rejects wall sessions that are not.
func (r *Recorder) Subject(sessionID string, eventType EventType) string {
	return fmt.Sprintf("%s.%s.%s", r.config.SubjectPrefix, sessionID, eventType)
}

// RecordStateChange implements videosync.MetricsCollector
func (r *Recorder) RecordStateChange(sessionID string, id videosync.ChannelID, from, to videosync.State) {
	r.publish(sessionID, id, EventTypeStateChanged, StateChangedPayload{From: from.String(), To: to.String()})
}

// RecordLatency implements videosync.MetricsCollector
func (r *Recorder) RecordLatency(sessionID string, id videosync.ChannelID, latency time.Duration) {
	r.publish(sessionID, id, EventTypeLatency, LatencyPayload{LatencyMs: ms(latency)})
}

// RecordCorrection implements videosync.MetricsCollector
func (r *Recorder) RecordCorrection(sessionID string, id videosync.ChannelID, drift, bias time.Duration) {
	r.publish(sessionID, id, EventTypeCorrection, CorrectionPayload{DriftMs: ms(drift), BiasMs: ms(bias)})
}

// RecordDropped implements videosync.MetricsCollector
func (r *Recorder) RecordDropped(sessionID string, id videosync.ChannelID, reason string) {
	r.publish(sessionID, id, EventTypeDropped, DroppedPayload{Reason: reason})
}

func (r *Recorder) publish(sessionID string, id videosync.ChannelID, eventType EventType, payload any) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal telemetry payload")
		return
	}

	eventID := uuid.New().String()
	data, err := json.Marshal(Envelope{
		EventID:   eventID,
		EventType: eventType,
		SessionID: sessionID,
		ChannelID: int(id),
		Timestamp: r.clock.Now().UTC(),
		Payload:   payloadBytes,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal telemetry envelope")
		return
	}

	msg := &nats.Msg{
		Subject: r.Subject(sessionID, eventType),
		Data:    data,
	}

	if _, err := r.pub.PublishMsgAsync(msg, jetstream.WithMsgID(eventID)); err != nil {
		log.Warn().
			Err(err).
			Str("subject", msg.Subject).
			Msg("failed to publish telemetry event")
	}
}
