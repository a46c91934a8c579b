package telemetry

import (
	"encoding/json"
	"time"
)

// EventType represents the type of telemetry event
type EventType string

const (
	EventTypeStateChanged EventType = "StateChanged"
	EventTypeLatency      EventType = "LatencyMeasured"
	EventTypeCorrection   EventType = "DriftCorrected"
	EventTypeDropped      EventType = "EventDropped"
)

// Envelope is the message published to JetStream
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	ChannelID int             `json:"channelId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StateChangedPayload is published on every session state transition
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LatencyPayload is published once per endpoint per session
type LatencyPayload struct {
	LatencyMs float64 `json:"latency_ms"`
}

// CorrectionPayload is published for every drift correction
type CorrectionPayload struct {
	DriftMs float64 `json:"drift_ms"`
	BiasMs  float64 `json:"bias_ms"`
}

// DroppedPayload is published when an endpoint drops an event locally
type DroppedPayload struct {
	Reason string `json:"reason"`
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
