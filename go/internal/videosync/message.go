package videosync

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ProtocolName tags every envelope so foreign traffic on a shared channel can
// be filtered out before dispatch.
const ProtocolName = "videosync"

// Kind represents the type of protocol message
type Kind string

const (
	KindCanPlay  Kind = "CAN_PLAY"
	KindStandby  Kind = "STANDBY"
	KindPing     Kind = "PING"
	KindPingAck  Kind = "PING_ACK"
	KindMeasured Kind = "MEASURED"
	KindPlay     Kind = "PLAY"
	KindSync     Kind = "SYNC"
	KindPause    Kind = "PAUSE"
	KindSeek     Kind = "SEEK"
	KindDestroy  Kind = "DESTROY"
)

// Known reports whether k is one of the protocol's message kinds.
func (k Kind) Known() bool {
	switch k {
	case KindCanPlay, KindStandby, KindPing, KindPingAck, KindMeasured,
		KindPlay, KindSync, KindPause, KindSeek, KindDestroy:
		return true
	}
	return false
}

// Envelope is the wire format carried inside a channel payload
type Envelope struct {
	Protocol  string   `json:"protocol"`
	SessionID string   `json:"sessionId"`
	Kind      Kind     `json:"kind"`
	Position  *float64 `json:"position,omitempty"` // seconds
	Probe     uint32   `json:"probe,omitempty"`
}

// Message is a decoded envelope together with the channel it came from.
type Message struct {
	Source   ChannelID
	Kind     Kind
	Position time.Duration
	HasPos   bool
	Probe    uint32
}

// Encode builds the JSON payload for a message in the given session.
func Encode(sessionID string, kind Kind, pos *time.Duration, probe uint32) ([]byte, error) {
	env := Envelope{
		Protocol:  ProtocolName,
		SessionID: sessionID,
		Kind:      kind,
		Probe:     probe,
	}
	if pos != nil {
		secs := pos.Seconds()
		env.Position = &secs
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	return data, nil
}

// Decode parses a channel delivery. ok is false for payloads that belong to
// another protocol, another session, carry an unknown kind, or do not parse;
// such deliveries are ignored by the endpoint.
func Decode(sessionID string, d Delivery) (Message, bool) {
	var env Envelope
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		return Message{}, false
	}
	if env.Protocol != ProtocolName || env.SessionID != sessionID || !env.Kind.Known() {
		return Message{}, false
	}

	msg := Message{
		Source: d.Source,
		Kind:   env.Kind,
		Probe:  env.Probe,
	}
	if env.Position != nil {
		if math.IsNaN(*env.Position) || math.IsInf(*env.Position, 0) {
			return Message{}, false
		}
		msg.Position = SecondsToDuration(*env.Position)
		msg.HasPos = true
	}
	return msg, true
}

// SecondsToDuration converts a position in seconds to a Duration, rounding to
// the nearest nanosecond so that decimal inputs compare exactly.
func SecondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}
