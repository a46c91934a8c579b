package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t *testing.T, id string, eventType EventType, session string, channel int, payload any) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{
		EventID:   id,
		EventType: eventType,
		SessionID: session,
		ChannelID: channel,
		Timestamp: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Payload:   data,
	}
}

func TestMonitor_Apply(t *testing.T) {
	m := NewMonitor(DefaultMonitorConfig())

	require.NoError(t, m.Apply(event(t, "e1", EventTypeStateChanged, "lobby", 2, StateChangedPayload{From: "ready", To: "playing"})))
	require.NoError(t, m.Apply(event(t, "e2", EventTypeLatency, "lobby", 2, LatencyPayload{LatencyMs: 12.5})))
	require.NoError(t, m.Apply(event(t, "e3", EventTypeCorrection, "lobby", 2, CorrectionPayload{DriftMs: 40, BiasMs: 90})))
	require.NoError(t, m.Apply(event(t, "e4", EventTypeCorrection, "lobby", 2, CorrectionPayload{DriftMs: 35, BiasMs: 80})))
	require.NoError(t, m.Apply(event(t, "e5", EventTypeDropped, "lobby", 1, DroppedPayload{Reason: "inbox_full"})))
	require.NoError(t, m.Apply(event(t, "e6", EventTypeStateChanged, "atrium", 7, StateChangedPayload{From: "idle", To: "awaiting_local_ready"})))

	sessions := m.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "atrium", sessions[0].SessionID)
	assert.Equal(t, "lobby", sessions[1].SessionID)

	lobby := sessions[1].Channels
	require.Len(t, lobby, 2)
	assert.Equal(t, 1, lobby[0].ChannelID)
	assert.Equal(t, 1, lobby[0].Dropped)

	two := lobby[1]
	assert.Equal(t, "playing", two.State)
	assert.Equal(t, 12.5, two.LatencyMs)
	assert.Equal(t, 2, two.Corrections)
	assert.Equal(t, 35.0, two.LastDriftMs)
	assert.Equal(t, 80.0, two.BiasMs)
}

func TestMonitor_ApplyIsIdempotentPerEvent(t *testing.T) {
	m := NewMonitor(DefaultMonitorConfig())
	ev := event(t, "dup", EventTypeCorrection, "lobby", 2, CorrectionPayload{DriftMs: 40, BiasMs: 90})

	require.NoError(t, m.Apply(ev))
	require.NoError(t, m.Apply(ev))

	assert.Equal(t, 1, m.Sessions()[0].Channels[0].Corrections)
}

func TestMonitor_ApplyRejectsBadEvents(t *testing.T) {
	m := NewMonitor(DefaultMonitorConfig())

	assert.Error(t, m.Apply(event(t, "x1", EventType("Bogus"), "lobby", 1, struct{}{})))
	assert.Error(t, m.Apply(event(t, "x2", EventTypeStateChanged, "", 1, StateChangedPayload{})))

	bad := event(t, "x3", EventTypeLatency, "lobby", 1, "not an object")
	assert.Error(t, m.Apply(bad))

	assert.Empty(t, m.Sessions())
}

func TestMonitor_RunRequiresAttach(t *testing.T) {
	m := NewMonitor(DefaultMonitorConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	assert.Error(t, m.Run(ctx))
}
