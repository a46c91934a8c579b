package videosync

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tuning holds the protocol constants.
type Tuning struct {
	RetryInterval time.Duration // CAN_PLAY / PING_ACK re-send period
	SyncInterval  time.Duration // reference SYNC broadcast period
	MaxDrift      time.Duration // corrections fire only when drift exceeds this
	BiasStep      time.Duration
	InitialBias   time.Duration
}

// DefaultTuning returns the protocol defaults
func DefaultTuning() Tuning {
	return Tuning{
		RetryInterval: time.Second,
		SyncInterval:  time.Second,
		MaxDrift:      30 * time.Millisecond,
		BiasStep:      10 * time.Millisecond,
		InitialBias:   100 * time.Millisecond,
	}
}

// Config holds everything needed to construct an Endpoint.
type Config struct {
	SessionID string
	Topology  Topology
	Channel   Channel
	Surface   Surface
	Tuning    Tuning

	// Optional.
	Clock     clockwork.Clock
	Logger    *zerolog.Logger
	Metrics   MetricsCollector
	InboxSize int
}

func (c *Config) withDefaults() {
	if c.Tuning == (Tuning{}) {
		c.Tuning = DefaultTuning()
	}
	if c.Tuning.RetryInterval <= 0 {
		c.Tuning.RetryInterval = time.Second
	}
	if c.Tuning.SyncInterval <= 0 {
		c.Tuning.SyncInterval = time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		l := log.Logger
		c.Logger = &l
	}
	if c.Metrics == nil {
		c.Metrics = NoOpMetricsCollector{}
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
}
