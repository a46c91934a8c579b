// Package nodeconfig loads node settings from the environment and the shared
// wall file.
package nodeconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidConfig is returned when env or wall settings fail validation.
var ErrInvalidConfig = errors.New("invalid config")

// Transport selects how a node reaches its peers.
type Transport string

const (
	TransportNATS  Transport = "nats"
	TransportRelay Transport = "relay"
)

// Config holds per-node settings read from the environment.
type Config struct {
	ChannelID         int
	WallConfigPath    string
	Transport         Transport
	NATSURL           string
	NATSSubjectPrefix string
	RelayURL          string
	TelemetryEnabled  bool
	Autoplay          bool
}

// NewConfigFromEnv reads node environment variables (with defaults).
func NewConfigFromEnv() (Config, error) {
	cfg := Config{
		ChannelID:         getEnvAsInt("NODE_CHANNEL_ID", -1),
		WallConfigPath:    GetEnv("WALL_CONFIG", "wall.yaml"),
		Transport:         Transport(strings.ToLower(GetEnv("TRANSPORT", string(TransportNATS)))),
		NATSURL:           GetEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubjectPrefix: GetEnv("NATS_SUBJECT_PREFIX", "videowall"),
		RelayURL:          GetEnv("RELAY_URL", "ws://localhost:8090/ws/channel"),
		TelemetryEnabled:  getEnvAsBool("TELEMETRY_ENABLED", false),
		Autoplay:          getEnvAsBool("AUTOPLAY", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the node settings.
func (c Config) Validate() error {
	if c.ChannelID < 0 {
		return fmt.Errorf("%w: NODE_CHANNEL_ID must be set to a non-negative integer", ErrInvalidConfig)
	}
	switch c.Transport {
	case TransportNATS, TransportRelay:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.TelemetryEnabled && c.Transport != TransportNATS {
		return fmt.Errorf("%w: telemetry requires the nats transport", ErrInvalidConfig)
	}
	return nil
}

// GetEnv returns the value of key, or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
