package videosync

import "time"

// MetricsCollector defines the interface for collecting endpoint metrics
type MetricsCollector interface {
	RecordStateChange(sessionID string, id ChannelID, from, to State)
	RecordLatency(sessionID string, id ChannelID, latency time.Duration)
	RecordCorrection(sessionID string, id ChannelID, drift, bias time.Duration)
	RecordDropped(sessionID string, id ChannelID, reason string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordStateChange(string, ChannelID, State, State)                {}
func (NoOpMetricsCollector) RecordLatency(string, ChannelID, time.Duration)                   {}
func (NoOpMetricsCollector) RecordCorrection(string, ChannelID, time.Duration, time.Duration) {}
func (NoOpMetricsCollector) RecordDropped(string, ChannelID, string)                          {}
