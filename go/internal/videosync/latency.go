package videosync

// handlePing starts the round-trip measurement on non-reference endpoints.
func (e *Endpoint) handlePing(src ChannelID) {
	if e.isReference() || src != e.group.Reference() {
		return
	}
	if e.state != StateAwaitingGroupReady {
		return
	}

	e.setState(StateMeasuringLatency)
	e.sendProbe()
	// restarted in case STANDBY already stopped it
	e.startRetry()
}

// sendProbe sends a fresh PING_ACK. Each probe has its own number so a
// MEASURED answering an earlier probe cannot shorten the round trip.
func (e *Endpoint) sendProbe() {
	e.probe++
	e.probeSentAt = e.clock.Now()
	e.send(To(e.group.Reference()), KindPingAck, nil, e.probe)
}

// handlePingAck is the reference's half of the round trip.
func (e *Endpoint) handlePingAck(msg Message) {
	if !e.isReference() {
		return
	}
	e.send(To(msg.Source), KindMeasured, nil, msg.Probe)
}

// handleMeasured completes the round trip and makes the endpoint Ready.
func (e *Endpoint) handleMeasured(msg Message) {
	if e.isReference() || msg.Source != e.group.Reference() {
		return
	}
	if e.state != StateMeasuringLatency || msg.Probe != e.probe {
		return
	}

	e.stopRetry()
	e.latency = e.clock.Since(e.probeSentAt) / 2
	e.metrics.RecordLatency(e.sessionID, e.id, e.latency)
	e.log.Info().Dur("latency", e.latency).Msg("latency measured")

	e.setState(StateReady)
	if e.playIntent {
		e.startPlayback()
	}
}
