package videosync

// beginBarrier waits for the local surface to buffer enough content.
func (e *Endpoint) beginBarrier() {
	e.setState(StateAwaitingLocalReady)

	e.surface.OnReadyEnough(func() { e.enqueue(e.localReady) })
	if e.surface.IsReadyEnough() {
		e.localReady()
	}
}

// localReady runs once the local surface can play. The reference records
// itself directly; everyone else reports to the reference until acknowledged.
func (e *Endpoint) localReady() {
	if e.state != StateAwaitingLocalReady {
		return
	}
	e.setState(StateAwaitingGroupReady)

	if e.isReference() {
		e.canPlay[e.id] = true
		e.checkGroupReady()
		return
	}

	e.send(To(e.group.Reference()), KindCanPlay, nil, 0)
	e.startRetry()
}

// handleCanPlay records a member as ready. Only the reference tracks readiness.
func (e *Endpoint) handleCanPlay(src ChannelID) {
	if !e.isReference() {
		return
	}

	e.send(To(src), KindStandby, nil, 0)

	if e.pinged {
		// The barrier is already open; a repeat CAN_PLAY means the member
		// never saw the PING.
		e.log.Debug().Stringer("source", src).Msg("re-sending PING to late member")
		e.send(To(src), KindPing, nil, 0)
		return
	}

	e.canPlay[src] = true
	e.checkGroupReady()
}

// checkGroupReady opens the barrier when every member has reported ready.
func (e *Endpoint) checkGroupReady() {
	if e.pinged {
		return
	}
	for _, id := range e.group.members {
		if !e.canPlay[id] {
			return
		}
	}

	e.pinged = true
	e.log.Info().Int("members", e.group.Size()).Msg("all members ready, starting latency measurement")
	e.send(Broadcast(), KindPing, nil, 0)

	e.latency = 0
	e.setState(StateReady)
	if e.playIntent {
		e.startPlayback()
	}
}

func (e *Endpoint) handleStandby(src ChannelID) {
	if e.isReference() || src != e.group.Reference() {
		return
	}
	// During measurement the retry ticker drives PING_ACK probes, so a late
	// STANDBY must not cancel it.
	if e.state == StateAwaitingGroupReady {
		e.stopRetry()
	}
}

// onRetryTick re-sends whatever the current phase is waiting on.
func (e *Endpoint) onRetryTick() {
	switch e.state {
	case StateAwaitingGroupReady:
		e.send(To(e.group.Reference()), KindCanPlay, nil, 0)
	case StateMeasuringLatency:
		e.sendProbe()
	default:
		e.stopRetry()
	}
}
