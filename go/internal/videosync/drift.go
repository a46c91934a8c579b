package videosync

import "time"

// correction applies one SYNC sample. gap is how far the local position runs
// ahead of where the reference says it should be. When drift exceeds
// MaxDrift the bias moves one step against the gap and a seek target is
// returned; ok is false when no seek is needed.
func correction(local, master, latency, bias time.Duration, t Tuning) (target, newBias, drift time.Duration, ok bool) {
	gap := local - master + latency
	drift = gap
	if drift < 0 {
		drift = -drift
	}
	if drift <= t.MaxDrift {
		return 0, bias, drift, false
	}

	if gap >= 0 {
		bias -= t.BiasStep
	} else {
		bias += t.BiasStep
	}

	target = master + latency + bias
	if target < 0 {
		target = 0
	}
	return target, bias, drift, true
}

// handleSync reconciles the local position against the reference's.
func (e *Endpoint) handleSync(msg Message) {
	if e.isReference() || msg.Source != e.group.Reference() || !msg.HasPos {
		return
	}
	switch e.state {
	case StateAwaitingGroupReady:
		// SYNC only flows after the barrier opened, so the PING was lost.
		e.log.Debug().Msg("SYNC before PING, starting latency measurement")
		e.handlePing(msg.Source)
		return
	case StateReady, StatePaused:
		e.resumeFromSync(msg.Position)
		return
	case StatePlaying:
	default:
		return
	}

	target, bias, drift, ok := correction(e.surface.Position(), msg.Position, e.latency, e.bias, e.tuning)
	if !ok {
		return
	}
	if err := e.surface.SetPosition(target); err != nil {
		e.log.Warn().Err(err).Dur("target", target).Msg("drift correction seek failed")
		return
	}
	e.bias = bias
	e.metrics.RecordCorrection(e.sessionID, e.id, drift, bias)
	e.log.Debug().
		Dur("drift", drift).
		Dur("bias", bias).
		Dur("master", msg.Position).
		Dur("target", target).
		Msg("corrected drift")
}

// resumeFromSync handles a SYNC reaching a member that is not playing. The
// reference only broadcasts SYNC while it plays, so the PLAY was lost. SYNCs
// sent before the reference saw a PAUSE may still be in flight for one
// interval after pausing and are ignored.
func (e *Endpoint) resumeFromSync(master time.Duration) {
	if e.state == StatePaused && e.clock.Since(e.pausedAt) < e.tuning.SyncInterval {
		return
	}
	e.log.Debug().Dur("master", master).Msg("SYNC while stopped, treating it as a missed PLAY")

	// A member that got the PLAY would be at master when this SYNC lands.
	if err := e.surface.SetPosition(master); err != nil {
		e.log.Warn().Err(err).Dur("target", master).Msg("catch-up seek failed")
	}
	e.playIntent = true
	e.startPlayback()
}

// broadcastSync publishes the reference's position to the group.
func (e *Endpoint) broadcastSync() {
	if e.state != StatePlaying {
		e.stopSync()
		return
	}
	pos := e.surface.Position()
	e.send(Broadcast(), KindSync, &pos, 0)
}
