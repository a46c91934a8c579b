package videosync

import (
	"fmt"
	"time"
)

// Play asks every endpoint in the group, this one included, to start
// playback. Endpoints that have not reached Ready start once they do.
func (e *Endpoint) Play() error {
	return e.command(KindPlay, nil)
}

// Pause asks every endpoint in the group to pause.
func (e *Endpoint) Pause() error {
	return e.command(KindPause, nil)
}

// SetPosition asks every endpoint in the group to seek to pos.
func (e *Endpoint) SetPosition(pos time.Duration) error {
	if pos < 0 {
		return fmt.Errorf("%w: negative position %s", ErrInvalidArgument, pos)
	}
	return e.command(KindSeek, &pos)
}

// Destroy tears down the whole group. The local endpoint is torn down
// immediately rather than waiting for its own DESTROY to come back.
func (e *Endpoint) Destroy() error {
	if e.destroyed() {
		return nil
	}
	err := e.command(KindDestroy, nil)
	e.stop("local destroy")
	return err
}

// Close tears down this endpoint only. The rest of the group is not told and
// keeps playing.
func (e *Endpoint) Close() error {
	if e.destroyed() {
		return nil
	}
	e.stop("local close")
	return nil
}

func (e *Endpoint) stop(reason string) {
	e.call(func() { e.teardown(reason) })
	<-e.done
}

func (e *Endpoint) destroyed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// command broadcasts a group command. The issuer handles its own echo like
// any other recipient.
func (e *Endpoint) command(kind Kind, pos *time.Duration) error {
	if e.destroyed() {
		return ErrDestroyed
	}
	payload, err := Encode(e.sessionID, kind, pos, 0)
	if err != nil {
		return err
	}
	if err := e.channel.Send(Broadcast(), payload); err != nil {
		return fmt.Errorf("broadcast %s: %w", kind, err)
	}
	return nil
}

func (e *Endpoint) handlePlay() {
	e.playIntent = true
	if e.state == StateReady || e.state == StatePaused {
		e.startPlayback()
	}
}

func (e *Endpoint) startPlayback() {
	if err := e.surface.Play(); err != nil {
		e.log.Warn().Err(err).Msg("surface play failed")
	}
	if e.isReference() {
		e.startSync()
	}
	e.setState(StatePlaying)
}

func (e *Endpoint) handlePause() {
	if !e.playIntent {
		return
	}
	e.playIntent = false

	if e.state != StatePlaying {
		return
	}
	if err := e.surface.Pause(); err != nil {
		e.log.Warn().Err(err).Msg("surface pause failed")
	}
	e.stopSync()
	e.pausedAt = e.clock.Now()
	e.setState(StatePaused)
}

func (e *Endpoint) handleSeek(msg Message) {
	if !msg.HasPos {
		return
	}
	if err := e.surface.SetPosition(msg.Position); err != nil {
		e.log.Warn().Err(err).Dur("position", msg.Position).Msg("seek failed")
	}
}
