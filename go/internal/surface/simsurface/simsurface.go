// Package simsurface provides a clock-driven stand-in for a video element.
// Position advances while playing, content becomes playable after a buffering
// delay, and end-of-content fires when the position reaches the duration.
package simsurface

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/videowall/go/internal/videosync"
)

// ErrOutOfRange is returned when seeking outside [0, duration].
var ErrOutOfRange = errors.New("simsurface: position out of range")

// Config holds simulated media settings.
type Config struct {
	Duration time.Duration
	Buffer   time.Duration // time until IsReadyEnough turns true; 0 means ready now
	Rate     float64       // playback speed; 0 means 1.0. Values off 1.0 produce drift.
	Clock    clockwork.Clock
}

// Surface is a simulated media surface. It is safe for concurrent use.
type Surface struct {
	clock    clockwork.Clock
	duration time.Duration
	rate     float64

	mu        sync.Mutex
	ready     bool
	playing   bool
	base      time.Duration // position when playback last (re)started
	startedAt time.Time
	ended     bool
	endTimer  clockwork.Timer
	onReady   []func()
	onEnded   []func()

	plays  int
	pauses int
	seeks  int
}

var _ videosync.Surface = (*Surface)(nil)

// New creates a surface. With a positive buffer it becomes ready later.
func New(cfg Config) *Surface {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	s := &Surface{
		clock:    cfg.Clock,
		duration: cfg.Duration,
		rate:     cfg.Rate,
	}
	if cfg.Buffer <= 0 {
		s.ready = true
	} else {
		s.clock.AfterFunc(cfg.Buffer, s.MarkReady)
	}
	return s
}

// MarkReady flips the surface to ready and notifies readiness callbacks.
func (s *Surface) MarkReady() {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	cbs := append([]func(){}, s.onReady...)
	s.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// Play implements videosync.Surface.
func (s *Surface) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	if s.playing {
		return nil
	}
	s.playing = true
	s.startedAt = s.clock.Now()
	s.armEndLocked()
	return nil
}

// Pause implements videosync.Surface.
func (s *Surface) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	if !s.playing {
		return nil
	}
	s.base = s.positionLocked()
	s.playing = false
	s.disarmEndLocked()
	return nil
}

// Position implements videosync.Surface.
func (s *Surface) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// SetPosition implements videosync.Surface.
func (s *Surface) SetPosition(pos time.Duration) error {
	if pos < 0 || (s.duration > 0 && pos > s.duration) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, pos)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks++
	s.base = pos
	s.startedAt = s.clock.Now()
	s.ended = false
	if s.playing {
		s.armEndLocked()
	}
	return nil
}

// IsReadyEnough implements videosync.Surface.
func (s *Surface) IsReadyEnough() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// OnReadyEnough implements videosync.Surface.
func (s *Surface) OnReadyEnough(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = append(s.onReady, cb)
}

// OnEnded implements videosync.Surface.
func (s *Surface) OnEnded(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = append(s.onEnded, cb)
}

// Playing reports whether the surface is playing.
func (s *Surface) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Counts returns how many times Play, Pause and SetPosition were called.
func (s *Surface) Counts() (plays, pauses, seeks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays, s.pauses, s.seeks
}

func (s *Surface) positionLocked() time.Duration {
	pos := s.base
	if s.playing {
		pos += time.Duration(float64(s.clock.Since(s.startedAt)) * s.rate)
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *Surface) armEndLocked() {
	s.disarmEndLocked()
	if s.duration <= 0 {
		return
	}
	remaining := time.Duration(float64(s.duration-s.base) / s.rate)
	if remaining < 0 {
		remaining = 0
	}
	s.endTimer = s.clock.AfterFunc(remaining, s.fireEnded)
}

func (s *Surface) disarmEndLocked() {
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
}

func (s *Surface) fireEnded() {
	s.mu.Lock()
	if !s.playing || s.ended {
		s.mu.Unlock()
		return
	}
	s.base = s.duration
	s.playing = false
	s.ended = true
	s.endTimer = nil
	cbs := append([]func(){}, s.onEnded...)
	s.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}
