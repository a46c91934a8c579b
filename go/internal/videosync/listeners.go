package videosync

import "fmt"

// ListenerID identifies a registered ended listener.
type ListenerID uint64

// OnEnded registers fn to be called when the local surface reaches the end
// of its content. Listeners are local to this endpoint; nothing is broadcast.
func (e *Endpoint) OnEnded(fn func()) (ListenerID, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}
	if e.destroyed() {
		return 0, ErrDestroyed
	}

	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	e.nextListener++
	id := e.nextListener
	e.listeners[id] = fn
	return id, nil
}

// OffEnded removes a listener. Unknown IDs are ignored.
func (e *Endpoint) OffEnded(id ListenerID) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	delete(e.listeners, id)
}

func (e *Endpoint) handleEnded() {
	e.listenersMu.Lock()
	fns := make([]func(), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.Unlock()

	e.log.Info().Int("listeners", len(fns)).Msg("content ended")
	// Off the loop so a listener may call back into the endpoint.
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
}
