package videosync

// State is the session state of one endpoint.
type State int

const (
	StateIdle State = iota
	StateAwaitingLocalReady
	StateAwaitingGroupReady
	StateMeasuringLatency
	StateReady
	StatePlaying
	StatePaused
	StateDestroyed
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateAwaitingLocalReady: "awaiting_local_ready",
	StateAwaitingGroupReady: "awaiting_group_ready",
	StateMeasuringLatency:   "measuring_latency",
	StateReady:              "ready",
	StatePlaying:            "playing",
	StatePaused:             "paused",
	StateDestroyed:          "destroyed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
