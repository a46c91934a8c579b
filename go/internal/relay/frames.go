package relay

import (
	"encoding/json"

	"github.com/mcdev12/videowall/go/internal/videosync"
)

// ClientFrame is what a display writes to the relay.
type ClientFrame struct {
	To      []videosync.ChannelID `json:"to,omitempty"`
	All     bool                  `json:"all,omitempty"`
	Payload json.RawMessage       `json:"payload"`
}

// RelayFrame is what the relay writes to a display.
type RelayFrame struct {
	Source  videosync.ChannelID `json:"source"`
	Payload json.RawMessage     `json:"payload"`
}
