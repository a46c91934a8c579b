package videosync

import "time"

// Addresses selects the recipients of a channel send.
type Addresses struct {
	All bool
	IDs []ChannelID
}

// Broadcast addresses every endpoint on the channel, the sender included.
func Broadcast() Addresses {
	return Addresses{All: true}
}

// To addresses the listed endpoints only.
func To(ids ...ChannelID) Addresses {
	return Addresses{IDs: ids}
}

// Delivery is a payload received from the channel.
type Delivery struct {
	Source  ChannelID
	Payload []byte
}

// Subscription is returned by Channel.Subscribe.
type Subscription interface {
	Unsubscribe() error
}

// Channel is the best-effort messaging transport shared by all endpoints.
// Send must not block on delivery; handlers may be called from any goroutine.
type Channel interface {
	LocalID() ChannelID
	Send(to Addresses, payload []byte) error
	Subscribe(handler func(Delivery)) (Subscription, error)
}

// Surface is the local playback primitive.
type Surface interface {
	Play() error
	Pause() error
	Position() time.Duration
	SetPosition(pos time.Duration) error
	IsReadyEnough() bool
	OnReadyEnough(cb func())
	OnEnded(cb func())
}
