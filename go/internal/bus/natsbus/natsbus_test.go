package natsbus

import (
	"testing"

	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "wall.7", ChannelSubject("wall", 7))
	assert.Equal(t, "wall.all", BroadcastSubject("wall"))
}

func TestNewDefaultsPrefix(t *testing.T) {
	b := New(nil, "", 3)
	assert.Equal(t, "videowall", b.prefix)
	assert.EqualValues(t, 3, b.LocalID())
	assert.NoError(t, b.Close())
}

func TestToDelivery(t *testing.T) {
	msg := &nats.Msg{Subject: "wall.all", Header: nats.Header{}, Data: []byte(`{"kind":"PLAY"}`)}
	msg.Header.Set(SourceHeader, "12")

	d, ok := toDelivery(msg)
	require.True(t, ok)
	assert.Equal(t, videosync.ChannelID(12), d.Source)
	assert.Equal(t, []byte(`{"kind":"PLAY"}`), d.Payload)
}

func TestToDelivery_RequiresSource(t *testing.T) {
	_, ok := toDelivery(&nats.Msg{Subject: "wall.all", Data: []byte("x")})
	assert.False(t, ok)

	msg := &nats.Msg{Subject: "wall.all", Header: nats.Header{}}
	msg.Header.Set(SourceHeader, "left-screen")
	_, ok = toDelivery(msg)
	assert.False(t, ok)
}
