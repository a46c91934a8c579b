package membus

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []videosync.Delivery
}

func (r *recorder) handle(d videosync.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) last() videosync.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func subscribe(t *testing.T, p *Port) *recorder {
	t.Helper()
	r := &recorder{}
	_, err := p.Subscribe(r.handle)
	require.NoError(t, err)
	return r
}

func TestNetwork_BroadcastReachesEveryPortIncludingSender(t *testing.T) {
	n := NewNetwork(WithLogger(zerolog.Nop()))
	a, b, c := n.Join(1), n.Join(2), n.Join(3)
	ra, rb, rc := subscribe(t, a), subscribe(t, b), subscribe(t, c)

	require.NoError(t, a.Send(videosync.Broadcast(), []byte("hello")))

	for _, r := range []*recorder{ra, rb, rc} {
		require.Equal(t, 1, r.len())
		assert.Equal(t, videosync.ChannelID(1), r.last().Source)
		assert.Equal(t, []byte("hello"), r.last().Payload)
	}
}

func TestNetwork_UnicastReachesOnlyTargets(t *testing.T) {
	n := NewNetwork()
	a, b, c := n.Join(1), n.Join(2), n.Join(3)
	ra, rb, rc := subscribe(t, a), subscribe(t, b), subscribe(t, c)

	require.NoError(t, a.Send(videosync.To(3, 42), []byte("x")))

	assert.Zero(t, ra.len())
	assert.Zero(t, rb.len())
	assert.Equal(t, 1, rc.len())
}

func TestPort_SendCopiesPayload(t *testing.T) {
	n := NewNetwork()
	a, b := n.Join(1), n.Join(2)
	rb := subscribe(t, b)

	buf := []byte("abc")
	require.NoError(t, a.Send(videosync.To(2), buf))
	buf[0] = 'z'

	assert.Equal(t, []byte("abc"), rb.last().Payload)
}

func TestNetwork_Drop(t *testing.T) {
	n := NewNetwork(WithDrop(func(from, to videosync.ChannelID, _ []byte) bool {
		return to == 2
	}))
	a, b, c := n.Join(1), n.Join(2), n.Join(3)
	subscribe(t, a)
	rb, rc := subscribe(t, b), subscribe(t, c)

	require.NoError(t, a.Send(videosync.Broadcast(), []byte("x")))

	assert.Zero(t, rb.len())
	assert.Equal(t, 1, rc.len())
}

func TestNetwork_LossIsDeterministicForSeed(t *testing.T) {
	run := func() int {
		n := NewNetwork(WithLoss(0.5, 7))
		a, b := n.Join(1), n.Join(2)
		rb := subscribe(t, b)
		for i := 0; i < 200; i++ {
			require.NoError(t, a.Send(videosync.To(2), []byte("x")))
		}
		return rb.len()
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Greater(t, first, 50)
	assert.Less(t, first, 150)
}

func TestNetwork_Delay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	n := NewNetwork(WithClock(clock), WithDelay(40*time.Millisecond))
	a, b := n.Join(1), n.Join(2)
	rb := subscribe(t, b)

	require.NoError(t, a.Send(videosync.To(2), []byte("x")))
	assert.Zero(t, rb.len())

	clock.Advance(40 * time.Millisecond)
	require.Eventually(t, func() bool { return rb.len() == 1 }, time.Second, time.Millisecond)
}

func TestNetwork_Tap(t *testing.T) {
	var tapped []videosync.Addresses
	n := NewNetwork(WithTap(func(_ videosync.ChannelID, to videosync.Addresses, _ []byte) {
		tapped = append(tapped, to)
	}))
	a := n.Join(1)

	require.NoError(t, a.Send(videosync.To(5), []byte("x")))
	require.NoError(t, a.Send(videosync.Broadcast(), []byte("y")))

	require.Len(t, tapped, 2)
	assert.Equal(t, []videosync.ChannelID{5}, tapped[0].IDs)
	assert.True(t, tapped[1].All)
}

func TestSubscription_Unsubscribe(t *testing.T) {
	n := NewNetwork()
	a, b := n.Join(1), n.Join(2)
	r := &recorder{}
	sub, err := b.Subscribe(r.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers())

	require.NoError(t, sub.Unsubscribe())
	assert.Zero(t, b.Subscribers())

	require.NoError(t, a.Send(videosync.To(2), []byte("x")))
	assert.Zero(t, r.len())
}

func TestPort_Close(t *testing.T) {
	n := NewNetwork()
	a, b := n.Join(1), n.Join(2)
	rb := subscribe(t, b)

	require.NoError(t, b.Close())
	assert.Zero(t, b.Subscribers())
	assert.ErrorIs(t, b.Send(videosync.Broadcast(), []byte("x")), ErrClosed)
	_, err := b.Subscribe(func(videosync.Delivery) {})
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, a.Send(videosync.Broadcast(), []byte("x")))
	assert.Zero(t, rb.len())
}
