package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()

	cfg := DefaultConfig()
	svc := NewService(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	srv := httptest.NewServer(svc.Handler(cfg))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return svc, srv
}

func dial(t *testing.T, srv *httptest.Server, channel string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/channel?channel=" + channel
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) RelayFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame RelayFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func waitForConnections(t *testing.T, svc *Service, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.GetStats().TotalConnections == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_UnicastStampsSource(t *testing.T) {
	svc, srv := startRelay(t)
	one := dial(t, srv, "1")
	two := dial(t, srv, "2")
	three := dial(t, srv, "3")
	waitForConnections(t, svc, 3)

	require.NoError(t, one.WriteJSON(ClientFrame{
		To:      []videosync.ChannelID{2},
		Payload: json.RawMessage(`{"kind":"PING"}`),
	}))

	frame := readFrame(t, two)
	assert.Equal(t, videosync.ChannelID(1), frame.Source)
	assert.JSONEq(t, `{"kind":"PING"}`, string(frame.Payload))

	// three must not see the unicast
	require.NoError(t, three.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := three.ReadMessage()
	assert.Error(t, err)
}

func TestRelay_BroadcastIncludesSender(t *testing.T) {
	svc, srv := startRelay(t)
	one := dial(t, srv, "1")
	two := dial(t, srv, "2")
	waitForConnections(t, svc, 2)

	require.NoError(t, two.WriteJSON(ClientFrame{All: true, Payload: json.RawMessage(`{"kind":"PLAY"}`)}))

	for _, conn := range []*websocket.Conn{one, two} {
		frame := readFrame(t, conn)
		assert.Equal(t, videosync.ChannelID(2), frame.Source)
	}

	require.Eventually(t, func() bool {
		return svc.GetStats().FramesRouted == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_IgnoresMalformedFrames(t *testing.T) {
	svc, srv := startRelay(t)
	one := dial(t, srv, "1")
	two := dial(t, srv, "2")
	waitForConnections(t, svc, 2)

	require.NoError(t, one.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, one.WriteJSON(ClientFrame{Payload: json.RawMessage(`{}`)}))
	require.NoError(t, one.WriteJSON(ClientFrame{To: []videosync.ChannelID{2}, Payload: json.RawMessage(`{"kind":"SEEK"}`)}))

	frame := readFrame(t, two)
	assert.JSONEq(t, `{"kind":"SEEK"}`, string(frame.Payload))
	require.Eventually(t, func() bool {
		return svc.GetStats().FramesRouted == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_Stats(t *testing.T) {
	svc, srv := startRelay(t)
	dial(t, srv, "4")
	dial(t, srv, "4")
	dial(t, srv, "7")
	waitForConnections(t, svc, 3)

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveChannels)
	assert.Equal(t, 2, stats.ChannelConnections["4"])
}

func TestRelay_Disconnect(t *testing.T) {
	svc, srv := startRelay(t)
	conn := dial(t, srv, "1")
	waitForConnections(t, svc, 1)

	require.NoError(t, conn.Close())
	waitForConnections(t, svc, 0)
}

func TestRelay_HTTPRoutes(t *testing.T) {
	_, srv := startRelay(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"health", "/health", http.StatusOK},
		{"missing channel", "/ws/channel", http.StatusBadRequest},
		{"bad channel", "/ws/channel?channel=abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}
