package transport

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDetachesFromCallerBuffer(t *testing.T) {
	wst := &WebSocketTransport{broadcast: make(chan any, 1)}

	buf := []byte{1, 1, 1, 1}
	require.NoError(t, wst.Send(buf))

	// The caller keeps reusing its buffer after Send returns.
	for i := range buf {
		buf[i] = 9
	}

	queued, ok := (<-wst.broadcast).([]byte)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 1, 1, 1}, queued, "queued payload must not alias the caller's buffer")
}

func TestSendThrottlesByInterval(t *testing.T) {
	wst := &WebSocketTransport{
		broadcast:       make(chan any, 4),
		minSendInterval: time.Hour,
	}

	require.NoError(t, wst.Send([]byte{1}))
	require.NoError(t, wst.Send([]byte{2})) // dropped by the interval

	assert.Len(t, wst.broadcast, 1)
}

// TestBroadcastWithReusedBuffer drives the full server path the way a
// frame handler does: one goroutine mutates a single buffer between
// sends while the broadcast goroutine writes to a connected client.
// Every delivered message must be uniform, and the race detector must
// stay quiet.
func TestBroadcastWithReusedBuffer(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0", 0)
	defer wst.Close()
	require.NotEmpty(t, wst.Addr(), "server must bind")

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 64*64*4)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			for j := range buf {
				buf[j] = byte(i)
			}
			wst.Send(buf)
			time.Sleep(time.Millisecond)
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for received := 0; received < 20; received++ {
		msgType, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, msgType)
		require.Len(t, msg, len(buf))
		for i, b := range msg {
			if b != msg[0] {
				t.Fatalf("torn message: byte %d is %d, byte 0 is %d", i, b, msg[0])
			}
		}
	}

	close(stop)
	<-done
}
