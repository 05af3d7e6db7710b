// SPDX-License-Identifier: MIT
package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "melscope/internal/log"
)

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Byte slices are broadcast as binary messages (raster
// frames), everything else as JSON.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	listener  net.Listener

	minSendInterval time.Duration
	lastSend        time.Time
	lastSendMu      sync.Mutex
}

// NewWebSocketTransport creates a WebSocketTransport listening on addr
// and starts serving immediately. minSendInterval throttles broadcasts;
// zero disables throttling.
func NewWebSocketTransport(addr string, minSendInterval time.Duration) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins, viewers connect from file:// pages.
			},
		},
		clients:         make(map[*websocket.Conn]bool),
		broadcast:       make(chan any, 256),
		minSendInterval: minSendInterval,
	}

	wst.start()
	return wst
}

func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)

	wst.server = &http.Server{
		Addr:    wst.addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", wst.addr)
	if err != nil {
		applog.Errorf("WebSocketTransport: Failed to listen on %s: %v", wst.addr, err)
		return
	}
	wst.listener = listener

	go func() {
		applog.Infof("WebSocketTransport: Listening on %s", listener.Addr())
		if err := wst.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()

	go wst.handleBroadcasts()
}

// Addr returns the bound listen address, which differs from the
// configured one when the port was chosen by the OS. Empty if the
// listener failed to bind.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener == nil {
		return ""
	}
	return wst.listener.Addr().String()
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Reads are only used to detect disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.clientsMu.Lock()
				delete(wst.clients, conn)
				total := len(wst.clients)
				wst.clientsMu.Unlock()
				conn.Close()
				applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
				return
			}
		}
	}()
}

// handleBroadcasts drains the broadcast channel and writes each
// message to every connected client. Failed clients are dropped.
func (wst *WebSocketTransport) handleBroadcasts() {
	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			var err error
			if raw, ok := data.([]byte); ok {
				err = client.WriteMessage(websocket.BinaryMessage, raw)
			} else {
				err = client.WriteJSON(data)
			}
			if err != nil {
				applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast to all connected clients. It never
// blocks: messages are dropped when the queue is full or when sends
// arrive faster than the configured interval. Byte slices are copied
// before queueing, so callers may keep reusing their buffer while the
// broadcast goroutine writes.
func (wst *WebSocketTransport) Send(data any) error {
	if wst.minSendInterval > 0 {
		wst.lastSendMu.Lock()
		now := time.Now()
		if now.Sub(wst.lastSend) < wst.minSendInterval {
			wst.lastSendMu.Unlock()
			return nil
		}
		wst.lastSend = now
		wst.lastSendMu.Unlock()
	}

	if raw, ok := data.([]byte); ok {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		data = cp
	}

	select {
	case wst.broadcast <- data:
	default:
		// Channel full, drop message.
	}
	return nil
}

// Close shuts down the WebSocket server and disconnects all clients.
func (wst *WebSocketTransport) Close() error {
	applog.Infof("WebSocketTransport: Closing server")

	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

var _ Transport = (*WebSocketTransport)(nil)
