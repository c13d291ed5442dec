package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evituu/bar-market/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	subscriberSize = 8
)

// Hub fans market snapshots out to subscribers. The pricing engine is the
// only publisher; subscribers that fall behind miss snapshots rather than
// block a tick.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan model.MarketSnapshot]struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan model.MarketSnapshot]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish delivers a snapshot to every subscriber without blocking.
func (h *Hub) Publish(snapshot model.MarketSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Subscribe registers a snapshot channel. The returned cancel func must be
// called when the subscriber is done.
func (h *Hub) Subscribe() (<-chan model.MarketSnapshot, func()) {
	ch := make(chan model.MarketSnapshot, subscriberSize)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// ServeWS upgrades the connection and streams snapshots until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snapshots, cancel := h.Subscribe()
	defer cancel()

	h.logger.Info("feed subscriber connected", "remote", conn.RemoteAddr().String())

	// Reader only detects close; clients never send payloads.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			h.logger.Info("feed subscriber disconnected", "remote", conn.RemoteAddr().String())
			return
		case snapshot := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshot); err != nil {
				h.logger.Warn("failed to write snapshot", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
